package db

import "github.com/gitshopapp/shopcore/internal/models"

type Order = models.Order
type OrderItem = models.OrderItem
type OrderStatus = models.OrderStatus
type Payment = models.Payment
type PaymentStatus = models.PaymentStatus
type Transaction = models.Transaction
type Refund = models.Refund
type Coupon = models.Coupon
type Cart = models.Cart
type User = models.User
type GatewayConfig = models.GatewayConfig
type AuditEntry = models.AuditEntry
type Notification = models.Notification
type CartItem = models.CartItem
type Discount = models.Discount
type DiscountType = models.DiscountType
