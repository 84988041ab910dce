package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Staff  bool
}

type OrderService struct {
	orders   OrderStore
	statuses *StatusDispatcher
	audit    AuditLogger
	logger   *slog.Logger
}

func NewOrderService(orders OrderStore, statuses *StatusDispatcher, auditLogger AuditLogger, logger *slog.Logger) *OrderService {
	return &OrderService{orders: orders, statuses: statuses, audit: auditLogger, logger: logger}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *OrderService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && order.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return order, nil
}

// OrderUpdate holds the fields a PATCH may change. Nil fields are left alone.
type OrderUpdate struct {
	Status          *models.OrderStatus
	ShippingAddress *models.Address
	BillingAddress  *models.Address
}

// Update applies an owner or staff change. Owners may only cancel a pending
// order and edit addresses before it ships; staff may set any status.
func (s *OrderService) Update(ctx context.Context, actor Actor, id uuid.UUID, update OrderUpdate) (*models.Order, error) {
	order, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if update.ShippingAddress != nil || update.BillingAddress != nil {
		if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusProcessing {
			return nil, invalidInput("addresses cannot be changed once an order is %s", order.Status)
		}
		if err := s.orders.UpdateAddresses(ctx, order.ID, update.ShippingAddress, update.BillingAddress); err != nil {
			return nil, fmt.Errorf("failed to update addresses: %w", err)
		}
		if err := s.audit.Log(ctx, audit.Event{
			UserID:     &actor.UserID,
			Action:     models.AuditUpdate,
			Object:     models.Ref(models.KindOrder, order.ID),
			ObjectRepr: fmt.Sprintf("Order %s", order.ID),
			Changes:    map[string]any{"addresses": true},
		}); err != nil {
			s.loggerFromContext(ctx).Warn("failed to record address audit entry", "error", err, "order_id", order.ID)
		}
	}

	if update.Status != nil {
		to := *update.Status
		if !to.Valid() {
			return nil, invalidInput("unknown order status %q", to)
		}
		if !actor.Staff && to != order.Status {
			if to != models.OrderStatusCancelled || order.Status != models.OrderStatusPending {
				return nil, ErrForbidden
			}
		}
		if _, err := s.statuses.ChangeOrderStatus(ctx, order, to, &actor.UserID); err != nil {
			return nil, err
		}
	}

	return s.orders.GetByID(ctx, order.ID)
}
