package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/services"
)

type createOrderRequest struct {
	CouponID        *uuid.UUID      `json:"coupon_id"`
	CouponCode      string          `json:"coupon_code"`
	ShippingAddress *models.Address `json:"shipping_address"`
	BillingAddress  *models.Address `json:"billing_address"`
	Metadata        map[string]any  `json:"metadata"`
}

type checkoutResponse struct {
	Order   *models.Order           `json:"order"`
	Gateway gatewayRedirectResponse `json:"gateway"`
}

type updateOrderRequest struct {
	Status          *models.OrderStatus `json:"status"`
	ShippingAddress *models.Address     `json:"shipping_address"`
	BillingAddress  *models.Address     `json:"billing_address"`
}

// CreateOrder checks out the caller's cart.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checkout.Checkout(r.Context(), services.CheckoutInput{
		UserID:          actor.UserID,
		CouponID:        req.CouponID,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Metadata:        req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, checkoutResponse{
		Order:   result.Order,
		Gateway: h.gatewayResponse(r, result.Payment, result.Initiation),
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "Not found.")
		return
	}

	order, err := h.orders.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

// UpdateOrder handles PATCH: status changes and address edits.
func (h *Handlers) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "Not found.")
		return
	}

	var req updateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == nil && req.ShippingAddress == nil && req.BillingAddress == nil {
		h.writeError(w, r, http.StatusBadRequest, "Nothing to update.")
		return
	}

	order, err := h.orders.Update(r.Context(), actor, id, services.OrderUpdate{
		Status:          req.Status,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}
