package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/services"
)

type refundRequest struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

func (h *Handlers) RequestRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentID == uuid.Nil {
		h.writeError(w, r, http.StatusBadRequest, "payment_id is required")
		return
	}

	refund, err := h.refunds.Request(r.Context(), actor, services.RefundRequest{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, refund)
}

// ApproveRefund forces the payment to refunded; staff only.
func (h *Handlers) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	h.decideRefund(w, r, h.refunds.Approve)
}

func (h *Handlers) RejectRefund(w http.ResponseWriter, r *http.Request) {
	h.decideRefund(w, r, h.refunds.Reject)
}

type refundDecision func(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Refund, error)

func (h *Handlers) decideRefund(w http.ResponseWriter, r *http.Request, decide refundDecision) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "Not found.")
		return
	}

	refund, err := decide(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, refund)
}
