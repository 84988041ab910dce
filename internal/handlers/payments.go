package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/services"
	"github.com/gitshopapp/shopcore/ui/views"
)

type goToGatewayRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    models.Currency `json:"currency"`
	Description string          `json:"description"`
	// Object is "kind:uuid", e.g. "order:6f1c...".
	Object   string         `json:"object"`
	Metadata map[string]any `json:"metadata"`
}

type gatewayRedirectResponse struct {
	PaymentID     uuid.UUID         `json:"payment_id"`
	TransactionID string            `json:"transaction_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      models.Currency   `json:"currency"`
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	Params        map[string]string `json:"params,omitempty"`
	QRCode        string            `json:"qr_code,omitempty"`
}

type paymentResponse struct {
	ID            uuid.UUID            `json:"id"`
	Status        models.PaymentStatus `json:"status"`
	TransactionID string               `json:"transaction_id"`
}

// GoToGateway starts a payment that is not backed by a cart and answers with
// the form that sends the payer to the gateway. Browsers get the HTML form;
// API clients get the same data as JSON.
func (h *Handlers) GoToGateway(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req goToGatewayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	input := services.StandalonePaymentInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: strings.TrimSpace(req.Description),
		Metadata:    req.Metadata,
	}
	if object := strings.TrimSpace(req.Object); object != "" {
		ref, err := models.ParseObjectRef(object)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		input.Object = &ref
	}

	redirect, err := h.payments.StartStandalone(r.Context(), actor.UserID, input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := h.gatewayResponse(r, redirect.Payment, redirect.Initiation)
	if !wantsHTML(r) {
		h.writeJSON(w, r, http.StatusCreated, resp)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.GatewayRedirect(views.GatewayRedirectProps{
		Action:        resp.URL,
		Method:        resp.Method,
		Params:        resp.Params,
		TransactionID: resp.TransactionID,
		Amount:        resp.Amount.StringFixed(2),
		Currency:      string(resp.Currency),
		QRCode:        resp.QRCode,
	}).Render(r.Context(), w); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to render gateway redirect", "error", err)
		http.Error(w, "Failed to render gateway redirect", http.StatusInternalServerError)
	}
}

// PaymentCallback is where the gateway sends the payer back. It never
// answers with JSON: every outcome is a redirect to a result page.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	// Some gateways post the payer back with a form; tc may be in either.
	trackingCode := strings.TrimSpace(r.FormValue("tc"))

	target, err := h.payments.HandleCallback(r.Context(), trackingCode)
	if err != nil {
		logger := h.loggerFromContext(r.Context())
		if errors.Is(err, services.ErrUnknownTransaction) {
			logger.Warn("callback for unknown transaction", "error", err, "tracking_code", trackingCode)
		} else {
			logger.Error("payment callback failed", "error", err, "tracking_code", trackingCode)
		}
	}
	if target == "" {
		target = services.FailurePath
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handlers) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	h.renderPaymentResult(w, r, true)
}

func (h *Handlers) PaymentFailed(w http.ResponseWriter, r *http.Request) {
	h.renderPaymentResult(w, r, false)
}

func (h *Handlers) renderPaymentResult(w http.ResponseWriter, r *http.Request, success bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := views.PaymentResult(views.PaymentResultProps{
		Success:       success,
		TransactionID: mux.Vars(r)["tx"],
	}).Render(r.Context(), w); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to render payment result", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// ReverifyPayment lets staff settle a payment that was left pending.
func (h *Handlers) ReverifyPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	if !actor.Staff {
		h.writeServiceError(w, r, services.ErrForbidden)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "Not found.")
		return
	}

	payment, err := h.payments.Reverify(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, paymentResponse{
		ID:            payment.ID,
		Status:        payment.Status,
		TransactionID: payment.TransactionID,
	})
}

func (h *Handlers) gatewayResponse(r *http.Request, payment *models.Payment, initiation *gateway.Initiation) gatewayRedirectResponse {
	resp := gatewayRedirectResponse{
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
	}
	if initiation == nil {
		return resp
	}

	resp.URL = initiation.RedirectURL
	resp.Method = initiation.Method
	if resp.Method == "" {
		resp.Method = http.MethodPost
	}
	resp.Params = initiation.Params

	if resp.URL != "" {
		qr, err := qrDataURI(resp.URL)
		if err != nil {
			h.loggerFromContext(r.Context()).Warn("failed to build payment qr code", "error", err)
		} else {
			resp.QRCode = qr
		}
	}
	return resp
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
