package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/shopcore/internal/auth"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/observability"
	"github.com/gitshopapp/shopcore/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, errorResponse{Error: message})
}

// writeServiceError maps service and store errors onto HTTP statuses.
// Gateway failures are reported generically; the details stay in the logs.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusForError(err)

	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "status", status)
	} else {
		logger.Info("request rejected", "error", err, "status", status)
	}

	observability.MeterFromContext(r.Context()).Count(
		"http.request.rejected", 1,
		sentry.WithAttributes(attribute.Int("http.status_code", status)),
	)
	h.writeError(w, r, status, message)
}

func statusForError(err error) (int, string) {
	var couponErr *services.InvalidCouponError
	switch {
	case errors.As(err, &couponErr):
		return http.StatusBadRequest, couponErr.Reason
	case errors.Is(err, services.ErrEmptyCart):
		return http.StatusBadRequest, "Cart is empty."
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "You do not have permission to perform this action."
	case errors.Is(err, db.ErrNotFound), errors.Is(err, services.ErrUnknownTransaction):
		return http.StatusNotFound, "Not found."
	case errors.Is(err, services.ErrRefundNotAllowed):
		return http.StatusConflict, "Only successful payments can be refunded."
	case errors.Is(err, db.ErrInvalidStatusTransition):
		return http.StatusConflict, "The resource is no longer in a state that allows this change."
	case errors.Is(err, gateway.ErrGatewayUnavailable),
		errors.Is(err, gateway.ErrTransactionNotFound),
		errors.Is(err, gateway.ErrVerificationFailed):
		return http.StatusBadGateway, "Payment gateway is unavailable. Please try again later."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}

// requirePrincipal writes 401 and returns false when the request carries no
// valid bearer token.
func (h *Handlers) requirePrincipal(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return services.Actor{}, false
	}
	return services.Actor{UserID: principal.UserID, Staff: principal.Staff}, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "Not found.")
}
