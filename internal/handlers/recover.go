package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/auth"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/observability"
)

// Recover turns a panic into a 500 JSON response. The failure is written to
// the audit trail before the response goes out.
func (h *Handlers) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			ctx := r.Context()
			err := fmt.Errorf("panic: %v", rec)
			h.loggerFromContext(ctx).Error("panic while serving request", "error", err, "stack", string(debug.Stack()))
			observability.MeterFromContext(ctx).Count("http.server.panics", 1)

			hub := sentry.GetHubFromContext(ctx)
			if hub == nil {
				hub = sentry.CurrentHub()
			}
			hub.Recover(rec)

			var userID *uuid.UUID
			if principal, ok := auth.PrincipalFromContext(ctx); ok {
				id := principal.UserID
				userID = &id
			}
			if auditErr := h.audit.Log(context.WithoutCancel(ctx), audit.Event{
				UserID:       userID,
				Action:       models.AuditSystem,
				Status:       models.AuditFailed,
				Priority:     models.PriorityHigh,
				ErrorMessage: err.Error(),
				Metadata:     map[string]any{"route": routeLabel(r)},
			}); auditErr != nil {
				h.loggerFromContext(ctx).Error("failed to audit panic", "error", auditErr)
			}

			h.writeError(w, r, http.StatusInternalServerError, "Internal server error.")
		}()

		next.ServeHTTP(w, r)
	})
}
