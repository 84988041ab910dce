package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/shopcore/internal/config"
	"github.com/gitshopapp/shopcore/internal/handlers"
	uiassets "github.com/gitshopapp/shopcore/ui/assets"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Gateway initiation can take up to GatewayTimeout before the response is written.
		WriteTimeout:   cfg.GatewayTimeout + 15*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Handler returns the routed application. CORS wraps the router so that
// preflight requests are answered before route method matching.
func (s *Server) Handler() http.Handler {
	return s.handlers.CORS(s.buildRouter())
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.Authenticate)
	r.Use(h.Recover)
	r.Use(h.SecurityHeaders)
	r.Use(h.MetricsContext)

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", http.FileServer(http.FS(uiassets.FS)))).Name("assets")

	r.NotFoundHandler = http.HandlerFunc(h.NotFound)

	limited := func(fn http.HandlerFunc) http.Handler {
		return h.RateLimit(h.Idempotency(fn))
	}

	r.Handle("/orders/", limited(h.CreateOrder)).Methods("POST").Name("orders.create")
	r.HandleFunc("/orders/{id}/", h.GetOrder).Methods("GET").Name("orders.get")
	r.HandleFunc("/orders/{id}/", h.UpdateOrder).Methods("PATCH").Name("orders.update")

	payment := r.PathPrefix("/payment").Subrouter()
	payment.Handle("/go-to-gateway/", limited(h.GoToGateway)).Methods("POST").Name("payment.go_to_gateway")
	// The gateway return must always redirect, so it is not rate limited.
	payment.HandleFunc("/callback/", h.PaymentCallback).Methods("GET", "POST").Name("payment.callback")
	payment.HandleFunc("/success/{tx}/", h.PaymentSuccess).Methods("GET").Name("payment.success")
	payment.HandleFunc("/failed/", h.PaymentFailed).Methods("GET").Name("payment.failed")
	payment.HandleFunc("/failed/{tx}/", h.PaymentFailed).Methods("GET").Name("payment.failed.tx")
	payment.HandleFunc("/api/payments/{id}/verify/", h.ReverifyPayment).Methods("POST").Name("payment.verify")
	payment.Handle("/api/refunds/", limited(h.RequestRefund)).Methods("POST").Name("refunds.request")
	payment.HandleFunc("/api/refunds/{id}/approve/", h.ApproveRefund).Methods("POST").Name("refunds.approve")
	payment.HandleFunc("/api/refunds/{id}/reject/", h.RejectRefund).Methods("POST").Name("refunds.reject")

	r.HandleFunc("/notifications/ws", h.NotificationsSocket).Methods("GET").Name("notifications.ws")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	return r
}
