package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gitshopapp/shopcore/internal/auth"
	"github.com/gitshopapp/shopcore/internal/cache"
	"github.com/gitshopapp/shopcore/internal/observability"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	maxIdempotencyKey = 255
)

type storedResponse struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureResponseWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureResponseWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureResponseWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureResponseWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. Reusing a key with a different body is a 409. Failed
// responses are not stored so the client can retry with the same key.
func (h *Handlers) Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKey {
			h.writeError(w, r, http.StatusBadRequest, "Idempotency-Key is too long.")
			return
		}

		ctx := r.Context()
		logger := h.loggerFromContext(ctx)
		meter := observability.MeterFromContext(ctx)

		body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes+1))
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "Failed to read request body.")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		scope := "anonymous"
		if principal, ok := auth.PrincipalFromContext(ctx); ok {
			scope = principal.UserID.String()
		}
		cacheKey := cache.IdempotencyKey(scope, key)
		requestHash := hashRequest(r, body)

		cached, err := h.cacheProvider.Get(ctx, cacheKey)
		switch {
		case err == nil:
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("discarding unreadable idempotent response", "error", err)
				break
			}
			if stored.RequestHash != requestHash {
				meter.Count("http.idempotency.conflict", 1)
				h.writeError(w, r, http.StatusConflict, "Idempotency-Key was already used with a different request.")
				return
			}
			meter.Count("http.idempotency.replayed", 1)
			w.Header().Set("Content-Type", stored.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body) //nolint
			return
		case !errors.Is(err, cache.ErrNotFound):
			logger.Warn("idempotency lookup failed", "error", err)
		}

		capture := &captureResponseWriter{ResponseWriter: w}
		next.ServeHTTP(capture, r)

		if capture.status < http.StatusOK || capture.status >= http.StatusMultipleChoices {
			return
		}
		encoded, err := json.Marshal(storedResponse{
			RequestHash: requestHash,
			Status:      capture.status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        capture.buf.Bytes(),
		})
		if err != nil {
			logger.Error("failed to encode idempotent response", "error", err)
			return
		}
		if err := h.cacheProvider.Set(ctx, cacheKey, string(encoded), idempotencyTTL); err != nil {
			logger.Error("failed to store idempotent response", "error", err)
		}
	})
}

func hashRequest(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method + ":" + r.URL.Path + ":"))
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
