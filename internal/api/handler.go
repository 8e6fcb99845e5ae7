// Package api implements the HTTP handlers for the mediadrop service: the
// multipart post upload flow, post and registry reads, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mediadrop/internal/auth"
	"mediadrop/internal/observability/logging"
	"mediadrop/internal/observability/metrics"
	"mediadrop/internal/storage"
)

// TokenVerifier is the slice of the auth verifier the API needs.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
	State() auth.State
}

// Handler carries the collaborators shared by all API endpoints.
type Handler struct {
	Store    storage.Repository
	Verifier TokenVerifier
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	// DevMode gates exposure of underlying error detail in 500 responses.
	DevMode bool

	clock func() time.Time
}

// New constructs a Handler with sane defaults for the optional
// collaborators.
func New(store storage.Repository, verifier TokenVerifier, logger *slog.Logger, devMode bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Verifier: verifier,
		Logger:   logger,
		Metrics:  metrics.Default(),
		DevMode:  devMode,
		clock:    time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.clock != nil {
		return h.clock()
	}
	return time.Now()
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// requestLogger prefers the request-scoped logger attached by the request-id
// middleware, so handler logs carry the request id.
func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	if logger := logging.LoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return h.logger()
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Auth    string `json:"auth"`
}

// Health reports storage reachability and the credential subsystem state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Storage: "ok"}
	status := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		h.requestLogger(r).Error("storage ping failed", "error", err)
		resp.Status = "degraded"
		resp.Storage = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if h.Verifier != nil {
		resp.Auth = h.Verifier.State().String()
	} else {
		resp.Auth = "disabled"
	}
	writeJSON(w, status, resp)
}
