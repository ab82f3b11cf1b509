// Package ops provides the worker's operational HTTP surface: health and
// processing request status.
package ops

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Handler   *Handler
}

// NewRouter creates a new chi router with the ops routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(RequestID)
	r.Use(Logger(cfg.Logger))
	r.Use(Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	r.Get("/health", cfg.Handler.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			100,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
			httprate.WithLimitHandler(rateLimitExceeded),
		))
		r.Get("/requests/{choice}/{fiscalCode}/status", cfg.Handler.RequestStatus)
	})

	return r
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	p := newProblem(http.StatusTooManyRequests, "Too Many Requests",
		"rate limit exceeded, try again later", GetRequestID(r.Context()))
	p.Instance = r.URL.Path
	p.Write(w)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
