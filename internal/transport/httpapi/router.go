// Package httpapi exposes the appointment service over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Service        appointmentsService
	Checks         map[string]Check
	Log            *slog.Logger
	RequestTimeout time.Duration
	Version        string
	// Location reads date-only query parameters; nil means UTC.
	Location *time.Location
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(middleware.Recoverer)

	health := &healthHandler{checks: cfg.Checks, version: cfg.Version}
	r.Get("/health/live", health.liveness)
	r.Get("/health/ready", health.readiness)

	h := &appointmentsHandler{svc: cfg.Service, log: log, loc: cfg.Location}
	r.Route("/v1/appointments", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(requesterMiddleware)

		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/upcoming", h.upcoming)
		r.Get("/stats", h.stats)
		r.Get("/calendar", h.calendar)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/cancel", h.cancel)
	})

	return otelhttp.NewHandler(r, "leadcal.http")
}
