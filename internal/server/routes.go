// Package server wires HTTP handlers into a chi router for the mini-chats
// application.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the application router: health check,
// WebSocket chat endpoint, Prometheus metrics, the built-in chat page, and an
// optional static file directory.
func SetupRoutes(h *Handler, cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/api/connect", h.Connect)
	r.Get("/chat", h.ChatPage)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.StaticPath != "" {
		fs := http.FileServer(http.Dir(cfg.StaticPath))
		r.Handle("/*", fs)
	} else {
		r.Get("/", h.Health)
	}

	return r
}
