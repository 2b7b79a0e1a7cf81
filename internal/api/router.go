// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/intentd/internal/metrics"
	"github.com/tomtom215/intentd/internal/twopc"
)

// Router builds the chi route tree.
type Router struct {
	handler *Handler
	mw      *MiddlewareConfig
}

// NewRouter creates a router. A nil middleware config uses the defaults.
func NewRouter(handler *Handler, mw *MiddlewareConfig) *Router {
	if mw == nil {
		mw = DefaultMiddlewareConfig()
	}
	return &Router{handler: handler, mw: mw}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(AccessLog)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(router.mw)) // global so OPTIONS preflight reaches it

	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Peer protocol. Not rate limited: a throttled peer looks like a lost vote.
	r.Route("/2pc", func(r chi.Router) {
		for _, phase := range twopc.Phases {
			r.Post("/"+string(phase), router.handler.Participant(phase))
		}
	})

	// Client routes.
	r.Group(func(r chi.Router) {
		r.Use(rateLimitMiddleware(router.mw))
		r.Use(SecurityHeaders)
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Get("/wal", router.handler.WAL)
		r.Post("/commit", router.handler.Commit)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/append", router.handler.Append)
			r.Post("/abort", router.handler.Abort)
			r.Post("/policy/reload", router.handler.ReloadPolicy)
			r.Get("/peers", router.handler.Peers)
			r.Get("/audit", router.handler.AuditEvents)
			r.Get("/wal/stats", router.handler.WALStats)
			r.Get("/transactions/{id}", router.handler.Transaction)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
