// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/streamweaver/internal/config"
	"github.com/tomtom215/streamweaver/internal/middleware"
)

// healthRequestsPerMinute is deliberately permissive so monitoring can
// poll frequently without eating the API budget.
const healthRequestsPerMinute = 1000

// NewRouter builds the chi routing tree for the admin API.
func NewRouter(cfg config.ServerConfig, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(cfg.CORSOrigins))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(healthRequestsPerMinute, time.Minute))
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))
		r.Use(middleware.PrometheusMetrics)

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/run", h.PipelineRun)
		})

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", h.ListExecutions)
			r.Get("/{id}", h.GetExecution)
			r.Post("/{id}/rollback", h.RollbackExecution)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Get("/groups", h.ListRuleGroups)
			r.Get("/{id}", h.GetRule)
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.DeleteRule)
		})

		r.Route("/probe", func(r chi.Router) {
			r.Post("/start", h.ProbeStart)
			r.Post("/cancel", h.ProbeCancel)
			r.Post("/pause", h.ProbePause)
			r.Post("/resume", h.ProbeResume)
			r.Get("/status", h.ProbeStatus)
			r.Get("/history", h.ProbeHistory)
		})

		r.Route("/streams", func(r chi.Router) {
			r.Get("/stats", h.ListStreamStats)
			r.Post("/{id}/dismiss", h.DismissStreamStats)
		})

		r.Route("/bandwidth", func(r chi.Router) {
			r.Get("/daily", h.BandwidthDaily)
			r.Get("/channels", h.BandwidthChannels)
			r.Get("/connections", h.BandwidthConnections)
		})

		r.Get("/journal", h.ListJournal)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		r.Get("/ws", h.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
