package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medianamer-platform/medianamer/internal/database"
	mw "github.com/medianamer-platform/medianamer/internal/middleware"
)

// AuditBus is the subset of the audit bus the router needs for the
// readiness probe; satisfied by *audit.Bus and injected from main.go to
// avoid an import cycle with the audit handlers.
type AuditBus interface {
	Healthy() bool
}

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Rename operations
	Rename     http.HandlerFunc
	Suggest    http.HandlerFunc
	RenameBulk http.HandlerFunc
	History    http.HandlerFunc

	// Credits
	CreditStatus http.HandlerFunc
	CreditReset  http.HandlerFunc
	CreditGrant  http.HandlerFunc

	// Audit
	ListAuditLogs http.HandlerFunc

	// Auth middleware
	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
}

func NewRouter(pool *pgxpool.Pool, bus AuditBus, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe: checks DB and the audit bus
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if bus != nil && !bus.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if bus == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/media", func(r chi.Router) {
				r.Post("/{resourceID}/rename", h.Rename)
				r.Get("/{resourceID}/suggestions", h.Suggest)
				r.Get("/{resourceID}/history", h.History)
				r.Post("/rename-bulk", h.RenameBulk)
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/", h.CreditStatus)
				r.Post("/grant", h.CreditGrant)

				// Privileged
				r.Group(func(r chi.Router) {
					r.Use(h.AdminMiddleware)
					r.Post("/reset", h.CreditReset)
				})
			})

			r.Get("/audit", h.ListAuditLogs)
		})
	})

	return r
}
