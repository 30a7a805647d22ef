/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address for rate limiting
  3. Logger:     Structured request logging (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counters, labelled by route pattern
  6. CORS:       Cross-origin requests for frontend

  Mutating endpoints additionally pass through the per-IP rate limiter.

ROUTE GROUPS:
  /api/earnings/*         Board, approvals, saves
  /api/downtime-reasons   Reason list
  /api/defaults/*         Pay rates
  /api/tasks/*            Task feed ingestion
  /api/audit              Audit trail
  /api/scenarios/*        Demo scenarios
  /healthz, /metrics      Operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/earnings/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/earnings-engine/metrics"
)

// RouterOptions configures the optional parts of the router.
type RouterOptions struct {
	CORSOrigins []string
	Metrics     *metrics.MetricsRegistry
	RateLimiter *RateLimiter
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Actor", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))

	limited := func(next http.Handler) http.Handler { return next }
	if opts.RateLimiter != nil {
		limited = opts.RateLimiter.Middleware
	}

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Earnings board routes
		r.Route("/earnings/{date}", func(r chi.Router) {
			r.Get("/", h.GetBoard)
			r.Get("/drift", h.GetDrift)
			r.Route("/pilots/{pilotID}", func(r chi.Router) {
				r.Get("/", h.GetEntry)
				r.With(limited).Post("/approval", h.SetApproval)
				r.With(limited).Post("/approval/reason", h.SelectReason)
				r.With(limited).Post("/approval/cancel", h.CancelApproval)
				r.With(limited).Post("/save", h.Save)
			})
		})

		// Reference data routes
		r.Get("/downtime-reasons", h.ListReasons)
		r.With(limited).Post("/downtime-reasons", h.CreateReason)
		r.Get("/defaults/{date}", h.GetDefaults)
		r.With(limited).Put("/defaults/{date}", h.PutDefaults)
		r.With(limited).Put("/tasks/{date}", h.PutTasks)

		r.Get("/audit", h.GetAudit)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(limited).Post("/load", h.LoadScenario)
		})
	})

	return r
}
