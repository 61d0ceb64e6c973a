/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for an admin console
  5. Actor:      X-Actor-ID -> request context
  6. Instrument: Prometheus request metrics (when configured)

ROUTE GROUPS:
  /api/calculations/*   Calculation lifecycle
  /api/approvers/*      Approval queues
  /api/employees/*      Employee directory
  /api/departments/*    Department hierarchy
  /api/plans/*          Plan definitions and lifecycle
  /api/scenarios/*      Demo data
  /api/admin/*          SLA sweep
  /metrics              Prometheus scrape endpoint
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. The actor header is trusted; put the
  service behind a gateway that sets it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOption func(*routerConfig)

type routerConfig struct {
	observer       HTTPObserver
	metrics        http.Handler
	allowedOrigins []string
}

// WithMetrics instruments requests and serves handler at /metrics.
func WithMetrics(obs HTTPObserver, handler http.Handler) RouterOption {
	return func(c *routerConfig) {
		c.observer = obs
		c.metrics = handler
	}
}

func WithAllowedOrigins(origins ...string) RouterOption {
	return func(c *routerConfig) { c.allowedOrigins = origins }
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts ...RouterOption) *chi.Mux {
	cfg := routerConfig{allowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"}}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))
	r.Use(Actor)
	if cfg.observer != nil {
		r.Use(Instrument(cfg.observer))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.metrics != nil {
		r.Handle("/metrics", cfg.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/calculations", func(r chi.Router) {
			r.Get("/", h.ListCalculations)
			r.Post("/", h.Calculate)
			r.Get("/{id}", h.GetCalculation)
			r.Post("/{id}/submit", h.SubmitCalculation)
			r.Post("/{id}/approve", h.ApproveCalculation)
			r.Post("/{id}/reject", h.RejectCalculation)
			r.Post("/{id}/delegate", h.DelegateCalculation)
			r.Post("/{id}/escalate", h.EscalateCalculation)
			r.Post("/{id}/void", h.VoidCalculation)
			r.Post("/{id}/pay", h.PayCalculation)
		})

		r.Get("/approvers/{id}/pending", h.ListPending)

		r.Route("/employees", func(r chi.Router) {
			r.Put("/{id}", h.PutEmployee)
			r.Get("/{id}", h.GetEmployee)
		})

		r.Route("/departments", func(r chi.Router) {
			r.Put("/{id}", h.PutDepartment)
			r.Get("/{id}", h.GetDepartment)
			r.Get("/{id}/approvers", h.GetApprovers)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Put("/{id}", h.PutPlan)
			r.Get("/{id}", h.GetPlan)
			r.Post("/{id}/{action}", h.TransitionPlan)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/sweep", h.GetSweep)
			r.Post("/sweep", h.RunSweep)
		})
	})

	return r
}
