/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request logger, attached to the request context
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/projects/*          Projects, their records and the report
  /api/purchase-requests/* PYC approval
  /api/resources           Cached inventory
  /api/tasks               Cached tasks
  /api/payment-requests    Cached DNTT
  /api/suppliers           Configuration
  /api/departments         Configuration
  /api/scenarios/*         Demo data

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logger
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: len(origins) > 0 && origins[0] != "*",
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// Project routes
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)
			r.Get("/{id}", h.GetProject)
			r.Delete("/{id}", h.DeleteProject)
			r.Get("/{id}/report", h.GetProjectReport)
			r.Get("/{id}/purchase-requests", h.ListPurchaseRequests)
			r.Post("/{id}/purchase-requests", h.CreatePurchaseRequest)
			r.Post("/{id}/tasks", h.CreateTask)
			r.Post("/{id}/inflows", h.CreateInflow)
			r.Post("/{id}/payment-requests", h.CreatePaymentRequest)
			r.Post("/{id}/budget-lines", h.CreateBudgetLine)
		})

		// PYC approval routes
		r.Route("/purchase-requests", func(r chi.Router) {
			r.Post("/{id}/approve", h.ApprovePurchaseRequest)
			r.Post("/{id}/reject", h.RejectPurchaseRequest)
		})

		// Cached collections
		r.Get("/resources", h.ListResources)
		r.Post("/resources", h.CreateResource)
		r.Get("/tasks", h.ListTasks)
		r.Get("/payment-requests", h.ListPaymentRequests)

		// Configuration
		r.Get("/suppliers", h.ListSuppliers)
		r.Post("/suppliers", h.CreateSupplier)
		r.Get("/departments", h.ListDepartments)
		r.Post("/departments", h.CreateDepartment)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
