/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/ros/*        Repair orders, stage/status changes, credit rows
  /api/overrides    Operator corrections
  /api/credits/*    Supplement row deletion
  /api/summary      Worked vs credited report
  /api/dashboard    Stage counts
  /api/employees/*  Directory
  /api/timeclock    Worked-hours import and totals
  /api/config       Current shop configuration

SECURITY NOTE:
  No authentication middleware. The service is meant to run on the shop
  LAN behind the front desk, same trust model as the files it replaced.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Repair order routes
		r.Route("/ros", func(r chi.Router) {
			r.Get("/", h.ListROs)
			r.Post("/", h.CreateRO)
			r.Get("/{ro}", h.GetRO)
			r.Put("/{ro}", h.UpdateRO)
			r.Delete("/{ro}", h.DeleteRO)
			r.Post("/{ro}/stage", h.ChangeStage)
			r.Post("/{ro}/status", h.ChangeStatus)
			r.Post("/{ro}/recompute", h.Recompute)
			r.Get("/{ro}/credits", h.GetCredits)
			r.Get("/{ro}/transitions", h.GetTransitions)
			r.Get("/{ro}/allocations", h.GetAllocations)
			r.Put("/{ro}/allocations", h.PutAllocations)
		})

		// Credit correction routes
		r.Put("/overrides", h.PutOverride)
		r.Delete("/overrides", h.DeleteOverride)
		r.Post("/credits/delete", h.DeleteCredit)

		// Reporting routes
		r.Get("/summary", h.GetSummary)
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/config", h.GetConfig)

		// Directory routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Delete("/{name}", h.DeleteEmployee)
		})

		// Timeclock routes
		r.Get("/timeclock", h.GetTimeclock)
		r.Post("/timeclock", h.ImportTimeclock)
	})

	return r
}
