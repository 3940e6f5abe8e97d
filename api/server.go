/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Identity:   Caller resolution from gateway headers

IDENTITY:
  The server sits behind an authenticating gateway that verifies tokens
  and forwards the resolved principal in X-User-Id and X-User-Roles.
  The identity middleware turns those into an engine.Identity on the
  request context; handlers enforce role and ownership rules from it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/worktime-engine/engine"
)

// Gateway headers carrying the resolved principal.
const (
	HeaderUserID = "X-User-Id"
	HeaderRoles  = "X-User-Roles"
)

type identityKey struct{}

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderUserID, HeaderRoles},
		AllowCredentials: true,
	}))
	r.Use(identityMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/start", h.StartSession)
			r.Post("/past", h.CreatePastSession)
			r.Get("/break-budget", h.BreakBudget)
			r.Post("/{id}/end", h.EndSession)
			r.Post("/{id}/confirm", h.ConfirmPastSession)
			r.Post("/{id}/reject", h.RejectPastSession)
			r.Put("/{id}", h.EditSession)
			r.Delete("/{id}", h.DeleteSession)
			r.Post("/{id}/restore", h.RestoreSession)
		})

		// Day-off routes
		r.Route("/dayoffs", func(r chi.Router) {
			r.Get("/", h.ListDayOffs)
			r.Post("/", h.CreateDayOff)
			r.Get("/{id}", h.GetDayOff)
			r.Put("/{id}", h.EditDayOff)
			r.Post("/{id}/status", h.ChangeDayOffStatus)
			r.Delete("/{id}", h.DeleteDayOff)
			r.Post("/{id}/restore", h.RestoreDayOff)
		})

		// Summary routes
		r.Route("/summary", func(r chi.Router) {
			r.Get("/", h.GetSummary)
			r.Get("/daily", h.GetDailySummary)
			r.Get("/export", h.ExportSummaryCSV)
		})

		// Directory routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/dayoffs", h.ListUserDayOffs)
		})
		r.Get("/projects", h.ListProjects)

		// Settings routes
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
		})

		// Presence routes
		r.Route("/presence", func(r chi.Router) {
			r.Get("/absent", h.AbsentUsers)
			r.Get("/long-breaks", h.LongBreakUsers)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sync", h.TriggerSync)
			r.Post("/rollover", h.TriggerRollover)
			r.Post("/sweep/breaks", h.TriggerBreakSweep)
			r.Post("/sweep/work", h.TriggerWorkSweep)
		})

		// Demo scenario routes (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// identityMiddleware resolves the caller from gateway headers. Requests
// without a principal still pass through; handlers that need one reject
// them with 403.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := engine.Identity{UserID: engine.UserID(r.Header.Get(HeaderUserID))}
		if roles := r.Header.Get(HeaderRoles); roles != "" {
			for _, role := range strings.Split(roles, ",") {
				if role = strings.TrimSpace(role); role != "" {
					id.Roles = append(id.Roles, role)
				}
			}
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom returns the caller resolved by identityMiddleware. The
// zero Identity (no user, no roles) means an anonymous request.
func identityFrom(r *http.Request) engine.Identity {
	id, _ := r.Context().Value(identityKey{}).(engine.Identity)
	return id
}
