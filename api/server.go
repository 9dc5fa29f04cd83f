/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

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
  5. Auth:       Bearer-token principal extraction (optional per request)

ROUTE GROUPS:
  /api/teachers/*       Teacher registration, rates, slots, earnings
  /api/students/*       Student registration and match lookup
  /api/matches/*        Match creation and admin listing
  /api/payments/*       Payment submission and confirmation
  /api/chats/*          Gated messaging, read markers, unread flags
  /api/auth/*           Dev token minting
  /api/admin/*          Overview and demo seed
  /api/events           Live change stream (SSE, in-memory store only)

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
	if h.Auth != nil {
		r.Use(h.Auth.Middleware)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Teacher routes
		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Post("/", h.CreateTeacher)
			r.Get("/{id}", h.GetTeacher)
			r.Put("/{id}", h.UpdateTeacherProfile)
			r.Put("/{id}/rate", h.SetRate)
			r.Post("/{id}/slots", h.BuySlots)
			r.Get("/{id}/slots", h.ListSlotPurchases)
			r.Get("/{id}/students", h.TeacherStudents)
			r.Get("/{id}/payments", h.TeacherPayments)
			r.Get("/{id}/earnings", h.TeacherEarnings)
		})

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
			r.Put("/{id}", h.UpdateStudentProfile)
			r.Get("/{id}/match", h.StudentMatch)
		})

		// Match routes
		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.CreateMatch)
			r.Get("/", h.ListMatches)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.SubmitPayment)
			r.Post("/{id}/confirm", h.ConfirmPayment)
		})

		// Chat routes
		r.Route("/chats", func(r chi.Router) {
			r.Get("/{id}/eligibility", h.ChatEligibility)
			r.Get("/{id}/messages", h.ChatHistory)
			r.Post("/{id}/messages", h.SendMessage)
			r.Post("/{id}/read", h.MarkRead)
			r.Get("/{id}/unread", h.Unread)
		})

		// Auth routes (dev token minting)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/token", h.MintToken)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/overview", h.AdminOverview)
			r.Post("/seed", h.SeedDemo)
		})

		// Live change stream
		r.Get("/events", h.Events)
	})

	return r
}
