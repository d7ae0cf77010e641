package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers groups every HTTP handler of the server
type Handlers struct {
	Health   *HealthHandler
	Sessions *SessionHandler
	Albums   *AlbumHandler
	Admin    *AdminHandler
	Events   *EventsHandler
}

// Register mounts the routes on r. Admin routes are wrapped in adminAuth.
func (h *Handlers) Register(r chi.Router, adminAuth func(http.Handler) http.Handler) {
	r.Get("/health", h.Health.HealthCheck)
	r.Get("/api/health", h.Health.HealthCheck)

	r.Route("/api/albums/{albumID}", func(r chi.Router) {
		r.Post("/sessions", h.Sessions.CreateAnonymous)
		r.Get("/images", h.Albums.ListImages)
	})

	r.Route("/api/sessions/{token}", func(r chi.Router) {
		r.Get("/", h.Sessions.Validate)
		r.Post("/email", h.Sessions.LinkEmail)
		r.Get("/landing", h.Sessions.Landing)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(adminAuth)
		r.Post("/albums/{albumID}/sessions", h.Admin.IssueSession)
		r.Post("/sessions/{token}/grants", h.Admin.AddGrant)
		r.Get("/reconciler", h.Admin.ReconcilerStatus)
		r.Post("/reconciler/run", h.Admin.RunReconciler)
		if h.Events != nil {
			r.Get("/events", h.Events.HandleConnection)
		}
	})
}
