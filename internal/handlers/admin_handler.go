package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/services"
)

// ReconcilerControl is the operator view of the edit reconciler
type ReconcilerControl interface {
	GetStatus() services.ReconcilerStatus
	RunNow()
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	sessions   *services.SessionService
	reconciler ReconcilerControl
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sessions *services.SessionService, reconciler ReconcilerControl) *AdminHandler {
	return &AdminHandler{
		sessions:   sessions,
		reconciler: reconciler,
	}
}

// IssueSession creates a session for an email and mails its magic link
// @Summary Issue magic link
// @Tags admin
// @Accept json
// @Produce json
// @Param albumID path int true "Album ID"
// @Param request body models.CreateSessionRequest true "Recipient"
// @Success 201 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/admin/albums/{albumID}/sessions [post]
func (h *AdminHandler) IssueSession(w http.ResponseWriter, r *http.Request) {
	albumID, err := albumIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req models.CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, link, err := h.sessions.IssueMagicLink(r.Context(), albumID, req.Email, req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, session.ToResponse(link))
}

// AddGrant extends a session to another album
// @Summary Add album grant
// @Tags admin
// @Accept json
// @Param token path string true "Session token"
// @Param request body models.AddGrantRequest true "Album to grant"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/admin/sessions/{token}/grants [post]
func (h *AdminHandler) AddGrant(w http.ResponseWriter, r *http.Request) {
	var req models.AddGrantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.sessions.AddAlbumGrant(r.Context(), chi.URLParam(r, "token"), req.AlbumID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcilerStatus returns the reconciler's last run and schedule
// @Summary Reconciler status
// @Tags admin
// @Produce json
// @Success 200 {object} services.ReconcilerStatus
// @Security ApiKeyAuth
// @Router /api/admin/reconciler [get]
func (h *AdminHandler) ReconcilerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.reconciler.GetStatus())
}

// RunReconciler triggers a reconcile pass in the background
// @Summary Run reconciler now
// @Tags admin
// @Success 202
// @Failure 409 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/admin/reconciler/run [post]
func (h *AdminHandler) RunReconciler(w http.ResponseWriter, r *http.Request) {
	if h.reconciler.GetStatus().Running {
		respondMessage(w, http.StatusConflict, "Reconcile already running")
		return
	}
	h.reconciler.RunNow()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
