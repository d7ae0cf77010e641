package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/services"
)

// SessionHandler serves the client-facing session endpoints
type SessionHandler struct {
	sessions *services.SessionService
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateAnonymous opens an anonymous session for an album
// @Summary Create anonymous session
// @Tags sessions
// @Produce json
// @Param albumID path int true "Album ID"
// @Success 201 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/albums/{albumID}/sessions [post]
func (h *SessionHandler) CreateAnonymous(w http.ResponseWriter, r *http.Request) {
	albumID, err := albumIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	session, err := h.sessions.CreateAnonymousSession(r.Context(), albumID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	link := h.sessions.Links().MagicLink(session.Token, albumID)
	respondJSON(w, http.StatusCreated, session.ToResponse(link))
}

// LinkEmail attaches an email to the session behind the token
// @Summary Link email to session
// @Tags sessions
// @Accept json
// @Produce json
// @Param token path string true "Session token"
// @Param request body models.LinkEmailRequest true "Email and optional name"
// @Success 200 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/sessions/{token}/email [post]
func (h *SessionHandler) LinkEmail(w http.ResponseWriter, r *http.Request) {
	var req models.LinkEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.sessions.LinkEmailToSession(r.Context(), chi.URLParam(r, "token"), req.Email, req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}

	link := h.sessions.Links().MagicLink(session.Token, session.PrimaryAlbumID)
	respondJSON(w, http.StatusOK, session.ToResponse(link))
}

// Validate returns the session for a token
// @Summary Validate session token
// @Tags sessions
// @Produce json
// @Param token path string true "Session token"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/sessions/{token} [get]
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Validate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	link := h.sessions.Links().MagicLink(session.Token, session.PrimaryAlbumID)
	respondJSON(w, http.StatusOK, session.ToResponse(link))
}

// Landing returns every album the token's client can reach
// @Summary Landing bundle
// @Tags sessions
// @Produce json
// @Param token path string true "Session token"
// @Success 200 {object} models.LandingBundle
// @Failure 404 {object} models.ErrorResponse
// @Router /api/sessions/{token}/landing [get]
func (h *SessionHandler) Landing(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.sessions.LandingBundle(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}
