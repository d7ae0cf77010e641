package handlers

import (
	"net/http"

	"github.com/photosync/proofing/internal/services"
)

// AlbumHandler serves replacement-aware album listings
type AlbumHandler struct {
	views *services.AlbumViewService
}

// NewAlbumHandler creates a new AlbumHandler
func NewAlbumHandler(views *services.AlbumViewService) *AlbumHandler {
	return &AlbumHandler{views: views}
}

// ListImages returns the album's images as seen through the token
// @Summary Album images
// @Description Edited images replace their originals; order follows original filenames
// @Tags albums
// @Produce json
// @Param albumID path int true "Album ID"
// @Param token query string true "Session token"
// @Success 200 {object} models.AlbumView
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/albums/{albumID}/images [get]
func (h *AlbumHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	albumID, err := albumIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := h.views.AlbumView(r.Context(), r.URL.Query().Get("token"), albumID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
