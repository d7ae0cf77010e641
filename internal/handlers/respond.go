package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/observability"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 64 * 1024

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondError maps a domain error to its HTTP status. Unclassified errors
// are logged and hidden behind a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		respondMessage(w, status, "Internal server error.")
		return
	}
	if status == http.StatusBadGateway {
		observability.WithContext(r.Context()).WithError(err).Warn("Upstream unavailable")
		respondMessage(w, status, "Catalog temporarily unavailable.")
		return
	}
	respondMessage(w, status, err.Error())
}

func statusFor(err error) int {
	switch models.KindOf(err) {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindTransientExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// albumIDParam reads the {albumID} route parameter
func albumIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "albumID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ErrInvalidAlbumID
	}
	return id, nil
}
