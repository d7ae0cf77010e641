package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/photosync/proofing/internal/config"
	"github.com/photosync/proofing/internal/observability"
)

// apiKeyQueryParam lets websocket clients, which cannot set headers,
// authenticate on the upgrade request.
const apiKeyQueryParam = "api_key"

// AdminAuth requires the operator API key on every request. A configured
// bcrypt hash takes precedence over a plaintext key.
func AdminAuth(sec config.Security) func(http.Handler) http.Handler {
	headerName := sec.APIKeyHeader
	if headerName == "" {
		headerName = "X-API-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sec.AdminAPIKey == "" && sec.AdminAPIKeyHash == "" {
				writeAuthError(w, http.StatusForbidden, "Admin access is not configured.")
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				providedKey = r.URL.Query().Get(apiKeyQueryParam)
			}
			if providedKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "API key is required.")
				return
			}

			if !adminKeyMatches(sec, providedKey) {
				observability.WithContext(r.Context()).WithField("remote_addr", r.RemoteAddr).Warn("Rejected admin API key")
				writeAuthError(w, http.StatusUnauthorized, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func adminKeyMatches(sec config.Security, provided string) bool {
	if sec.AdminAPIKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(sec.AdminAPIKeyHash), []byte(provided)) == nil
	}
	return constantTimeEquals(sec.AdminAPIKey, provided)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// constantTimeEquals performs a constant-time string comparison
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
