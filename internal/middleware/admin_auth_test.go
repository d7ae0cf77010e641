package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/photosync/proofing/internal/config"
)

func TestAdminAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name   string
		sec    config.Security
		header string
		query  string
		want   int
	}{
		{"not configured", config.Security{}, "anything", "", http.StatusForbidden},
		{"missing key", config.Security{AdminAPIKey: "secret"}, "", "", http.StatusUnauthorized},
		{"wrong key", config.Security{AdminAPIKey: "secret"}, "nope", "", http.StatusUnauthorized},
		{"plain key", config.Security{AdminAPIKey: "secret"}, "secret", "", http.StatusNoContent},
		{"query key", config.Security{AdminAPIKey: "secret"}, "", "secret", http.StatusNoContent},
		{"hashed key", config.Security{AdminAPIKeyHash: string(hash)}, "hashed-secret", "", http.StatusNoContent},
		{"hash wins over plain", config.Security{AdminAPIKey: "secret", AdminAPIKeyHash: string(hash)}, "secret", "", http.StatusUnauthorized},
		{"custom header", config.Security{AdminAPIKey: "secret", APIKeyHeader: "X-Admin-Key"}, "secret", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/admin/reconciler"
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				name := tt.sec.APIKeyHeader
				if name == "" {
					name = "X-API-Key"
				}
				req.Header.Set(name, tt.header)
			}

			rec := httptest.NewRecorder()
			AdminAuth(tt.sec)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusNoContent {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}
