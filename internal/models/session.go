package models

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionLifetime is the fixed expiry horizon for new sessions
const DefaultSessionLifetime = 30 * 24 * time.Hour

// Session grants its token holder access to a primary album and any
// albums added through grants.
type Session struct {
	ID             string     `json:"id"`
	Token          string     `json:"token"`
	ClientID       *string    `json:"clientId,omitempty"`
	PrimaryAlbumID int64      `json:"albumId"`
	ClientName     *string    `json:"clientName,omitempty"`
	ClientEmail    *string    `json:"clientEmail,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewSession creates a session for albumID with a freshly minted token.
// A zero lifetime produces a non-expiring session.
func NewSession(albumID int64, lifetime time.Duration, now time.Time) (*Session, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	s := &Session{
		ID:             uuid.New().String(),
		Token:          token,
		PrimaryAlbumID: albumID,
		CreatedAt:      now,
	}
	if lifetime > 0 {
		expires := now.Add(lifetime)
		s.ExpiresAt = &expires
	}
	return s, nil
}

// IsExpired checks the session's own expiry against now
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// HasClient reports whether the session is linked to a client
func (s *Session) HasClient() bool {
	return s.ClientID != nil && *s.ClientID != ""
}

// ForAlbum returns a copy of the session scoped to albumID
func (s *Session) ForAlbum(albumID int64) *Session {
	cp := *s
	cp.PrimaryAlbumID = albumID
	return &cp
}

// SessionAlbumGrant extends a session to an album other than its primary one
type SessionAlbumGrant struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	AlbumID   int64     `json:"albumId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSessionAlbumGrant creates a grant record
func NewSessionAlbumGrant(sessionID string, albumID int64) *SessionAlbumGrant {
	return &SessionAlbumGrant{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		AlbumID:   albumID,
		CreatedAt: time.Now().UTC(),
	}
}

// GenerateSessionToken returns 32 random bytes encoded URL-safe without padding
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NormalizeToken trims surrounding whitespace from a caller-supplied token
func NormalizeToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenRequired
	}
	return token, nil
}
