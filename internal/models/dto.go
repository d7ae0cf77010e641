package models

import "time"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateSessionRequest is the body for issuing a session to an email
type CreateSessionRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// LinkEmailRequest is the body for attaching an email to an existing token
type LinkEmailRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// AddGrantRequest is the body for extending a token to another album
type AddGrantRequest struct {
	AlbumID int64 `json:"albumId"`
}

// SessionResponse is the safe response format for a session
type SessionResponse struct {
	Token      string     `json:"token"`
	AlbumID    int64      `json:"albumId"`
	ClientID   *string    `json:"clientId,omitempty"`
	ClientName *string    `json:"clientName,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	MagicLink  string     `json:"magicLink"`
}

// ToResponse converts a Session to SessionResponse
func (s *Session) ToResponse(magicLink string) SessionResponse {
	return SessionResponse{
		Token:      s.Token,
		AlbumID:    s.PrimaryAlbumID,
		ClientID:   s.ClientID,
		ClientName: s.ClientName,
		ExpiresAt:  s.ExpiresAt,
		MagicLink:  magicLink,
	}
}
