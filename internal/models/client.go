package models

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlaceholderClientName is given to clients synthesized for sessions that
// never captured a name.
const PlaceholderClientName = "Guest"

// Client is a gallery recipient. Email is unique case-insensitively and
// stored normalized.
type Client struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewClient creates a client record. Email and name may be empty.
func NewClient(email, name string) *Client {
	c := &Client{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
	if e := NormalizeEmail(email); e != "" {
		c.Email = &e
	}
	if n := strings.TrimSpace(name); n != "" {
		c.Name = &n
	}
	return c
}

// HasEmail reports whether a real identity is attached
func (c *Client) HasEmail() bool {
	return c.Email != nil && *c.Email != ""
}

// DisplayName returns the name or an empty string
func (c *Client) DisplayName() string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}

// EmailAddress returns the email or an empty string
func (c *Client) EmailAddress() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and checks that it parses as a bare address
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", ErrEmailRequired
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
