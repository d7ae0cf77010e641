package services

import (
	"fmt"
	"net/url"
	"strings"
)

// LinkBuilder builds the client-facing URLs that embed session tokens
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder creates a LinkBuilder rooted at the public base URL
func NewLinkBuilder(baseURL string) *LinkBuilder {
	return &LinkBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// MagicLink opens one album with the given token
func (b *LinkBuilder) MagicLink(token string, albumID int64) string {
	return fmt.Sprintf("%s/albums/%d?token=%s", b.baseURL, albumID, url.QueryEscape(token))
}

// LandingLink opens the overview of every album the token's client can see
func (b *LinkBuilder) LandingLink(token string) string {
	return fmt.Sprintf("%s/welcome?token=%s", b.baseURL, url.QueryEscape(token))
}
