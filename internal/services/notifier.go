package services

import (
	"context"
	"strings"

	"github.com/photosync/proofing/internal/observability"
)

// MagicLinkMessage invites a client to an album
type MagicLinkMessage struct {
	Email      string
	ClientName string
	AlbumTitle string
	Link       string
}

// EditedDigestMessage tells a client that edited images are ready
type EditedDigestMessage struct {
	Email        string
	ClientName   string
	AlbumTitle   string
	SessionLinks []string
	LandingLink  string
}

// ThankYouMessage acknowledges a newly attached email
type ThankYouMessage struct {
	Email      string
	ClientName string
	AlbumTitle string
	Previews   []string
}

// Notifier delivers client-facing messages
type Notifier interface {
	SendMagicLink(ctx context.Context, msg MagicLinkMessage) error
	SendEditedDigest(ctx context.Context, msg EditedDigestMessage) error
	SendThankYou(ctx context.Context, msg ThankYouMessage) error
}

// LogNotifier writes messages to the log instead of sending them. It is
// used when no SMTP server is configured.
type LogNotifier struct{}

func (LogNotifier) SendMagicLink(ctx context.Context, msg MagicLinkMessage) error {
	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"to":    msg.Email,
		"album": msg.AlbumTitle,
		"link":  msg.Link,
	}).Info("Magic link (mail disabled)")
	return nil
}

func (LogNotifier) SendEditedDigest(ctx context.Context, msg EditedDigestMessage) error {
	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"to":      msg.Email,
		"album":   msg.AlbumTitle,
		"links":   strings.Join(msg.SessionLinks, ","),
		"landing": msg.LandingLink,
	}).Info("Edited digest (mail disabled)")
	return nil
}

func (LogNotifier) SendThankYou(ctx context.Context, msg ThankYouMessage) error {
	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"to":       msg.Email,
		"album":    msg.AlbumTitle,
		"previews": len(msg.Previews),
	}).Info("Thank-you note (mail disabled)")
	return nil
}
