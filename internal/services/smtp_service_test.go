package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosync/proofing/internal/config"
)

type sentMail struct {
	to, subject, body string
}

func newCapturingSMTP() (*SMTPService, *[]sentMail) {
	var sent []sentMail
	s := NewSMTPService(config.SMTP{Host: "smtp.example.com", Port: 587, From: "studio@example.com", FromName: "Studio"})
	s.send = func(ctx context.Context, to, subject, htmlBody string) error {
		sent = append(sent, sentMail{to: to, subject: subject, body: htmlBody})
		return nil
	}
	return s, &sent
}

func TestSMTPService_Templates(t *testing.T) {
	ctx := context.Background()

	t.Run("magic link", func(t *testing.T) {
		s, sent := newCapturingSMTP()
		err := s.SendMagicLink(ctx, MagicLinkMessage{
			Email:      "ana@example.com",
			ClientName: "Ana",
			AlbumTitle: "Wedding",
			Link:       "https://proof.example.com/albums/3?token=abc",
		})
		require.NoError(t, err)
		require.Len(t, *sent, 1)

		mail := (*sent)[0]
		assert.Equal(t, "ana@example.com", mail.to)
		assert.Equal(t, "Your photos are ready: Wedding", mail.subject)
		assert.Contains(t, mail.body, `href="https://proof.example.com/albums/3?token=abc"`)
		assert.Contains(t, mail.body, "Hi Ana,")
	})

	t.Run("digest with one link uses a button", func(t *testing.T) {
		s, sent := newCapturingSMTP()
		err := s.SendEditedDigest(ctx, EditedDigestMessage{
			Email:        "bo@example.com",
			SessionLinks: []string{"https://proof.example.com/albums/7?token=one"},
			LandingLink:  "https://proof.example.com/welcome?token=one",
		})
		require.NoError(t, err)

		mail := (*sent)[0]
		assert.Equal(t, "Edited photos available", mail.subject)
		assert.Contains(t, mail.body, `class="button"`)
		assert.Contains(t, mail.body, "welcome?token=one")
		assert.Contains(t, mail.body, "Hi,")
	})

	t.Run("digest with several links lists them", func(t *testing.T) {
		s, sent := newCapturingSMTP()
		err := s.SendEditedDigest(ctx, EditedDigestMessage{
			Email:      "cy@example.com",
			AlbumTitle: "Portraits",
			SessionLinks: []string{
				"https://proof.example.com/albums/7?token=one",
				"https://proof.example.com/albums/7?token=two",
			},
		})
		require.NoError(t, err)

		mail := (*sent)[0]
		assert.Equal(t, "Edited photos available: Portraits", mail.subject)
		assert.Equal(t, 2, strings.Count(mail.body, "<li>"))
		assert.NotContains(t, mail.body, "See all of your galleries")
	})

	t.Run("thank you with previews", func(t *testing.T) {
		s, sent := newCapturingSMTP()
		err := s.SendThankYou(ctx, ThankYouMessage{
			Email:      "dee@example.com",
			AlbumTitle: "Portraits",
			Previews:   []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"},
		})
		require.NoError(t, err)

		mail := (*sent)[0]
		assert.Equal(t, "Thank you: Portraits", mail.subject)
		assert.Equal(t, 2, strings.Count(mail.body, "<img "))
	})

	t.Run("names are escaped", func(t *testing.T) {
		s, sent := newCapturingSMTP()
		require.NoError(t, s.SendThankYou(ctx, ThankYouMessage{Email: "e@example.com", ClientName: "<b>Eve</b>"}))
		assert.Contains(t, (*sent)[0].body, "&lt;b&gt;Eve&lt;/b&gt;")
	})

	t.Run("send errors propagate", func(t *testing.T) {
		s, _ := newCapturingSMTP()
		s.send = func(ctx context.Context, to, subject, htmlBody string) error {
			return errors.New("relay denied")
		}
		err := s.SendMagicLink(ctx, MagicLinkMessage{Email: "f@example.com", Link: "https://x"})
		assert.EqualError(t, err, "relay denied")
	})
}

func TestSMTPService_BuildMessage(t *testing.T) {
	s := NewSMTPService(config.SMTP{From: "studio@example.com", FromName: "Studio Ñ"})
	msg := string(s.buildMessage("ana@example.com", "Edited photos available: Café", "<p>hi</p>"))

	assert.Contains(t, msg, "To: ana@example.com\r\n")
	assert.Contains(t, msg, "<studio@example.com>")
	assert.Contains(t, msg, "=?utf-8?q?")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPService_Disabled(t *testing.T) {
	s := NewSMTPService(config.SMTP{})
	err := s.SendMagicLink(context.Background(), MagicLinkMessage{Email: "a@example.com"})
	assert.Error(t, err)
}
