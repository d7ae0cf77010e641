package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"time"

	"github.com/photosync/proofing/internal/config"
	"github.com/photosync/proofing/internal/models"
)

var (
	magicLinkTmpl    = template.Must(template.New("magic-link").Parse(emailLayout + magicLinkEmailTemplate))
	editedDigestTmpl = template.Must(template.New("edited-digest").Parse(emailLayout + editedDigestEmailTemplate))
	thankYouTmpl     = template.Must(template.New("thank-you").Parse(emailLayout + thankYouEmailTemplate))
)

// SMTPService implements Notifier over SMTP
type SMTPService struct {
	cfg  config.SMTP
	send func(ctx context.Context, to, subject, htmlBody string) error
}

// NewSMTPService creates a new SMTP service
func NewSMTPService(cfg config.SMTP) *SMTPService {
	s := &SMTPService{cfg: cfg}
	s.send = s.sendEmail
	return s
}

// SendMagicLink sends a magic link invitation for an album
func (s *SMTPService) SendMagicLink(ctx context.Context, msg MagicLinkMessage) error {
	body, err := renderEmail(magicLinkTmpl, msg)
	if err != nil {
		return err
	}
	return s.send(ctx, msg.Email, subjectFor("Your photos are ready", msg.AlbumTitle), body)
}

// SendEditedDigest sends the edited-images digest for an album
func (s *SMTPService) SendEditedDigest(ctx context.Context, msg EditedDigestMessage) error {
	body, err := renderEmail(editedDigestTmpl, msg)
	if err != nil {
		return err
	}
	return s.send(ctx, msg.Email, subjectFor("Edited photos available", msg.AlbumTitle), body)
}

// SendThankYou sends the thank-you note after an email was linked
func (s *SMTPService) SendThankYou(ctx context.Context, msg ThankYouMessage) error {
	body, err := renderEmail(thankYouTmpl, msg)
	if err != nil {
		return err
	}
	return s.send(ctx, msg.Email, subjectFor("Thank you", msg.AlbumTitle), body)
}

func subjectFor(base, albumTitle string) string {
	if albumTitle == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, albumTitle)
}

func renderEmail(tmpl *template.Template, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute %s email template: %w", tmpl.Name(), err)
	}
	return body.String(), nil
}

func (s *SMTPService) buildMessage(to, subject, htmlBody string) []byte {
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes()
}

// sendEmail performs the SMTP exchange. Dial and I/O are bounded by the
// context deadline; failures are reported as transient.
func (s *SMTPService) sendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if !s.cfg.Enabled() {
		return fmt.Errorf("SMTP not configured")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	var conn net.Conn
	var err error
	if s.cfg.UseTLS && s.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.cfg.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return models.Transient("smtp dial failed", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return models.Transient("failed to create SMTP client", err)
	}
	defer client.Quit()

	// STARTTLS when the server offers it on a plain connection
	if _, isTLS := conn.(*tls.Conn); !isTLS && s.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return models.Transient("STARTTLS failed", err)
			}
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return models.Transient("failed to set sender", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return models.Transient("failed to send DATA command", err)
	}
	if _, err := w.Write(s.buildMessage(to, subject, htmlBody)); err != nil {
		return models.Transient("failed to write message", err)
	}
	if err := w.Close(); err != nil {
		return models.Transient("failed to close message writer", err)
	}
	return nil
}
