// Package notify provides outbound delivery for workflow notifications.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/pkg/utils"
)

// SMTPConfig holds mail server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Domain is appended to bare recipient IDs to form an address.
	Domain string
}

// EmailSender delivers notifications over SMTP
type EmailSender struct {
	cfg    SMTPConfig
	logger *zap.Logger

	// sendMail is swappable for tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates a new SMTP-backed sender
func NewEmailSender(cfg SMTPConfig, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		cfg:      cfg,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// Send implements port.MessageSender
func (s *EmailSender) Send(ctx context.Context, recipientID, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to := s.addressFor(recipientID)
	if err := utils.ValidateEmail(to); err != nil {
		return fmt.Errorf("bad recipient address for %s: %w", recipientID, err)
	}
	msg := buildMessage(s.cfg.From, to, subject, body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		s.logger.Error("Failed to send email",
			zap.String("recipient", to),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("send email to %s: %w", to, err)
	}

	s.logger.Info("Email sent",
		zap.String("recipient", to),
		zap.String("subject", subject))
	return nil
}

func (s *EmailSender) addressFor(recipientID string) string {
	if strings.Contains(recipientID, "@") {
		return recipientID
	}
	return recipientID + "@" + s.cfg.Domain
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Verify interface compliance
var _ port.MessageSender = (*EmailSender)(nil)
