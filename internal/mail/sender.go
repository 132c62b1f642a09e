// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is "none", "opportunistic" or "mandatory".
	TLS string
}

// SMTPSender sends messages through an SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// NewSMTPSender creates an SMTPSender. No connection is made until Send.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	policy := gomail.TLSOpportunistic
	switch cfg.TLS {
	case "none":
		policy = gomail.NoTLS
	case "mandatory":
		policy = gomail.TLSMandatory
	case "", "opportunistic":
	default:
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("tls", cfg.TLS).Errorf("unknown tls policy %q", cfg.TLS)
	}

	opts := []gomail.Option{gomail.WithPort(cfg.Port), gomail.WithTLSPolicy(policy)}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send dials the relay and delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	m, err := buildMsg(s.from, msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("kind", string(msg.Kind)).
			With("token", msg.Fingerprint).
			Wrap(err)
	}
	return nil
}

// buildMsg assembles a multipart/alternative message with a plain text
// body and an HTML alternative.
func buildMsg(from string, msg *Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, oops.Code("MAIL_INVALID_ADDRESS").With("field", "from").Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("MAIL_INVALID_ADDRESS").With("field", "to").Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

// LogSender logs a notice in place of delivery. The token appears only as
// its fingerprint.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger selects slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message metadata.
func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	s.logger.InfoContext(ctx, "mail not sent (log driver)",
		"kind", string(msg.Kind),
		"subject", msg.Subject,
		"token", msg.Fingerprint)
	return nil
}
