package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/wneessen/go-mail"
)

// Mailer delivers plain-text messages.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New returns an SMTP mailer when cfg.SMTPHost is set and a LogMailer
// otherwise.
func New(cfg *config.Config, log zerolog.Logger) (Mailer, error) {
	if cfg.SMTPHost == "" {
		log.Warn().Msg("SMTP_HOST is empty; mail is written to the log instead of sent")
		return NewLogMailer(log), nil
	}
	m, err := NewSMTP(cfg, log)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SMTP sends mail through a relay.
type SMTP struct {
	client *mail.Client
	from   string
	log    zerolog.Logger
}

// NewSMTP builds an SMTP mailer from the SMTP_* settings.
func NewSMTP(cfg *config.Config, log zerolog.Logger) (*SMTP, error) {
	if cfg.SMTPFrom == "" {
		return nil, errors.New("SMTP_FROM is required when SMTP_HOST is set")
	}

	opts := []mail.Option{mail.WithPort(cfg.SMTPPort)}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	if cfg.SMTPTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTP{
		client: client,
		from:   cfg.SMTPFrom,
		log:    log.With().Str("component", "mailer").Logger(),
	}, nil
}

// Send delivers one message.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	msg, err := compose(s.from, to, subject, body)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	s.log.Debug().Str("to", to).Str("subject", subject).Msg("Mail sent")
	return nil
}

func compose(from, to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// LogMailer writes messages to the log. Used in development.
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

// Send logs the message at info level.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("Mail not sent (no SMTP host)")
	return nil
}
