package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// SubjectPrefix is prepended to every emailed alert.
const SubjectPrefix = "[MIRA EMERGENCY] "

// EmailConfig holds SMTP settings for the emergency mailbox.
type EmailConfig struct {
	Host     string
	Port     int
	Secure   bool // implicit TLS (port 465); STARTTLS is used opportunistically otherwise
	Username string
	Password string
	From     string // defaults to Username
	To       string
	Timeout  time.Duration
}

// Validate reports every missing setting by its environment variable name.
func (c EmailConfig) Validate() error {
	var missing []string
	if c.To == "" {
		missing = append(missing, "EMERGENCY_EMAIL")
	}
	if c.Username == "" {
		missing = append(missing, "EMAIL_USER")
	}
	if c.Password == "" {
		missing = append(missing, "EMAIL_PASSWORD")
	}
	if c.Host == "" {
		missing = append(missing, "EMAIL_SMTP_HOST")
	}
	if len(missing) > 0 {
		return fault.InvalidInput("email notifier is not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// Email sends alerts over SMTP.
type Email struct {
	cfg    EmailConfig
	send   sendFunc
	now    func() time.Time
	logger zerolog.Logger
}

// NewEmail creates an Email notifier.
func NewEmail(cfg EmailConfig, logger zerolog.Logger) (*Email, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	e := &Email{
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "email_notifier").Logger(),
	}
	e.send = e.dialAndSend
	return e, nil
}

func (e *Email) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Username),
		mail.WithPassword(e.cfg.Password),
		mail.WithTimeout(e.cfg.Timeout),
	}
	if e.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Send implements Notifier.
func (e *Email) Send(ctx context.Context, alert Alert) (Result, error) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = e.now()
	}

	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(e.cfg.From); err != nil {
		return Result{}, fault.InvalidInput("invalid sender address %q", e.cfg.From)
	}
	if err := msg.To(e.cfg.To); err != nil {
		return Result{}, fault.InvalidInput("invalid EMERGENCY_EMAIL address %q", e.cfg.To)
	}
	msg.Subject(SubjectPrefix + alert.Subject)
	msg.SetBodyString(mail.TypeTextPlain, Body(alert))
	msg.SetMessageID()
	msg.SetDate()

	if err := e.send(ctx, msg); err != nil {
		e.logger.Error().Err(err).Str("type", alert.Type).Msg("Failed to send emergency email")
		return Result{}, fault.ProviderUnavailable("send emergency email", err).
			WithHint("Check EMAIL_SMTP_HOST, EMAIL_SMTP_PORT, EMAIL_USER and EMAIL_PASSWORD")
	}

	id := msg.GetMessageID()
	e.logger.Info().Str("type", alert.Type).Str("message_id", id).Msg("Emergency email sent")
	return Result{Success: true, Channel: "email", MessageID: id, Timestamp: alert.Timestamp}, nil
}
