package mail

import (
	"bytes"
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds the plain SMTP transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPMailer sends messages over SMTP. It is the secondary transport behind
// the Mailjet API.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTP creates an SMTP-backed Mailer.
func NewSMTP(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(msg.From.Name, msg.From.Email); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	for _, to := range msg.To {
		if err := m.AddToFormat(to.Name, to.Email); err != nil {
			return fmt.Errorf("set to address %s: %w", to.Email, err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	}
	for _, a := range msg.Attachments {
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Content),
			gomail.WithFileContentType(gomail.ContentType(a.ContentType))); err != nil {
			return fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
