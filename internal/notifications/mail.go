package notifications

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wneessen/go-mail"

	"caravel/internal/config"
	"caravel/internal/logging"
)

// Attachment is a local file sent along with a message.
type Attachment struct {
	Name string
	Path string
}

// Message is one outgoing mail.
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns an SMTP mailer when mail is enabled, otherwise a mailer
// that only logs what it would have sent.
func NewMailer(cfg *config.Config, logger *slog.Logger) Mailer {
	if cfg == nil || !cfg.Mail.Enabled {
		return logMailer{logger: logging.NewComponentLogger(logger, "mail")}
	}
	return &SMTPMailer{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		From:     cfg.Mail.From,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		Timeout:  30 * time.Second,
	}
}

type logMailer struct {
	logger *slog.Logger
}

func (m logMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail disabled; message not sent",
		logging.Strings("to", msg.To),
		logging.String("subject", msg.Subject),
	)
	return nil
}

// SMTPMailer delivers through an SMTP relay, upgrading to TLS when the
// server offers STARTTLS and authenticating when Username is set.
type SMTPMailer struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Timeout  time.Duration
	// TLSConfig overrides the STARTTLS configuration.
	TLSConfig *tls.Config
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("mail has no recipients")
	}
	out, err := m.compose(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client %s: %w", m.Host, err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp send via %s:%d: %w", m.Host, m.Port, err)
	}
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(m.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.TLSConfig != nil {
		opts = append(opts, mail.WithTLSConfig(m.TLSConfig))
	}
	if m.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.Username),
			mail.WithPassword(m.Password),
		)
	}
	return opts
}

// compose builds a multipart message: a plain text body plus one part per
// attachment. Attachments are checked up front so a missing report fails
// before any connection is made.
func (m *SMTPMailer) compose(msg Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.From); err != nil {
		return nil, fmt.Errorf("mail from %q: %w", m.From, err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("mail recipients: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, attachment := range msg.Attachments {
		if _, err := os.Stat(attachment.Path); err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", attachment.Path, err)
		}
		name := attachment.Name
		if name == "" {
			name = filepath.Base(attachment.Path)
		}
		out.AttachFile(attachment.Path, mail.WithFileName(name))
	}
	return out, nil
}
