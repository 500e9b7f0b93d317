package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

type (
	// Notifier sends operator email for pipeline outcomes. Implementations
	// never return errors to callers; a lost email must not fail a cycle.
	Notifier interface {
		// Success notifies the success recipients.
		Success(ctx context.Context, subject, body string)

		// Failure notifies the failure recipients.
		Failure(ctx context.Context, subject, body string)
	}

	// MailNotifier is the SMTP-backed Notifier built on go-mail.
	MailNotifier struct {
		config *Config
		logger *slog.Logger
	}

	// NopNotifier discards notifications. Used when SMTP is not configured.
	NopNotifier struct{}
)

// Compile-time interface checks.
var (
	_ Notifier = (*MailNotifier)(nil)
	_ Notifier = NopNotifier{}
)

// NewNotifier creates a Notifier from configuration. Without an SMTP host it
// returns a NopNotifier so callers never need a nil check.
func NewNotifier(config *Config, logger *slog.Logger) (Notifier, error) {
	if !config.Enabled() {
		logger.Warn("Email notifications are disabled; SMTP settings not provided")

		return NopNotifier{}, nil
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification configuration: %w", err)
	}

	return &MailNotifier{config: config, logger: logger}, nil
}

// Success notifies the success recipients.
func (n *MailNotifier) Success(ctx context.Context, subject, body string) {
	n.send(ctx, subject, body, n.config.successRecipients())
}

// Failure notifies the failure recipients.
func (n *MailNotifier) Failure(ctx context.Context, subject, body string) {
	n.send(ctx, subject, body, n.config.failureRecipients())
}

func (n *MailNotifier) send(ctx context.Context, subject, body string, recipients []string) {
	if len(recipients) == 0 {
		n.logger.Warn("Dropping notification; no recipients configured",
			slog.String("subject", subject))

		return
	}

	msg := mail.NewMsg()
	if err := msg.From(n.config.Sender); err != nil {
		n.logger.Error("Invalid notification sender",
			slog.String("sender", n.config.Sender),
			slog.String("error", err.Error()))

		return
	}

	if err := msg.To(recipients...); err != nil {
		n.logger.Error("Invalid notification recipients",
			slog.String("error", err.Error()))

		return
	}

	msg.Subject(n.config.SubjectPrefix + subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := n.newClient()
	if err != nil {
		n.logger.Error("Failed to create SMTP client",
			slog.String("error", err.Error()))

		return
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.Error("Failed to send notification email",
			slog.String("subject", subject),
			slog.String("error", err.Error()))

		return
	}

	n.logger.Info("Sent notification email",
		slog.String("subject", subject),
		slog.Int("recipients", len(recipients)))
}

func (n *MailNotifier) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(n.config.Port),
		mail.WithTimeout(n.config.Timeout),
	}

	if n.config.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if n.config.Username != "" && n.config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password))
	}

	return mail.NewClient(n.config.Host, opts...)
}

// Success implements Notifier.
func (NopNotifier) Success(context.Context, string, string) {}

// Failure implements Notifier.
func (NopNotifier) Failure(context.Context, string, string) {}
