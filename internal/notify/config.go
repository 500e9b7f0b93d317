// Package notify sends operator email for pipeline outcomes: batch files
// processed, header validation failures, reconciliation summaries. Email is
// advisory; a notification failure is logged and never fails the pipeline.
package notify

import (
	"errors"
	"strings"
	"time"

	"github.com/vinsync-io/vinsync/internal/config"
)

// ErrMissingSender indicates SMTP settings were given without a sender
// address.
var ErrMissingSender = errors.New("notification sender address is required")

// Config holds SMTP and recipient settings for pipeline notifications.
type Config struct {
	// Host is the SMTP server; empty disables notifications entirely.
	Host string
	Port int

	// Username and Password enable SMTP AUTH when both are set.
	Username string
	Password string

	// UseTLS requires STARTTLS; otherwise TLS is used when offered.
	UseTLS bool

	// Sender is the From address.
	Sender string

	// Recipients receive every notification unless a more specific list
	// overrides them.
	Recipients []string

	// SuccessRecipients and FailureRecipients override Recipients for the
	// respective outcome when non-empty.
	SuccessRecipients []string
	FailureRecipients []string

	// SubjectPrefix is prepended to every subject, typically the service
	// name in brackets.
	SubjectPrefix string

	// Timeout bounds the SMTP dial and send.
	Timeout time.Duration
}

// LoadConfig creates notification configuration from environment variables.
//
// Environment variables:
//   - SMTP_HOST: SMTP server hostname (empty disables notifications)
//   - SMTP_PORT: SMTP server port (default: 587)
//   - SMTP_USERNAME: SMTP AUTH user (default: empty, no auth)
//   - SMTP_PASSWORD: SMTP AUTH password (default: empty)
//   - SMTP_USE_TLS: require STARTTLS (default: true)
//   - SMTP_TIMEOUT: dial and send timeout (default: 30s)
//   - EMAIL_SENDER: From address (required when SMTP_HOST is set)
//   - EMAIL_RECIPIENTS: comma-separated default recipients
//   - EMAIL_SUCCESS_RECIPIENTS: comma-separated success overrides
//   - EMAIL_FAILURE_RECIPIENTS: comma-separated failure overrides
//   - SERVICE_NAME: subject prefix source (default: vinsync)
func LoadConfig() *Config {
	service := config.GetEnvStr("SERVICE_NAME", "vinsync")

	return &Config{
		Host:              config.GetEnvStr("SMTP_HOST", ""),
		Port:              config.GetEnvInt("SMTP_PORT", 587),
		Username:          config.GetEnvStr("SMTP_USERNAME", ""),
		Password:          config.GetEnvStr("SMTP_PASSWORD", ""),
		UseTLS:            config.GetEnvBool("SMTP_USE_TLS", true),
		Timeout:           config.GetEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		Sender:            config.GetEnvStr("EMAIL_SENDER", ""),
		Recipients:        config.GetEnvStrSlice("EMAIL_RECIPIENTS", nil),
		SuccessRecipients: config.GetEnvStrSlice("EMAIL_SUCCESS_RECIPIENTS", nil),
		FailureRecipients: config.GetEnvStrSlice("EMAIL_FAILURE_RECIPIENTS", nil),
		SubjectPrefix:     "[" + service + "] ",
	}
}

// Enabled reports whether notifications are configured at all.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// Validate checks the configuration when notifications are enabled.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}

	if strings.TrimSpace(c.Sender) == "" {
		return ErrMissingSender
	}

	return nil
}

// successRecipients returns the recipient list for success notifications.
func (c *Config) successRecipients() []string {
	if len(c.SuccessRecipients) > 0 {
		return c.SuccessRecipients
	}

	return c.Recipients
}

// failureRecipients returns the recipient list for failure notifications.
func (c *Config) failureRecipients() []string {
	if len(c.FailureRecipients) > 0 {
		return c.FailureRecipients
	}

	return c.Recipients
}
