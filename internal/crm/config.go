// Package crm talks to the dealer group's CRM over its REST API: it
// authenticates with the OAuth2 password grant, looks vehicles up by VIN and
// applies deregistration updates with write verification.
package crm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vinsync-io/vinsync/internal/config"
)

// Configuration errors.
var (
	// ErrMissingBaseURL indicates the CRM base URL was not provided.
	ErrMissingBaseURL = errors.New("CRM base URL is required")

	// ErrInvalidBaseURL indicates the CRM base URL could not be parsed.
	ErrInvalidBaseURL = errors.New("CRM base URL is invalid")

	// ErrMissingCredentials indicates username or password was not provided.
	ErrMissingCredentials = errors.New("CRM username and password are required")
)

// DefaultPlatform identifies this integration to the CRM; per-platform tokens
// mean a login here never invalidates an interactive user's session.
const DefaultPlatform = "GcpNztaVinDeregIntegration"

// Config holds connection and credential settings for the CRM client.
type Config struct {
	// BaseURL is the CRM instance root, e.g. https://crm.example.com/.
	BaseURL string

	// Username and Password are the integration user's credentials for the
	// OAuth2 password grant.
	Username string
	Password string

	// ClientID and ClientSecret identify the OAuth2 client. The CRM ships a
	// built-in "sugar" client with an empty secret.
	ClientID     string
	ClientSecret string

	// Platform is the CRM platform identifier sent with the token request.
	Platform string

	// GrantType is the OAuth2 grant type. Only "password" is supported by the
	// integration user setup.
	GrantType string

	// Timeout bounds each HTTP request to the CRM.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound calls so a large batch cannot
	// starve interactive CRM users. Zero disables throttling.
	RequestsPerSecond float64

	// RateBurst is the throttle burst size.
	RateBurst int
}

// LoadConfig creates CRM client configuration from environment variables.
//
// Environment variables:
//   - CRM_BASE_URL: CRM instance root URL (required)
//   - CRM_USERNAME: integration user name (required)
//   - CRM_PASSWORD: integration user password (required)
//   - CRM_CLIENT_ID: OAuth2 client id (default: sugar)
//   - CRM_CLIENT_SECRET: OAuth2 client secret (default: empty)
//   - CRM_PLATFORM: platform identifier (default: GcpNztaVinDeregIntegration)
//   - CRM_GRANT_TYPE: OAuth2 grant type (default: password)
//   - CRM_TIMEOUT: per-request timeout (default: 30s)
//   - CRM_REQUESTS_PER_SECOND: outbound throttle (default: 5)
//   - CRM_RATE_BURST: throttle burst size (default: 5)
func LoadConfig() *Config {
	return &Config{
		BaseURL:           config.GetEnvStr("CRM_BASE_URL", ""),
		Username:          config.GetEnvStr("CRM_USERNAME", ""),
		Password:          config.GetEnvStr("CRM_PASSWORD", ""),
		ClientID:          config.GetEnvStr("CRM_CLIENT_ID", "sugar"),
		ClientSecret:      config.GetEnvStr("CRM_CLIENT_SECRET", ""),
		Platform:          config.GetEnvStr("CRM_PLATFORM", DefaultPlatform),
		GrantType:         config.GetEnvStr("CRM_GRANT_TYPE", "password"),
		Timeout:           config.GetEnvDuration("CRM_TIMEOUT", 30*time.Second),
		RequestsPerSecond: float64(config.GetEnvInt("CRM_REQUESTS_PER_SECOND", 5)),
		RateBurst:         config.GetEnvInt("CRM_RATE_BURST", 5),
	}
}

// Validate checks that the configuration is complete enough to connect.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}

	return nil
}

// baseURL returns the configured base URL with exactly one trailing slash, so
// endpoint paths join predictably.
func (c *Config) baseURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/"
}
