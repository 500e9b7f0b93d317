// Package middleware provides HTTP middleware components for the vinsync trigger API.
package middleware

import (
	"time"

	"github.com/vinsync-io/vinsync/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) in two tiers:
//   - Global: applied to all requests
//   - Per-client: applied per requesting address
//
// Burst capacity allows temporary bursts above the sustained rate.
// If burst fields are 0, they are computed automatically as 2 × rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS int // Default: 20
	ClientRPS int // Default: 5

	// Optional burst capacity overrides (0 = compute automatically as 2 × rate)
	GlobalBurst int
	ClientBurst int

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("VINSYNC_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("VINSYNC_CLIENT_RPS", defaultClientRPS),

		GlobalBurst: config.GetEnvInt("VINSYNC_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("VINSYNC_CLIENT_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"VINSYNC_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("VINSYNC_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
	}
}
