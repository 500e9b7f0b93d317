package pipeline

import (
	"fmt"
	"time"

	"github.com/vinsync-io/vinsync/internal/config"
)

// Config holds orchestration settings.
type Config struct {
	// Mode couples or defers reconciliation relative to staging.
	Mode Mode

	// PendingMinAge is the minimum row age for deferred reconciliation.
	// Spanning the store's write-visibility window here avoids conflict
	// retries in the common case. Ignored in combined mode.
	PendingMinAge time.Duration
}

// LoadConfig creates pipeline configuration from environment variables.
//
// Environment variables:
//   - PIPELINE_MODE: combined or deferred (default: combined)
//   - PIPELINE_PENDING_MIN_AGE: deferred-mode minimum row age (default: 3m)
func LoadConfig() *Config {
	return &Config{
		Mode:          Mode(config.GetEnvStr("PIPELINE_MODE", string(ModeCombined))),
		PendingMinAge: config.GetEnvDuration("PIPELINE_PENDING_MIN_AGE", 3*time.Minute),
	}
}

// Validate checks the configured mode.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeCombined, ModeDeferred:
		return nil
	default:
		return fmt.Errorf("unknown pipeline mode %q", c.Mode)
	}
}
