package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/vinsync-io/vinsync/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute

	// Conflict-window retry defaults. A mutation against a row still inside
	// the backend's write-visibility window is retried with a fixed delay
	// before escalating; deferred reconciliation cycles are normally scheduled
	// past the window, so the budget is sized for the combined-mode case where
	// reconciliation follows staging within seconds.
	defaultConflictRetryAttempts = 12
	defaultConflictRetryDelay    = 15 * time.Second

	defaultMutationTimeout = 30 * time.Second
)

var (
	// ErrDatabaseURLEmpty is returned when the database url is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")
)

// Config holds PostgreSQL connection configuration with production-ready defaults.
type Config struct {
	databaseURL           string
	MaxOpenConns          int           // Maximum number of open connections
	MaxIdleConns          int           // Maximum number of idle connections
	ConnMaxLifetime       time.Duration // Maximum lifetime of connections
	ConnMaxIdleTime       time.Duration // Maximum idle time for connections
	ConflictRetryAttempts int           // Bounded retry budget for conflict-window mutations
	ConflictRetryDelay    time.Duration // Fixed delay between conflict-window retries
	MutationTimeout       time.Duration // Per-statement timeout for store mutations
}

// LoadConfig loads PostgreSQL configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		databaseURL:           config.GetEnvStr("DATABASE_URL", ""), // DatabaseURL is private for obvious reasons.
		MaxOpenConns:          config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:          config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime:       config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime:       config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		ConflictRetryAttempts: config.GetEnvInt("STAGE_CONFLICT_RETRY_ATTEMPTS", defaultConflictRetryAttempts),
		ConflictRetryDelay:    config.GetEnvDuration("STAGE_CONFLICT_RETRY_DELAY", defaultConflictRetryDelay),
		MutationTimeout:       config.GetEnvDuration("STAGE_MUTATION_TIMEOUT", defaultMutationTimeout),
	}
}

// Validate checks if the PostgreSQL configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns a masked databaseURL safe for logging.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	// Find the scheme separator
	schemeEnd := strings.Index(c.databaseURL, "://")
	if schemeEnd == -1 {
		return c.databaseURL
	}

	// Find the last @ which separates userinfo from host
	afterScheme := c.databaseURL[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		// No @ found, no userinfo
		return c.databaseURL
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		// No password
		return c.databaseURL
	}

	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		// Empty password, don't mask
		return c.databaseURL
	}

	scheme := c.databaseURL[:schemeEnd]
	hostAndRest := afterScheme[lastAtIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}
