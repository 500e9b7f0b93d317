package source

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinsync-io/vinsync/internal/config"
)

// Configuration errors.
var (
	// ErrMissingHost indicates the FTP host was not provided.
	ErrMissingHost = errors.New("FTP host is required")

	// ErrMissingCredentials indicates username or password was not provided.
	ErrMissingCredentials = errors.New("FTP username and password are required")

	// ErrInvalidPattern indicates the file glob pattern does not parse.
	ErrInvalidPattern = errors.New("FTP file pattern is invalid")
)

// Config holds FTP connection settings for the batch file drop.
type Config struct {
	// Host and Port locate the FTP server.
	Host string
	Port int

	// Username and Password authenticate the session.
	Username string
	Password string

	// RemoteDir is the drop directory, relative to the login root.
	RemoteDir string

	// Pattern is the glob the drop's file names must match, e.g. *.csv.
	Pattern string

	// Timeout bounds connection establishment and each transfer command.
	Timeout time.Duration
}

// LoadConfig creates FTP configuration from environment variables.
//
// Environment variables:
//   - FTP_HOST: server hostname (required)
//   - FTP_PORT: server port (default: 21)
//   - FTP_USERNAME: login user (required)
//   - FTP_PASSWORD: login password (required)
//   - FTP_REMOTE_DIR: drop directory (default: empty, login root)
//   - FTP_FILE_PATTERN: file name glob (default: *.csv)
//   - FTP_TIMEOUT: dial and command timeout (default: 30s)
func LoadConfig() *Config {
	return &Config{
		Host:      config.GetEnvStr("FTP_HOST", ""),
		Port:      config.GetEnvInt("FTP_PORT", 21),
		Username:  config.GetEnvStr("FTP_USERNAME", ""),
		Password:  config.GetEnvStr("FTP_PASSWORD", ""),
		RemoteDir: strings.Trim(config.GetEnvStr("FTP_REMOTE_DIR", ""), "/"),
		Pattern:   config.GetEnvStr("FTP_FILE_PATTERN", "*.csv"),
		Timeout:   config.GetEnvDuration("FTP_TIMEOUT", 30*time.Second),
	}
}

// Validate checks that the configuration is complete enough to connect.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrMissingHost
	}

	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}

	if !validPattern(c.Pattern) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, c.Pattern)
	}

	return nil
}

// Addr returns the dialable host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
