package filestore

import (
	"errors"
	"strings"
	"time"

	"github.com/vinsync-io/vinsync/internal/config"
)

// Configuration errors.
var (
	// ErrMissingEndpoint indicates the object store endpoint was not provided.
	ErrMissingEndpoint = errors.New("object store endpoint is required")

	// ErrMissingCredentials indicates access or secret key was not provided.
	ErrMissingCredentials = errors.New("object store credentials are required")

	// ErrMissingBucket indicates the archival bucket name was not provided.
	ErrMissingBucket = errors.New("archival bucket name is required")
)

// Config holds object store connection settings.
type Config struct {
	// Endpoint is the S3-compatible endpoint host:port, without scheme.
	Endpoint string

	// AccessKey and SecretKey authenticate against the object store.
	AccessKey string
	SecretKey string

	// UseSSL selects TLS for the endpoint connection.
	UseSSL bool

	// Region is passed through to bucket creation. Optional.
	Region string

	// Bucket is the archival bucket holding raw/, processed/ and error/.
	Bucket string

	// OperationTimeout bounds each object store call.
	OperationTimeout time.Duration
}

// LoadConfig creates object store configuration from environment variables.
//
// Environment variables:
//   - FILESTORE_ENDPOINT: S3-compatible endpoint, host:port (required)
//   - FILESTORE_ACCESS_KEY: access key id (required)
//   - FILESTORE_SECRET_KEY: secret access key (required)
//   - FILESTORE_USE_SSL: connect over TLS (default: true)
//   - FILESTORE_REGION: bucket region (default: empty)
//   - FILESTORE_BUCKET: archival bucket name (default: vinsync-dereg-files)
//   - FILESTORE_OPERATION_TIMEOUT: per-call timeout (default: 60s)
func LoadConfig() *Config {
	return &Config{
		Endpoint:         config.GetEnvStr("FILESTORE_ENDPOINT", ""),
		AccessKey:        config.GetEnvStr("FILESTORE_ACCESS_KEY", ""),
		SecretKey:        config.GetEnvStr("FILESTORE_SECRET_KEY", ""),
		UseSSL:           config.GetEnvBool("FILESTORE_USE_SSL", true),
		Region:           config.GetEnvStr("FILESTORE_REGION", ""),
		Bucket:           config.GetEnvStr("FILESTORE_BUCKET", "vinsync-dereg-files"),
		OperationTimeout: config.GetEnvDuration("FILESTORE_OPERATION_TIMEOUT", 60*time.Second),
	}
}

// Validate checks that the configuration is complete enough to connect.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrMissingEndpoint
	}

	if c.AccessKey == "" || c.SecretKey == "" {
		return ErrMissingCredentials
	}

	if strings.TrimSpace(c.Bucket) == "" {
		return ErrMissingBucket
	}

	return nil
}
