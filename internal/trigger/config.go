// Package trigger consumes file-drop events from Kafka and runs sync cycles.
package trigger

import (
	"errors"

	"github.com/vinsync-io/vinsync/internal/config"
)

const (
	defaultTopic   = "vinsync.file-drops"
	defaultGroupID = "vinsync"
)

var (
	// ErrMissingTopic indicates the consumer topic is empty.
	ErrMissingTopic = errors.New("kafka topic cannot be empty")

	// ErrMissingGroupID indicates the consumer group ID is empty.
	ErrMissingGroupID = errors.New("kafka group ID cannot be empty")
)

// Config holds Kafka consumer configuration.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LoadConfig loads Kafka consumer configuration from environment variables.
// An empty KAFKA_BROKERS disables the consumer entirely.
func LoadConfig() *Config {
	return &Config{
		Brokers: config.GetEnvStrSlice("KAFKA_BROKERS", nil),
		Topic:   config.GetEnvStr("KAFKA_TOPIC", defaultTopic),
		GroupID: config.GetEnvStr("KAFKA_GROUP_ID", defaultGroupID),
	}
}

// Enabled reports whether a Kafka consumer should be started.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Validate validates the consumer configuration. Only meaningful when
// Enabled() is true.
func (c *Config) Validate() error {
	if c.Topic == "" {
		return ErrMissingTopic
	}

	if c.GroupID == "" {
		return ErrMissingGroupID
	}

	return nil
}
