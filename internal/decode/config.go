// Package decode turns one deregistration batch file into a sequence of
// validated vehicle records.
//
// Deregistration batches cover every manufacturer the transport agency knows
// about; only the makes a dealer group actually represents are relevant for
// CRM reconciliation. This package provides configuration loading for the
// allowed-makes filter and the streaming CSV decoder that applies it.
package decode

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vinsync-io/vinsync/internal/config"
)

// Config holds the row-filter configuration loaded from .vinsync.yaml.
type Config struct {
	// AllowedMakes lists the vehicle manufacturers whose records are staged;
	// rows for any other make are skipped at decode time.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	AllowedMakes []string `yaml:"allowed_makes"`
}

// DefaultConfigPath is the default location for the vinsync configuration file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultConfigPath = ".vinsync.yaml"

// ConfigPathEnvVar is the environment variable name for custom config path.
const ConfigPathEnvVar = "VINSYNC_CONFIG_PATH"

// defaultAllowedMakes is used when no config file is present or readable.
var defaultAllowedMakes = []string{"HYUNDAI", "ISUZU", "RENAULT"}

// LoadConfig loads the make-filter configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns the built-in defaults (not error) if the file doesn't exist
//   - Returns defaults + logs warning if YAML is invalid (graceful degradation)
//   - Returns the populated config on success, makes upper-cased
//
// This graceful degradation ensures the pipeline can run even without a
// config file; the built-in make set matches the represented brands.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{AllowedMakes: defaultAllowedMakes}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, using default make filter",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read config file, using default make filter",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		slog.Warn("Failed to parse config file, using default make filter",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(loaded.AllowedMakes) == 0 {
		return cfg, nil
	}

	makes := make([]string, 0, len(loaded.AllowedMakes))
	for _, m := range loaded.AllowedMakes {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			makes = append(makes, m)
		}
	}

	if len(makes) == 0 {
		return cfg, nil
	}

	return &Config{AllowedMakes: makes}, nil
}

// ConfigPath returns the config file path from the environment or the default.
func ConfigPath() string {
	return config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)
}
