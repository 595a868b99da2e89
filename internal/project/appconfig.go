// Package project persists the service config, nesting presets and backup
// bundles as JSON files under ~/.slabnest.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
)

// ConfigEnv names the environment variable that overrides the config path.
const ConfigEnv = "SLABNEST_CONFIG"

// DefaultConfigDir returns ~/.slabnest, or ./.slabnest when the home
// directory is unknown.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".slabnest")
}

// DefaultConfigPath returns $SLABNEST_CONFIG when set, else config.json in
// DefaultConfigDir.
func DefaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(ConfigEnv)); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// SaveAppConfig writes the config as indented JSON, creating parent
// directories. The file is replaced through a rename so a crash never leaves
// it half written.
func SaveAppConfig(path string, config model.AppConfig) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return writeFileAtomic(path, data)
}

// LoadAppConfig reads the config at path on top of DefaultAppConfig, so keys
// missing from the file keep their defaults. A missing file yields the
// defaults. Values the service cannot start with are rejected.
func LoadAppConfig(path string) (model.AppConfig, error) {
	config := model.DefaultAppConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return model.AppConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return model.AppConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if config.CORSOrigins == nil {
		config.CORSOrigins = []string{}
	}
	if err := CheckAppConfig(config); err != nil {
		return model.AppConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

// CheckAppConfig validates the server, logging and default nesting settings.
func CheckAppConfig(c model.AppConfig) error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	case c.QueueSize < 0:
		return fmt.Errorf("queue_size must be >= 0, got %d", c.QueueSize)
	case c.RunTimeout < 0:
		return fmt.Errorf("run_timeout must be >= 0 seconds, got %d", c.RunTimeout)
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}

	if err := nesting.ValidateConfig(c.NestingDefaults()); err != nil {
		return fmt.Errorf("default nesting parameters: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temporary sibling of path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp := path + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
