package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Load loads configuration from a file path and applies environment variable overrides.
// Validation is deferred so the caller can apply CLI flag overrides first.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)
	return cfg, nil
}

// loadFromFile overlays a JSON file on cfg; fields absent from the file keep their defaults
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigFileNotFound
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfigFormat, err)
	}
	return nil
}

// applyEnvironmentOverrides applies configuration from environment variables
func applyEnvironmentOverrides(cfg *Config) {
	if apiURL := os.Getenv("PROPSYNC_API_URL"); apiURL != "" {
		cfg.APIBaseURL = strings.TrimRight(apiURL, "/")
	}

	if pushURL := os.Getenv("PROPSYNC_PUSH_URL"); pushURL != "" {
		cfg.PushURL = pushURL
	}

	if debug := os.Getenv("PROPSYNC_DEBUG"); debug == "true" || debug == "1" {
		cfg.Debug = true
	}

	if logLevel := os.Getenv("PROPSYNC_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = strings.ToLower(logLevel)
	}

	cfg.ActivityCap = envInt("PROPSYNC_ACTIVITY_CAP", cfg.ActivityCap)
	cfg.TrayCap = envInt("PROPSYNC_TRAY_CAP", cfg.TrayCap)

	if token := os.Getenv("PROPSYNC_TOKEN"); token != "" {
		cfg.Token = token
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("ignoring non-numeric environment override")
		return fallback
	}
	return n
}

// LoadFromEnvironment creates a configuration using only environment variables.
// Validation is deferred so the caller can apply CLI flag overrides first.
func LoadFromEnvironment() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvironmentOverrides(cfg)
	return cfg, nil
}
