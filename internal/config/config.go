package config

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/erauner12/propsync/internal/aggregate"
)

// Config holds all configuration for the propsync client
type Config struct {
	APIBaseURL  string `json:"apiBaseUrl"`
	PushURL     string `json:"pushUrl,omitempty"` // derived from apiBaseUrl when empty
	LogLevel    string `json:"logLevel"`
	Debug       bool   `json:"debug"`
	ActivityCap int    `json:"activityCap"`
	TrayCap     int    `json:"trayCap"`

	// Token is a bearer token supplied out of band (PROPSYNC_TOKEN); it is
	// never read from or written to the config file
	Token string `json:"-"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAPIBaseURL
	}

	if c.PushURL != "" {
		u, err := url.Parse(c.PushURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return ErrInvalidPushURL
		}
	}

	if c.ActivityCap <= 0 || c.TrayCap <= 0 {
		return ErrInvalidCap
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return ErrInvalidLogLevel
	}

	return nil
}

// SocketURL returns the push channel endpoint. Without an explicit pushUrl it
// is the API origin with a websocket scheme and the /socket path.
func (c *Config) SocketURL() string {
	if c.PushURL != "" {
		return c.PushURL
	}
	base := strings.TrimRight(c.APIBaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/socket"
}

// Level returns the configured log level; Debug forces debug
func (c *Config) Level() zerolog.Level {
	if c.Debug {
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:  "http://localhost:5000",
		LogLevel:    "info",
		ActivityCap: aggregate.DefaultFeedCap,
		TrayCap:     aggregate.DefaultTrayCap,
	}
}
