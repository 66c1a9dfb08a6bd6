package config

import "errors"

var (
	// ErrMissingAPIBaseURL indicates that the API base URL is not configured
	ErrMissingAPIBaseURL = errors.New("apiBaseUrl is required in configuration")

	// ErrInvalidAPIBaseURL indicates that the API base URL is not an http(s) URL
	ErrInvalidAPIBaseURL = errors.New("apiBaseUrl must be an http or https URL")

	// ErrInvalidPushURL indicates that the push URL is not a ws(s) URL
	ErrInvalidPushURL = errors.New("pushUrl must be a ws or wss URL")

	// ErrInvalidCap indicates a non-positive activity or tray cap
	ErrInvalidCap = errors.New("activityCap and trayCap must be positive")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("logLevel must be one of trace, debug, info, warn, error")

	// ErrConfigFileNotFound indicates that the config file was not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file has invalid JSON
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")
)
