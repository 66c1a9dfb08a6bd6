package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/client"
	"github.com/erauner12/propsync/internal/config"
)

const version = "0.1.0"

var (
	configPath string
	apiURL     string
	debug      bool
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "propsync",
	Short:         "Live dashboard client for the property-management API",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		setupLogging(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (JSON)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (overrides config and PROPSYNC_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "propsync: %s\n", client.UserMessage(err))
		os.Exit(1)
	}
}

// loadConfig loads configuration from file or environment, then applies flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if configPath != "" {
		c, err = config.Load(configPath)
	} else {
		c, err = config.LoadFromEnvironment()
	}
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("api-url") {
		c.APIBaseURL = apiURL
	}
	if debug {
		c.Debug = true
	}
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = logLevel
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// setupLogging configures zerolog; output goes to stderr so stdout stays
// free for the dashboard
func setupLogging(c *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(c.Level())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Str("service", "propsync").Logger()
}

// credentials returns the token store: PROPSYNC_TOKEN when set, otherwise
// the OS keychain entry for the configured API
func credentials(c *config.Config) auth.CredentialStore {
	if c.Token != "" {
		return auth.NewMemoryStore(c.Token)
	}
	return auth.NewKeyringStore(c.APIBaseURL)
}
