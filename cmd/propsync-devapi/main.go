// Command propsync-devapi serves a development copy of the property-management
// API, including its push channel, backed by memory or Postgres.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/db"
	"github.com/erauner12/propsync/internal/devapi"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(env(k, strconv.Itoa(def)))
	if err != nil {
		log.Fatal().Str("key", k).Msg("expected an integer")
	}
	return n
}

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "propsync-devapi").Logger()

	// Pretty logging for local dev
	if env("ENV", "dev") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	// Storage: Postgres when DATABASE_URL is set, memory otherwise
	var repo devapi.Repository
	if pgURL := env("DATABASE_URL", ""); pgURL != "" {
		pool, err := db.Open(ctx, pgURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		pg, err := devapi.NewPGRepo(ctx, pool)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare schema")
		}
		repo = pg
	} else {
		log.Info().Msg("DATABASE_URL not set, using in-memory storage")
		repo = devapi.NewMemoryRepo()
	}

	if env("SEED", "true") == "true" {
		users, err := devapi.Seed(ctx, repo)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed data")
		}
		for role, u := range users {
			log.Info().Str("role", string(role)).Str("email", u.Email).Msg("seeded user")
		}
	}

	hub := devapi.NewHub()
	srv := &devapi.Server{
		Repo: repo,
		Hub:  hub,
		JWT: devapi.JWTCfg{
			HS256Secret: env("JWT_HS256_SECRET", "dev-secret-change-in-production"),
		},
		RateLimit: devapi.RateLimit{
			PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 600),
			Burst:     envInt("RATE_LIMIT_BURST", 120),
		},
	}

	httpAddr := env("HTTP_ADDR", ":5000")
	httpServer := &http.Server{
		Addr:        httpAddr,
		Handler:     srv.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websockets are not tracked by Shutdown
	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
