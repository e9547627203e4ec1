// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package main is the Periscope daemon entry point.
//
// Periscope mirrors one account's slice of a social VR network: users,
// worlds, avatars, friendships, favorites, notifications and player
// moderations, kept consistent through a REST client, a realtime
// websocket pipeline, and periodic reconciliation passes.
//
// Startup order:
//
//  1. Configuration: layered load (defaults, YAML file, PERISCOPE_ env)
//  2. Logging: zerolog, global level and format from configuration
//  3. App: bus, store, REST client, pipeline session, presence manager,
//     reconcilers, badger-backed persistence
//  4. Supervisor: suture tree running the session keeper, reconcile
//     timers, game-log poller and the debug HTTP listener
//  5. Login: when PERISCOPE_AUTH_USERNAME/PASSWORD are set
//
// The daemon shuts down gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/periscope-app/periscope/internal/app"
	"github.com/periscope-app/periscope/internal/config"
	"github.com/periscope-app/periscope/internal/logging"
	"github.com/periscope-app/periscope/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("api", cfg.API.BaseURL).
		Str("pipeline", cfg.Pipeline.URL).
		Bool("gamelog", cfg.GameLog.Enabled).
		Msg("Starting Periscope")

	a, err := app.New(cfg, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to assemble application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing application")
		}
	}()

	if state, ok := a.ResumeState(); ok {
		logging.Info().
			Str("userId", state["userId"]).
			Str("seenAt", state["seenAt"]).
			Msg("Resuming previous account")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	a.RegisterServices(tree)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	if cfg.Auth.Username != "" && cfg.Auth.Password != "" {
		if err := a.Login(ctx, cfg.Auth.Username, cfg.Auth.Password); err != nil {
			logging.Error().Err(err).Msg("Login failed; daemon stays up for retry")
		}
	} else {
		logging.Info().Msg("No credentials configured, starting logged out")
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}
	logging.Info().Msg("Stopped")
}
