// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/gamelog"
)

// TimerService runs a function on a fixed interval until its context is
// canceled. Errors are logged and counted but do not stop the ticker;
// the next tick tries again.
type TimerService struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	Log      zerolog.Logger

	// RunOnStart fires Run once before the first tick.
	RunOnStart bool
}

func (s *TimerService) String() string {
	return s.Name
}

// Serve implements suture.Service.
func (s *TimerService) Serve(ctx context.Context) error {
	if s.RunOnStart {
		s.fire(ctx)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *TimerService) fire(ctx context.Context) {
	if err := s.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.Log.Warn().Err(err).Str("timer", s.Name).Msg("timer run failed")
	}
}

// PollerService drives the game-log feed, handing each parsed entry to
// Handle. A read error is returned to the supervisor so the poller is
// restarted with a fresh watcher state.
type PollerService struct {
	Feed     *gamelog.Feed
	Interval time.Duration
	Handle   func(gamelog.Entry)
	Log      zerolog.Logger
}

func (s *PollerService) String() string {
	return "gamelog-poller"
}

// Serve implements suture.Service.
func (s *PollerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entries, err := s.Feed.Poll()
			if err != nil {
				s.Log.Error().Err(err).Msg("game log poll failed")
				return err
			}
			for _, entry := range entries {
				s.Handle(entry)
			}
		}
	}
}

// HTTPService supervises an http.Server, shutting it down when the
// service context is canceled.
type HTTPService struct {
	Name            string
	Server          *http.Server
	ShutdownTimeout time.Duration
	Log             zerolog.Logger
}

func (s *HTTPService) String() string {
	return s.Name
}

// Serve implements suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		timeout := s.ShutdownTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			s.Log.Warn().Err(err).Str("listener", s.Name).Msg("shutdown incomplete")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
