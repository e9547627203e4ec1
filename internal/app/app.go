// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package app assembles the mirror: bus, store, REST client, realtime
// pipeline, presence manager, reconcilers and persistence, wired in the
// order the login flow depends on. The store subscribes first so its
// login clear runs before any other LOGIN handler sees the fresh state.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/api"
	"github.com/periscope-app/periscope/internal/bus"
	"github.com/periscope-app/periscope/internal/config"
	"github.com/periscope-app/periscope/internal/event"
	"github.com/periscope-app/periscope/internal/metrics"
	"github.com/periscope-app/periscope/internal/persist"
	"github.com/periscope-app/periscope/internal/pipeline"
	"github.com/periscope-app/periscope/internal/presence"
	"github.com/periscope-app/periscope/internal/reconcile"
	"github.com/periscope-app/periscope/internal/store"
)

// App owns the assembled components.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	Bus      *bus.Bus
	Store    *store.Store
	API      *api.Client
	Pipeline *pipeline.Session
	Presence *presence.Manager
	Persist  *persist.Store

	Notifications  *reconcile.Reconciler
	Favorites      *reconcile.Reconciler
	FavoriteGroups *reconcile.Reconciler
	Moderations    *reconcile.Reconciler
}

// New builds and wires the components from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	b := bus.New(logger)

	st := store.New(b, store.Options{
		DebounceDelay: cfg.Store.DebounceDelay,
		Logger:        logger,
	})
	st.Wire()

	client, err := api.New(api.Config{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, b, logger)
	if err != nil {
		return nil, fmt.Errorf("app: api client: %w", err)
	}

	sess := pipeline.New(pipeline.Config{
		URL:    cfg.Pipeline.URL,
		SelfID: func() string { return st.CurrentUser().ID },
	}, b, logger)
	sess.Wire()

	pres := presence.New(presence.Config{
		DeferDelay: cfg.Presence.DeferDelay,
		FlapWindow: cfg.Presence.FlapWindow,
		PageSize:   cfg.Presence.FriendPageSize,
	}, st, client, b, logger)
	pres.Wire()

	ps, err := persist.Open(cfg.Persist.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("app: persist: %w", err)
	}

	a := &App{
		cfg:      cfg,
		log:      logger.With().Str("component", "app").Logger(),
		Bus:      b,
		Store:    st,
		API:      client,
		Pipeline: sess,
		Presence: pres,
		Persist:  ps,
	}
	a.buildReconcilers(logger)
	a.wire()
	return a, nil
}

func (a *App) buildReconcilers(logger zerolog.Logger) {
	pageSize := a.cfg.Reconcile.PageSize

	a.Notifications = reconcile.New(reconcile.Config{
		Name:        "notifications",
		PageSize:    pageSize,
		MarkExpired: a.Store.MarkNotificationsExpired,
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			return a.API.GetNotifications(ctx, n, offset)
		},
		Sweep:      a.Store.SweepNotifications,
		Generation: a.Store.Generation,
		Logger:     logger,
	})

	a.Favorites = reconcile.New(reconcile.Config{
		Name:        "favorites",
		PageSize:    pageSize,
		MarkExpired: a.Store.MarkFavoritesExpired,
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			return a.API.GetFavorites(ctx, n, offset)
		},
		Sweep:      a.Store.SweepFavorites,
		After:      a.hydrateFavoriteObjects,
		Generation: a.Store.Generation,
		Logger:     logger,
	})

	a.FavoriteGroups = reconcile.New(reconcile.Config{
		Name:        "favorite-groups",
		PageSize:    pageSize,
		MarkExpired: a.Store.MarkFavoriteGroupsExpired,
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			return a.API.GetFavoriteGroups(ctx, n, offset)
		},
		Sweep: a.Store.SweepFavoriteGroups,
		After: func(ctx context.Context) error {
			a.Store.RebuildFavoriteGroups()
			return nil
		},
		Generation: a.Store.Generation,
		Logger:     logger,
	})

	// The moderation listing is not paged upstream.
	a.Moderations = reconcile.New(reconcile.Config{
		Name:        "player-moderations",
		PageSize:    0,
		MarkExpired: a.Store.MarkPlayerModerationsExpired,
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			return a.API.GetPlayerModerations(ctx)
		},
		Sweep:      a.Store.SweepPlayerModerations,
		Generation: a.Store.Generation,
		Logger:     logger,
	})
}

// hydrateFavoriteObjects pages the favorited worlds and avatars back in
// after a favorites pass, so the object records behind the favorites are
// warm. World hydration only runs when a live world favorite exists;
// avatar favorites are fetched per tag, and the listing endpoint wants
// the group tag.
func (a *App) hydrateFavoriteObjects(ctx context.Context) error {
	pageSize := a.cfg.Reconcile.PageSize
	if a.Store.CountLiveFavorites("world") > 0 {
		for offset := 0; ; offset += pageSize {
			count, err := a.API.GetFavoriteWorlds(ctx, pageSize, offset)
			if err != nil {
				return fmt.Errorf("favorite worlds: %w", err)
			}
			if count == 0 || count < pageSize {
				break
			}
		}
	}
	for _, tag := range a.Store.DistinctAvatarFavoriteTags() {
		for offset := 0; ; offset += pageSize {
			count, err := a.API.GetFavoriteAvatars(ctx, pageSize, offset, tag)
			if err != nil {
				return fmt.Errorf("favorite avatars %q: %w", tag, err)
			}
			if count == 0 || count < pageSize {
				break
			}
		}
	}
	return nil
}

// wire hooks the login bootstrap onto the bus. The store already
// subscribed, so by the time this handler runs the collections are
// cleared for the new account.
func (a *App) wire() {
	a.Bus.Subscribe(event.TopicLogin, func(args ...any) {
		go a.bootstrap(context.Background())
	})
	a.Bus.Subscribe(event.TopicUserCurrent, func(args ...any) {
		a.saveResumeState()
	})
	a.Bus.Subscribe(event.TopicUserTwoFA, func(args ...any) {
		a.log.Warn().Msg("two-factor challenge pending, waiting for VerifyTOTP")
	})
}

// Login authenticates and, on success, publishes the events that drive
// the bootstrap.
func (a *App) Login(ctx context.Context, username, password string) error {
	return a.API.Login(ctx, username, password)
}

// VerifyTOTP completes a two-factor challenge and re-fetches the current
// user so the LOGIN event fires.
func (a *App) VerifyTOTP(ctx context.Context, code string) error {
	if err := a.API.VerifyTOTP(ctx, code); err != nil {
		return err
	}
	return a.API.GetCurrentUser(ctx)
}

// Logout ends the session remotely and locally.
func (a *App) Logout(ctx context.Context) error {
	a.Pipeline.Close()
	err := a.API.Logout(ctx)
	a.Store.Logout()
	return err
}

// bootstrap runs the post-login sequence: full reconciliation passes,
// the friend bootstrap, then the websocket token fetch that brings the
// pipeline up.
func (a *App) bootstrap(ctx context.Context) {
	for _, r := range []*reconcile.Reconciler{
		a.Notifications, a.Favorites, a.FavoriteGroups, a.Moderations,
	} {
		if err := r.Refresh(ctx); err != nil {
			a.log.Warn().Err(err).Msg("bootstrap refresh failed")
		}
	}
	if err := a.Presence.Reconcile(ctx); err != nil {
		a.log.Warn().Err(err).Msg("friend bootstrap failed")
	}
	if _, err := a.API.GetAuthToken(ctx); err != nil {
		a.log.Error().Err(err).Msg("websocket token fetch failed")
	}
}

// EnsurePipeline reconnects the realtime pipeline when it dropped while
// a session is live. Called from the session keeper timer; retries with
// exponential backoff until the connection is back or ctx ends.
func (a *App) EnsurePipeline(ctx context.Context) error {
	if !a.Store.LoggedIn() || a.Pipeline.Connected() {
		return nil
	}
	metrics.PipelineReconnects.Inc()
	a.log.Info().Msg("pipeline down, reconnecting")

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		// GetAuthToken publishes AUTH; the session connects on it.
		if _, err := a.API.GetAuthToken(ctx); err != nil {
			return err
		}
		if !a.Pipeline.Connected() {
			return fmt.Errorf("pipeline: not connected after token refresh")
		}
		return nil
	}, policy)
}

// saveResumeState records the last seen account identity so a restart
// can report what it is resuming.
func (a *App) saveResumeState() {
	cu := a.Store.CurrentUser()
	if cu.ID == "" {
		return
	}
	state := map[string]string{
		"userId":      cu.ID,
		"displayName": cu.DisplayName,
		"status":      cu.Status,
		"seenAt":      time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.Persist.SetObject("resume/lastUser", state); err != nil {
		a.log.Warn().Err(err).Msg("resume state save failed")
	}
}

// ResumeState returns the persisted last-account snapshot, if any.
func (a *App) ResumeState() (map[string]string, bool) {
	var state map[string]string
	ok, err := a.Persist.GetObject("resume/lastUser", &state)
	if err != nil || !ok {
		return nil, false
	}
	return state, true
}

// Close releases held resources.
func (a *App) Close() error {
	a.Pipeline.Close()
	return a.Persist.Close()
}
