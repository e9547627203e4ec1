// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/periscope-app/periscope/internal/gamelog"
	"github.com/periscope-app/periscope/internal/store"
	"github.com/periscope-app/periscope/internal/supervisor"
)

// pipelineKeeperInterval is how often the session keeper checks the
// realtime connection.
const pipelineKeeperInterval = 10 * time.Second

// RegisterServices attaches the periodic and long-running services to
// the supervisor tree. Reconcile timers are no-ops while logged out;
// the bootstrap covers the first pass after login.
func (a *App) RegisterServices(tree *supervisor.Tree) {
	tree.AddSessionService(&supervisor.TimerService{
		Name:     "pipeline-keeper",
		Interval: pipelineKeeperInterval,
		Run:      a.EnsurePipeline,
		Log:      a.log,
	})

	tree.AddSessionService(&supervisor.TimerService{
		Name:     "friend-reconcile",
		Interval: a.cfg.Presence.ReconcileInterval,
		Run:      a.whenLoggedIn(a.Presence.Reconcile),
		Log:      a.log,
	})
	tree.AddSessionService(&supervisor.TimerService{
		Name:     "notification-refresh",
		Interval: a.cfg.Reconcile.NotificationInterval,
		Run:      a.whenLoggedIn(a.Notifications.Refresh),
		Log:      a.log,
	})
	tree.AddSessionService(&supervisor.TimerService{
		Name:     "favorite-refresh",
		Interval: a.cfg.Reconcile.FavoriteInterval,
		Run: a.whenLoggedIn(func(ctx context.Context) error {
			if err := a.Favorites.Refresh(ctx); err != nil {
				return err
			}
			return a.FavoriteGroups.Refresh(ctx)
		}),
		Log: a.log,
	})
	tree.AddSessionService(&supervisor.TimerService{
		Name:     "moderation-refresh",
		Interval: a.cfg.Reconcile.ModerationInterval,
		Run:      a.whenLoggedIn(a.Moderations.Refresh),
		Log:      a.log,
	})

	if a.cfg.GameLog.Enabled {
		watcher := gamelog.NewFileWatcher(a.cfg.GameLog.Dir)
		feed := gamelog.New(watcher, store.RealClock(), a.log)
		tree.AddFeedService(&supervisor.PollerService{
			Feed:     feed,
			Interval: a.cfg.GameLog.PollInterval,
			Handle:   a.handleGameLog,
			Log:      a.log,
		})
	}

	if a.cfg.Debug.Enabled {
		tree.AddDebugService(&supervisor.HTTPService{
			Name: "debug-http",
			Server: &http.Server{
				Addr:              a.cfg.Debug.Listen,
				Handler:           a.debugRouter(),
				ReadHeaderTimeout: 5 * time.Second,
			},
			Log: a.log,
		})
	}
}

// whenLoggedIn wraps a run function so it only fires with a live
// session.
func (a *App) whenLoggedIn(run func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !a.Store.LoggedIn() {
			return nil
		}
		return run(ctx)
	}
}

func (a *App) handleGameLog(entry gamelog.Entry) {
	a.log.Info().
		Str("type", entry.Type).
		Str("at", entry.At).
		Str("location", entry.Location).
		Str("displayName", entry.UserDisplayName).
		Msg("game log entry")
}

// debugRouter serves the local observability surface.
func (a *App) debugRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !a.Store.LoggedIn() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("logged out"))
			return
		}
		if !a.Pipeline.Connected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("pipeline down"))
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
