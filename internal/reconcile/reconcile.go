// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package reconcile implements the refresh/sweep loop that keeps a
// mirrored collection consistent with the remote side: mark every record
// expired, page the full listing back in (each applied record clears its
// mark), then soft-delete whatever stayed expired.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/metrics"
)

// Config wires a Reconciler to one collection.
type Config struct {
	Name string

	// PageSize is the listing page size. Zero means the listing is not
	// paged and FetchPage runs exactly once.
	PageSize int

	// MarkExpired flags every record in the collection.
	MarkExpired func()

	// FetchPage fetches and applies one page, returning the number of
	// records the page carried.
	FetchPage func(ctx context.Context, offset, n int) (int, error)

	// Sweep soft-deletes records still flagged after paging.
	Sweep func()

	// After runs dependent hydration once the sweep finished. Optional.
	After func(ctx context.Context) error

	// Generation, when set, is sampled before the pass. If it moved by
	// the time paging finished, the collection was cleared underneath the
	// pass and the sweep is skipped. Optional.
	Generation func() uint64

	Logger zerolog.Logger
}

// Reconciler runs refresh passes over one collection. Concurrent Refresh
// calls collapse: while a pass is loading, further calls are no-ops.
type Reconciler struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	loading bool
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	return &Reconciler{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "reconcile").Str("collection", cfg.Name).Logger(),
	}
}

// Loading reports whether a pass is in flight.
func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Refresh runs one refresh/sweep pass. A paging error aborts the loop
// but the sweep still runs over whatever stayed expired; records already
// refreshed are kept either way.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.loading {
		r.mu.Unlock()
		return nil
	}
	r.loading = true
	r.mu.Unlock()

	var passErr error
	defer func() {
		metrics.ObserveReconcilePass(r.cfg.Name, passErr)
	}()
	defer func() {
		r.mu.Lock()
		r.loading = false
		r.mu.Unlock()
	}()

	var startGen uint64
	if r.cfg.Generation != nil {
		startGen = r.cfg.Generation()
	}

	r.cfg.MarkExpired()

	var pageErr error
	if r.cfg.PageSize <= 0 {
		_, pageErr = r.cfg.FetchPage(ctx, 0, 0)
	} else {
		for offset := 0; ; offset += r.cfg.PageSize {
			count, err := r.cfg.FetchPage(ctx, offset, r.cfg.PageSize)
			if err != nil {
				pageErr = err
				break
			}
			if count == 0 || count < r.cfg.PageSize {
				break
			}
		}
	}
	if pageErr != nil {
		r.log.Warn().Err(pageErr).Msg("listing aborted, sweeping what remains")
	}

	if r.cfg.Generation != nil && r.cfg.Generation() != startGen {
		r.log.Debug().Msg("collection cleared mid-pass, sweep skipped")
		return nil
	}

	r.cfg.Sweep()

	if r.cfg.After != nil {
		if err := r.cfg.After(ctx); err != nil {
			passErr = fmt.Errorf("reconcile %s: %w", r.cfg.Name, err)
			return passErr
		}
	}
	if pageErr != nil {
		passErr = fmt.Errorf("reconcile %s: %w", r.cfg.Name, pageErr)
		return passErr
	}
	return nil
}
