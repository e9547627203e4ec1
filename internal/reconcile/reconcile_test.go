// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/periscope-app/periscope/internal/logging"
)

func TestRefreshPagesUntilShortPage(t *testing.T) {
	var offsets []int
	pages := []int{100, 100, 40}

	r := New(Config{
		Name:        "things",
		PageSize:    100,
		MarkExpired: func() {},
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			offsets = append(offsets, offset)
			return pages[offset/100], nil
		},
		Sweep:  func() {},
		Logger: logging.NewTestLogger(nil),
	})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(offsets) != 3 || offsets[0] != 0 || offsets[1] != 100 || offsets[2] != 200 {
		t.Errorf("offsets = %v", offsets)
	}
}

func TestRefreshOrder(t *testing.T) {
	var steps []string
	r := New(Config{
		Name:        "things",
		PageSize:    10,
		MarkExpired: func() { steps = append(steps, "mark") },
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			steps = append(steps, "page")
			return 0, nil
		},
		Sweep:  func() { steps = append(steps, "sweep") },
		After:  func(ctx context.Context) error { steps = append(steps, "after"); return nil },
		Logger: logging.NewTestLogger(nil),
	})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"mark", "page", "sweep", "after"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v", steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", steps, want)
		}
	}
}

func TestRefreshSweepsAfterPagingError(t *testing.T) {
	swept := false
	r := New(Config{
		Name:        "things",
		PageSize:    10,
		MarkExpired: func() {},
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			if offset == 10 {
				return 0, errors.New("boom")
			}
			return 10, nil
		},
		Sweep:  func() { swept = true },
		Logger: logging.NewTestLogger(nil),
	})

	if err := r.Refresh(context.Background()); err == nil {
		t.Error("paging error should surface")
	}
	if !swept {
		t.Error("sweep must still run after a paging error")
	}
}

func TestRefreshConcurrentNoOp(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var fetches int

	r := New(Config{
		Name:        "things",
		PageSize:    10,
		MarkExpired: func() {},
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			fetches++
			close(started)
			<-release
			return 0, nil
		},
		Sweep:  func() {},
		Logger: logging.NewTestLogger(nil),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Refresh(context.Background())
	}()

	<-started
	if !r.Loading() {
		t.Error("Loading() = false during a pass")
	}
	// The overlapping call returns immediately without fetching.
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	close(release)
	wg.Wait()

	if fetches != 1 {
		t.Errorf("fetches = %d, want 1", fetches)
	}
}

func TestRefreshSkipsSweepWhenGenerationMoves(t *testing.T) {
	gen := uint64(1)
	swept := false
	r := New(Config{
		Name:        "things",
		PageSize:    10,
		MarkExpired: func() {},
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			gen++ // the collection is cleared mid-pass
			return 0, nil
		},
		Sweep:      func() { swept = true },
		Generation: func() uint64 { return gen },
		Logger:     logging.NewTestLogger(nil),
	})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if swept {
		t.Error("sweep must be skipped when the collection was cleared")
	}
}

func TestRefreshUnpagedListing(t *testing.T) {
	calls := 0
	r := New(Config{
		Name:        "moderations",
		MarkExpired: func() {},
		FetchPage: func(ctx context.Context, offset, n int) (int, error) {
			calls++
			return 500, nil
		},
		Sweep:  func() {},
		Logger: logging.NewTestLogger(nil),
	})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
