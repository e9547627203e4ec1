// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/gamelog"
	"github.com/periscope-app/periscope/internal/store"
)

type fakeWatcher struct {
	mu     sync.Mutex
	tuples [][]string
	err    error
}

func (w *fakeWatcher) Get() ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	out := w.tuples
	w.tuples = nil
	return out, nil
}

func (w *fakeWatcher) Reset() error { return nil }

func TestTimerServiceFiresOnInterval(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	svc := &TimerService{
		Name:     "test-timer",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		},
		Log: zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := runs
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timer fired %d times, want at least 2", n)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve returned %v, want context.Canceled", err)
	}
}

func TestTimerServiceKeepsTickingAfterError(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	svc := &TimerService{
		Name:       "flaky-timer",
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return errors.New("boom")
		},
		Log: zerolog.Nop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = svc.Serve(ctx)

	mu.Lock()
	defer mu.Unlock()
	if runs < 2 {
		t.Fatalf("timer fired %d times after errors, want at least 2", runs)
	}
}

func TestPollerServiceDeliversEntries(t *testing.T) {
	watcher := &fakeWatcher{tuples: [][]string{
		{"output_log_1.txt", "2026-01-05 10:00:00", "player-joined", "Nagi", "usr_1"},
	}}
	feed := gamelog.New(watcher, store.RealClock(), zerolog.Nop())

	entries := make(chan gamelog.Entry, 1)
	svc := &PollerService{
		Feed:     feed,
		Interval: 5 * time.Millisecond,
		Handle:   func(e gamelog.Entry) { entries <- e },
		Log:      zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Serve(ctx) }()

	select {
	case e := <-entries:
		if e.Type != gamelog.TypePlayerJoined {
			t.Fatalf("entry type = %q, want %q", e.Type, gamelog.TypePlayerJoined)
		}
		if e.UserDisplayName != "Nagi" {
			t.Fatalf("display name = %q, want Nagi", e.UserDisplayName)
		}
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}
}

func TestPollerServiceReturnsWatcherError(t *testing.T) {
	watcher := &fakeWatcher{err: errors.New("log rotated away")}
	feed := gamelog.New(watcher, store.RealClock(), zerolog.Nop())

	svc := &PollerService{
		Feed:     feed,
		Interval: 5 * time.Millisecond,
		Handle:   func(gamelog.Entry) {},
		Log:      zerolog.Nop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := svc.Serve(ctx)
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve returned %v, want watcher error", err)
	}
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	listener.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	svc := &HTTPService{
		Name:            "debug-http",
		Server:          &http.Server{Addr: addr, Handler: mux},
		ShutdownTimeout: time.Second,
		Log:             zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	tree := NewTree(newTestSlog(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Fatalf("FailureThreshold = %v, want 5", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 10s", tree.config.ShutdownTimeout)
	}
	if tree.Root() == nil {
		t.Fatal("Root() returned nil")
	}
}

func TestTreeRunsSessionService(t *testing.T) {
	tree := NewTree(newTestSlog(), DefaultTreeConfig())

	started := make(chan struct{})
	var once sync.Once
	tree.AddSessionService(&TimerService{
		Name:     "idle",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
		Log:      zerolog.Nop(),
	})
	tree.AddFeedService(serviceFunc(func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("feed service never started")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

type serviceFunc func(ctx context.Context) error

func (f serviceFunc) Serve(ctx context.Context) error { return f(ctx) }

func newTestSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
