// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package gamelog

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeWatcher struct {
	batches [][][]string
	err     error
	resets  int
}

func (w *fakeWatcher) Get() ([][]string, error) {
	if w.err != nil {
		return nil, w.err
	}
	if len(w.batches) == 0 {
		return nil, nil
	}
	batch := w.batches[0]
	w.batches = w.batches[1:]
	return batch, nil
}

func (w *fakeWatcher) Reset() error {
	w.resets++
	return nil
}

func TestPollParsesTypedEntries(t *testing.T) {
	w := &fakeWatcher{batches: [][][]string{{
		{"output_log_1.txt", "2026-03-01 12:00:00", "location", "wrld_1:1234", "The Hub"},
		{"output_log_1.txt", "2026-03-01 12:00:05", "player-joined", "Alice", "remote"},
		{"output_log_1.txt", "2026-03-01 12:01:00", "player-left", "Alice"},
		{"output_log_1.txt", "2026-03-01 12:02:00", "video-play", "https://example.com/v", "Bob"},
		{"output_log_1.txt", "2026-03-01 12:03:00", "event", "OnApplicationQuit"},
	}}}
	f := New(w, nil, zerolog.Nop())

	entries, err := f.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}

	if entries[0].Type != TypeLocation || entries[0].Location != "wrld_1:1234" || entries[0].WorldName != "The Hub" {
		t.Fatalf("location entry = %+v", entries[0])
	}
	if entries[1].UserDisplayName != "Alice" || entries[1].UserType != "remote" {
		t.Fatalf("joined entry = %+v", entries[1])
	}
	if entries[2].Type != TypePlayerLeft || entries[2].UserDisplayName != "Alice" {
		t.Fatalf("left entry = %+v", entries[2])
	}
	if entries[3].VideoURL != "https://example.com/v" || entries[3].DisplayName != "Bob" {
		t.Fatalf("video entry = %+v", entries[3])
	}
	if entries[4].Event != "OnApplicationQuit" {
		t.Fatalf("event entry = %+v", entries[4])
	}
}

func TestContextTracksLatestLocation(t *testing.T) {
	w := &fakeWatcher{batches: [][][]string{
		{
			{"log_a.txt", "t1", "location", "wrld_1:1", "First"},
			{"log_b.txt", "t1", "location", "wrld_9:9", "Other"},
		},
		{
			{"log_a.txt", "t2", "location", "wrld_2:2", "Second"},
			{"log_a.txt", "t3", "player-joined", "Alice", "remote"},
		},
	}}
	f := New(w, nil, zerolog.Nop())

	if _, err := f.Poll(); err != nil {
		t.Fatalf("first Poll: %v", err)
	}
	if _, err := f.Poll(); err != nil {
		t.Fatalf("second Poll: %v", err)
	}

	ctx, ok := f.Context("log_a.txt")
	if !ok || ctx.Location != "wrld_2:2" {
		t.Fatalf("log_a context = %+v ok=%v", ctx, ok)
	}
	ctx, ok = f.Context("log_b.txt")
	if !ok || ctx.Location != "wrld_9:9" {
		t.Fatalf("log_b context = %+v ok=%v", ctx, ok)
	}
}

func TestPollSkipsShortTuples(t *testing.T) {
	w := &fakeWatcher{batches: [][][]string{{
		{"log.txt"},
		{"log.txt", "t1", "player-left", "Alice"},
	}}}
	f := New(w, nil, zerolog.Nop())

	entries, err := f.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != TypePlayerLeft {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestPollWatcherError(t *testing.T) {
	w := &fakeWatcher{err: errors.New("tail broken")}
	f := New(w, nil, zerolog.Nop())
	if _, err := f.Poll(); err == nil {
		t.Fatal("expected error")
	}
}

func TestResetClearsContexts(t *testing.T) {
	w := &fakeWatcher{batches: [][][]string{{
		{"log.txt", "t1", "location", "wrld_1:1", "First"},
	}}}
	f := New(w, nil, zerolog.Nop())
	if _, err := f.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if err := f.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if w.resets != 1 {
		t.Fatalf("watcher resets = %d", w.resets)
	}
	if _, ok := f.Context("log.txt"); ok {
		t.Fatal("context survived reset")
	}
}
