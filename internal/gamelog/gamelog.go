// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package gamelog turns the raw game-process log tuples into typed
// entries. Tailing the log files themselves sits behind the Watcher
// boundary; this package only parses and tracks per-file context.
package gamelog

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/store"
)

// Entry types the log feed produces.
const (
	TypeLocation     = "location"
	TypePlayerJoined = "player-joined"
	TypePlayerLeft   = "player-left"
	TypeNotification = "notification"
	TypePortalSpawn  = "portal-spawn"
	TypeEvent        = "event"
	TypeVideoPlay    = "video-play"
)

// Entry is one typed log event. Only the fields the entry's type carries
// are set.
type Entry struct {
	At   string
	Type string

	Location        string
	WorldName       string
	UserDisplayName string
	UserType        string
	JSON            string
	Event           string
	VideoURL        string
	DisplayName     string
}

// Context is the tracked state for one log file.
type Context struct {
	UpdatedAt time.Time
	Location  string
}

// Watcher is the raw log tail boundary. Get returns finite batches of
// tuples shaped [fileName, dt, type, args...], in log order.
type Watcher interface {
	Get() ([][]string, error)
	Reset() error
}

// Feed parses watcher tuples into entries.
type Feed struct {
	watcher Watcher
	clock   store.Clock
	log     zerolog.Logger

	mu       sync.Mutex
	contexts map[string]*Context
}

// New creates a Feed over the given watcher.
func New(w Watcher, clock store.Clock, logger zerolog.Logger) *Feed {
	if clock == nil {
		clock = store.RealClock()
	}
	return &Feed{
		watcher:  w,
		clock:    clock,
		log:      logger.With().Str("component", "gamelog").Logger(),
		contexts: make(map[string]*Context),
	}
}

// Poll drains the watcher and returns the parsed entries, in log order.
// Malformed tuples are logged and skipped.
func (f *Feed) Poll() ([]Entry, error) {
	raw, err := f.watcher.Get()
	if err != nil {
		return nil, fmt.Errorf("gamelog: poll: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	entries := make([]Entry, 0, len(raw))
	for _, tuple := range raw {
		if len(tuple) < 3 {
			f.log.Warn().Int("fields", len(tuple)).Msg("short log tuple")
			continue
		}
		fileName := tuple[0]
		ctx, ok := f.contexts[fileName]
		if !ok {
			ctx = &Context{}
			f.contexts[fileName] = ctx
		}

		entry := parseEntry(tuple[1], tuple[2], tuple[3:])
		entries = append(entries, entry)

		if entry.Type == TypeLocation {
			ctx.Location = entry.Location
		}
		ctx.UpdatedAt = now
	}
	return entries, nil
}

// Reset clears the watcher and every tracked context.
func (f *Feed) Reset() error {
	if err := f.watcher.Reset(); err != nil {
		return fmt.Errorf("gamelog: reset: %w", err)
	}
	f.mu.Lock()
	f.contexts = make(map[string]*Context)
	f.mu.Unlock()
	return nil
}

// Context returns the tracked state for one log file.
func (f *Feed) Context(fileName string) (Context, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctx, ok := f.contexts[fileName]
	if !ok {
		return Context{}, false
	}
	return *ctx, true
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func parseEntry(dt, entryType string, args []string) Entry {
	entry := Entry{At: dt, Type: entryType}
	switch entryType {
	case TypeLocation:
		entry.Location = arg(args, 0)
		entry.WorldName = arg(args, 1)
	case TypePlayerJoined:
		entry.UserDisplayName = arg(args, 0)
		entry.UserType = arg(args, 1)
	case TypePlayerLeft:
		entry.UserDisplayName = arg(args, 0)
	case TypeNotification:
		entry.JSON = arg(args, 0)
	case TypePortalSpawn:
		entry.UserDisplayName = arg(args, 0)
	case TypeEvent:
		entry.Event = arg(args, 0)
	case TypeVideoPlay:
		entry.VideoURL = arg(args, 0)
		entry.DisplayName = arg(args, 1)
	}
	return entry
}
