// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package store holds the mirrored entity state: users, worlds, avatars,
// notifications, player moderations, favorites and favorite groups.
// Remote payloads enter through the Apply methods, which create or merge
// records in place and recompute their derived annotations. All consumers
// share the same record instances; a merge mutates what they already hold.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/bus"
	"github.com/periscope-app/periscope/internal/event"
	"github.com/periscope-app/periscope/internal/models"
)

// ErrMissingID is returned when a payload carries no id. Such payloads
// indicate a caller bug, not remote noise, so they fail loudly.
var ErrMissingID = errors.New("store: payload has no id")

// Clock abstracts the wall clock for the debounce timer and the
// presence timestamps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns a Clock backed by the wall clock.
func RealClock() Clock { return realClock{} }

// Options configures a Store.
type Options struct {
	Clock         Clock
	DebounceDelay time.Duration
	Logger        zerolog.Logger
}

// Store is the mirrored entity state. Safe for concurrent use; bus
// events are published outside the lock.
type Store struct {
	mu    sync.Mutex
	bus   *bus.Bus
	log   zerolog.Logger
	clock Clock

	debounceDelay time.Duration

	loggedIn    bool
	currentUser *models.CurrentUser
	generation  uint64

	users         map[string]*models.User
	worlds        map[string]*models.World
	avatars       map[string]*models.Avatar
	notifications map[string]*models.Notification
	moderations   map[string]*models.PlayerModeration

	favorites         map[string]*models.Favorite
	favoritesByObject map[string]*models.Favorite
	favoriteGroups    map[string]*models.FavoriteGroup
	groupOrder        []string
	slots             []*models.FavoriteGroupSlot
	slotsByKey        map[string]*models.FavoriteGroupSlot

	updateQueue   []*UserUpdate
	updatePending bool
}

// UserUpdate is the payload of a coalesced user-update event: the record
// and the scalar fields that changed since the previous publish.
type UserUpdate struct {
	User    *models.User
	Changes map[string]event.FieldChange
}

// New creates an empty store wired to the given bus.
func New(b *bus.Bus, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = time.Millisecond
	}
	s := &Store{
		bus:           b,
		log:           opts.Logger.With().Str("component", "store").Logger(),
		clock:         opts.Clock,
		debounceDelay: opts.DebounceDelay,
		currentUser:   &models.CurrentUser{},
	}
	s.resetCollections()
	s.users = make(map[string]*models.User)
	s.worlds = make(map[string]*models.World)
	s.avatars = make(map[string]*models.Avatar)
	return s
}

// resetCollections rebuilds the per-account collections. Callers hold the
// lock. Worlds, avatars and users survive a re-login; everything keyed to
// the account does not.
func (s *Store) resetCollections() {
	s.notifications = make(map[string]*models.Notification)
	s.moderations = make(map[string]*models.PlayerModeration)
	s.favorites = make(map[string]*models.Favorite)
	s.favoritesByObject = make(map[string]*models.Favorite)
	s.favoriteGroups = make(map[string]*models.FavoriteGroup)
	s.groupOrder = nil
	s.slots = models.NewFavoriteGroupSlots()
	s.slotsByKey = make(map[string]*models.FavoriteGroupSlot, len(s.slots))
	for _, slot := range s.slots {
		s.slotsByKey[slot.Key] = slot
	}
}

// ClearOnLogin drops every per-account collection ahead of a fresh
// session. The generation counter advances so reconciliation passes that
// started against the old account abandon their sweep.
func (s *Store) ClearOnLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.resetCollections()
}

// Generation returns the current collection generation. It advances on
// every ClearOnLogin.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LoggedIn reports whether a current user has been applied.
func (s *Store) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Logout resets the logged-in flag. The next current-user apply starts a
// fresh account record and publishes the login event again.
func (s *Store) Logout() {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
	s.bus.Publish(event.TopicLogout)
}

// normalizeTags sorts and deduplicates a tag list in place.
func normalizeTags(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	sort.Strings(tags)
	out := tags[:1]
	for _, tag := range tags[1:] {
		if tag != out[len(out)-1] {
			out = append(out, tag)
		}
	}
	return out
}

// idOf extracts the id field from a raw payload.
func idOf(data []byte) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.ID == "" {
		return "", ErrMissingID
	}
	return head.ID, nil
}
