// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package presence maintains the friend presence state machine: one context
// per friend, grouped into four display buckets. Realtime state frames move
// friends between buckets immediately, except online→active which is
// deferred to absorb presence flicker. A bulk reconciliation diffs the
// account's friend id lists and refetches whatever records are missing.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/bus"
	"github.com/periscope-app/periscope/internal/event"
	"github.com/periscope-app/periscope/internal/metrics"
	"github.com/periscope-app/periscope/internal/models"
	"github.com/periscope-app/periscope/internal/store"
)

// ErrNotLoggedIn is returned when a reconciliation runs before the first
// current-user apply.
var ErrNotLoggedIn = errors.New("presence: not logged in")

// Display buckets. A VIP friend is one favorited into any friend group;
// only the online state splits on it.
const (
	BucketVIPOnline = "vip-online"
	BucketOnline    = "online"
	BucketActive    = "active"
	BucketOffline   = "offline"
)

// Friend states as the remote reports them.
const (
	StateOnline  = "online"
	StateActive  = "active"
	StateOffline = "offline"
)

// Friend is one tracked friend context. User is borrowed from the store;
// merges mutate it in place.
type Friend struct {
	ID     string
	User   *models.User
	State  string
	IsVIP  bool
	Name   string
	bucket string

	// pending tokens the deferred online→active transition still waiting
	// for this friend, zero when none.
	pending uint64
}

// Lister is the slice of the REST surface the reconciliation drives.
// Responses land on the bus; the store applies them before the calls
// return.
type Lister interface {
	GetFriends(ctx context.Context, n, offset int, offline bool) (int, error)
	GetUser(ctx context.Context, userID string) error
}

// Config holds the state machine's tunables.
type Config struct {
	// DeferDelay is how long an online→active transition waits before
	// committing. Zero means 50 seconds.
	DeferDelay time.Duration

	// FlapWindow aborts a deferred transition when a came-online signal
	// landed this recently. Zero means 60 seconds.
	FlapWindow time.Duration

	// PageSize is the friend listing page size. Zero means 50.
	PageSize int

	Clock store.Clock
}

// Manager owns the friend contexts and buckets.
type Manager struct {
	cfg   Config
	bus   *bus.Bus
	store *store.Store
	api   Lister
	log   zerolog.Logger
	clock store.Clock

	mu         sync.Mutex
	friends    map[string]*Friend
	buckets    map[string][]*Friend
	sorted     map[string][]*Friend
	sortDirty  map[string]bool
	inflight   map[string]bool
	lastOnline map[string]time.Time
	nextToken  uint64
}

// New creates an empty Manager.
func New(cfg Config, st *store.Store, api Lister, b *bus.Bus, logger zerolog.Logger) *Manager {
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = 50 * time.Second
	}
	if cfg.FlapWindow <= 0 {
		cfg.FlapWindow = 60 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	clock := cfg.Clock
	if clock == nil {
		clock = store.RealClock()
	}
	m := &Manager{
		cfg:   cfg,
		bus:   b,
		store: st,
		api:   api,
		log:   logger.With().Str("component", "presence").Logger(),
		clock: clock,
	}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.friends = make(map[string]*Friend)
	m.buckets = map[string][]*Friend{
		BucketVIPOnline: nil,
		BucketOnline:    nil,
		BucketActive:    nil,
		BucketOffline:   nil,
	}
	m.sorted = make(map[string][]*Friend)
	m.sortDirty = make(map[string]bool)
	m.inflight = make(map[string]bool)
	m.lastOnline = make(map[string]time.Time)
}

// Reset drops every context, as on a fresh login.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Wire couples the manager to the bus traffic that drives it.
func (m *Manager) Wire() {
	m.bus.Subscribe(event.TopicLogin, func(...any) { m.Reset() })
	m.bus.Subscribe(event.TopicLogout, func(...any) { m.Reset() })

	m.bus.Subscribe(event.TopicFriendState, func(args ...any) {
		if state, ok := firstArg[event.FriendState](args); ok {
			m.SetState(state.UserID, state.State)
		}
	})
	m.bus.Subscribe(event.TopicFriendAdd, func(args ...any) {
		if ref, ok := firstArg[event.FriendRef](args); ok {
			m.AddFriend(ref.UserID)
		}
	})
	m.bus.Subscribe(event.TopicFriendDelete, func(args ...any) {
		if ref, ok := firstArg[event.FriendRef](args); ok {
			m.RemoveFriend(ref.UserID)
		}
	})

	// Display names feed the sorted views; a rename dirties them.
	m.bus.Subscribe(event.TopicUserUpdate, func(args ...any) {
		if update, ok := firstArg[*store.UserUpdate](args); ok {
			m.refreshName(update.User)
		}
	})

	// Friend favorites define the VIP split.
	retag := func(...any) { m.RetagVIP() }
	m.bus.Subscribe(event.TopicFavoriteAdd, retag)
	m.bus.Subscribe(event.TopicFavoriteDeleted, retag)
	m.bus.Subscribe(event.TopicFavoriteGroupClear, retag)
}

func firstArg[T any](args []any) (T, bool) {
	var zero T
	if len(args) == 0 {
		return zero, false
	}
	v, ok := args[0].(T)
	return v, ok
}

// AddFriend starts tracking a friend, fetching the user record when the
// store has none. A fetch already in flight for the id makes this a
// no-op.
func (m *Manager) AddFriend(userID string) {
	m.mu.Lock()
	if _, ok := m.friends[userID]; ok {
		m.mu.Unlock()
		return
	}
	if m.inflight[userID] {
		m.mu.Unlock()
		return
	}
	f := m.trackLocked(userID, StateOffline)
	needFetch := f.User == nil
	if needFetch {
		m.inflight[userID] = true
	}
	m.mu.Unlock()

	if !needFetch {
		return
	}
	go func() {
		err := m.api.GetUser(context.Background(), userID)

		m.mu.Lock()
		delete(m.inflight, userID)
		if f, ok := m.friends[userID]; ok {
			if user, found := m.store.GetUser(userID); found {
				f.User = user
				f.Name = user.DisplayName
				m.sortDirty[f.bucket] = true
			}
		}
		m.mu.Unlock()

		if err != nil {
			m.log.Warn().Err(err).Str("userId", userID).Msg("friend fetch failed")
		}
	}()
}

// RemoveFriend stops tracking a friend.
func (m *Manager) RemoveFriend(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.friends[userID]
	if !ok {
		return
	}
	m.removeFromBucketLocked(f)
	delete(m.friends, userID)
	delete(m.lastOnline, userID)
}

// SetState applies a realtime presence transition. Unknown friends are
// tracked on the spot.
func (m *Manager) SetState(userID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.friends[userID]
	if !ok {
		f = m.trackLocked(userID, StateOffline)
	}

	switch state {
	case StateOnline:
		m.lastOnline[userID] = m.clock.Now()
		f.pending = 0
		m.commitStateLocked(f, StateOnline)

	case StateActive:
		if f.State == StateOnline {
			m.deferActiveLocked(f)
			return
		}
		f.pending = 0
		m.commitStateLocked(f, StateActive)

	case StateOffline:
		f.pending = 0
		m.commitStateLocked(f, StateOffline)

	default:
		m.log.Warn().Str("userId", userID).Str("state", state).Msg("unknown presence state")
	}
}

// deferActiveLocked parks an online→active transition. When the wait
// elapses the transition commits unless a fresh came-online signal
// landed inside the flap window, or a later transition superseded it.
func (m *Manager) deferActiveLocked(f *Friend) {
	m.nextToken++
	token := m.nextToken
	f.pending = token
	userID := f.ID
	wait := m.clock.After(m.cfg.DeferDelay)

	go func() {
		<-wait

		m.mu.Lock()
		defer m.mu.Unlock()
		f, ok := m.friends[userID]
		if !ok || f.pending != token {
			return
		}
		f.pending = 0
		if came, ok := m.lastOnline[userID]; ok && m.clock.Now().Sub(came) < m.cfg.FlapWindow {
			return
		}
		m.commitStateLocked(f, StateActive)
	}()
}

// commitStateLocked moves a friend to the bucket its state maps to.
func (m *Manager) commitStateLocked(f *Friend, state string) {
	f.State = state
	f.IsVIP = m.store.IsFriendFavorite(f.ID)
	m.moveToBucketLocked(f, bucketFor(state, f.IsVIP))
}

func bucketFor(state string, vip bool) string {
	switch state {
	case StateOnline:
		if vip {
			return BucketVIPOnline
		}
		return BucketOnline
	case StateActive:
		return BucketActive
	default:
		return BucketOffline
	}
}

// trackLocked creates a context with the store's record if it has one.
func (m *Manager) trackLocked(userID, state string) *Friend {
	f := &Friend{ID: userID, State: state, IsVIP: m.store.IsFriendFavorite(userID)}
	if user, ok := m.store.GetUser(userID); ok {
		f.User = user
		f.Name = user.DisplayName
	}
	m.friends[userID] = f
	m.addToBucketLocked(f, bucketFor(state, f.IsVIP))
	return f
}

func (m *Manager) addToBucketLocked(f *Friend, bucket string) {
	f.bucket = bucket
	m.buckets[bucket] = append([]*Friend{f}, m.buckets[bucket]...)
	m.sortDirty[bucket] = true
	metrics.PresenceBucketSize.WithLabelValues(bucket).Set(float64(len(m.buckets[bucket])))
}

func (m *Manager) removeFromBucketLocked(f *Friend) {
	list := m.buckets[f.bucket]
	for i, other := range list {
		if other == f {
			m.buckets[f.bucket] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	m.sortDirty[f.bucket] = true
	metrics.PresenceBucketSize.WithLabelValues(f.bucket).Set(float64(len(m.buckets[f.bucket])))
	f.bucket = ""
}

func (m *Manager) moveToBucketLocked(f *Friend, bucket string) {
	if f.bucket == bucket {
		// Still re-front it: insertion order is most recently updated
		// first.
		m.removeFromBucketLocked(f)
	} else if f.bucket != "" {
		m.removeFromBucketLocked(f)
	}
	m.addToBucketLocked(f, bucket)
}

// RetagVIP recomputes the VIP flag for every friend and rehomes any
// online friend sitting in the wrong split.
func (m *Manager) RetagVIP() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.friends {
		vip := m.store.IsFriendFavorite(f.ID)
		if vip == f.IsVIP {
			continue
		}
		f.IsVIP = vip
		if f.State == StateOnline {
			m.moveToBucketLocked(f, bucketFor(StateOnline, vip))
		}
	}
}

// refreshName updates the sort key cache after a user merge.
func (m *Manager) refreshName(user *models.User) {
	if user == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.friends[user.ID]
	if !ok || f.Name == user.DisplayName {
		return
	}
	f.Name = user.DisplayName
	m.sortDirty[f.bucket] = true
}

// Friend returns the tracked context for an id.
func (m *Manager) Friend(userID string) (*Friend, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.friends[userID]
	return f, ok
}

// Bucket returns a bucket in insertion order, most recently updated
// first.
func (m *Manager) Bucket(name string) []*Friend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Friend, len(m.buckets[name]))
	copy(out, m.buckets[name])
	return out
}

// BucketByName returns a bucket sorted by display name. The sort is
// recomputed only when the bucket changed since the last call.
func (m *Manager) BucketByName(name string) []*Friend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sortDirty[name] || m.sorted[name] == nil {
		list := make([]*Friend, len(m.buckets[name]))
		copy(list, m.buckets[name])
		sort.SliceStable(list, func(i, j int) bool {
			return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
		})
		m.sorted[name] = list
		m.sortDirty[name] = false
	}
	out := make([]*Friend, len(m.sorted[name]))
	copy(out, m.sorted[name])
	return out
}

// Reconcile diffs the account's friend id lists against the tracked
// contexts, then pages the friend listing until every missing user
// record has been fetched. Runs at login and on a periodic timer.
func (m *Manager) Reconcile(ctx context.Context) error {
	cu := m.store.CurrentUser()
	if cu == nil {
		return ErrNotLoggedIn
	}

	desired := make(map[string]string, len(cu.Friends))
	for _, id := range cu.Friends {
		desired[id] = StateOffline
	}
	for _, id := range cu.OfflineFriends {
		desired[id] = StateOffline
	}
	for _, id := range cu.ActiveFriends {
		desired[id] = StateActive
	}
	for _, id := range cu.OnlineFriends {
		desired[id] = StateOnline
	}

	missing := make(map[string]bool)
	m.mu.Lock()
	for id, f := range m.friends {
		if _, keep := desired[id]; !keep {
			m.removeFromBucketLocked(f)
			delete(m.friends, id)
			delete(m.lastOnline, id)
		}
	}
	for id, state := range desired {
		f, ok := m.friends[id]
		if !ok {
			f = m.trackLocked(id, state)
		} else if f.State != state {
			f.pending = 0
			m.commitStateLocked(f, state)
		}
		if f.User == nil {
			missing[id] = true
		}
	}
	m.mu.Unlock()

	if err := m.fillMissing(ctx, missing); err != nil {
		return err
	}

	// Bind the freshly applied records.
	m.mu.Lock()
	for id, f := range m.friends {
		if f.User != nil {
			continue
		}
		if user, ok := m.store.GetUser(id); ok {
			f.User = user
			f.Name = user.DisplayName
			m.sortDirty[f.bucket] = true
		}
	}
	m.mu.Unlock()
	return nil
}

// fillMissing pages the friend listing, online half first, until the
// missing set drains or both halves are exhausted.
func (m *Manager) fillMissing(ctx context.Context, missing map[string]bool) error {
	drain := func() {
		for id := range missing {
			if _, ok := m.store.GetUser(id); ok {
				delete(missing, id)
			}
		}
	}
	drain()

	for _, offline := range []bool{false, true} {
		if len(missing) == 0 {
			return nil
		}
		for offset := 0; ; offset += m.cfg.PageSize {
			count, err := m.api.GetFriends(ctx, m.cfg.PageSize, offset, offline)
			if err != nil {
				return fmt.Errorf("presence: friend listing: %w", err)
			}
			drain()
			if count == 0 || count < m.cfg.PageSize || len(missing) == 0 {
				break
			}
		}
	}
	if len(missing) > 0 {
		m.log.Warn().Int("count", len(missing)).Msg("friend records still missing after listing")
	}
	return nil
}

// Counts reports the bucket sizes, for the status surfaces.
func (m *Manager) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.buckets))
	for name, list := range m.buckets {
		out[name] = len(list)
	}
	return out
}
