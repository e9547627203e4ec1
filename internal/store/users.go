// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package store

import (
	"github.com/periscope-app/periscope/internal/event"
	"github.com/periscope-app/periscope/internal/metrics"
	"github.com/periscope-app/periscope/internal/models"
)

const statusDescriptionLimit = 32

// ApplyCurrentUser merges a current-user payload. The first apply after a
// logout creates the account record and publishes the login event.
func (s *Store) ApplyCurrentUser(data []byte) (*models.CurrentUser, error) {
	s.mu.Lock()
	ref := s.currentUser
	firstLogin := !s.loggedIn
	if firstLogin {
		ref = &models.CurrentUser{}
		s.currentUser = ref
	}
	if err := unmarshal(data, ref); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ref.Tags = normalizeTags(ref.Tags)
	ref.Derive()
	if firstLogin {
		s.loggedIn = true
	}
	s.mu.Unlock()

	if firstLogin {
		s.bus.Publish(event.TopicLogin, ref)
	}
	return ref, nil
}

// CurrentUser returns the account record.
func (s *Store) CurrentUser() *models.CurrentUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUser
}

// ApplyUser creates or merges a user record. A merge that changes any
// scalar field queues a coalesced user-update event, except when both the
// old and new status are offline. A location change carries the time
// spent at the previous location.
func (s *Store) ApplyUser(data []byte) (*models.User, error) {
	id, err := idOf(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ref, exists := s.users[id]
	if !exists {
		ref = models.NewUser(s.clock.Now())
		if err := unmarshal(data, ref); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.overlayCurrentUser(ref)
		ref.Tags = normalizeTags(ref.Tags)
		ref.Derive()
		s.users[id] = ref
		count := len(s.users)
		s.mu.Unlock()
		metrics.StoreAppliesTotal.WithLabelValues("user", "created").Inc()
		metrics.StoreRecords.WithLabelValues("user").Set(float64(count))
		return ref, nil
	}

	before := ref.Scalars()
	if err := unmarshal(data, ref); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.overlayCurrentUser(ref)
	if desc := []rune(ref.StatusDescription); len(desc) > statusDescriptionLimit {
		ref.StatusDescription = string(desc[:statusDescriptionLimit])
	}
	ref.Tags = normalizeTags(ref.Tags)
	ref.Derive()
	after := ref.Scalars()

	changes := make(map[string]event.FieldChange)
	for field, now := range after {
		if prev := before[field]; prev != now {
			changes[field] = event.FieldChange{New: now, Old: prev}
		}
	}

	if len(changes) > 0 && ref.Status != "offline" && before["status"] != "offline" {
		if change, ok := changes["location"]; ok {
			now := s.clock.Now()
			change.Elapsed = now.Sub(ref.LocationAt)
			changes["location"] = change
			ref.LocationAt = now
		}
		s.queueUserUpdate(&UserUpdate{User: ref, Changes: changes})
	}
	s.mu.Unlock()
	metrics.StoreAppliesTotal.WithLabelValues("user", "merged").Inc()
	return ref, nil
}

// overlayCurrentUser copies the account's own presence fields onto its
// plain user record, which the remote side leaves blank. Callers hold the
// lock.
func (s *Store) overlayCurrentUser(ref *models.User) {
	if !s.loggedIn || ref.ID != s.currentUser.ID {
		return
	}
	ref.Status = s.currentUser.Status
	ref.StatusDescription = s.currentUser.StatusDescription
	ref.State = s.currentUser.State
	ref.LastLogin = s.currentUser.LastLogin
	ref.OnlineFor = s.currentUser.OnlineFor
	ref.OfflineFor = s.currentUser.OfflineFor
}

// GetUser returns a user record by id.
func (s *Store) GetUser(id string) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.users[id]
	return ref, ok
}

// queueUserUpdate appends to the coalescing queue and arms the flush
// timer when idle. Changes to the same record within one window merge
// into a single event. Callers hold the lock.
func (s *Store) queueUserUpdate(update *UserUpdate) {
	for _, queued := range s.updateQueue {
		if queued.User == update.User {
			for field, change := range update.Changes {
				if prior, ok := queued.Changes[field]; ok {
					change.Old = prior.Old
				}
				queued.Changes[field] = change
			}
			return
		}
	}
	s.updateQueue = append(s.updateQueue, update)
	if s.updatePending {
		return
	}
	s.updatePending = true
	after := s.clock.After(s.debounceDelay)
	go func() {
		<-after
		s.flushUserUpdates()
	}()
}

func (s *Store) flushUserUpdates() {
	s.mu.Lock()
	queue := s.updateQueue
	s.updateQueue = nil
	s.updatePending = false
	s.mu.Unlock()
	for _, update := range queue {
		s.bus.Publish(event.TopicUserUpdate, update)
	}
}
