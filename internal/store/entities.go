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

// ApplyWorld creates or merges a world record.
func (s *Store) ApplyWorld(data []byte) (*models.World, error) {
	id, err := idOf(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, exists := s.worlds[id]
	if !exists {
		ref = &models.World{}
		s.worlds[id] = ref
	}
	if err := unmarshal(data, ref); err != nil {
		if !exists {
			delete(s.worlds, id)
		}
		return nil, err
	}
	ref.Tags = normalizeTags(ref.Tags)
	ref.Derive()
	return ref, nil
}

// GetWorld returns a world record by id.
func (s *Store) GetWorld(id string) (*models.World, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.worlds[id]
	return ref, ok
}

// ApplyAvatar creates or merges an avatar record.
func (s *Store) ApplyAvatar(data []byte) (*models.Avatar, error) {
	id, err := idOf(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, exists := s.avatars[id]
	if !exists {
		ref = &models.Avatar{}
		s.avatars[id] = ref
	}
	if err := unmarshal(data, ref); err != nil {
		if !exists {
			delete(s.avatars, id)
		}
		return nil, err
	}
	ref.Tags = normalizeTags(ref.Tags)
	return ref, nil
}

// GetAvatar returns an avatar record by id.
func (s *Store) GetAvatar(id string) (*models.Avatar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.avatars[id]
	return ref, ok
}

// ApplyNotification creates or merges a notification record. A merge
// clears the expired mark so the sweep keeps the record.
func (s *Store) ApplyNotification(data []byte) (*models.Notification, error) {
	id, err := idOf(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, exists := s.notifications[id]
	if !exists {
		ref = &models.Notification{}
		s.notifications[id] = ref
	}
	if err := unmarshal(data, ref); err != nil {
		if !exists {
			delete(s.notifications, id)
		}
		return nil, err
	}
	ref.IsExpired = false
	return ref, nil
}

// GetNotification returns a notification record by id.
func (s *Store) GetNotification(id string) (*models.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.notifications[id]
	return ref, ok
}

// MarkNotificationsExpired flags every notification ahead of a refresh.
func (s *Store) MarkNotificationsExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.notifications {
		ref.IsExpired = true
	}
}

// SweepNotifications soft-deletes notifications the refresh did not see
// and publishes a deletion event for each.
func (s *Store) SweepNotifications() {
	s.mu.Lock()
	var swept []*models.Notification
	for _, ref := range s.notifications {
		if !ref.IsDeleted && ref.IsExpired {
			ref.IsDeleted = true
			swept = append(swept, ref)
		}
	}
	s.mu.Unlock()
	if len(swept) > 0 {
		metrics.ReconcileSweptTotal.WithLabelValues("notifications").Add(float64(len(swept)))
	}
	for _, ref := range swept {
		s.bus.Publish(event.TopicNotificationDeleted, ref)
	}
}

// AcceptNotification soft-deletes an accepted friend-request
// notification and announces the sender as a new friend.
func (s *Store) AcceptNotification(id string) {
	s.mu.Lock()
	ref, ok := s.notifications[id]
	if !ok || ref.IsDeleted {
		s.mu.Unlock()
		return
	}
	ref.IsDeleted = true
	sender := ref.SenderUserID
	s.mu.Unlock()
	s.bus.Publish(event.TopicNotificationDeleted, ref)
	s.bus.Publish(event.TopicFriendAdd, event.FriendRef{UserID: sender})
}

// DeleteNotification soft-deletes a notification by id and publishes the
// deletion event. Used by the hide flow.
func (s *Store) DeleteNotification(id string) {
	s.mu.Lock()
	ref, ok := s.notifications[id]
	if ok && !ref.IsDeleted {
		ref.IsDeleted = true
	} else {
		ref = nil
	}
	s.mu.Unlock()
	if ref != nil {
		s.bus.Publish(event.TopicNotificationDeleted, ref)
	}
}

// ApplyPlayerModeration creates or merges a moderation record.
func (s *Store) ApplyPlayerModeration(data []byte) (*models.PlayerModeration, error) {
	id, err := idOf(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, exists := s.moderations[id]
	if !exists {
		ref = &models.PlayerModeration{}
		s.moderations[id] = ref
	}
	if err := unmarshal(data, ref); err != nil {
		if !exists {
			delete(s.moderations, id)
		}
		return nil, err
	}
	ref.IsExpired = false
	return ref, nil
}

// MarkPlayerModerationsExpired flags every moderation ahead of a refresh.
func (s *Store) MarkPlayerModerationsExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.moderations {
		ref.IsExpired = true
	}
}

// SweepPlayerModerations soft-deletes moderations the refresh did not
// see.
func (s *Store) SweepPlayerModerations() {
	s.mu.Lock()
	var swept []*models.PlayerModeration
	for _, ref := range s.moderations {
		if !ref.IsDeleted && ref.IsExpired {
			ref.IsDeleted = true
			swept = append(swept, ref)
		}
	}
	s.mu.Unlock()
	if len(swept) > 0 {
		metrics.ReconcileSweptTotal.WithLabelValues("player-moderations").Add(float64(len(swept)))
	}
	for _, ref := range swept {
		s.bus.Publish(event.TopicModerationDeleted, ref)
	}
}

// DeletePlayerModeration soft-deletes every live moderation matching the
// given type and target user.
func (s *Store) DeletePlayerModeration(modType, targetUserID string) {
	s.mu.Lock()
	var swept []*models.PlayerModeration
	for _, ref := range s.moderations {
		if !ref.IsDeleted && ref.Type == modType && ref.TargetUserID == targetUserID {
			ref.IsDeleted = true
			swept = append(swept, ref)
		}
	}
	s.mu.Unlock()
	for _, ref := range swept {
		s.bus.Publish(event.TopicModerationDeleted, ref)
	}
}

// PlayerModerations returns the live moderation records.
func (s *Store) PlayerModerations() []*models.PlayerModeration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PlayerModeration, 0, len(s.moderations))
	for _, ref := range s.moderations {
		if !ref.IsDeleted {
			out = append(out, ref)
		}
	}
	return out
}
