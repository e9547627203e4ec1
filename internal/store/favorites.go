// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package store

import (
	"github.com/periscope-app/periscope/internal/event"
	"github.com/periscope-app/periscope/internal/favorites"
	"github.com/periscope-app/periscope/internal/metrics"
	"github.com/periscope-app/periscope/internal/models"
)

// ApplyFavorite creates or merges a favorite record and binds it to its
// group slot when one matches and the record is not already bound.
func (s *Store) ApplyFavorite(data []byte) (*models.Favorite, error) {
	id, err := idOf(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, exists := s.favorites[id]
	if !exists {
		ref = &models.Favorite{}
		s.favorites[id] = ref
	}
	if err := unmarshal(data, ref); err != nil {
		if !exists {
			delete(s.favorites, id)
		}
		return nil, err
	}
	if !exists {
		s.favoritesByObject[ref.ObjectID] = ref
	} else {
		ref.IsExpired = false
	}
	ref.DeriveGroupKey()
	if !ref.IsDeleted && ref.Group == nil {
		if slot, ok := s.slotsByKey[ref.GroupKey]; ok {
			ref.Group = slot
			slot.Count++
		}
	}
	return ref, nil
}

// GetFavoriteByObject returns the favorite bound to the given object id.
func (s *Store) GetFavoriteByObject(objectID string) (*models.Favorite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.favoritesByObject[objectID]
	return ref, ok
}

// IsFriendFavorite reports whether the given user is a live friend
// favorite.
func (s *Store) IsFriendFavorite(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.favoritesByObject[userID]
	return ok && !ref.IsDeleted && ref.Type == models.FavoriteTypeFriend
}

// Favorites returns every favorite record, deleted ones included.
func (s *Store) Favorites() []*models.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Favorite, 0, len(s.favorites))
	for _, ref := range s.favorites {
		out = append(out, ref)
	}
	return out
}

// MarkFavoritesExpired flags every favorite ahead of a refresh.
func (s *Store) MarkFavoritesExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.favorites {
		ref.IsExpired = true
	}
}

// SweepFavorites soft-deletes favorites the refresh did not see.
func (s *Store) SweepFavorites() {
	s.mu.Lock()
	var swept []*models.Favorite
	for _, ref := range s.favorites {
		if !ref.IsDeleted && ref.IsExpired {
			s.dropFavoriteLocked(ref)
			swept = append(swept, ref)
		}
	}
	s.mu.Unlock()
	if len(swept) > 0 {
		metrics.ReconcileSweptTotal.WithLabelValues("favorites").Add(float64(len(swept)))
	}
	for _, ref := range swept {
		s.bus.Publish(event.TopicFavoriteDeleted, ref)
	}
}

// DeleteFavorite soft-deletes a favorite by the id of the object it
// points at.
func (s *Store) DeleteFavorite(objectID string) {
	s.mu.Lock()
	ref, ok := s.favoritesByObject[objectID]
	if ok {
		delete(s.favoritesByObject, objectID)
	}
	if !ok || ref.IsDeleted {
		s.mu.Unlock()
		return
	}
	s.dropFavoriteLocked(ref)
	s.mu.Unlock()
	s.bus.Publish(event.TopicFavoriteDeleted, ref)
}

// dropFavoriteLocked marks a favorite deleted and releases its slot
// occupancy. Callers hold the lock.
func (s *Store) dropFavoriteLocked(ref *models.Favorite) {
	ref.IsDeleted = true
	if ref.Group != nil {
		ref.Group.Count--
	}
}

// ClearFavoriteGroup soft-deletes every live favorite bound to the given
// group.
func (s *Store) ClearFavoriteGroup(favType, groupName string) {
	key := favType + ":" + groupName
	s.mu.Lock()
	var swept []*models.Favorite
	for _, ref := range s.favorites {
		if ref.IsDeleted || ref.GroupKey != key {
			continue
		}
		delete(s.favoritesByObject, ref.ObjectID)
		s.dropFavoriteLocked(ref)
		swept = append(swept, ref)
	}
	s.mu.Unlock()
	for _, ref := range swept {
		s.bus.Publish(event.TopicFavoriteDeleted, ref)
	}
}

// ApplyFavoriteGroup creates or merges a remote favorite-group record.
// When the record is already matched to a slot, the slot picks up the
// new display name and visibility.
func (s *Store) ApplyFavoriteGroup(data []byte) (*models.FavoriteGroup, error) {
	id, err := idOf(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, exists := s.favoriteGroups[id]
	if !exists {
		ref = &models.FavoriteGroup{}
		s.favoriteGroups[id] = ref
	}
	if err := unmarshal(data, ref); err != nil {
		if !exists {
			delete(s.favoriteGroups, id)
		}
		return nil, err
	}
	if !exists {
		s.groupOrder = append(s.groupOrder, ref.ID)
	} else {
		ref.IsExpired = false
	}
	if !ref.IsDeleted && ref.Slot != nil {
		ref.Slot.DisplayName = ref.DisplayName
		ref.Slot.Visibility = ref.Visibility
	}
	return ref, nil
}

// MarkFavoriteGroupsExpired flags every remote group ahead of a refresh.
func (s *Store) MarkFavoriteGroupsExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.favoriteGroups {
		ref.IsExpired = true
	}
}

// SweepFavoriteGroups soft-deletes remote groups the refresh did not see
// and drops them from the server ordering.
func (s *Store) SweepFavoriteGroups() {
	s.mu.Lock()
	var swept []*models.FavoriteGroup
	for _, ref := range s.favoriteGroups {
		if !ref.IsDeleted && ref.IsExpired {
			ref.IsDeleted = true
			swept = append(swept, ref)
		}
	}
	if len(swept) > 0 {
		order := s.groupOrder[:0]
		for _, id := range s.groupOrder {
			if ref, ok := s.favoriteGroups[id]; ok && !ref.IsDeleted {
				order = append(order, id)
			}
		}
		s.groupOrder = order
	}
	s.mu.Unlock()
	if len(swept) > 0 {
		metrics.ReconcileSweptTotal.WithLabelValues("favorite-groups").Add(float64(len(swept)))
	}
	for _, ref := range swept {
		s.bus.Publish(event.TopicFavoriteGroupDeleted, ref)
	}
}

// FavoriteGroupsOrdered returns the live remote groups in the order the
// server first returned them.
func (s *Store) FavoriteGroupsOrdered() []*models.FavoriteGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favoriteGroupsOrderedLocked()
}

func (s *Store) favoriteGroupsOrderedLocked() []*models.FavoriteGroup {
	out := make([]*models.FavoriteGroup, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		if ref, ok := s.favoriteGroups[id]; ok {
			out = append(out, ref)
		}
	}
	return out
}

// FavoriteGroupSlots returns the current slot layout.
func (s *Store) FavoriteGroupSlots() []*models.FavoriteGroupSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots
}

// RebuildFavoriteGroups recomputes the slot layout from the remote
// groups in server order and re-binds every favorite.
func (s *Store) RebuildFavoriteGroups() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = favorites.Assign(s.favoriteGroupsOrderedLocked())
	favs := make([]*models.Favorite, 0, len(s.favorites))
	for _, ref := range s.favorites {
		favs = append(favs, ref)
	}
	s.slotsByKey = favorites.Rebind(s.slots, favs)
}

// DistinctAvatarFavoriteTags returns the first tag of every live avatar
// favorite, deduplicated in first-seen order.
func (s *Store) DistinctAvatarFavoriteTags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tags []string
	seen := make(map[string]bool)
	for _, ref := range s.favorites {
		if ref.IsDeleted || ref.Type != models.FavoriteTypeAvatar || len(ref.Tags) == 0 {
			continue
		}
		if !seen[ref.Tags[0]] {
			seen[ref.Tags[0]] = true
			tags = append(tags, ref.Tags[0])
		}
	}
	return tags
}

// CountLiveFavorites returns the number of live favorites of a type.
func (s *Store) CountLiveFavorites(favType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ref := range s.favorites {
		if !ref.IsDeleted && ref.Type == favType {
			n++
		}
	}
	return n
}
