// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package favorites maps the account's remote favorite groups onto the
// fixed local slot layout and binds favorites into those slots.
package favorites

import "github.com/periscope-app/periscope/internal/models"

// Assign builds a fresh slot layout and matches the given remote groups
// onto it. The groups must be in the order the server returned them; the
// result depends on it.
//
// Two passes: first every group whose name equals an unassigned slot's
// template name claims that slot; then each remaining group claims the
// first unassigned slot of its type, which takes over the group's name
// and key. Avatar slot display names are fixed and never overwritten.
func Assign(groups []*models.FavoriteGroup) []*models.FavoriteGroupSlot {
	slots := models.NewFavoriteGroupSlots()

	byType := make(map[string][]*models.FavoriteGroupSlot, 3)
	for _, slot := range slots {
		byType[slot.Type] = append(byType[slot.Type], slot)
	}

	assigned := make(map[string]bool, len(groups))

	for _, group := range groups {
		if group.IsDeleted {
			continue
		}
		group.Slot = nil
		for _, slot := range byType[group.Type] {
			if slot.Assigned || slot.Name != group.Name {
				continue
			}
			slot.Assigned = true
			if group.Type != models.FavoriteTypeAvatar {
				slot.DisplayName = group.DisplayName
			}
			slot.Visibility = group.Visibility
			group.Slot = slot
			assigned[group.ID] = true
			break
		}
	}

	for _, group := range groups {
		if group.IsDeleted || assigned[group.ID] {
			continue
		}
		for _, slot := range byType[group.Type] {
			if slot.Assigned {
				continue
			}
			slot.Assigned = true
			slot.Name = group.Name
			slot.Key = group.Type + ":" + group.Name
			if group.Type != models.FavoriteTypeAvatar {
				slot.DisplayName = group.DisplayName
			}
			group.Slot = slot
			assigned[group.ID] = true
			break
		}
	}

	return slots
}

// Rebind resets every favorite's slot binding and re-binds the live ones
// through their group key, recounting slot occupancy from zero.
func Rebind(slots []*models.FavoriteGroupSlot, favs []*models.Favorite) map[string]*models.FavoriteGroupSlot {
	byKey := make(map[string]*models.FavoriteGroupSlot, len(slots))
	for _, slot := range slots {
		byKey[slot.Key] = slot
	}

	for _, fav := range favs {
		fav.Group = nil
		if fav.IsDeleted {
			continue
		}
		slot, ok := byKey[fav.GroupKey]
		if !ok {
			continue
		}
		fav.Group = slot
		slot.Count++
	}

	return byKey
}
