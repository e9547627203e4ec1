// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package models

// Favorite is a mirrored favorite record binding an object (friend,
// world or avatar) into one of the account's favorite group slots.
type Favorite struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	ObjectID string   `json:"favoriteId"`
	Tags     []string `json:"tags"`

	// Local bookkeeping, never unmarshalled.
	IsDeleted bool               `json:"-"`
	IsExpired bool               `json:"-"`
	GroupKey  string             `json:"-"`
	Group     *FavoriteGroupSlot `json:"-"`
}

// DeriveGroupKey computes the "type:firstTag" key that binds a favorite
// to its group slot.
func (f *Favorite) DeriveGroupKey() {
	tag := ""
	if len(f.Tags) > 0 {
		tag = f.Tags[0]
	}
	f.GroupKey = f.Type + ":" + tag
}

// FavoriteGroup is a mirrored remote favorite-group record. The local
// slot layout is fixed; these records only rename slots.
type FavoriteGroup struct {
	ID               string   `json:"id"`
	OwnerID          string   `json:"ownerId"`
	OwnerDisplayName string   `json:"ownerDisplayName"`
	Name             string   `json:"name"`
	DisplayName      string   `json:"displayName"`
	Type             string   `json:"type"`
	Visibility       string   `json:"visibility"`
	Tags             []string `json:"tags"`

	// Local bookkeeping, never unmarshalled.
	IsDeleted bool               `json:"-"`
	IsExpired bool               `json:"-"`
	Slot      *FavoriteGroupSlot `json:"-"`
}

// FavoriteGroupSlot is a local favorite-group slot. The network allots a
// fixed number of slots per favorite type; remote group records are
// matched onto these slots by name.
type FavoriteGroupSlot struct {
	Type        string
	Name        string
	DisplayName string
	Key         string
	Visibility  string
	Capacity    int
	Count       int
	Assigned    bool
}

// Favorite type names.
const (
	FavoriteTypeFriend = "friend"
	FavoriteTypeWorld  = "world"
	FavoriteTypeAvatar = "avatar"
)

// NewFavoriteGroupSlots builds the fixed slot layout: three friend
// groups of 64, four world groups of 64 and four avatar groups of 25.
// Avatar slot display names are fixed and never renamed by remote
// records.
func NewFavoriteGroupSlots() []*FavoriteGroupSlot {
	slots := make([]*FavoriteGroupSlot, 0, 11)
	for i := 0; i < 3; i++ {
		name := "group_" + string(rune('0'+i))
		slots = append(slots, &FavoriteGroupSlot{
			Type:        FavoriteTypeFriend,
			Name:        name,
			DisplayName: "Group " + string(rune('1'+i)),
			Key:         FavoriteTypeFriend + ":" + name,
			Visibility:  "private",
			Capacity:    64,
		})
	}
	for i := 0; i < 4; i++ {
		name := "worlds" + string(rune('1'+i))
		slots = append(slots, &FavoriteGroupSlot{
			Type:        FavoriteTypeWorld,
			Name:        name,
			DisplayName: "Group " + string(rune('1'+i)),
			Key:         FavoriteTypeWorld + ":" + name,
			Visibility:  "private",
			Capacity:    64,
		})
	}
	avatarDisplayNames := []string{
		"Favorite Avatars",
		"VRC+ Group 1",
		"VRC+ Group 2",
		"VRC+ Group 3",
	}
	for i := 0; i < 4; i++ {
		name := "avatars" + string(rune('1'+i))
		slots = append(slots, &FavoriteGroupSlot{
			Type:        FavoriteTypeAvatar,
			Name:        name,
			DisplayName: avatarDisplayNames[i],
			Key:         FavoriteTypeAvatar + ":" + name,
			Visibility:  "private",
			Capacity:    25,
		})
	}
	return slots
}
