// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package models defines the mirrored entity records and the derivation
// rules that turn raw remote JSON into annotated local state.
package models

import (
	"time"

	"github.com/periscope-app/periscope/internal/location"
)

// User is a mirrored user record. Exported fields with json tags come
// straight from the remote payloads and merge field-wise: a partial
// payload unmarshalled over an existing record only touches the fields it
// carries. The untagged derived fields are recomputed after every merge.
type User struct {
	ID                             string   `json:"id"`
	Username                       string   `json:"username"`
	DisplayName                    string   `json:"displayName"`
	UserIcon                       string   `json:"userIcon"`
	Bio                            string   `json:"bio"`
	BioLinks                       []string `json:"bioLinks"`
	CurrentAvatarImageURL          string   `json:"currentAvatarImageUrl"`
	CurrentAvatarThumbnailImageURL string   `json:"currentAvatarThumbnailImageUrl"`
	Status                         string   `json:"status"`
	StatusDescription              string   `json:"statusDescription"`
	State                          string   `json:"state"`
	Tags                           []string `json:"tags"`
	DeveloperType                  string   `json:"developerType"`
	LastLogin                      string   `json:"last_login"`
	LastPlatform                   string   `json:"last_platform"`
	DateJoined                     string   `json:"date_joined"`
	AllowAvatarCopying             bool     `json:"allowAvatarCopying"`
	IsFriend                       bool     `json:"isFriend"`
	Location                       string   `json:"location"`
	WorldID                        string   `json:"worldId"`
	InstanceID                     string   `json:"instanceId"`

	// Derived, never unmarshalled.
	LocationInfo location.Info `json:"-"`
	LocationAt   time.Time     `json:"-"`
	OnlineFor    time.Time     `json:"-"`
	OfflineFor   time.Time     `json:"-"`
	IsSupporter  bool          `json:"-"`
	IsModerator  bool          `json:"-"`
	IsTroll      bool          `json:"-"`
	TrustLevel   string        `json:"-"`
	TrustClass   string        `json:"-"`
	Languages    []Language    `json:"-"`
}

// NewUser returns a user record with the derived defaults of a record
// that has never been seen.
func NewUser(now time.Time) *User {
	return &User{
		LocationInfo: location.Parse("offline"),
		LocationAt:   now,
		OnlineFor:    now,
		TrustLevel:   "Visitor",
		TrustClass:   "x-tag-untrusted",
	}
}

// Derive recomputes the annotated fields from the merged remote fields.
// The location parse is skipped when the raw location has not changed.
func (u *User) Derive() {
	if u.Location != u.LocationInfo.Location {
		loc := u.Location
		if loc == "" {
			loc = "offline"
		}
		u.LocationInfo = location.ParseCached(loc)
	}
	u.IsSupporter = IsSupporter(u.Tags)
	trust := DeriveTrust(u.DeveloperType, u.Tags)
	u.IsModerator = trust.IsModerator
	u.IsTroll = trust.IsTroll
	u.TrustLevel = trust.Level
	u.TrustClass = trust.Class
	u.Languages = DeriveLanguages(u.Tags)
}

// Scalars snapshots every comparable field of the record, keyed by the
// remote field name. Two snapshots taken around a merge reveal which
// fields actually changed.
func (u *User) Scalars() map[string]any {
	return map[string]any{
		"id":                             u.ID,
		"username":                       u.Username,
		"displayName":                    u.DisplayName,
		"userIcon":                       u.UserIcon,
		"bio":                            u.Bio,
		"currentAvatarImageUrl":          u.CurrentAvatarImageURL,
		"currentAvatarThumbnailImageUrl": u.CurrentAvatarThumbnailImageURL,
		"status":                         u.Status,
		"statusDescription":              u.StatusDescription,
		"state":                          u.State,
		"developerType":                  u.DeveloperType,
		"last_login":                     u.LastLogin,
		"last_platform":                  u.LastPlatform,
		"date_joined":                    u.DateJoined,
		"allowAvatarCopying":             u.AllowAvatarCopying,
		"isFriend":                       u.IsFriend,
		"location":                       u.Location,
		"worldId":                        u.WorldID,
		"instanceId":                     u.InstanceID,
		"$isSupporter":                   u.IsSupporter,
		"$isModerator":                   u.IsModerator,
		"$isTroll":                       u.IsTroll,
		"$trustLevel":                    u.TrustLevel,
		"$trustClass":                    u.TrustClass,
	}
}

// CurrentUser is the authenticated account. It merges the same way as
// User but carries the account-only fields.
type CurrentUser struct {
	ID                             string   `json:"id"`
	Username                       string   `json:"username"`
	DisplayName                    string   `json:"displayName"`
	UserIcon                       string   `json:"userIcon"`
	Bio                            string   `json:"bio"`
	BioLinks                       []string `json:"bioLinks"`
	PastDisplayNames               []string `json:"pastDisplayNames"`
	Friends                        []string `json:"friends"`
	CurrentAvatarImageURL          string   `json:"currentAvatarImageUrl"`
	CurrentAvatarThumbnailImageURL string   `json:"currentAvatarThumbnailImageUrl"`
	CurrentAvatar                  string   `json:"currentAvatar"`
	HomeLocation                   string   `json:"homeLocation"`
	TwoFactorAuthEnabled           bool     `json:"twoFactorAuthEnabled"`
	Status                         string   `json:"status"`
	StatusDescription              string   `json:"statusDescription"`
	State                          string   `json:"state"`
	Tags                           []string `json:"tags"`
	DeveloperType                  string   `json:"developerType"`
	LastLogin                      string   `json:"last_login"`
	LastPlatform                   string   `json:"last_platform"`
	DateJoined                     string   `json:"date_joined"`
	AllowAvatarCopying             bool     `json:"allowAvatarCopying"`
	OnlineFriends                  []string `json:"onlineFriends"`
	ActiveFriends                  []string `json:"activeFriends"`
	OfflineFriends                 []string `json:"offlineFriends"`

	// Derived, never unmarshalled.
	HomeLocationInfo location.Info `json:"-"`
	OnlineFor        time.Time     `json:"-"`
	OfflineFor       time.Time     `json:"-"`
	IsSupporter      bool          `json:"-"`
	IsModerator      bool          `json:"-"`
	IsTroll          bool          `json:"-"`
	TrustLevel       string        `json:"-"`
	TrustClass       string        `json:"-"`
	Languages        []Language    `json:"-"`
}

// Derive recomputes the annotated fields after a merge.
func (u *CurrentUser) Derive() {
	if u.HomeLocation != u.HomeLocationInfo.Location {
		u.HomeLocationInfo = location.ParseCached(u.HomeLocation)
	}
	u.IsSupporter = IsSupporter(u.Tags)
	trust := DeriveTrust(u.DeveloperType, u.Tags)
	u.IsModerator = trust.IsModerator
	u.IsTroll = trust.IsTroll
	u.TrustLevel = trust.Level
	u.TrustClass = trust.Class
	u.Languages = DeriveLanguages(u.Tags)
}
