// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package location parses the network's location strings. A location is
// either a reserved word ("offline", "private", "inbetween"), a bare world
// id, or "worldId:instanceId" where the instance id carries tilde-separated
// access tags such as "private(usr_x)~canRequestInvite".
package location

import (
	"strings"

	"github.com/periscope-app/periscope/internal/cache"
)

// Reserved location values.
const (
	Offline   = "offline"
	InBetween = "inbetween"
	Private   = "private"
)

// Instance access types, derived from instance tags.
const (
	AccessPublic          = "public"
	AccessFriendsOfGuests = "friends+"
	AccessFriendsOnly     = "friends"
	AccessInviteOnly      = "invite"
	AccessInvitePlus      = "invite+"
)

// Info is the parsed form of a location string.
type Info struct {
	Location   string
	IsOffline  bool
	IsPrivate  bool
	WorldID    string
	InstanceID string
	Name       string
	AccessType string
	OwnerID    string
}

// IsRealInstance reports whether the info points at a joinable world
// instance rather than a reserved or world-only location.
func (i Info) IsRealInstance() bool {
	return i.WorldID != "" && i.InstanceID != ""
}

// Parse decodes a location string.
//
// Empty strings, "offline" and "inbetween" collapse to the offline
// location. "private" yields a private location with no world. A value
// without a colon is a bare world id. Otherwise the text before the first
// colon is the world id and the remainder is the instance id, whose
// tilde-separated tags determine the access type and instance owner.
func Parse(loc string) Info {
	if loc == "" || loc == Offline || loc == InBetween {
		return Info{Location: Offline, IsOffline: true}
	}

	info := Info{Location: loc}

	if loc == Private {
		info.IsPrivate = true
		return info
	}

	pos := strings.IndexByte(loc, ':')
	if pos < 0 {
		info.WorldID = loc
		return info
	}

	info.WorldID = loc[:pos]
	info.InstanceID = loc[pos+1:]

	tags := strings.Split(info.InstanceID, "~")
	info.Name = tags[0]

	var (
		canRequestInvite bool
		privateID        string
		friendsID        string
		hiddenID         string
		hasPrivate       bool
		hasFriends       bool
		hasHidden        bool
	)

	for _, tag := range tags[1:] {
		name := tag
		data := ""
		if start := strings.IndexByte(tag, '('); start >= 0 {
			if end := strings.LastIndexByte(tag, ')'); end > start {
				data = tag[start+1 : end]
				name = tag[:start]
			}
		}
		switch name {
		case "canRequestInvite":
			canRequestInvite = true
		case "private":
			privateID = data
			hasPrivate = true
		case "friends":
			friendsID = data
			hasFriends = true
		case "hidden":
			hiddenID = data
			hasHidden = true
		}
	}

	switch {
	case hasPrivate:
		if canRequestInvite {
			info.AccessType = AccessInvitePlus
		} else {
			info.AccessType = AccessInviteOnly
		}
		info.OwnerID = privateID
	case hasFriends:
		info.AccessType = AccessFriendsOnly
		info.OwnerID = friendsID
	case hasHidden:
		info.AccessType = AccessFriendsOfGuests
		info.OwnerID = hiddenID
	default:
		info.AccessType = AccessPublic
	}

	return info
}

// parseCache memoizes parse results. Location strings repeat heavily
// across presence updates, so this avoids re-splitting the same value.
var parseCache = cache.NewLRU[Info](4096)

// ParseCached is Parse with memoization. Safe for concurrent use.
func ParseCached(loc string) Info {
	if info, ok := parseCache.Get(loc); ok {
		return info
	}
	info := Parse(loc)
	parseCache.Add(loc, info)
	return info
}
