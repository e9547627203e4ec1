// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package event defines the bus topics and payload types exchanged between
// the REST client, the pipeline decoder, the entity store, and the derived
// views. Topic names follow the remote API's vocabulary; payloads are small
// typed structs so subscribers never re-parse what the publisher already
// decoded.
package event

import (
	"time"

	"github.com/goccy/go-json"
)

// Session lifecycle topics.
const (
	TopicLogin  = "LOGIN"  // first successful current-user apply
	TopicLogout = "LOGOUT" // explicit logout
	TopicAuth   = "AUTH"   // websocket token fetched
)

// Entity topics. The bare topic carries one record payload; the :LIST variant
// carries a page of raw records that fans out into bare-topic publishes.
const (
	TopicUser        = "USER"
	TopicUserCurrent = "USER:CURRENT"
	TopicUserUpdate  = "USER:UPDATE"
	TopicUserList    = "USER:LIST"
	TopicUserTwoFA   = "USER:2FA"

	TopicFriendList   = "FRIEND:LIST"
	TopicFriendAdd    = "FRIEND:ADD"
	TopicFriendDelete = "FRIEND:DELETE"
	TopicFriendState  = "FRIEND:STATE"

	TopicWorld     = "WORLD"
	TopicWorldList = "WORLD:LIST"

	TopicAvatar     = "AVATAR"
	TopicAvatarList = "AVATAR:LIST"

	TopicNotification        = "NOTIFICATION"
	TopicNotificationList    = "NOTIFICATION:LIST"
	TopicNotificationSee     = "NOTIFICATION:SEE"
	TopicNotificationAccept  = "NOTIFICATION:ACCEPT"
	TopicNotificationHide    = "NOTIFICATION:HIDE"
	TopicNotificationDeleted = "NOTIFICATION:@DELETE"
	TopicNotificationRefresh = "NOTIFICATION:REFRESH"

	TopicModeration        = "PLAYER-MODERATION"
	TopicModerationList    = "PLAYER-MODERATION:LIST"
	TopicModerationSend    = "PLAYER-MODERATION:SEND"
	TopicModerationDelete  = "PLAYER-MODERATION:DELETE"
	TopicModerationDeleted = "PLAYER-MODERATION:@DELETE"

	TopicFavorite             = "FAVORITE"
	TopicFavoriteList         = "FAVORITE:LIST"
	TopicFavoriteAdd          = "FAVORITE:ADD"
	TopicFavoriteDelete       = "FAVORITE:DELETE"
	TopicFavoriteDeleted      = "FAVORITE:@DELETE"
	TopicFavoriteGroup        = "FAVORITE:GROUP"
	TopicFavoriteGroupList    = "FAVORITE:GROUP:LIST"
	TopicFavoriteGroupSave    = "FAVORITE:GROUP:SAVE"
	TopicFavoriteGroupClear   = "FAVORITE:GROUP:CLEAR"
	TopicFavoriteGroupDeleted = "FAVORITE:GROUP:@DELETE"
	TopicFavoriteWorldList    = "FAVORITE:WORLD:LIST"
	TopicFavoriteAvatarList   = "FAVORITE:AVATAR:LIST"
)

// Raw is one undecoded record as returned by the remote API or the pipeline.
type Raw struct {
	// ID is the record id extracted by the publisher, empty when unknown.
	ID string

	// JSON is the record body; the store is the only component that decodes
	// it into an entity record.
	JSON json.RawMessage
}

// List is a page of raw records, in server-returned order.
type List struct {
	Items []json.RawMessage
}

// FriendState carries a presence transition from the pipeline or the
// bulk reconciliation.
type FriendState struct {
	UserID string
	State  string // online | active | offline
}

// FriendRef names a friend by id (friend-add / friend-delete flows).
type FriendRef struct {
	UserID string
}

// NotificationRef names a notification by id.
type NotificationRef struct {
	NotificationID string
}

// ModerationDelete identifies a moderation by its logical key, the way the
// remote delete endpoint addresses it.
type ModerationDelete struct {
	Type         string
	TargetUserID string
}

// FavoriteDelete identifies a favorite by the favorited object's id.
type FavoriteDelete struct {
	ObjectID string
}

// FavoriteGroupClear identifies a whole group of favorites by (type, name).
type FavoriteGroupClear struct {
	Type string
	Name string
}

// FieldChange records one scalar field transition detected during a merge.
type FieldChange struct {
	New any
	Old any

	// Elapsed is only set for location changes: the time spent at the
	// previous location.
	Elapsed time.Duration
}

// AuthToken is the pipeline bearer token from the auth endpoint.
type AuthToken struct {
	Token string
}

// PipelineMessage is a decoded real-time envelope: Content has already been
// through the inner JSON-string decode.
type PipelineMessage struct {
	Type    string
	Content json.RawMessage
}
