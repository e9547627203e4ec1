// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package store

import (
	json "github.com/goccy/go-json"

	"github.com/periscope-app/periscope/internal/event"
)

// Wire subscribes the store to the REST and pipeline response topics, so
// every payload published there lands in the entity maps. Decode failures
// are logged and the payload dropped; remote noise never crashes the
// mirror.
func (s *Store) Wire() {
	s.bus.Subscribe(event.TopicLogin, func(args ...any) {
		s.ClearOnLogin()
	})

	s.bus.Subscribe(event.TopicUserCurrent, func(args ...any) {
		if raw, ok := rawArg(args); ok {
			if _, err := s.ApplyCurrentUser(raw.JSON); err != nil {
				s.log.Error().Err(err).Msg("current user apply failed")
			}
		}
	})
	s.applyOn(event.TopicUser, func(data []byte) error {
		_, err := s.ApplyUser(data)
		return err
	})
	s.applyListOn(event.TopicUserList, func(data []byte) error {
		_, err := s.ApplyUser(data)
		return err
	})
	s.applyListOn(event.TopicFriendList, func(data []byte) error {
		_, err := s.ApplyUser(data)
		return err
	})

	s.applyOn(event.TopicWorld, func(data []byte) error {
		_, err := s.ApplyWorld(data)
		return err
	})
	s.applyListOn(event.TopicWorldList, func(data []byte) error {
		_, err := s.ApplyWorld(data)
		return err
	})
	s.applyListOn(event.TopicFavoriteWorldList, func(data []byte) error {
		// Unresolvable favorites come back as placeholder records.
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.ID == "???" {
			return err
		}
		_, err := s.ApplyWorld(data)
		return err
	})

	s.applyOn(event.TopicAvatar, func(data []byte) error {
		_, err := s.ApplyAvatar(data)
		return err
	})
	s.applyListOn(event.TopicAvatarList, func(data []byte) error {
		_, err := s.ApplyAvatar(data)
		return err
	})
	s.applyListOn(event.TopicFavoriteAvatarList, func(data []byte) error {
		// Hidden avatars page back as dummy records.
		var head struct {
			ReleaseStatus string `json:"releaseStatus"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.ReleaseStatus == "hidden" {
			return err
		}
		_, err := s.ApplyAvatar(data)
		return err
	})

	s.applyOn(event.TopicNotification, func(data []byte) error {
		_, err := s.ApplyNotification(data)
		return err
	})
	s.applyListOn(event.TopicNotificationList, func(data []byte) error {
		_, err := s.ApplyNotification(data)
		return err
	})
	s.bus.Subscribe(event.TopicNotificationAccept, func(args ...any) {
		if ref, ok := firstArg[event.NotificationRef](args); ok {
			s.AcceptNotification(ref.NotificationID)
		}
	})
	s.bus.Subscribe(event.TopicNotificationHide, func(args ...any) {
		if ref, ok := firstArg[event.NotificationRef](args); ok {
			s.DeleteNotification(ref.NotificationID)
		}
	})

	s.applyOn(event.TopicModeration, func(data []byte) error {
		_, err := s.ApplyPlayerModeration(data)
		return err
	})
	s.applyListOn(event.TopicModerationList, func(data []byte) error {
		_, err := s.ApplyPlayerModeration(data)
		return err
	})
	s.applyOn(event.TopicModerationSend, func(data []byte) error {
		_, err := s.ApplyPlayerModeration(data)
		return err
	})
	s.bus.Subscribe(event.TopicModerationDelete, func(args ...any) {
		if del, ok := firstArg[event.ModerationDelete](args); ok {
			s.DeletePlayerModeration(del.Type, del.TargetUserID)
		}
	})

	s.applyOn(event.TopicFavorite, func(data []byte) error {
		_, err := s.ApplyFavorite(data)
		return err
	})
	s.applyListOn(event.TopicFavoriteList, func(data []byte) error {
		_, err := s.ApplyFavorite(data)
		return err
	})
	s.applyOn(event.TopicFavoriteAdd, func(data []byte) error {
		_, err := s.ApplyFavorite(data)
		return err
	})
	s.bus.Subscribe(event.TopicFavoriteDelete, func(args ...any) {
		if del, ok := firstArg[event.FavoriteDelete](args); ok {
			s.DeleteFavorite(del.ObjectID)
		}
	})

	s.applyOn(event.TopicFavoriteGroup, func(data []byte) error {
		_, err := s.ApplyFavoriteGroup(data)
		return err
	})
	s.applyListOn(event.TopicFavoriteGroupList, func(data []byte) error {
		_, err := s.ApplyFavoriteGroup(data)
		return err
	})
	s.applyOn(event.TopicFavoriteGroupSave, func(data []byte) error {
		_, err := s.ApplyFavoriteGroup(data)
		return err
	})
	s.bus.Subscribe(event.TopicFavoriteGroupClear, func(args ...any) {
		if clear, ok := firstArg[event.FavoriteGroupClear](args); ok {
			s.ClearFavoriteGroup(clear.Type, clear.Name)
		}
	})
}

// applyOn subscribes an apply function to a single-record topic.
func (s *Store) applyOn(topic string, apply func(data []byte) error) {
	s.bus.Subscribe(topic, func(args ...any) {
		raw, ok := rawArg(args)
		if !ok {
			return
		}
		if err := apply(raw.JSON); err != nil {
			s.log.Error().Err(err).Str("topic", topic).Msg("apply failed")
		}
	})
}

// applyListOn subscribes an apply function to a page topic, fanning the
// page out record by record.
func (s *Store) applyListOn(topic string, apply func(data []byte) error) {
	s.bus.Subscribe(topic, func(args ...any) {
		list, ok := firstArg[event.List](args)
		if !ok {
			return
		}
		for _, item := range list.Items {
			if err := apply(item); err != nil {
				s.log.Error().Err(err).Str("topic", topic).Msg("apply failed")
			}
		}
	})
}

func rawArg(args []any) (event.Raw, bool) {
	return firstArg[event.Raw](args)
}

func firstArg[T any](args []any) (T, bool) {
	var zero T
	if len(args) == 0 {
		return zero, false
	}
	v, ok := args[0].(T)
	return v, ok
}
