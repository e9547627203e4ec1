// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package models

import json "github.com/goccy/go-json"

// Details is a notification's detail object. The remote side sometimes
// delivers it as a JSON object and sometimes as a JSON string containing
// an encoded object, so decoding peels one extra layer when needed.
type Details map[string]any

// UnmarshalJSON accepts either an object or a string-encoded object.
// Undecodable payloads collapse to an empty map rather than failing the
// surrounding record.
func (d *Details) UnmarshalJSON(data []byte) error {
	*d = Details{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" || s == "{}" {
			return nil
		}
		var inner map[string]any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			*d = inner
		}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*d = m
	return nil
}

// Notification is a mirrored notification record.
type Notification struct {
	ID             string  `json:"id"`
	SenderUserID   string  `json:"senderUserId"`
	SenderUsername string  `json:"senderUsername"`
	Type           string  `json:"type"`
	Message        string  `json:"message"`
	Details        Details `json:"details"`
	Seen           bool    `json:"seen"`
	CreatedAt      string  `json:"created_at"`

	// Sweep bookkeeping, never unmarshalled.
	IsDeleted bool `json:"-"`
	IsExpired bool `json:"-"`
}

// PlayerModeration is a mirrored block/mute/hide record against another
// user.
type PlayerModeration struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	SourceUserID      string `json:"sourceUserId"`
	SourceDisplayName string `json:"sourceDisplayName"`
	TargetUserID      string `json:"targetUserId"`
	TargetDisplayName string `json:"targetDisplayName"`
	Created           string `json:"created"`

	// Sweep bookkeeping, never unmarshalled.
	IsDeleted bool `json:"-"`
	IsExpired bool `json:"-"`
}
