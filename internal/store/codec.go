// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package store

import json "github.com/goccy/go-json"

func unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
