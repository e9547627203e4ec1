// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package models

import "strings"

// Language is a spoken-language tag resolved to its display name.
type Language struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// languageNames maps the network's language tag suffixes to display names.
var languageNames = map[string]string{
	"eng": "English",
	"kor": "한국어",
	"rus": "Русский",
	"spa": "Español",
	"por": "Português",
	"zho": "中文",
	"deu": "Deutsch",
	"jpn": "日本語",
	"fra": "Français",
	"swe": "Svenska",
	"nld": "Nederlands",
	"pol": "Polski",
	"dan": "Dansk",
	"nor": "Norsk",
	"ita": "Italiano",
	"tha": "ภาษาไทย",
	"fin": "Suomi",
	"hun": "Magyar",
	"ces": "Čeština",
	"tur": "Türkçe",
	"ara": "العربية",
}

const languageTagPrefix = "language_"

// DeriveLanguages extracts known language tags from a user's tag list,
// preserving tag order. Unknown language codes are skipped.
func DeriveLanguages(tags []string) []Language {
	var langs []Language
	for _, tag := range tags {
		key, ok := strings.CutPrefix(tag, languageTagPrefix)
		if !ok {
			continue
		}
		value, ok := languageNames[key]
		if !ok {
			continue
		}
		langs = append(langs, Language{Key: key, Value: value})
	}
	return langs
}

// Trust holds the rank derived from a user's system tags and staff flags.
type Trust struct {
	IsModerator bool
	IsTroll     bool
	Level       string
	Class       string
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

// DeriveTrust computes a user's trust rank. Staff status overrides the
// tag-based ladder, and troll status overrides everything below staff.
func DeriveTrust(developerType string, tags []string) Trust {
	t := Trust{
		IsModerator: developerType != "" && developerType != "none",
	}
	if hasTag(tags, "admin_moderator") {
		t.IsModerator = true
	}
	if hasTag(tags, "system_troll") || hasTag(tags, "system_probable_troll") {
		t.IsTroll = true
	}

	switch {
	case hasTag(tags, "system_legend"):
		t.Level, t.Class = "Legendary User", "x-tag-legendary"
	case hasTag(tags, "system_trust_legend"):
		t.Level, t.Class = "Veteran User", "x-tag-legend"
	case hasTag(tags, "system_trust_veteran"):
		t.Level, t.Class = "Trusted User", "x-tag-veteran"
	case hasTag(tags, "system_trust_trusted"):
		t.Level, t.Class = "Known User", "x-tag-trusted"
	case hasTag(tags, "system_trust_known"):
		t.Level, t.Class = "User", "x-tag-known"
	case hasTag(tags, "system_trust_basic"):
		t.Level, t.Class = "New User", "x-tag-basic"
	default:
		t.Level, t.Class = "Visitor", "x-tag-untrusted"
	}

	if t.IsModerator {
		t.Level, t.Class = "VRChat Team", "x-tag-vip"
	} else if t.IsTroll {
		t.Level, t.Class = "Nuisance", "x-tag-troll"
	}
	return t
}

// IsSupporter reports whether the tag list carries the paid-supporter tag.
func IsSupporter(tags []string) bool {
	return hasTag(tags, "system_supporter")
}
