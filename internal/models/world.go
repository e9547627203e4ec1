// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package models

import json "github.com/goccy/go-json"

// World is a mirrored world record.
type World struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	AuthorID            string            `json:"authorId"`
	AuthorName          string            `json:"authorName"`
	Capacity            int               `json:"capacity"`
	Tags                []string          `json:"tags"`
	ReleaseStatus       string            `json:"releaseStatus"`
	ImageURL            string            `json:"imageUrl"`
	ThumbnailImageURL   string            `json:"thumbnailImageUrl"`
	AssetURL            string            `json:"assetUrl"`
	PluginURL           string            `json:"pluginUrl"`
	UnityPackageURL     string            `json:"unityPackageUrl"`
	UnityPackages       []json.RawMessage `json:"unityPackages"`
	Version             int               `json:"version"`
	Favorites           int               `json:"favorites"`
	CreatedAt           string            `json:"created_at"`
	UpdatedAt           string            `json:"updated_at"`
	PublicationDate     string            `json:"publicationDate"`
	LabsPublicationDate string            `json:"labsPublicationDate"`
	Visits              int               `json:"visits"`
	Popularity          float64           `json:"popularity"`
	Heat                int               `json:"heat"`
	PublicOccupants     int               `json:"publicOccupants"`
	PrivateOccupants    int               `json:"privateOccupants"`
	Occupants           int               `json:"occupants"`
	Instances           []json.RawMessage `json:"instances"`

	// Derived, never unmarshalled.
	IsLabs bool `json:"-"`
}

// Derive recomputes the annotated fields after a merge.
func (w *World) Derive() {
	w.IsLabs = hasTag(w.Tags, "system_labs")
}

// Avatar is a mirrored avatar record.
type Avatar struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	AuthorID          string            `json:"authorId"`
	AuthorName        string            `json:"authorName"`
	Tags              []string          `json:"tags"`
	AssetURL          string            `json:"assetUrl"`
	ImageURL          string            `json:"imageUrl"`
	ThumbnailImageURL string            `json:"thumbnailImageUrl"`
	ReleaseStatus     string            `json:"releaseStatus"`
	Version           int               `json:"version"`
	UnityPackages     []json.RawMessage `json:"unityPackages"`
	UnityPackageURL   string            `json:"unityPackageUrl"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}
