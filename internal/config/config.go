// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package config loads the application configuration from layered
// sources: struct defaults, then an optional YAML file, then PERISCOPE_
// environment variables. Loaded configuration is validated before use.
package config

import (
	"fmt"
	"time"

	"github.com/periscope-app/periscope/internal/validation"
)

// Config is the full application configuration.
type Config struct {
	API       APIConfig       `koanf:"api"`
	Auth      AuthConfig      `koanf:"auth"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Presence  PresenceConfig  `koanf:"presence"`
	Store     StoreConfig     `koanf:"store"`
	Persist   PersistConfig   `koanf:"persist"`
	GameLog   GameLogConfig   `koanf:"gamelog"`
	Debug     DebugConfig     `koanf:"debug"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// APIConfig covers the REST client.
type APIConfig struct {
	BaseURL   string        `koanf:"base_url" validate:"required,httpsurl"`
	UserAgent string        `koanf:"user_agent" validate:"required"`
	Timeout   time.Duration `koanf:"timeout" validate:"min=1s"`
	RateLimit float64       `koanf:"rate_limit" validate:"min=0"`
	RateBurst int           `koanf:"rate_burst" validate:"min=0"`
}

// AuthConfig carries the account credentials. Usually injected through
// PERISCOPE_AUTH_USERNAME and PERISCOPE_AUTH_PASSWORD; when both are
// empty the daemon starts logged out and waits for an external login.
type AuthConfig struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// PipelineConfig covers the realtime websocket session.
type PipelineConfig struct {
	URL string `koanf:"url" validate:"required,wsurl"`
}

// ReconcileConfig covers the refresh/sweep passes.
type ReconcileConfig struct {
	PageSize             int           `koanf:"page_size" validate:"min=1,max=100"`
	NotificationInterval time.Duration `koanf:"notification_interval" validate:"min=1m"`
	FavoriteInterval     time.Duration `koanf:"favorite_interval" validate:"min=1m"`
	ModerationInterval   time.Duration `koanf:"moderation_interval" validate:"min=1m"`
}

// PresenceConfig covers the friend state machine.
type PresenceConfig struct {
	FriendPageSize    int           `koanf:"friend_page_size" validate:"min=1,max=100"`
	ReconcileInterval time.Duration `koanf:"reconcile_interval" validate:"min=1m"`
	DeferDelay        time.Duration `koanf:"defer_delay" validate:"min=1s"`
	FlapWindow        time.Duration `koanf:"flap_window" validate:"min=1s"`
}

// StoreConfig covers the entity store.
type StoreConfig struct {
	DebounceDelay time.Duration `koanf:"debounce_delay" validate:"min=1ms"`
}

// PersistConfig covers the key/value persistence boundary.
type PersistConfig struct {
	Dir string `koanf:"dir"`
}

// GameLogConfig covers the game-log poller.
type GameLogConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Dir          string        `koanf:"dir" validate:"required_if=Enabled true"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"min=1s"`
}

// DebugConfig covers the local debug HTTP listener.
type DebugConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// LoggingConfig covers the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, overridden by file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "https://api.vrchat.cloud/api/1",
			UserAgent: "Periscope/1.0",
			Timeout:   30 * time.Second,
			RateLimit: 2,
			RateBurst: 5,
		},
		Pipeline: PipelineConfig{
			URL: "wss://pipeline.vrchat.cloud/",
		},
		Reconcile: ReconcileConfig{
			PageSize:             100,
			NotificationInterval: 5 * time.Minute,
			FavoriteInterval:     30 * time.Minute,
			ModerationInterval:   30 * time.Minute,
		},
		Presence: PresenceConfig{
			FriendPageSize:    50,
			ReconcileInterval: time.Hour,
			DeferDelay:        50 * time.Second,
			FlapWindow:        60 * time.Second,
		},
		Store: StoreConfig{
			DebounceDelay: 50 * time.Millisecond,
		},
		Persist: PersistConfig{
			Dir: "/data/periscope",
		},
		GameLog: GameLogConfig{
			Enabled:      false,
			PollInterval: 2 * time.Second,
		},
		Debug: DebugConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9632",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
