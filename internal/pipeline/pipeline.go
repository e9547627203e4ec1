// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package pipeline maintains the realtime websocket session and decodes its
// envelopes onto the bus. Each frame is `{type, content}` where content is a
// JSON-encoded string that gets decoded once more. The session never
// reconnects on its own; the application layer re-bootstraps after a drop.
package pipeline

import (
	"bytes"
	"fmt"
	"net/url"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/periscope-app/periscope/internal/bus"
	"github.com/periscope-app/periscope/internal/event"
	"github.com/periscope-app/periscope/internal/metrics"
)

const maxFrameSize = 512 * 1024 // 512 KB

// Config holds the session settings.
type Config struct {
	// URL is the pipeline endpoint without credentials, e.g.
	// "wss://pipeline.example.com/". The auth token rides in the query.
	URL string

	// SelfID reports the logged-in account's user id. The dispatcher needs
	// it to tell the account's own location frames from a friend's. Nil is
	// treated as never-matching.
	SelfID func() string
}

// Session is one websocket connection to the realtime pipeline.
type Session struct {
	cfg    Config
	bus    *bus.Bus
	log    zerolog.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a disconnected Session.
func New(cfg Config, b *bus.Bus, logger zerolog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		bus:    b,
		log:    logger.With().Str("component", "pipeline").Logger(),
		dialer: websocket.DefaultDialer,
	}
}

// Wire subscribes the session to the auth-token topic so a fetched token
// opens the connection, the way the rest of the core is coupled.
func (s *Session) Wire() {
	s.bus.Subscribe(event.TopicAuth, func(args ...any) {
		if len(args) == 0 {
			return
		}
		token, ok := args[0].(event.AuthToken)
		if !ok {
			return
		}
		if err := s.Connect(token.Token); err != nil {
			s.log.Error().Err(err).Msg("pipeline connect failed")
		}
	})
}

// Connect dials the pipeline with the given token and starts the read
// loop. Connecting while already connected is a no-op.
func (s *Session) Connect(token string) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, _, err := s.dialer.Dial(s.cfg.URL+"?auth="+url.QueryEscape(token), nil)
	if err != nil {
		return fmt.Errorf("pipeline: dial: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	s.mu.Lock()
	if s.conn != nil {
		// Lost the race against a concurrent Connect.
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	s.log.Info().Msg("pipeline connected")
	go s.readLoop(conn)
	return nil
}

// Connected reports whether a connection is live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close tears the connection down. The read loop exits on its own.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// teardown clears the connection reference, but only if conn is still the
// live one; a stale loop must not clobber a newer session.
func (s *Session) teardown(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.teardown(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("pipeline closed unexpectedly")
			} else {
				s.log.Info().Msg("pipeline closed")
			}
			return
		}
		s.dispatch(data)
	}
}

// frame is the decoded inner content. Only the fields the dispatcher
// routes on are typed; payloads stay raw for the store to merge.
type frame struct {
	UserID         string          `json:"userId"`
	NotificationID string          `json:"notificationId"`
	Location       string          `json:"location"`
	User           json.RawMessage `json:"user"`
	World          json.RawMessage `json:"world"`

	raw json.RawMessage
}

// dispatch decodes one frame and fans it out. A malformed frame is logged
// and dropped; the connection stays open.
func (s *Session) dispatch(data []byte) {
	var outer struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &outer); err != nil {
		s.log.Warn().Err(err).Msg("malformed pipeline envelope")
		return
	}

	var f frame
	if err := json.Unmarshal([]byte(outer.Content), &f); err != nil {
		s.log.Warn().Err(err).Str("type", outer.Type).Msg("malformed pipeline content")
		return
	}
	f.raw = json.RawMessage(outer.Content)
	metrics.PipelineFramesTotal.WithLabelValues(outer.Type).Inc()

	switch outer.Type {
	case "notification":
		id := idOf(f.raw)
		s.bus.Publish(event.TopicNotification, event.Raw{ID: id, JSON: f.raw})

	case "notification-see":
		s.bus.Publish(event.TopicNotificationSee, event.NotificationRef{NotificationID: f.NotificationID})

	case "friend-add":
		s.publishUser(f.UserID, f.User, "")
		s.bus.Publish(event.TopicFriendAdd, event.FriendRef{UserID: f.UserID})

	case "friend-delete":
		s.bus.Publish(event.TopicFriendDelete, event.FriendRef{UserID: f.UserID})

	case "friend-online":
		s.publishWorldUnlessPrivate(f)
		s.publishUser(f.UserID, f.User, f.Location)
		s.bus.Publish(event.TopicFriendState, event.FriendState{UserID: f.UserID, State: "online"})

	case "friend-active":
		s.publishUser(f.UserID, f.User, "")
		s.bus.Publish(event.TopicFriendState, event.FriendState{UserID: f.UserID, State: "active"})

	case "friend-offline":
		s.bus.Publish(event.TopicFriendState, event.FriendState{UserID: f.UserID, State: "offline"})

	case "friend-update":
		s.publishUser(f.UserID, f.User, "")

	case "friend-location":
		s.publishWorldUnlessPrivate(f)
		if s.selfID() == f.UserID {
			// The account's own travel is tracked through user-location;
			// the embedded location would double-apply here.
			s.publishUser(f.UserID, f.User, "")
		} else {
			s.publishUser(f.UserID, f.User, f.Location)
		}

	case "user-update":
		fields := s.userFields(f.UserID, f.User)
		if fields == nil {
			return
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return
		}
		s.bus.Publish(event.TopicUserCurrent, event.Raw{ID: f.UserID, JSON: payload})

	case "user-location":
		if isObject(f.World) {
			s.publishWorld(f.World)
		}
		payload, err := json.Marshal(map[string]string{"id": f.UserID, "location": f.Location})
		if err != nil {
			return
		}
		s.bus.Publish(event.TopicUser, event.Raw{ID: f.UserID, JSON: payload})

	default:
		s.log.Debug().Str("type", outer.Type).Msg("unhandled pipeline frame")
	}
}

func (s *Session) selfID() string {
	if s.cfg.SelfID == nil {
		return ""
	}
	return s.cfg.SelfID()
}

// userFields decodes an embedded user record and drops its state field.
// The pipeline's state field disagrees with the presence machine's own
// bookkeeping and must not reach the store.
func (s *Session) userFields(userID string, user json.RawMessage) map[string]any {
	if len(user) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(user, &fields); err != nil {
		s.log.Warn().Err(err).Str("userId", userID).Msg("malformed pipeline user")
		return nil
	}
	delete(fields, "state")
	return fields
}

// publishUser strips the embedded state field, injects the frame's
// location when the record carries none, and publishes the user.
func (s *Session) publishUser(userID string, user json.RawMessage, location string) {
	fields := s.userFields(userID, user)
	if fields == nil {
		return
	}
	if location != "" {
		if _, ok := fields["location"]; !ok {
			fields["location"] = location
		}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	s.bus.Publish(event.TopicUser, event.Raw{ID: userID, JSON: payload})
}

func (s *Session) publishWorldUnlessPrivate(f frame) {
	if f.Location == "private" || !isObject(f.World) {
		return
	}
	s.publishWorld(f.World)
}

func (s *Session) publishWorld(world json.RawMessage) {
	s.bus.Publish(event.TopicWorld, event.Raw{ID: idOf(world), JSON: world})
}

func idOf(data json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.ID
}

func isObject(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
