// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package bus implements the synchronous in-process publish/subscribe channel
// that couples every other component of the synchronization core.
//
// Dispatch is synchronous and reentrant: handlers run on the publisher's
// goroutine, in subscription order, and may themselves publish further topics
// or add/remove subscriptions mid-dispatch. A publish with no subscribers is
// a silent no-op. There is no back-pressure, retry, or cross-process
// delivery.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Handler receives the arguments passed to Publish.
type Handler func(args ...any)

// Subscription identifies a registered handler so it can be removed later.
// Go function values are not comparable, so Subscribe hands out a token
// instead of matching on the handler itself.
type Subscription struct {
	topic string
	id    uint64
}

type subscriber struct {
	id     uint64
	fn     Handler
	active atomic.Bool
}

// Bus is a topic-keyed set of ordered subscriber lists.
// The zero value is not usable; construct with New.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]*subscriber
	nextID uint64
	logger zerolog.Logger
}

// New creates an empty Bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		topics: make(map[string][]*subscriber),
		logger: logger.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers fn for topic. Handlers for one topic fire in
// subscription order.
func (b *Bus) Subscribe(topic string, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, fn: fn}
	sub.active.Store(true)
	b.topics[topic] = append(b.topics[topic], sub)
	return Subscription{topic: topic, id: sub.id}
}

// Unsubscribe removes the subscription. Removing a subscription that is
// already gone is a no-op. Safe to call from inside a handler, including the
// handler being removed: an in-flight dispatch skips it from that point on.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s.id != sub.id {
			continue
		}
		s.active.Store(false)
		b.topics[sub.topic] = append(subs[:i:i], subs[i+1:]...)
		break
	}
	if len(b.topics[sub.topic]) == 0 {
		delete(b.topics, sub.topic)
	}
}

// Publish delivers args to every handler subscribed to topic at the moment of
// the call. Dispatch iterates over a snapshot of the subscriber list, so
// handlers that mutate subscriptions cannot corrupt the loop. A handler that
// panics is recovered and logged; remaining handlers for the topic still run.
func (b *Bus) Publish(topic string, args ...any) {
	b.mu.Lock()
	subs := b.topics[topic]
	if len(subs) == 0 {
		b.mu.Unlock()
		return
	}
	snapshot := make([]*subscriber, len(subs))
	copy(snapshot, subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		b.invoke(topic, s, args)
	}
}

// invoke runs one handler with panic isolation.
func (b *Bus) invoke(topic string, s *subscriber, args []any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("topic", topic).
				Interface("panic", r).
				Msg("Subscriber panicked during dispatch")
		}
	}()
	s.fn(args...)
}
