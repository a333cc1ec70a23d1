// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

// EventKind says which part of the state changed.
type EventKind int

const (
	EventConversations EventKind = iota // list, titles or models of conversations
	EventCurrent                        // current selection
	EventMessage                        // a message was added or changed
	EventModels                         // model registry tunables
	EventLoading
	EventTheme
	EventHydrated
)

// Event describes one state change.
type Event struct {
	Kind           EventKind
	ConversationID string
	MessageID      string
}

// Subscribe registers fn for every subsequent change and returns a function
// that removes it. fn runs on the goroutine that made the change, after the
// store lock is released.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// notify delivers events to a snapshot of the current subscribers in
// registration order. Must be called without holding s.mu.
func (s *Store) notify(events ...Event) {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, ev := range events {
		for _, sub := range subs {
			sub.fn(ev)
		}
	}
}
