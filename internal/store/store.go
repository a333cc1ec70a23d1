// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the process-wide conversation state.
//
// A Store is an explicit object: create it with New, hydrate it from a
// persisted snapshot with Load or Hydrate, and pass it to whoever mutates it.
// Every mutation takes the internal lock, so all methods are safe to call from
// any goroutine, including stream callbacks that fire after the owning
// conversation has been deleted (those calls are no-ops).
//
// Subscribers registered with Subscribe are notified after the lock is
// released, so a subscriber may call back into the Store.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jeranaias/mockchat/internal/model"
)

// Sentinel errors.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnknownModel         = errors.New("unknown model")
)

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// =============================================================================
// STORE
// =============================================================================

// Store owns conversations, the current selection, the model registry and
// transient UI state.
type Store struct {
	mu            sync.Mutex
	conversations []*model.Conversation
	currentID     string
	models        []model.ModelDescriptor
	theme         Theme
	loading       bool

	subs    []subscriber
	nextSub int

	logger *slog.Logger
}

type subscriber struct {
	id int
	fn func(Event)
}

// Option configures a Store.
type Option func(*Store)

// WithModels replaces the default model registry.
func WithModels(models []model.ModelDescriptor) Option {
	return func(s *Store) {
		if len(models) > 0 {
			s.models = append([]model.ModelDescriptor(nil), models...)
		}
	}
}

// WithLogger sets the logger used for hydration warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store with the default model registry.
func New(opts ...Option) *Store {
	s := &Store{
		models: model.DefaultModels(),
		theme:  ThemeLight,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation appends a new conversation and makes it current. It
// inherits the model of the current conversation, or the first registered
// model when there is none.
func (s *Store) CreateConversation(title string) *model.Conversation {
	s.mu.Lock()
	modelID := s.firstModelLocked()
	if cur := s.currentLocked(); cur != nil && cur.CurrentModelID != "" {
		modelID = cur.CurrentModelID
	}
	conv := model.NewConversation(title, modelID)
	s.conversations = append(s.conversations, conv)
	s.currentID = conv.ID
	out := conv.Clone()
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: conv.ID}, Event{Kind: EventCurrent, ConversationID: conv.ID})
	return out
}

// SetCurrent selects the conversation with id. The loading flag is left
// alone: replies keep streaming into their own conversations.
func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	if s.findLocked(id) == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	s.currentID = id
	s.mu.Unlock()

	s.notify(Event{Kind: EventCurrent, ConversationID: id})
	return nil
}

// Delete removes the conversation with id. When it was current, the first
// remaining conversation (or none) becomes current. It reports whether
// anything was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, c := range s.conversations {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.conversations = append(s.conversations[:idx:idx], s.conversations[idx+1:]...)
	events := []Event{{Kind: EventConversations, ConversationID: id}}
	if s.currentID == id {
		s.currentID = ""
		if len(s.conversations) > 0 {
			s.currentID = s.conversations[0].ID
		}
		events = append(events, Event{Kind: EventCurrent, ConversationID: s.currentID})
	}
	s.mu.Unlock()

	s.notify(events...)
	return true
}

// Clear removes every conversation.
func (s *Store) Clear() {
	s.mu.Lock()
	s.conversations = nil
	s.currentID = ""
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations}, Event{Kind: EventCurrent})
}

// Current returns a copy of the current conversation, or nil.
func (s *Store) Current() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.currentLocked(); c != nil {
		return c.Clone()
	}
	return nil
}

// CurrentID returns the id of the current conversation, or "".
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Conversation returns a copy of the conversation with id.
func (s *Store) Conversation(id string) (*model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(id); c != nil {
		return c.Clone(), true
	}
	return nil, false
}

// Conversations returns copies of all conversations in creation order.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Rename sets the title of the conversation with id.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	c := s.findLocked(id)
	if c == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	c.Title = title
	c.Touch()
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: id})
	return nil
}

// DeriveTitle names a conversation still called model.DefaultTitle after
// prompt. It is a no-op for conversations that already have a title.
func (s *Store) DeriveTitle(id, prompt string) {
	s.mu.Lock()
	c := s.findLocked(id)
	changed := c != nil && c.DeriveTitle(prompt)
	s.mu.Unlock()

	if changed {
		s.notify(Event{Kind: EventConversations, ConversationID: id})
	}
}

// =============================================================================
// LOADING AND THEME
// =============================================================================

// SetLoading sets the global loading flag. The orchestrator owns it.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	changed := s.loading != loading
	s.loading = loading
	s.mu.Unlock()

	if changed {
		s.notify(Event{Kind: EventLoading})
	}
}

// Loading reports whether a response is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Theme returns the UI theme.
func (s *Store) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// SetTheme sets the UI theme. Unknown values fall back to ThemeLight.
func (s *Store) SetTheme(theme Theme) {
	if theme != ThemeDark {
		theme = ThemeLight
	}
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()

	s.notify(Event{Kind: EventTheme})
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Store) findLocked(id string) *model.Conversation {
	if id == "" {
		return nil
	}
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) currentLocked() *model.Conversation {
	return s.findLocked(s.currentID)
}

func (s *Store) firstModelLocked() string {
	if len(s.models) > 0 {
		return s.models[0].ID
	}
	return model.DefaultModelID
}
