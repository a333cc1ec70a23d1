// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/storage"
)

// Storage keys of the two persisted snapshots.
const (
	ChatStorageKey      = "chat-app-storage"
	AppConfigStorageKey = "app-config-storage"
)

// ChatSnapshot is the persisted conversation state.
type ChatSnapshot struct {
	Conversations         []*model.Conversation `json:"conversations"`
	CurrentConversationID *string               `json:"currentConversationId"`
}

// AppConfigSnapshot is the persisted model and UI configuration.
type AppConfigSnapshot struct {
	Models []model.ModelDescriptor `json:"models"`
	Theme  Theme                   `json:"theme"`
}

// Snapshot returns deep copies of the persistable state.
func (s *Store) Snapshot() (ChatSnapshot, AppConfigSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := ChatSnapshot{Conversations: make([]*model.Conversation, len(s.conversations))}
	for i, c := range s.conversations {
		chat.Conversations[i] = c.Clone()
	}
	if s.currentID != "" {
		id := s.currentID
		chat.CurrentConversationID = &id
	}

	app := AppConfigSnapshot{
		Models: append([]model.ModelDescriptor(nil), s.models...),
		Theme:  s.theme,
	}
	return chat, app
}

// Hydrate replaces the store state with the snapshots. Conversations or
// messages without an id are dropped, a dangling current id is cleared, and
// persisted model tunables are merged onto the registry (unknown models are
// ignored). The loading flag is reset.
func (s *Store) Hydrate(chat ChatSnapshot, app AppConfigSnapshot) {
	convs := make([]*model.Conversation, 0, len(chat.Conversations))
	for _, c := range chat.Conversations {
		if c == nil || c.ID == "" {
			continue
		}
		c = c.Clone()
		msgs := c.Messages[:0]
		for _, m := range c.Messages {
			if m != nil && m.ID != "" && m.Role.Valid() {
				msgs = append(msgs, m)
			}
		}
		c.Messages = msgs
		convs = append(convs, c)
	}

	s.mu.Lock()
	s.conversations = convs
	s.currentID = ""
	if chat.CurrentConversationID != nil && s.findLocked(*chat.CurrentConversationID) != nil {
		s.currentID = *chat.CurrentConversationID
	}
	for _, saved := range app.Models {
		for i := range s.models {
			if s.models[i].ID == saved.ID {
				s.models[i].Config = saved.Config
			}
		}
	}
	if app.Theme == ThemeDark {
		s.theme = ThemeDark
	} else {
		s.theme = ThemeLight
	}
	s.loading = false
	s.mu.Unlock()

	s.notify(Event{Kind: EventHydrated})
}

// Load hydrates the store from backend. Missing snapshots leave the
// corresponding defaults in place; corrupt ones are logged and ignored.
func (s *Store) Load(ctx context.Context, backend storage.Backend) error {
	var chat ChatSnapshot
	var app AppConfigSnapshot

	data, err := loadKey(ctx, backend, ChatStorageKey)
	if err != nil {
		return err
	}
	if data != nil {
		if err := json.Unmarshal(data, &chat); err != nil {
			s.logger.Warn("ignoring corrupt snapshot", "key", ChatStorageKey, "error", err)
			chat = ChatSnapshot{}
		}
	}

	data, err = loadKey(ctx, backend, AppConfigStorageKey)
	if err != nil {
		return err
	}
	if data != nil {
		if err := json.Unmarshal(data, &app); err != nil {
			s.logger.Warn("ignoring corrupt snapshot", "key", AppConfigStorageKey, "error", err)
			app = AppConfigSnapshot{}
		}
	}
	if app.Theme == "" {
		app.Theme = s.Theme()
	}

	s.Hydrate(chat, app)
	return nil
}

// loadKey returns nil data for a missing key.
func loadKey(ctx context.Context, backend storage.Backend, key string) ([]byte, error) {
	data, err := backend.Load(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

// Persist writes both snapshots to backend.
func (s *Store) Persist(ctx context.Context, backend storage.Backend) error {
	chat, app := s.Snapshot()

	chatData, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ChatStorageKey, err)
	}
	appData, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("encode %s: %w", AppConfigStorageKey, err)
	}

	if err := backend.Save(ctx, ChatStorageKey, chatData); err != nil {
		return err
	}
	return backend.Save(ctx, AppConfigStorageKey, appData)
}
