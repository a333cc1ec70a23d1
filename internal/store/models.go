// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"

	"github.com/jeranaias/mockchat/internal/model"
)

// Models returns a copy of the model registry.
func (s *Store) Models() []model.ModelDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ModelDescriptor(nil), s.models...)
}

// Model returns the descriptor with id.
func (s *Store) Model(id string) (model.ModelDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.FindModel(s.models, id)
}

// SetCurrentModel switches the current conversation to modelID.
func (s *Store) SetCurrentModel(modelID string) error {
	s.mu.Lock()
	if _, ok := model.FindModel(s.models, modelID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	c := s.currentLocked()
	if c == nil {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	c.CurrentModelID = modelID
	c.Touch()
	id := c.ID
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: id})
	return nil
}

// UpdateModelConfig merges patch into the tunables of modelID.
func (s *Store) UpdateModelConfig(modelID string, patch model.ConfigPatch) error {
	s.mu.Lock()
	found := false
	for i := range s.models {
		if s.models[i].ID == modelID {
			s.models[i].Config = patch.Apply(s.models[i].Config)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	s.notify(Event{Kind: EventModels})
	return nil
}

// SetModelConfig overwrites the tunables of every listed model. Ids that are
// not registered are ignored.
func (s *Store) SetModelConfig(configs map[string]model.ModelConfig) {
	if len(configs) == 0 {
		return
	}
	s.mu.Lock()
	for i := range s.models {
		if cfg, ok := configs[s.models[i].ID]; ok {
			s.models[i].Config = cfg
		}
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventModels})
}
