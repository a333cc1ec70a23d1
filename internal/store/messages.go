// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"

	"github.com/jeranaias/mockchat/internal/model"
)

// AddMessage appends a message with a fresh id to the conversation and
// returns the id.
func (s *Store) AddMessage(conversationID string, role model.Role, content, modelID string) (string, error) {
	msg := model.NewMessage(role, content, modelID)

	s.mu.Lock()
	c := s.findLocked(conversationID)
	if c == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	c.AddMessage(msg)
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessage, ConversationID: conversationID, MessageID: msg.ID})
	return msg.ID, nil
}

// CreateAssistantPlaceholder appends an empty assistant message and returns
// its id, so stream callbacks can be bound to it before any I/O starts.
func (s *Store) CreateAssistantPlaceholder(conversationID, modelID string) (string, error) {
	return s.AddMessage(conversationID, model.RoleAssistant, "", modelID)
}

// UpdateMessage applies fn to the current state of an assistant message.
// fn runs under the store lock and must not call back into the Store; it may
// change Content and Interrupted only. UpdateMessage returns false, without
// calling fn, when the conversation or message no longer exists or the
// message is a user message.
func (s *Store) UpdateMessage(conversationID, messageID string, fn func(*model.Message)) bool {
	s.mu.Lock()
	c := s.findLocked(conversationID)
	if c == nil {
		s.mu.Unlock()
		return false
	}
	msg := c.MessageByID(messageID)
	if msg == nil || !msg.IsAssistant() {
		s.mu.Unlock()
		return false
	}

	before := *msg
	fn(msg)
	// Identity fields are immutable.
	msg.ID, msg.Role, msg.Timestamp, msg.ModelID = before.ID, before.Role, before.Timestamp, before.ModelID
	changed := *msg != before
	if changed {
		c.Touch()
	}
	s.mu.Unlock()

	if changed {
		s.notify(Event{Kind: EventMessage, ConversationID: conversationID, MessageID: messageID})
	}
	return true
}

// AppendOrReplaceMessageContent replaces the content of a message in the
// current conversation. It is a no-op when the message is not there.
func (s *Store) AppendOrReplaceMessageContent(messageID, content string) {
	s.UpdateMessage(s.CurrentID(), messageID, func(m *model.Message) {
		m.Content = content
	})
}

// SetInterrupted sets the interrupted flag of a message in the current
// conversation without touching its content.
func (s *Store) SetInterrupted(messageID string, interrupted bool) {
	s.UpdateMessage(s.CurrentID(), messageID, func(m *model.Message) {
		m.Interrupted = interrupted
	})
}

// Message returns a copy of a message.
func (s *Store) Message(conversationID, messageID string) (*model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(conversationID)
	if c == nil {
		return nil, false
	}
	if msg := c.MessageByID(messageID); msg != nil {
		return msg.Clone(), true
	}
	return nil, false
}
