// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// Only Content and Interrupted of an assistant message change after creation.
type Message struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds
	ModelID     string `json:"modelId,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content, modelID string) *Message {
	return &Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: NowMillis(),
		ModelID:   modelID,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content, modelID string) *Message {
	return NewMessage(RoleUser, content, modelID)
}

// NewAssistantMessage creates an empty assistant message awaiting tokens.
func NewAssistantMessage(modelID string) *Message {
	return NewMessage(RoleAssistant, "", modelID)
}

// Time returns the creation time.
func (m *Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsUser returns true for user messages.
func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant returns true for assistant messages.
func (m *Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// Preview returns the content truncated to width terminal cells.
// Wide (CJK) runes count as two cells.
func (m *Message) Preview(width int) string {
	return Truncate(m.Content, width)
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// NowMillis returns the current time in Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Truncate shortens s to at most width display cells, flattening newlines.
func Truncate(s string, width int) string {
	flat := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		flat = append(flat, r)
	}
	out := string(flat)
	if width <= 0 || runewidth.StringWidth(out) <= width {
		return out
	}
	return runewidth.Truncate(out, width, "...")
}
