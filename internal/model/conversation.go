// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// DefaultTitle is the title given to conversations created without one.
const DefaultTitle = "新会话"

// titleWidth is the display width used when deriving a title from a prompt.
const titleWidth = 30

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat history and the model it currently talks to.
type Conversation struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
	CurrentModelID string     `json:"currentModelId"`
	Messages       []*Message `json:"messages"`
}

// NewConversation creates an empty conversation. An empty title becomes
// DefaultTitle.
func NewConversation(title, modelID string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	now := NowMillis()
	return &Conversation{
		ID:             NewID(),
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
		CurrentModelID: modelID,
		Messages:       make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and bumps UpdatedAt.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.Touch()
}

// Touch marks the conversation as modified now.
func (c *Conversation) Touch() {
	c.UpdatedAt = NowMillis()
}

// MessageByID returns the message with id, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	if i := c.IndexOf(id); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// IndexOf returns the position of the message with id, or -1.
func (c *Conversation) IndexOf(id string) int {
	for i, msg := range c.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// PromptFor returns the user message directly preceding the assistant
// message with id, or nil when there is none.
func (c *Conversation) PromptFor(id string) *Message {
	i := c.IndexOf(id)
	if i <= 0 {
		return nil
	}
	if prev := c.Messages[i-1]; prev.IsUser() {
		return prev
	}
	return nil
}

// HistoryBefore returns copies of the messages preceding the message with id.
// It returns nil when id is not part of the conversation.
func (c *Conversation) HistoryBefore(id string) []*Message {
	i := c.IndexOf(id)
	if i < 0 {
		return nil
	}
	out := make([]*Message, i)
	for j := 0; j < i; j++ {
		out[j] = c.Messages[j].Clone()
	}
	return out
}

// LastAssistantMessage returns the most recent assistant message.
func (c *Conversation) LastAssistantMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsAssistant() {
			return c.Messages[i]
		}
	}
	return nil
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE
// =============================================================================

// DeriveTitle replaces DefaultTitle with a preview of prompt. It reports
// whether the title changed.
func (c *Conversation) DeriveTitle(prompt string) bool {
	if c.Title != DefaultTitle {
		return false
	}
	title := Truncate(prompt, titleWidth)
	if title == "" {
		return false
	}
	c.Title = title
	return true
}

// Preview returns a short preview of the last message.
func (c *Conversation) Preview(width int) string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Preview(width)
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}
