// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat turns send and retry actions into streams and applies the
// streamed tokens to the conversation store.
//
// Every assistant message being generated has exactly one Session. Starting a
// retry for a message with a live session stops the old session first. Tokens
// are applied through the store's updater API, so each one is appended to the
// message's current content rather than to a copy taken when the stream
// opened.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/sse"
	"github.com/jeranaias/mockchat/internal/store"
	"github.com/jeranaias/mockchat/internal/stream"
)

// FallbackContent replaces an empty assistant message when its stream fails.
const FallbackContent = "请求出错，请重试"

// Sentinel errors.
var (
	ErrNoPrompt     = errors.New("no user message precedes the assistant message")
	ErrNotAssistant = errors.New("message is not an assistant message")
	ErrEmptyPrompt  = errors.New("prompt is empty")
)

// Streamer opens chat streams. *stream.Client implements it.
type Streamer interface {
	Open(ctx context.Context, endpoint string, payload any, h stream.Handlers) stream.CancelFunc
	Complete(ctx context.Context, endpoint string, payload any) (*stream.Completion, error)
}

// Store is the part of *store.Store the orchestrator mutates.
type Store interface {
	CreateConversation(title string) *model.Conversation
	Current() *model.Conversation
	Conversation(id string) (*model.Conversation, bool)
	Model(id string) (model.ModelDescriptor, bool)
	Models() []model.ModelDescriptor
	AddMessage(conversationID string, role model.Role, content, modelID string) (string, error)
	CreateAssistantPlaceholder(conversationID, modelID string) (string, error)
	UpdateMessage(conversationID, messageID string, fn func(*model.Message)) bool
	DeriveTitle(id, prompt string)
	SetLoading(loading bool)
}

var _ Store = (*store.Store)(nil)

// Config holds orchestrator options.
type Config struct {
	// BaseURL is prefixed to each model's API path.
	BaseURL string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnSessionEnd runs after a session's final store update, e.g. to
	// persist the store.
	OnSessionEnd func(*Session)
}

// Orchestrator wires the stream client to the store.
type Orchestrator struct {
	store   Store
	client  Streamer
	baseURL string
	logger  *slog.Logger
	onEnd   func(*Session)

	mu       sync.Mutex
	sessions map[string]*Session
	asks     int

	// loadingMu orders store loading updates.
	loadingMu sync.Mutex
}

// New creates an orchestrator.
func New(st Store, client Streamer, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		client:   client,
		baseURL:  cfg.BaseURL,
		logger:   logger,
		onEnd:    cfg.OnSessionEnd,
		sessions: make(map[string]*Session),
	}
}

// =============================================================================
// SEND AND RETRY
// =============================================================================

// Send appends an empty assistant message to the conversation and streams
// the reply of desc to prior into it.
func (o *Orchestrator) Send(ctx context.Context, conversationID string, desc model.ModelDescriptor, prior []*model.Message) (*Session, error) {
	messageID, err := o.store.CreateAssistantPlaceholder(conversationID, desc.ID)
	if err != nil {
		return nil, err
	}
	return o.start(ctx, conversationID, messageID, desc, prior), nil
}

// Retry regenerates an assistant message. Its content is reset to "" and its
// interrupted flag cleared before any new token arrives. The history sent is
// everything preceding the message, which must end with a user message;
// otherwise nothing changes and ErrNoPrompt is returned.
func (o *Orchestrator) Retry(ctx context.Context, conversationID, messageID string) (*Session, error) {
	conv, ok := o.store.Conversation(conversationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrConversationNotFound, conversationID)
	}
	msg := conv.MessageByID(messageID)
	if msg == nil || !msg.IsAssistant() {
		return nil, ErrNotAssistant
	}
	if conv.PromptFor(messageID) == nil {
		o.logger.Debug("retry skipped", "message_id", messageID, "reason", ErrNoPrompt)
		return nil, ErrNoPrompt
	}

	desc := o.resolveModel(msg.ModelID)
	if prev := o.detach(messageID); prev != nil {
		prev.supersede()
	}

	o.store.UpdateMessage(conversationID, messageID, func(m *model.Message) {
		m.Content = ""
		m.Interrupted = false
	})
	return o.start(ctx, conversationID, messageID, desc, conv.HistoryBefore(messageID)), nil
}

// SendPrompt is the UI entry point: it ensures a current conversation,
// appends the user's prompt, names the conversation after its first prompt
// and streams the reply of the conversation's model.
func (o *Orchestrator) SendPrompt(ctx context.Context, prompt string) (*Session, error) {
	conv, desc, err := o.appendPrompt(prompt)
	if err != nil {
		return nil, err
	}
	return o.Send(ctx, conv.ID, desc, conv.Messages)
}

// Ask is the non-streaming variant of SendPrompt. It blocks until the
// response arrives and returns the finished assistant message.
func (o *Orchestrator) Ask(ctx context.Context, prompt string) (*model.Message, error) {
	conv, desc, err := o.appendPrompt(prompt)
	if err != nil {
		return nil, err
	}
	messageID, err := o.store.CreateAssistantPlaceholder(conv.ID, desc.ID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.asks++
	o.mu.Unlock()
	o.syncLoading()
	defer func() {
		o.mu.Lock()
		o.asks--
		o.mu.Unlock()
		o.syncLoading()
	}()

	endpoint := Endpoint(o.baseURL, desc.API)
	resp, err := o.client.Complete(ctx, endpoint, NewRequest(desc, conv.Messages, false))
	if err != nil {
		o.logger.Error("completion failed", "message_id", messageID, "error", err)
		o.store.UpdateMessage(conv.ID, messageID, markFailed)
	} else {
		o.store.UpdateMessage(conv.ID, messageID, func(m *model.Message) {
			m.Content = resp.Content
		})
	}

	final, _ := o.messageCopy(conv.ID, messageID)
	return final, err
}

// =============================================================================
// SESSION REGISTRY
// =============================================================================

// Session returns the live session generating messageID.
func (o *Orchestrator) Session(messageID string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[messageID]
	return s, ok
}

// Active returns the number of live sessions.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// AbortAll cancels every live session.
func (o *Orchestrator) AbortAll() {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
}

// detach removes and returns the session for messageID.
func (o *Orchestrator) detach(messageID string) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sessions[messageID]
	delete(o.sessions, messageID)
	return s
}

// release drops s from the registry if it is still the registered session.
func (o *Orchestrator) release(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions[s.MessageID] == s {
		delete(o.sessions, s.MessageID)
	}
}

// syncLoading sets the store's loading flag: on while any session or
// non-streaming request is live, off once none remain.
func (o *Orchestrator) syncLoading() {
	o.loadingMu.Lock()
	defer o.loadingMu.Unlock()

	o.mu.Lock()
	busy := len(o.sessions)+o.asks > 0
	o.mu.Unlock()
	o.store.SetLoading(busy)
}

// =============================================================================
// STREAM WIRING
// =============================================================================

func (o *Orchestrator) start(ctx context.Context, conversationID, messageID string, desc model.ModelDescriptor, history []*model.Message) *Session {
	s := newSession(o, conversationID, messageID, desc.ID)

	o.mu.Lock()
	prev := o.sessions[messageID]
	o.sessions[messageID] = s
	o.mu.Unlock()
	if prev != nil {
		prev.supersede()
	}

	o.syncLoading()
	o.logger.Info("stream started",
		"conversation_id", conversationID,
		"message_id", messageID,
		"model", desc.ID,
		"history", len(history))

	endpoint := Endpoint(o.baseURL, desc.API)
	cancel := o.client.Open(ctx, endpoint, NewRequest(desc, history, true), stream.Handlers{
		OnRecord:   func(rec sse.Record) { o.onRecord(s, rec) },
		OnComplete: func() { o.onComplete(s) },
		OnError:    func(err error) { o.onError(s, err) },
		OnClose:    func(error) { o.onClose(s) },
	})
	s.setStream(cancel)
	return s
}

func (o *Orchestrator) onRecord(s *Session, rec sse.Record) {
	if tok, ok := rec.TokenText(); ok && tok != "" {
		o.store.UpdateMessage(s.ConversationID, s.MessageID, func(m *model.Message) {
			// Checked under the store lock so no token lands after an abort.
			if s.running() {
				m.Content += tok
			}
		})
	}
	if rec.Done && s.transition(sessionFinished) {
		// The reply is complete; release the connection.
		s.stopStream()
	}
}

func (o *Orchestrator) onComplete(s *Session) {
	s.transition(sessionFinished)
	o.release(s)
	o.syncLoading()
}

func (o *Orchestrator) onError(s *Session, err error) {
	s.mu.Lock()
	s.err = err
	aborted := s.state == sessionAborted
	s.mu.Unlock()

	o.logger.Error("stream failed", "message_id", s.MessageID, "error", err)
	if !aborted {
		o.store.UpdateMessage(s.ConversationID, s.MessageID, markFailed)
	}
}

func (o *Orchestrator) onClose(s *Session) {
	close(s.done)
	if o.onEnd != nil {
		o.onEnd(s)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func markInterrupted(m *model.Message) {
	m.Interrupted = true
}

func markFailed(m *model.Message) {
	m.Interrupted = true
	if m.Content == "" {
		m.Content = FallbackContent
	}
}

// appendPrompt records a user prompt in the current conversation, creating
// one if needed, and returns the updated conversation and its model.
func (o *Orchestrator) appendPrompt(prompt string) (*model.Conversation, model.ModelDescriptor, error) {
	if prompt == "" {
		return nil, model.ModelDescriptor{}, ErrEmptyPrompt
	}

	conv := o.store.Current()
	if conv == nil {
		conv = o.store.CreateConversation("")
	}
	desc := o.resolveModel(conv.CurrentModelID)

	if _, err := o.store.AddMessage(conv.ID, model.RoleUser, prompt, desc.ID); err != nil {
		return nil, desc, err
	}
	o.store.DeriveTitle(conv.ID, prompt)

	updated, ok := o.store.Conversation(conv.ID)
	if !ok {
		return nil, desc, fmt.Errorf("%w: %s", store.ErrConversationNotFound, conv.ID)
	}
	return updated, desc, nil
}

// resolveModel returns the registered descriptor for id, falling back to the
// first registered model.
func (o *Orchestrator) resolveModel(id string) model.ModelDescriptor {
	if desc, ok := o.store.Model(id); ok {
		return desc
	}
	if models := o.store.Models(); len(models) > 0 {
		return models[0]
	}
	desc, _ := model.FindModel(model.DefaultModels(), model.DefaultModelID)
	return desc
}

func (o *Orchestrator) messageCopy(conversationID, messageID string) (*model.Message, bool) {
	conv, ok := o.store.Conversation(conversationID)
	if !ok {
		return nil, false
	}
	if m := conv.MessageByID(messageID); m != nil {
		return m, true
	}
	return nil, false
}
