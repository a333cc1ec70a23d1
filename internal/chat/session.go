// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	"github.com/jeranaias/mockchat/internal/stream"
)

type sessionState int

const (
	sessionRunning sessionState = iota
	sessionFinished
	sessionAborted
)

// Session binds one assistant message to one open stream.
type Session struct {
	ConversationID string
	MessageID      string
	ModelID        string

	orch *Orchestrator

	mu     sync.Mutex
	state  sessionState
	cancel stream.CancelFunc
	err    error
	done   chan struct{}
}

func newSession(o *Orchestrator, conversationID, messageID, modelID string) *Session {
	return &Session{
		ConversationID: conversationID,
		MessageID:      messageID,
		ModelID:        modelID,
		orch:           o,
		done:           make(chan struct{}),
	}
}

// Cancel aborts the session. The message keeps its partial content and is
// flagged interrupted. Cancel is a no-op once the session has finished.
func (s *Session) Cancel() {
	if !s.transition(sessionAborted) {
		return
	}
	// Flag before stopping so the update lands ahead of Done.
	s.orch.store.UpdateMessage(s.ConversationID, s.MessageID, markInterrupted)
	s.stopStream()
	s.orch.logger.Info("stream aborted", "message_id", s.MessageID)
}

// supersede stops the session without touching the message, for a retry
// that is about to reset it.
func (s *Session) supersede() {
	if s.transition(sessionAborted) {
		s.stopStream()
	}
}

// Done is closed once the session has reached its final state and every
// store update it causes has been applied.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport error that ended the session, if any. Valid
// after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Aborted reports whether the session was canceled.
func (s *Session) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == sessionAborted
}

// running reports whether tokens should still be applied.
func (s *Session) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == sessionRunning
}

// transition moves a running session to state. It reports false when the
// session had already left sessionRunning.
func (s *Session) transition(state sessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessionRunning {
		return false
	}
	s.state = state
	return true
}

func (s *Session) setStream(cancel stream.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	aborted := s.state == sessionAborted
	s.mu.Unlock()

	// Canceled before Open returned.
	if aborted {
		cancel()
	}
}

func (s *Session) stopStream() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
