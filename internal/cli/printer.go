// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/mockchat/internal/chat"
	"github.com/jeranaias/mockchat/internal/store"
)

// tokenPrinter mirrors one assistant message to w while it streams. Only
// the newly appended suffix is written on each change.
type tokenPrinter struct {
	w              io.Writer
	st             *store.Store
	conversationID string
	messageID      string

	mu      sync.Mutex
	printed string
}

func newTokenPrinter(w io.Writer, st *store.Store, s *chat.Session) *tokenPrinter {
	return &tokenPrinter{
		w:              w,
		st:             st,
		conversationID: s.ConversationID,
		messageID:      s.MessageID,
	}
}

func (p *tokenPrinter) onEvent(ev store.Event) {
	if ev.Kind == store.EventMessage && ev.MessageID == p.messageID {
		p.sync()
	}
}

// sync writes whatever part of the message has not been written yet. When
// the content no longer extends what was printed, it starts a new line and
// prints the whole content.
func (p *tokenPrinter) sync() {
	msg, ok := p.st.Message(p.conversationID, p.messageID)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case msg.Content == p.printed:
	case strings.HasPrefix(msg.Content, p.printed):
		fmt.Fprint(p.w, msg.Content[len(p.printed):])
	default:
		fmt.Fprintln(p.w)
		fmt.Fprint(p.w, msg.Content)
	}
	p.printed = msg.Content
}

// Printed returns everything written so far.
func (p *tokenPrinter) Printed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed
}

// follow prints s as it streams and blocks until it ends or ctx is done, in
// which case the session is aborted.
func follow(ctx context.Context, w io.Writer, st *store.Store, s *chat.Session) *tokenPrinter {
	p := newTokenPrinter(w, st, s)
	unsubscribe := st.Subscribe(p.onEvent)
	defer unsubscribe()

	// Tokens that landed before the subscription.
	p.sync()

	select {
	case <-s.Done():
	case <-ctx.Done():
		s.Cancel()
		<-s.Done()
	}
	p.sync()
	return p
}
