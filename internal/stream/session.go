// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"unicode/utf8"

	"github.com/jeranaias/mockchat/internal/sse"
)

// CancelFunc aborts a stream. It is safe to call more than once and from
// any goroutine, including from inside a callback.
type CancelFunc func()

// Handlers receive the events of one stream. Nil handlers are skipped.
type Handlers struct {
	OnRecord   func(sse.Record)
	OnComplete func()
	OnError    func(error)

	// OnClose runs last, exactly once, with the error given to OnError or
	// nil. Nothing else is called after it.
	OnClose func(error)
}

type sessionState int

const (
	stateOpen sessionState = iota
	stateCanceled
	stateFinished
)

// session tracks a single Open call.
type session struct {
	client   *Client
	handlers Handlers
	cancel   context.CancelFunc

	mu    sync.Mutex
	state sessionState
	body  io.Closer

	completeOnce sync.Once
	closeOnce    sync.Once
}

// Open starts a streaming POST of payload to endpoint and returns at once.
// Records are delivered to h.OnRecord from a background goroutine.
//
// Calling the returned cancel stops the transport, closes the response body
// and fires OnComplete; OnError is never called afterwards. Records still
// buffered or arriving after cancel are dropped. Cancel does not wait for an
// OnRecord call that is already running, since the callback may itself
// cancel; consumers that need a hard cutoff check their own state in
// OnRecord.
func (c *Client) Open(ctx context.Context, endpoint string, payload any, h Handlers) CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	s := &session{client: c, handlers: h, cancel: cancel}

	req, err := newRequest(ctx, endpoint, payload)
	if err != nil {
		go s.fail(err)
		return s.Cancel
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	go s.run(req)
	return s.Cancel
}

// Cancel requests cancellation. Only the first call on an open session has
// an effect.
func (s *session) Cancel() {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return
	}
	s.state = stateCanceled
	body := s.body
	s.mu.Unlock()

	s.cancel()
	if body != nil {
		body.Close()
	}
	s.complete()
	s.close(nil)
}

func (s *session) run(req *http.Request) {
	defer s.cancel()

	resp, err := s.client.streamClient.Do(req)
	if err != nil {
		s.fail(&Error{Kind: KindTransport, Message: "stream request failed", Cause: err})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := s.client.readServerError(resp.Body)
		resp.Body.Close()
		s.fail(statusError(resp, msg))
		return
	}

	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		resp.Body.Close()
		return
	}
	s.body = resp.Body
	s.mu.Unlock()
	defer resp.Body.Close()

	s.read(resp.Body)
}

// read pumps the body through the frame parser until EOF, failure or cancel.
func (s *session) read(body io.Reader) {
	parser := sse.NewParser(s.client.config.Logger)
	buf := make([]byte, s.client.config.ReadBufferSize)
	var pending []byte

	for {
		n, err := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			text, rest := splitUTF8(pending)
			pending = append(pending[:0], rest...)
			if !s.dispatch(parser.Feed(text)) {
				return
			}
		}

		if errors.Is(err, io.EOF) {
			records := parser.Feed(string(pending))
			records = append(records, parser.Flush()...)
			if !s.dispatch(records) {
				return
			}
			s.finish()
			return
		}
		if err != nil {
			s.fail(&Error{Kind: KindTransport, Message: "stream read failed", Cause: err})
			return
		}
	}
}

// dispatch hands records to OnRecord in order. It returns false once the
// session is no longer open. The state is checked before every record, so
// at most the record in hand when cancel runs is delivered.
func (s *session) dispatch(records []sse.Record) bool {
	for _, rec := range records {
		if !s.isOpen() {
			return false
		}
		if s.handlers.OnRecord != nil {
			s.handlers.OnRecord(rec)
		}
	}
	return s.isOpen()
}

func (s *session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen
}

// finish ends the session normally.
func (s *session) finish() {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return
	}
	s.state = stateFinished
	s.mu.Unlock()

	s.complete()
	s.close(nil)
}

// fail ends the session with err. A session that was canceled first only
// completes.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		s.complete()
		return
	}
	s.state = stateFinished
	s.mu.Unlock()

	s.complete()
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
	s.close(err)
}

func (s *session) complete() {
	s.completeOnce.Do(func() {
		if s.handlers.OnComplete != nil {
			s.handlers.OnComplete()
		}
	})
}

func (s *session) close(err error) {
	s.closeOnce.Do(func() {
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(err)
		}
	})
}

// splitUTF8 returns the longest prefix of b that does not end inside a
// multi-byte sequence, plus the incomplete tail.
func splitUTF8(b []byte) (string, []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return string(b), nil
		}
		return string(b[:i]), b[i:]
	}
	return string(b), nil
}
