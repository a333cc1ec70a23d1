// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mockchat/internal/sse"
	"github.com/jeranaias/mockchat/internal/stream"
)

// fakeStream is a scripted stream honouring the consumer's callback contract.
type fakeStream struct {
	endpoint string
	request  Request
	h        stream.Handlers

	mu       sync.Mutex
	closed   bool
	canceled bool
}

func (f *fakeStream) finish(fn func()) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.closed = true
	f.mu.Unlock()
	fn()
	return true
}

func (f *fakeStream) cancel() {
	f.finish(func() {
		f.mu.Lock()
		f.canceled = true
		f.mu.Unlock()
		f.h.OnComplete()
		f.h.OnClose(nil)
	})
}

// emit delivers a record unless the stream has ended.
func (f *fakeStream) emit(rec sse.Record) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if !closed {
		f.h.OnRecord(rec)
	}
}

func (f *fakeStream) tokens(toks ...string) {
	for _, tok := range toks {
		f.emit(tokenRecord(tok))
	}
}

func (f *fakeStream) done() {
	f.emit(doneRecord())
}

func (f *fakeStream) end() {
	f.finish(func() {
		f.h.OnComplete()
		f.h.OnClose(nil)
	})
}

func (f *fakeStream) fail(err error) {
	f.finish(func() {
		f.h.OnComplete()
		f.h.OnError(err)
		f.h.OnClose(err)
	})
}

func (f *fakeStream) wasCanceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

// fakeStreamer records every Open call.
type fakeStreamer struct {
	mu      sync.Mutex
	streams []*fakeStream

	completion  *stream.Completion
	completeErr error
	completeReq Request

	// whileCompleting runs inside Complete, before it returns.
	whileCompleting func()
}

func (f *fakeStreamer) Open(ctx context.Context, endpoint string, payload any, h stream.Handlers) stream.CancelFunc {
	fs := &fakeStream{endpoint: endpoint, request: payload.(Request), h: h}
	f.mu.Lock()
	f.streams = append(f.streams, fs)
	f.mu.Unlock()
	return fs.cancel
}

func (f *fakeStreamer) Complete(ctx context.Context, endpoint string, payload any) (*stream.Completion, error) {
	f.mu.Lock()
	f.completeReq = payload.(Request)
	hook := f.whileCompleting
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.completion, f.completeErr
}

func (f *fakeStreamer) last(t *testing.T) *fakeStream {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.streams, "no stream opened")
	return f.streams[len(f.streams)-1]
}

func (f *fakeStreamer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func tokenRecord(tok string) sse.Record {
	data, _ := json.Marshal(map[string]string{"token": tok})
	rec, _ := sse.Decode(string(data))
	return rec
}

func doneRecord() sse.Record {
	rec, _ := sse.Decode(`{"done":true}`)
	return rec
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}
