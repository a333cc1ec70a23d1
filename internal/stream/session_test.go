// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mockchat/internal/sse"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// recorder captures callback activity of one Open call.
type recorder struct {
	mu        sync.Mutex
	tokens    []string
	done      int
	completes int
	errs      []error
	events    []string

	completed chan struct{}
	errored   chan struct{}
	gotRecord chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		completed: make(chan struct{}),
		errored:   make(chan struct{}, 1),
		gotRecord: make(chan struct{}, 16),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnRecord: func(rec sse.Record) {
			r.mu.Lock()
			if tok, ok := rec.TokenText(); ok {
				r.tokens = append(r.tokens, tok)
			}
			if rec.Done {
				r.done++
			}
			r.events = append(r.events, "record")
			r.mu.Unlock()
			r.gotRecord <- struct{}{}
		},
		OnComplete: func() {
			r.mu.Lock()
			r.completes++
			r.events = append(r.events, "complete")
			first := r.completes == 1
			r.mu.Unlock()
			if first {
				close(r.completed)
			}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.events = append(r.events, "error")
			r.mu.Unlock()
			r.errored <- struct{}{}
		},
	}
}

func (r *recorder) waitComplete(t *testing.T) {
	t.Helper()
	select {
	case <-r.completed:
	case <-time.After(5 * time.Second):
		t.Fatal("OnComplete was not called")
	}
}

func (r *recorder) waitError(t *testing.T) error {
	t.Helper()
	select {
	case <-r.errored:
	case <-time.After(5 * time.Second):
		t.Fatal("OnError was not called")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[0]
}

func (r *recorder) waitRecord(t *testing.T) {
	t.Helper()
	select {
	case <-r.gotRecord:
	case <-time.After(5 * time.Second):
		t.Fatal("OnRecord was not called")
	}
}

func (r *recorder) snapshot() (tokens []string, completes int, errs []error, events []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...), r.completes, append([]error(nil), r.errs...), append([]string(nil), r.events...)
}

func testClient() *Client {
	return NewClientWithConfig(&ClientConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func writeFrame(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.(http.Flusher).Flush()
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
}

// =============================================================================
// OPEN TESTS
// =============================================================================

func TestOpen_NormalStream(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		sseHeaders(w)
		writeFrame(t, w, map[string]any{"token": "你"})
		writeFrame(t, w, map[string]any{"token": "好"})
		writeFrame(t, w, map[string]any{"done": true})
	}))
	defer srv.Close()

	rec := newRecorder()
	cancel := testClient().Open(context.Background(), srv.URL, map[string]any{"modelId": "mock-gpt", "stream": true}, rec.handlers())
	require.NotNil(t, cancel)
	rec.waitComplete(t)

	tokens, completes, errs, _ := rec.snapshot()
	assert.Equal(t, []string{"你", "好"}, tokens)
	assert.Equal(t, 1, completes)
	assert.Empty(t, errs)
	assert.Equal(t, "mock-gpt", gotBody["modelId"])

	cancel()
	_, completes, errs, _ = rec.snapshot()
	assert.Equal(t, 1, completes, "cancel after completion must not complete again")
	assert.Empty(t, errs)
}

func TestOpen_MalformedFrameSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		fmt.Fprint(w, "data: {oops\n\n")
		writeFrame(t, w, map[string]any{"token": "ok"})
		writeFrame(t, w, map[string]any{"done": true})
	}))
	defer srv.Close()

	rec := newRecorder()
	testClient().Open(context.Background(), srv.URL, struct{}{}, rec.handlers())
	rec.waitComplete(t)

	tokens, _, errs, _ := rec.snapshot()
	assert.Equal(t, []string{"ok"}, tokens)
	assert.Empty(t, errs)
}

func TestOpen_MultibyteSplitAcrossWrites(t *testing.T) {
	frame := []byte("data: {\"token\":\"你好\"}\n\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		flusher := w.(http.Flusher)
		// Split inside the first three-byte rune.
		cut := len("data: {\"token\":\"") + 1
		w.Write(frame[:cut])
		flusher.Flush()
		time.Sleep(20 * time.Millisecond)
		w.Write(frame[cut:])
		flusher.Flush()
	}))
	defer srv.Close()

	rec := newRecorder()
	testClient().Open(context.Background(), srv.URL, struct{}{}, rec.handlers())
	rec.waitComplete(t)

	tokens, _, _, _ := rec.snapshot()
	assert.Equal(t, []string{"你好"}, tokens)
}

func TestOpen_StatusErrorCompletesThenErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"缺少必要的参数: messages 或 model"}`)
	}))
	defer srv.Close()

	rec := newRecorder()
	testClient().Open(context.Background(), srv.URL, struct{}{}, rec.handlers())
	rec.waitComplete(t)
	err := rec.waitError(t)

	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "缺少必要的参数")

	_, completes, errs, events := rec.snapshot()
	assert.Equal(t, 1, completes)
	assert.Len(t, errs, 1)
	assert.Equal(t, []string{"complete", "error"}, events)
}

func TestOpen_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := newRecorder()
	testClient().Open(context.Background(), url, struct{}{}, rec.handlers())
	rec.waitComplete(t)
	err := rec.waitError(t)

	assert.ErrorIs(t, err, ErrTransport)
}

func TestOpen_CancelMidStream(t *testing.T) {
	serverDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(serverDone)
		sseHeaders(w)
		writeFrame(t, w, map[string]any{"token": "A"})
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	cancel := testClient().Open(context.Background(), srv.URL, struct{}{}, rec.handlers())
	rec.waitRecord(t)

	cancel()
	rec.waitComplete(t)
	cancel()

	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe cancellation")
	}
	// Give a late error path a chance to misbehave.
	time.Sleep(50 * time.Millisecond)

	tokens, completes, errs, _ := rec.snapshot()
	assert.Equal(t, []string{"A"}, tokens)
	assert.Equal(t, 1, completes)
	assert.Empty(t, errs, "OnError must not fire after cancel")
}

func TestOpen_CancelBeforeResponse(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := newRecorder()
	cancel := testClient().Open(context.Background(), srv.URL, struct{}{}, rec.handlers())
	cancel()
	rec.waitComplete(t)
	time.Sleep(50 * time.Millisecond)

	_, completes, errs, _ := rec.snapshot()
	assert.Equal(t, 1, completes)
	assert.Empty(t, errs)
}

func TestOpen_CancelFromCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeFrame(t, w, map[string]any{"token": "first"})
		writeFrame(t, w, map[string]any{"token": "second"})
		<-r.Context().Done()
	}))
	defer srv.Close()

	var cancel CancelFunc
	var mu sync.Mutex
	var tokens []string
	completed := make(chan struct{})
	ready := make(chan struct{})

	cancel = testClient().Open(context.Background(), srv.URL, struct{}{}, Handlers{
		OnRecord: func(rec sse.Record) {
			<-ready
			tok, _ := rec.TokenText()
			mu.Lock()
			tokens = append(tokens, tok)
			mu.Unlock()
			cancel()
		},
		OnComplete: func() { close(completed) },
		OnError:    func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	close(ready)

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("OnComplete was not called")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first"}, tokens)
}

func TestOpen_CancelWhileRecordInFlight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeFrame(t, w, map[string]any{"token": "first"})
		writeFrame(t, w, map[string]any{"token": "second"})
		writeFrame(t, w, map[string]any{"token": "third"})
		<-r.Context().Done()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var tokens []string
	entered := make(chan struct{}, 3)
	release := make(chan struct{})
	completed := make(chan struct{})

	cancel := testClient().Open(context.Background(), srv.URL, struct{}{}, Handlers{
		OnRecord: func(rec sse.Record) {
			entered <- struct{}{}
			<-release
			tok, _ := rec.TokenText()
			mu.Lock()
			tokens = append(tokens, tok)
			mu.Unlock()
		},
		OnComplete: func() { close(completed) },
	})

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("OnRecord was not called")
	}

	// Cancel from another goroutine returns without waiting for the
	// callback that is already running.
	cancel()
	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("OnComplete was not called")
	}

	close(release)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first"}, tokens)
	assert.Empty(t, entered, "no record may be delivered after cancel returns")
}

func TestOpen_ParentContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		// Without a flush the server never notices the client going away.
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	testClient().Open(ctx, srv.URL, struct{}{}, rec.handlers())
	time.Sleep(20 * time.Millisecond)
	cancel()
	rec.waitComplete(t)

	// Canceling the parent context is a transport failure, not a Cancel call.
	err := rec.waitError(t)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestOpen_MarshalError(t *testing.T) {
	rec := newRecorder()
	testClient().Open(context.Background(), "http://127.0.0.1:1", map[string]any{"bad": make(chan int)}, rec.handlers())
	rec.waitComplete(t)
	err := rec.waitError(t)
	assert.ErrorIs(t, err, ErrRequest)
}

// =============================================================================
// COMPLETE TESTS
// =============================================================================

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream bool `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.False(t, body.Stream)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":"你好！","modelId":"mock-gpt","timestamp":1700000000000}`)
	}))
	defer srv.Close()

	got, err := testClient().Complete(context.Background(), srv.URL, map[string]any{"stream": false})
	require.NoError(t, err)
	assert.Equal(t, &Completion{Content: "你好！", ModelID: "mock-gpt", Timestamp: 1700000000000}, got)
}

func TestComplete_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad-json" {
			fmt.Fprint(w, "not json")
			return
		}
		http.Error(w, `{"error":"处理请求时发生错误"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient().Complete(context.Background(), srv.URL+"/fail", struct{}{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Contains(t, err.Error(), "处理请求时发生错误")

	_, err = testClient().Complete(context.Background(), srv.URL+"/bad-json", struct{}{})
	assert.ErrorIs(t, err, ErrDecode)
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestSplitUTF8(t *testing.T) {
	full := []byte("a你")
	tests := []struct {
		name     string
		in       []byte
		wantText string
		wantRest int
	}{
		{"complete", full, "a你", 0},
		{"one byte short", full[:3], "a", 2},
		{"two bytes short", full[:2], "a", 1},
		{"ascii", []byte("abc"), "abc", 0},
		{"empty", nil, "", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, rest := splitUTF8(tc.in)
			assert.Equal(t, tc.wantText, text)
			assert.Len(t, rest, tc.wantRest)
		})
	}
}

func TestOpen_OnCloseRunsLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var events []string
	closed := make(chan error, 1)

	testClient().Open(context.Background(), srv.URL, struct{}{}, Handlers{
		OnComplete: func() { mu.Lock(); events = append(events, "complete"); mu.Unlock() },
		OnError:    func(error) { mu.Lock(); events = append(events, "error"); mu.Unlock() },
		OnClose: func(err error) {
			mu.Lock()
			events = append(events, "close")
			mu.Unlock()
			closed <- err
		},
	})

	select {
	case err := <-closed:
		assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose was not called")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"complete", "error", "close"}, events)
}
