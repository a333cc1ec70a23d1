// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mockchat/internal/logging"
	"github.com/jeranaias/mockchat/internal/mockserver"
	"github.com/jeranaias/mockchat/internal/store"
	"github.com/jeranaias/mockchat/internal/stream"
)

// liveFixture runs the orchestrator against a real stream client and an
// httptest server serving handler on every model path.
func liveFixture(t *testing.T, handler http.HandlerFunc) (*store.Store, *Orchestrator) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.New()
	client := stream.NewClientWithConfig(&stream.ClientConfig{Logger: logger})
	return s, New(s, client, Config{BaseURL: srv.URL, Logger: logger})
}

func writeEvent(w http.ResponseWriter, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	w.(http.Flusher).Flush()
}

func TestLive_NormalStream(t *testing.T) {
	var got Request
	s, orch := liveFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/gpt", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, `{"token":"你"}`)
		writeEvent(w, `{"token":"好"}`)
		writeEvent(w, `{"done":true}`)
	})

	sess, err := orch.SendPrompt(context.Background(), "你好")
	require.NoError(t, err)
	waitDone(t, sess)

	msg, ok := s.Message(sess.ConversationID, sess.MessageID)
	require.True(t, ok)
	assert.Equal(t, "你好", msg.Content)
	assert.False(t, msg.Interrupted)
	assert.Equal(t, "mock-gpt", got.ModelID)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "你好", got.Messages[0].Content)
}

func TestLive_CancelMidStream(t *testing.T) {
	sent := make(chan struct{})
	s, orch := liveFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, `{"token":"A"}`)
		close(sent)
		<-r.Context().Done()
	})

	sess, err := orch.SendPrompt(context.Background(), "q")
	require.NoError(t, err)
	<-sent
	require.Eventually(t, func() bool {
		msg, _ := s.Message(sess.ConversationID, sess.MessageID)
		return msg.Content == "A"
	}, 5*time.Second, 5*time.Millisecond)

	sess.Cancel()
	waitDone(t, sess)

	msg, _ := s.Message(sess.ConversationID, sess.MessageID)
	assert.Equal(t, "A", msg.Content)
	assert.True(t, msg.Interrupted)
	assert.NoError(t, sess.Err(), "cancellation is not an error")
}

func TestLive_MalformedFrame(t *testing.T) {
	s, orch := liveFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, `{"token":`)
		writeEvent(w, `{"token":"ok"}`)
		writeEvent(w, `{"done":true}`)
	})

	sess, err := orch.SendPrompt(context.Background(), "q")
	require.NoError(t, err)
	waitDone(t, sess)

	msg, _ := s.Message(sess.ConversationID, sess.MessageID)
	assert.Equal(t, "ok", msg.Content)
	assert.False(t, msg.Interrupted)
}

func TestLive_ServerError(t *testing.T) {
	s, orch := liveFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	sess, err := orch.SendPrompt(context.Background(), "q")
	require.NoError(t, err)
	waitDone(t, sess)

	msg, _ := s.Message(sess.ConversationID, sess.MessageID)
	assert.Equal(t, FallbackContent, msg.Content)
	assert.True(t, msg.Interrupted)
	assert.True(t, stream.IsStatus(sess.Err(), http.StatusInternalServerError))
}

func TestLive_MockServer(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Options{Logger: logging.Discard()}).Handler())
	t.Cleanup(srv.Close)

	s := store.New(store.WithLogger(logging.Discard()))
	client := stream.NewClientWithConfig(&stream.ClientConfig{Logger: logging.Discard()})
	orch := New(s, client, Config{BaseURL: srv.URL, Logger: logging.Discard()})

	for _, desc := range s.Models() {
		t.Run(desc.ID, func(t *testing.T) {
			s.CreateConversation("")
			require.NoError(t, s.SetCurrentModel(desc.ID))

			sess, err := orch.SendPrompt(context.Background(), "你好")
			require.NoError(t, err)
			waitDone(t, sess)
			require.NoError(t, sess.Err())

			msg, ok := s.Message(sess.ConversationID, sess.MessageID)
			require.True(t, ok)
			assert.Contains(t, mockserver.Candidates(desc.ID, mockserver.KeywordHello), msg.Content)
			assert.False(t, msg.Interrupted)

			reply, err := orch.Ask(context.Background(), "代码")
			require.NoError(t, err)
			assert.Contains(t, mockserver.Candidates(desc.ID, mockserver.KeywordCode), reply.Content)
		})
	}
}
