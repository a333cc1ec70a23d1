// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/jeranaias/mockchat/internal/logging"
	"github.com/jeranaias/mockchat/internal/model"
)

// Error messages returned to clients.
const (
	ErrMsgMissingParams = "缺少必要的参数: messages 或 model"
	ErrMsgInternal      = "处理请求时发生错误"
)

const maxBodyBytes = 1 << 20

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Model    *struct {
		ID string `json:"id"`
	} `json:"model"`
	Stream bool `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// lastUserPrompt returns the content of the last user message, or "".
func (r *chatRequest) lastUserPrompt() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == string(model.RoleUser) {
			return r.Messages[i].Content
		}
	}
	return ""
}

type completionResponse struct {
	Content   string `json:"content"`
	ModelID   string `json:"modelId"`
	Timestamp int64  `json:"timestamp"`
}

type tokenFrame struct {
	Token string `json:"token"`
}

type doneFrame struct {
	Done bool `json:"done"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.opts.Models})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		logger.Debug("rejecting chat request", "error", err)
		writeError(w, http.StatusBadRequest, ErrMsgMissingParams)
		return
	}
	if req.Messages == nil || req.Model == nil || req.Model.ID == "" {
		writeError(w, http.StatusBadRequest, ErrMsgMissingParams)
		return
	}

	reply, err := s.opts.Responder.Respond(r.Context(), req.Model.ID, req.lastUserPrompt())
	if err != nil {
		logger.Error("failed to generate reply", "model", req.Model.ID, "error", err)
		writeError(w, http.StatusInternalServerError, ErrMsgInternal)
		return
	}

	if req.Stream {
		s.streamReply(w, r, req.Model.ID, reply)
		return
	}

	if err := sleep(r.Context(), s.between(s.opts.CompletionDelayMin, s.opts.CompletionDelayMax)); err != nil {
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{
		Content:   reply,
		ModelID:   req.Model.ID,
		Timestamp: model.NowMillis(),
	})
}

// streamReply writes one token frame per character followed by a done
// frame. It stops quietly when the client goes away.
func (s *Server) streamReply(w http.ResponseWriter, r *http.Request, modelID, reply string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrMsgInternal)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := sleep(ctx, s.between(s.opts.ThinkDelayMin, s.opts.ThinkDelayMax)); err != nil {
		return
	}

	sent := 0
	for _, ch := range reply {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if err := writeFrame(w, tokenFrame{Token: string(ch)}); err != nil {
			logger.Debug("stream write failed", "model", modelID, "sent", sent, "error", err)
			return
		}
		flusher.Flush()
		sent++

		if err := sleep(ctx, s.between(0, s.opts.TokenDelayMax)); err != nil {
			logger.Debug("client left mid-stream", "model", modelID, "sent", sent)
			return
		}
	}

	if err := writeFrame(w, doneFrame{Done: true}); err != nil {
		return
	}
	flusher.Flush()
	logger.Debug("stream complete", "model", modelID, "tokens", sent)
}

// writeFrame writes v as a "data: <json>\n\n" frame.
func writeFrame(w http.ResponseWriter, v any) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends a newline; one more ends the frame.
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
