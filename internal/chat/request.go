// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/jeranaias/mockchat/internal/model"
)

// Request is the JSON body posted to a model endpoint.
type Request struct {
	ModelID  string        `json:"modelId"`
	Model    RequestModel  `json:"model"`
	Messages []WireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// RequestModel is the model descriptor plus the flattened per-model
// parameters the endpoint reads.
type RequestModel struct {
	model.ModelDescriptor
	ModelSpecificConfig map[string]any `json:"modelSpecificConfig,omitempty"`
}

// WireMessage is a history entry without id or timestamp.
type WireMessage struct {
	Role        model.Role `json:"role"`
	Content     string     `json:"content"`
	ModelID     string     `json:"modelId,omitempty"`
	Interrupted bool       `json:"interrupted,omitempty"`
}

// NewRequest builds the body for desc and history.
func NewRequest(desc model.ModelDescriptor, history []*model.Message, stream bool) Request {
	msgs := make([]WireMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, WireMessage{
			Role:        m.Role,
			Content:     m.Content,
			ModelID:     m.ModelID,
			Interrupted: m.Interrupted,
		})
	}
	return Request{
		ModelID: desc.ID,
		Model: RequestModel{
			ModelDescriptor: desc,
			ModelSpecificConfig: map[string]any{
				"modelId":     desc.ID,
				"temperature": desc.Config.Temperature,
				"maxTokens":   desc.Config.MaxTokens,
			},
		},
		Messages: msgs,
		Stream:   stream,
	}
}

// Endpoint joins a base URL and a model API path.
func Endpoint(baseURL, api string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(api, "/")
}
