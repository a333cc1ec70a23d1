// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// DefaultModelID is the model used when nothing else is selected.
const DefaultModelID = "mock-gpt"

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelConfig holds the per-model tunables sent with every request.
type ModelConfig struct {
	Temperature float64 `json:"temperature" toml:"temperature"`
	MaxTokens   int     `json:"maxTokens" toml:"max_tokens"`
}

// ConfigPatch is a partial ModelConfig update. Nil fields are left alone.
type ConfigPatch struct {
	Temperature *float64
	MaxTokens   *int
}

// Apply merges p into c.
func (p ConfigPatch) Apply(c ModelConfig) ModelConfig {
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		c.MaxTokens = *p.MaxTokens
	}
	return c
}

// ModelDescriptor describes a chat model: where to reach it and how to tune it.
type ModelDescriptor struct {
	ID          string      `json:"id"`
	API         string      `json:"api"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Config      ModelConfig `json:"config"`
}

// String returns a one-line summary for listings.
func (m ModelDescriptor) String() string {
	return fmt.Sprintf("%s (%s) temperature=%.2f maxTokens=%d",
		m.Name, m.ID, m.Config.Temperature, m.Config.MaxTokens)
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// defaultConfigs are the factory tunables per model id.
var defaultConfigs = map[string]ModelConfig{
	"mock-gpt":      {Temperature: 0.7, MaxTokens: 1000},
	"mock-doubao":   {Temperature: 0.8, MaxTokens: 2000},
	"mock-deepseek": {Temperature: 0.8, MaxTokens: 2000},
}

// DefaultModels returns a fresh copy of the built-in model list.
func DefaultModels() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:          "mock-gpt",
			API:         "/api/chat/gpt",
			Name:        "Mock GPT",
			Description: "模拟GPT模型，返回预设响应",
			Config:      defaultConfigs["mock-gpt"],
		},
		{
			ID:          "mock-doubao",
			API:         "/api/chat/doubao",
			Name:        "Mock Doubao",
			Description: "模拟doubao模型，返回预设响应",
			Config:      defaultConfigs["mock-doubao"],
		},
		{
			ID:          "mock-deepseek",
			API:         "/api/chat/deepseek",
			Name:        "Mock Deepseek",
			Description: "模拟deepseek模型，返回预设响应",
			Config:      defaultConfigs["mock-deepseek"],
		},
	}
}

// DefaultConfig returns the factory tunables for modelID, falling back to
// the DefaultModelID settings for unknown ids.
func DefaultConfig(modelID string) ModelConfig {
	if cfg, ok := defaultConfigs[modelID]; ok {
		return cfg
	}
	return defaultConfigs[DefaultModelID]
}

// FindModel returns the descriptor with id from models.
func FindModel(models []ModelDescriptor, id string) (ModelDescriptor, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}
