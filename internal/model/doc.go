// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages and
// the mock model registry.
//
// # Key Types
//
//   - Conversation: ordered message history bound to a current model id
//   - Message: a user or assistant turn, optionally flagged as interrupted
//   - ModelDescriptor: an endpoint path plus the tunables sent with each request
//   - ModelConfig: sampling temperature and maximum output length
//
// # Wire Format
//
// All types marshal to the JSON layout the chat endpoints and the persisted
// snapshots use: camelCase keys and Unix millisecond timestamps.
//
//	conv := model.NewConversation("", model.DefaultModelID)
//	conv.AddMessage(model.NewUserMessage("你好", conv.CurrentModelID))
package model
