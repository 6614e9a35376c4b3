// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to the OpenAI chat completion API.
type OpenAIClient struct {
	api    *openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates an API-backed client.
//
// Inputs:
//
//	apiKey - OpenAI API key. Must be non-empty.
//	logger - Logger (nil for default).
//
// Outputs:
//
//	*OpenAIClient - The configured client.
//	error - Non-nil when apiKey is empty.
func NewOpenAIClient(apiKey string, logger *slog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("assistant: OpenAI API key is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{api: openai.NewClient(apiKey), logger: logger}, nil
}

// Name implements Client.
func (c *OpenAIClient) Name() string { return "openai" }

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, request Request) (*Response, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: request.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: request.Prompt},
		},
		ReasoningEffort: request.ReasoningEffort,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("assistant: chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("assistant reply received",
		slog.Int("prompt_len", len(request.Prompt)),
		slog.Int("reply_len", len(content)),
		slog.Int("tokens_used", resp.Usage.TotalTokens),
	)
	return &Response{Content: content}, nil
}
