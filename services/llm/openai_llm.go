// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the model used for step-by-step explanations.
	DefaultModel = "llama-3.1-8b-instant"
)

// OpenAIConfig configures an OpenAI-compatible chat-completions client.
type OpenAIConfig struct {
	// APIKey is sent as "Authorization: Bearer <APIKey>".
	APIKey string

	// BaseURL is the API root; "/chat/completions" is appended.
	// Default: DefaultBaseURL.
	BaseURL string

	// Model is the model name. Default: DefaultModel.
	Model string

	// HTTPClient overrides the transport. Default: a client without a
	// timeout; the caller's context bounds the call.
	HTTPClient *http.Client

	// Logger for request diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient builds a client for any OpenAI-compatible endpoint.
//
// # Description
//
// The key is passed in rather than read from the environment. The
// explanation credential lives in the settings store and is read at the
// point of use, so a client is built per request.
//
// # Inputs
//
//   - cfg: Client configuration. APIKey must be non-empty.
//
// # Outputs
//
//   - *OpenAIClient: Ready-to-use client.
//   - error: Non-nil if APIKey is empty.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: cfg.Logger,
	}, nil
}

// Model returns the configured model name.
func (o *OpenAIClient) Model() string { return o.model }

// Generate implements the LLMClient interface.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	o.logger.Debug("Generating text via OpenAI-compatible API", "model", o.model)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("chat completion call failed", "status", StatusCode(err), "error", err)
		return "", fmt.Errorf("chat completion call failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		o.logger.Warn("chat completion returned no choices or empty content")
		return "", ErrEmptyResponse
	}
	o.logger.Debug("Received chat completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// StatusCode extracts the HTTP status code from an error returned by an
// OpenAI-compatible backend.
//
// # Outputs
//
//   - int: The status code, or 0 when err carries none (transport
//     failures, decoding failures, context errors).
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

var _ LLMClient = (*OpenAIClient)(nil)
