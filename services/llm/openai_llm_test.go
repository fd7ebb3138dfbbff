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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatRequest mirrors the fields of the wire request the tests inspect.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

func newCompletionServer(t *testing.T, status int, body string, seen *chatRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   DefaultModel,
		"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	})
	return string(b)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)

	_, err = NewOpenAIClient(OpenAIConfig{APIKey: "   "})
	assert.Error(t, err)
}

func TestNewOpenAIClient_Defaults(t *testing.T) {
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "gsk_test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
}

func TestOpenAIClient_Generate_Success(t *testing.T) {
	var seen chatRequest
	var auth string
	srv := newCompletionServer(t, http.StatusOK, completionBody("Step 1\nFinal Answer: 6"), &seen, &auth)

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "gsk_test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "explain 2*3", GenerationParams{
		MaxTokens:   Int(200),
		Temperature: Float32(0.1),
	})
	require.NoError(t, err)
	assert.Equal(t, "Step 1\nFinal Answer: 6", out)

	assert.Equal(t, "Bearer gsk_test", auth)
	assert.Equal(t, DefaultModel, seen.Model)
	require.Len(t, seen.Messages, 1)
	assert.Equal(t, "user", seen.Messages[0].Role)
	assert.Equal(t, "explain 2*3", seen.Messages[0].Content)
	assert.Equal(t, 200, seen.MaxTokens)
	assert.InDelta(t, 0.1, seen.Temperature, 1e-6)
}

func TestOpenAIClient_Generate_EmptyChoices(t *testing.T) {
	srv := newCompletionServer(t, http.StatusOK, `{"id":"x","choices":[]}`, nil, nil)
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p", GenerationParams{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_Generate_StatusCodes(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			body := `{"error":{"message":"nope","type":"invalid_request_error"}}`
			srv := newCompletionServer(t, status, body, nil, nil)
			c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
			require.NoError(t, err)

			_, err = c.Generate(context.Background(), "p", GenerationParams{})
			require.Error(t, err)
			assert.Equal(t, status, StatusCode(err))
		})
	}
}

func TestOpenAIClient_Generate_NonJSONErrorBody(t *testing.T) {
	srv := newCompletionServer(t, http.StatusBadGateway, "upstream down", nil, nil)
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p", GenerationParams{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}

func TestOpenAIClient_Generate_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: url + "/v1"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p", GenerationParams{})
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func TestStatusCode_PlainError(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
	assert.Equal(t, 0, StatusCode(nil))
}
