// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package explain asks a language model for step-by-step explanations of
// an already computed answer.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AgenticMath/services/llm"
	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "agenticmath.explain"

// Request parameters sent with every explanation call.
const (
	DefaultMaxTokens   = 200
	DefaultTemperature = float32(0.1)
)

// User-facing texts substituted for an explanation when one cannot be
// produced.
const (
	TextMissingCredential = "Please set your Groq API key in the extension settings to get step-by-step explanations."
	TextInvalidCredential = "Invalid API key. Please check your Groq API key in settings."
	TextRateLimited       = "Rate limit exceeded. Please try again in a moment."
	TextConnectivity      = "Error connecting to explanation service."
	TextEmpty             = "No explanation generated."
	TextUnexpected        = "An unexpected error occurred."
)

// Outcome classifies how an explanation was obtained.
type Outcome string

const (
	OutcomeGenerated         Outcome = "generated"
	OutcomeMissingCredential Outcome = "missing_credential"
	OutcomeInvalidCredential Outcome = "invalid_credential"
	OutcomeRateLimited       Outcome = "rate_limited"
	OutcomeAPIError          Outcome = "api_error"
	OutcomeConnectivity      Outcome = "connectivity"
	OutcomeEmpty             Outcome = "empty"
	OutcomeUnexpected        Outcome = "unexpected"
)

// Explanation is the text shown under the answer.
type Explanation struct {
	// Text is the model's steps, or a fallback sentence when Degraded.
	Text string `json:"text"`

	// Outcome tells a generated explanation apart from a fallback.
	Outcome Outcome `json:"outcome"`
}

// Degraded reports whether Text is a fallback message.
func (e Explanation) Degraded() bool { return e.Outcome != OutcomeGenerated }

// ClientFactory builds an LLM client for a credential. The credential is
// read from settings on every call, so the client is built per request.
type ClientFactory func(credential string) (llm.LLMClient, error)

// OpenAIClientFactory returns a ClientFactory for an OpenAI-compatible
// endpoint. Empty baseURL and model use the llm package defaults.
func OpenAIClientFactory(baseURL, model string, httpClient *http.Client, logger *slog.Logger) ClientFactory {
	return func(credential string) (llm.LLMClient, error) {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:     credential,
			BaseURL:    baseURL,
			Model:      model,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
}

// Config wires an Explainer.
type Config struct {
	// Settings supplies the credential. Required.
	Settings settings.Store

	// NewClient builds the LLM client. Default: OpenAIClientFactory with
	// package defaults.
	NewClient ClientFactory

	// MaxTokens caps the response. Default: DefaultMaxTokens.
	MaxTokens int

	// Temperature for sampling. nil means DefaultTemperature.
	Temperature *float32

	// Metrics records outcomes. May be nil.
	Metrics *observability.Metrics

	// Logger for diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

// Explainer requests explanations. Safe for concurrent use.
type Explainer struct {
	settings    settings.Store
	newClient   ClientFactory
	maxTokens   int
	temperature float32
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewExplainer validates cfg and returns an Explainer.
func NewExplainer(cfg Config) (*Explainer, error) {
	if cfg.Settings == nil {
		return nil, errors.New("settings store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewClient == nil {
		cfg.NewClient = OpenAIClientFactory("", "", nil, cfg.Logger)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	return &Explainer{
		settings:    cfg.Settings,
		newClient:   cfg.NewClient,
		maxTokens:   cfg.MaxTokens,
		temperature: temperature,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}, nil
}

// Explain returns step-by-step instructions for reaching answer.
//
// # Description
//
// Never fails. Without a stored credential it returns
// TextMissingCredential and makes no network call. Every failure of the
// model call is mapped to a fixed sentence:
//
//	401                 -> TextInvalidCredential
//	429                 -> TextRateLimited
//	other non-2xx       -> "API Error (<status>): ..."
//	transport / decode  -> TextConnectivity
//	no choices or empty -> TextEmpty
//
// # Inputs
//
//   - ctx: Bounds the model call.
//   - problem: The expression as the user selected it.
//   - answer: The verified answer the model must not recompute.
//
// # Outputs
//
//   - Explanation: Steps or fallback text, with its Outcome.
func (e *Explainer) Explain(ctx context.Context, problem, answer string) Explanation {
	ctx, span := observability.StartSpan(ctx, tracerName, "explain.Explainer.Explain")
	defer span.End()

	out := e.explain(ctx, problem, answer)
	span.SetAttributes(attribute.String("explain.outcome", string(out.Outcome)))
	e.metrics.RecordExplanation(string(out.Outcome))
	return out
}

func (e *Explainer) explain(ctx context.Context, problem, answer string) Explanation {
	s, err := e.settings.Load(ctx)
	if err != nil {
		e.logger.Error("failed to load settings for explanation", "error", err)
		return Explanation{Text: TextUnexpected, Outcome: OutcomeUnexpected}
	}
	e.logger.Debug("explanation credential", "credential_present", s.Credential != "")
	if s.Credential == "" {
		return Explanation{Text: TextMissingCredential, Outcome: OutcomeMissingCredential}
	}

	client, err := e.newClient(s.Credential)
	if err != nil {
		e.logger.Error("failed to build llm client", "error", err)
		return Explanation{Text: TextConnectivity, Outcome: OutcomeConnectivity}
	}

	text, err := client.Generate(ctx, BuildPrompt(problem, answer), llm.GenerationParams{
		MaxTokens:   llm.Int(e.maxTokens),
		Temperature: llm.Float32(e.temperature),
	})
	if err != nil {
		return classify(err, e.logger)
	}
	return Explanation{Text: text, Outcome: OutcomeGenerated}
}

func classify(err error, logger *slog.Logger) Explanation {
	if errors.Is(err, llm.ErrEmptyResponse) {
		return Explanation{Text: TextEmpty, Outcome: OutcomeEmpty}
	}
	status := llm.StatusCode(err)
	logger.Warn("explanation request failed", "status", status, "error", err)
	switch {
	case status == http.StatusUnauthorized:
		return Explanation{Text: TextInvalidCredential, Outcome: OutcomeInvalidCredential}
	case status == http.StatusTooManyRequests:
		return Explanation{Text: TextRateLimited, Outcome: OutcomeRateLimited}
	case status != 0 && (status < 200 || status > 299):
		return Explanation{
			Text:    fmt.Sprintf("API Error (%d): Please check your API key and try again.", status),
			Outcome: OutcomeAPIError,
		}
	}
	return Explanation{Text: TextConnectivity, Outcome: OutcomeConnectivity}
}
