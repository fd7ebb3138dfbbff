// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/AgenticMath/services/settings"
)

// maxResponseBytes caps how much of a solver response is read.
const maxResponseBytes = 1 << 20

// SolveRequest is the remote solver request body.
type SolveRequest struct {
	Expression string `json:"expression"`
}

// SolveResponse is the remote solver response body. Exactly one field is
// set by a well-behaved server.
type SolveResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RemoteSolverConfig configures a RemoteSolver.
type RemoteSolverConfig struct {
	// Settings supplies the endpoint URL. Required.
	Settings settings.Store

	// HTTPClient overrides the transport. Default: a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each call. Zero means no timeout.
	Timeout time.Duration

	// Logger for request diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

// RemoteSolver calls the symbolic solver server over HTTP.
//
// # Description
//
// The endpoint is read from the settings store on every call, so a change
// saved through the settings form applies to the next solve without a
// restart.
//
// # Thread Safety
//
// Safe for concurrent use.
type RemoteSolver struct {
	settings settings.Store
	client   *http.Client
	logger   *slog.Logger
}

// NewRemoteSolver returns a RemoteSolver for cfg.
func NewRemoteSolver(cfg RemoteSolverConfig) (*RemoteSolver, error) {
	if cfg.Settings == nil {
		return nil, errors.New("settings store is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RemoteSolver{settings: cfg.Settings, client: cfg.HTTPClient, logger: cfg.Logger}, nil
}

// Evaluate implements Evaluator.
//
// # Outputs
//
//   - string: The server's result, unchanged.
//   - error: Non-nil for a transport failure, a non-2xx status, an error
//     payload, or an empty result.
func (r *RemoteSolver) Evaluate(ctx context.Context, expression string) (string, error) {
	s, err := r.settings.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	endpoint := s.WithDefaults().SolverEndpointURL

	body, err := json.Marshal(SolveRequest{Expression: expression})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	r.logger.Debug("calling remote solver", "endpoint", endpoint, "expression", expression)
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote solver request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out SolveResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != "" {
			return "", &StatusError{StatusCode: resp.StatusCode, Message: out.Error}
		}
		return "", &StatusError{StatusCode: resp.StatusCode}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if out.Error != "" {
		return "", fmt.Errorf("remote solver: %s", out.Error)
	}
	if out.Result == "" {
		return "", ErrEmptyResult
	}
	return out.Result, nil
}

// StatusError is a non-2xx reply from the remote solver.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := "remote solver returned status " + strconv.Itoa(e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

var _ Evaluator = (*RemoteSolver)(nil)
