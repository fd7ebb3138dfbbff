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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEvaluator records calls and returns a fixed answer or error.
type countingEvaluator struct {
	calls  atomic.Int32
	answer string
	err    error
	seen   atomic.Value
}

func (c *countingEvaluator) Evaluate(_ context.Context, expr string) (string, error) {
	c.calls.Add(1)
	c.seen.Store(expr)
	return c.answer, c.err
}

func newPipeline(t *testing.T, local, remote Evaluator) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineConfig{
		Local:   local,
		Remote:  remote,
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// Pipeline
// =============================================================================

func TestNewPipeline_RequiresEvaluators(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{Remote: &countingEvaluator{}})
	assert.Error(t, err)
	_, err = NewPipeline(PipelineConfig{Local: &countingEvaluator{}})
	assert.Error(t, err)
}

func TestPipeline_LocalSuccessSkipsRemote(t *testing.T) {
	local := &countingEvaluator{answer: "6"}
	remote := &countingEvaluator{answer: "should not be used"}
	p := newPipeline(t, local, remote)

	res, err := p.Solve(context.Background(), "2×3")
	require.NoError(t, err)

	assert.Equal(t, "6", res.Answer)
	assert.Equal(t, "2*3", res.Normalized)
	assert.Equal(t, SolverLocal, res.Solver)
	assert.Equal(t, "2*3", local.seen.Load())
	assert.EqualValues(t, 1, local.calls.Load())
	assert.EqualValues(t, 0, remote.calls.Load())
}

func TestPipeline_FallsBackToRemote(t *testing.T) {
	local := &countingEvaluator{err: errors.New("undefined symbol integrate")}
	remote := &countingEvaluator{answer: "x**3/3"}
	p := newPipeline(t, local, remote)

	res, err := p.Solve(context.Background(), "∫x²dx")
	require.NoError(t, err)

	assert.Equal(t, "x**3/3", res.Answer)
	assert.Equal(t, SolverRemote, res.Solver)
	assert.Equal(t, "integrate(x**2, x)", remote.seen.Load())
	assert.EqualValues(t, 1, remote.calls.Load())
}

func TestPipeline_EmptyLocalAnswerFallsBack(t *testing.T) {
	local := &countingEvaluator{answer: ""}
	remote := &countingEvaluator{answer: "6"}
	p := newPipeline(t, local, remote)

	res, err := p.Solve(context.Background(), "2*3")
	require.NoError(t, err)
	assert.Equal(t, SolverRemote, res.Solver)
}

func TestPipeline_BothFail(t *testing.T) {
	local := &countingEvaluator{err: errors.New("local boom")}
	remote := &countingEvaluator{err: errors.New("remote boom")}
	p := newPipeline(t, local, remote)

	_, err := p.Solve(context.Background(), "∫ weird dx")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNoSolverAvailable)
	var nsa *NoSolverAvailableError
	require.ErrorAs(t, err, &nsa)
	assert.Equal(t, "∫ weird dx", nsa.Raw)
	assert.Equal(t,
		`Unable to solve "∫ weird dx". Try formats like: integrate(x**2, x) for integrals, diff(x**2, x) for derivatives.`,
		err.Error())
	assert.ErrorContains(t, nsa.LocalErr, "local boom")
	assert.ErrorContains(t, nsa.RemoteErr, "remote boom")
	assert.EqualValues(t, 1, local.calls.Load())
	assert.EqualValues(t, 1, remote.calls.Load())
}

func TestPipeline_CancelledContext(t *testing.T) {
	local := &countingEvaluator{answer: "6"}
	remote := &countingEvaluator{answer: "6"}
	p := newPipeline(t, local, remote)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Solve(ctx, "2*3")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNoSolverAvailable)
	assert.EqualValues(t, 0, local.calls.Load())
}

func TestPipeline_CancelAfterLocalFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	local := EvaluatorFunc(func(context.Context, string) (string, error) {
		cancel()
		return "", errors.New("nope")
	})
	remote := &countingEvaluator{answer: "6"}
	p := newPipeline(t, local, remote)

	_, err := p.Solve(ctx, "2*3")
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, remote.calls.Load())
}

// =============================================================================
// RemoteSolver
// =============================================================================

func newRemote(t *testing.T, handler http.HandlerFunc) (*RemoteSolver, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := settings.NewMemoryStore(settings.Settings{SolverEndpointURL: srv.URL + "/solve"})
	r, err := NewRemoteSolver(RemoteSolverConfig{Settings: store, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return r, srv
}

func TestRemoteSolver_Success(t *testing.T) {
	r, _ := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/solve", req.URL.Path)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

		var body SolveRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "integrate(x**2, x)", body.Expression)

		_ = json.NewEncoder(w).Encode(SolveResponse{Result: "x**3/3"})
	})

	out, err := r.Evaluate(context.Background(), "integrate(x**2, x)")
	require.NoError(t, err)
	assert.Equal(t, "x**3/3", out)
}

func TestRemoteSolver_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"error payload", http.StatusOK, `{"error":"cannot parse"}`, "cannot parse"},
		{"bad request with error", http.StatusBadRequest, `{"error":"Invalid mathematical expression: x"}`, "status 400"},
		{"server error without body", http.StatusInternalServerError, ``, "status 500"},
		{"empty result", http.StatusOK, `{"result":""}`, ErrEmptyResult.Error()},
		{"not json", http.StatusOK, `<html>`, "decode response"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := r.Evaluate(context.Background(), "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRemoteSolver_StatusError(t *testing.T) {
	r, _ := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No expression provided"}`))
	})
	_, err := r.Evaluate(context.Background(), "")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "No expression provided", se.Message)
}

func TestRemoteSolver_ReadsEndpointPerCall(t *testing.T) {
	var firstHits, secondHits atomic.Int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		firstHits.Add(1)
		_, _ = w.Write([]byte(`{"result":"1"}`))
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		secondHits.Add(1)
		_, _ = w.Write([]byte(`{"result":"2"}`))
	}))
	defer second.Close()

	store := settings.NewMemoryStore(settings.Settings{SolverEndpointURL: first.URL})
	r, err := NewRemoteSolver(RemoteSolverConfig{Settings: store})
	require.NoError(t, err)

	out, err := r.Evaluate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	require.NoError(t, store.Save(context.Background(), settings.Settings{SolverEndpointURL: second.URL}))
	out, err = r.Evaluate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "2", out)

	assert.EqualValues(t, 1, firstHits.Load())
	assert.EqualValues(t, 1, secondHits.Load())
}

func TestRemoteSolver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := settings.NewMemoryStore(settings.Settings{SolverEndpointURL: url})
	r, err := NewRemoteSolver(RemoteSolverConfig{Settings: store})
	require.NoError(t, err)

	_, err = r.Evaluate(context.Background(), "x")
	assert.ErrorContains(t, err, "request failed")
}

func TestPipeline_RemoteErrorPayloadEndToEnd(t *testing.T) {
	r, _ := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Invalid mathematical expression"}`))
	})
	local := &countingEvaluator{err: errors.New("local failed")}
	p := newPipeline(t, local, r)

	_, err := p.Solve(context.Background(), "d/dq(??)")
	require.ErrorIs(t, err, ErrNoSolverAvailable)
	assert.Contains(t, err.Error(), `"d/dq(??)"`)
}
