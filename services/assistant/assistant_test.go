// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/AgenticMath/services/explain"
	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/AleutianAI/AgenticMath/services/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSolver struct {
	calls atomic.Int32
	raw   string
	fn    func(raw string) (solver.Result, error)
}

func (s *stubSolver) Solve(_ context.Context, raw string) (solver.Result, error) {
	s.calls.Add(1)
	s.raw = raw
	return s.fn(raw)
}

type stubExplainer struct {
	calls   atomic.Int32
	problem string
	answer  string
	out     explain.Explanation
}

func (s *stubExplainer) Explain(_ context.Context, problem, answer string) explain.Explanation {
	s.calls.Add(1)
	s.problem, s.answer = problem, answer
	return s.out
}

func newAssistant(t *testing.T, s Solver, e Explainer) *Assistant {
	t.Helper()
	a, err := New(Config{Solver: s, Explainer: e})
	require.NoError(t, err)
	return a
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Explainer: &stubExplainer{}})
	assert.Error(t, err)
	_, err = New(Config{Solver: &stubSolver{}})
	assert.Error(t, err)
}

func TestHandle_EmptySelection(t *testing.T) {
	s := &stubSolver{}
	e := &stubExplainer{}
	a := newAssistant(t, s, e)

	for _, sel := range []string{"", "   ", "\n\t"} {
		msg := a.Handle(context.Background(), sel)
		assert.Equal(t, overlay.ErrorMessage{Error: TextNoSelection}, msg)
	}
	assert.EqualValues(t, 0, s.calls.Load())
	assert.EqualValues(t, 0, e.calls.Load())
}

func TestHandle_Success(t *testing.T) {
	s := &stubSolver{fn: func(string) (solver.Result, error) {
		return solver.Result{Answer: "6", Normalized: "2*3", Solver: solver.SolverLocal}, nil
	}}
	e := &stubExplainer{out: explain.Explanation{Text: "Multiply\nFinal Answer: 6", Outcome: explain.OutcomeGenerated}}
	a := newAssistant(t, s, e)

	msg := a.Handle(context.Background(), "  2×3  ")

	assert.Equal(t, overlay.ResultMessage{Answer: "6", Steps: "Multiply\nFinal Answer: 6"}, msg)
	assert.Equal(t, "2×3", s.raw, "solver receives the trimmed selection")
	assert.Equal(t, "2×3", e.problem, "explanation uses the raw selection")
	assert.Equal(t, "6", e.answer)
}

func TestHandle_DegradedExplanationStillShowsAnswer(t *testing.T) {
	s := &stubSolver{fn: func(string) (solver.Result, error) {
		return solver.Result{Answer: "6", Solver: solver.SolverLocal}, nil
	}}
	e := &stubExplainer{out: explain.Explanation{Text: explain.TextMissingCredential, Outcome: explain.OutcomeMissingCredential}}
	a := newAssistant(t, s, e)

	msg := a.Handle(context.Background(), "2*3")
	assert.Equal(t, overlay.ResultMessage{Answer: "6", Steps: explain.TextMissingCredential}, msg)
}

func TestHandle_NoSolverSkipsExplanation(t *testing.T) {
	noSolver := &solver.NoSolverAvailableError{Raw: "hello world"}
	s := &stubSolver{fn: func(string) (solver.Result, error) { return solver.Result{}, noSolver }}
	e := &stubExplainer{}
	a := newAssistant(t, s, e)

	msg := a.Handle(context.Background(), "hello world")

	require.IsType(t, overlay.ErrorMessage{}, msg)
	assert.Equal(t, noSolver.Error(), msg.(overlay.ErrorMessage).Error)
	assert.Contains(t, msg.(overlay.ErrorMessage).Error, `Unable to solve "hello world"`)
	assert.EqualValues(t, 0, e.calls.Load())
}

func TestHandle_OtherSolveErrorIsUnexpected(t *testing.T) {
	s := &stubSolver{fn: func(string) (solver.Result, error) { return solver.Result{}, context.Canceled }}
	e := &stubExplainer{}
	a := newAssistant(t, s, e)

	msg := a.Handle(context.Background(), "1+1")
	assert.Equal(t, overlay.ErrorMessage{Error: TextUnexpected}, msg)
	assert.EqualValues(t, 0, e.calls.Load())
}

func TestHandle_PanicIsRecovered(t *testing.T) {
	s := &stubSolver{fn: func(string) (solver.Result, error) { panic("boom") }}
	a := newAssistant(t, s, &stubExplainer{})

	var msg overlay.Message
	assert.NotPanics(t, func() { msg = a.Handle(context.Background(), "1+1") })
	assert.Equal(t, overlay.ErrorMessage{Error: TextUnexpected}, msg)
}

func TestDispatch_SendsOnChannel(t *testing.T) {
	a := newAssistant(t, &stubSolver{}, &stubExplainer{})
	out := make(chan overlay.Message, 1)

	require.NoError(t, a.Dispatch(context.Background(), "", out))
	assert.Equal(t, overlay.ErrorMessage{Error: TextNoSelection}, <-out)
}

func TestDispatch_CancelledBeforeSend(t *testing.T) {
	a := newAssistant(t, &stubSolver{}, &stubExplainer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Dispatch(ctx, "", make(chan overlay.Message))
	assert.ErrorIs(t, err, context.Canceled)
}

// End to end through the real pipeline and explainer, with the remote
// solver failing and no credential stored.
func TestHandle_RealPipeline(t *testing.T) {
	store := settings.NewMemoryStore(settings.Settings{})
	remote := solver.EvaluatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})
	pipeline, err := solver.NewPipeline(solver.PipelineConfig{
		Local:  solver.NewJSEvaluator(solver.JSEvaluatorConfig{}),
		Remote: remote,
	})
	require.NoError(t, err)
	explainer, err := explain.NewExplainer(explain.Config{Settings: store})
	require.NoError(t, err)

	a := newAssistant(t, pipeline, explainer)

	msg := a.Handle(context.Background(), "2×3")
	assert.Equal(t, overlay.ResultMessage{Answer: "6", Steps: explain.TextMissingCredential}, msg)

	msg = a.Handle(context.Background(), "integrate(x^2, x)")
	require.IsType(t, overlay.ErrorMessage{}, msg)
	assert.Contains(t, msg.(overlay.ErrorMessage).Error, "Try formats like")
}
