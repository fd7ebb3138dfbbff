// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant runs one solve action end to end: selection in,
// presentation message out.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AgenticMath/services/explain"
	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/AleutianAI/AgenticMath/services/solver"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "agenticmath.assistant"

// User-facing messages that are not produced by a lower layer.
const (
	TextNoSelection = "No text selected."
	TextUnexpected  = "An unexpected error occurred."
)

// Solver computes answers. Implemented by *solver.Pipeline.
type Solver interface {
	Solve(ctx context.Context, raw string) (solver.Result, error)
}

// Explainer produces explanations. Implemented by *explain.Explainer.
type Explainer interface {
	Explain(ctx context.Context, problem, answer string) explain.Explanation
}

// Config wires an Assistant.
type Config struct {
	Solver    Solver
	Explainer Explainer

	// Logger for diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

// Assistant coordinates solve then explain. Safe for concurrent use if
// its collaborators are.
type Assistant struct {
	solver    Solver
	explainer Explainer
	logger    *slog.Logger
}

// New validates cfg and returns an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Solver == nil {
		return nil, errors.New("solver is required")
	}
	if cfg.Explainer == nil {
		return nil, errors.New("explainer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{solver: cfg.Solver, explainer: cfg.Explainer, logger: cfg.Logger}, nil
}

// Handle turns a selection into the message to present.
//
// # Description
//
// The selection is trimmed; an empty selection is reported without
// solving. When no solver can handle the expression the failure text is
// returned and no explanation is requested. Otherwise the explanation is
// requested for the raw selection and the verified answer. A degraded
// explanation still yields a ResultMessage.
//
// # Outputs
//
//   - overlay.Message: Never nil. Panics and unexpected errors become
//     an ErrorMessage with TextUnexpected.
func (a *Assistant) Handle(ctx context.Context, selection string) (msg overlay.Message) {
	ctx, span := observability.StartSpan(ctx, tracerName, "assistant.Assistant.Handle")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			a.logger.Error("solve action panicked", "error", err)
			observability.RecordError(span, err)
			msg = overlay.ErrorMessage{Error: TextUnexpected}
		}
		span.SetAttributes(attribute.String("overlay.type", msg.Type()))
	}()

	raw := strings.TrimSpace(selection)
	if raw == "" {
		return overlay.ErrorMessage{Error: TextNoSelection}
	}

	res, err := a.solver.Solve(ctx, raw)
	if err != nil {
		observability.RecordError(span, err)
		var noSolver *solver.NoSolverAvailableError
		if errors.As(err, &noSolver) {
			return overlay.ErrorMessage{Error: noSolver.Error()}
		}
		a.logger.Error("solve failed", "raw", raw, "error", err)
		return overlay.ErrorMessage{Error: TextUnexpected}
	}
	span.SetAttributes(attribute.String("solver.used", res.Solver))

	exp := a.explainer.Explain(ctx, raw, res.Answer)
	if exp.Degraded() {
		a.logger.Info("explanation degraded", "outcome", exp.Outcome)
	}
	return overlay.ResultMessage{Answer: res.Answer, Steps: exp.Text}
}

// Dispatch runs Handle and sends its message on out. It returns ctx.Err()
// if ctx is done before the send completes.
func (a *Assistant) Dispatch(ctx context.Context, selection string, out chan<- overlay.Message) error {
	msg := a.Handle(ctx, selection)
	select {
	case out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
