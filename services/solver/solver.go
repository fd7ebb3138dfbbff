// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package solver computes answers for selected math text by trying a
// local evaluator first and a remote symbolic solver second.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AgenticMath/pkg/notation"
	"github.com/AleutianAI/AgenticMath/services/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agenticmath.solver"

// Solver names reported in Result.Solver and metrics.
const (
	SolverLocal  = "local"
	SolverRemote = "remote"
)

var (
	// ErrNoSolverAvailable matches every *NoSolverAvailableError.
	ErrNoSolverAvailable = errors.New("no solver available")

	// ErrEmptyResult is returned by an evaluator that produced nothing.
	ErrEmptyResult = errors.New("solver returned an empty result")
)

// Evaluator computes the answer for a normalized expression.
type Evaluator interface {
	// Evaluate returns the display string for expression, or an error if
	// the expression is malformed or unsupported.
	Evaluate(ctx context.Context, expression string) (string, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, expression string) (string, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, expression string) (string, error) {
	return f(ctx, expression)
}

// Result is a successful solve.
type Result struct {
	// Answer is the solver's display string, passed through unchanged.
	Answer string `json:"answer"`

	// Normalized is the expression the solver saw.
	Normalized string `json:"normalized"`

	// Solver is SolverLocal or SolverRemote.
	Solver string `json:"solver"`
}

// NoSolverAvailableError is the single terminal solve failure.
type NoSolverAvailableError struct {
	// Raw is the expression as selected, before normalization.
	Raw string

	LocalErr  error
	RemoteErr error
}

func (e *NoSolverAvailableError) Error() string {
	return fmt.Sprintf("Unable to solve \"%s\". %s", e.Raw, notation.Hint)
}

func (e *NoSolverAvailableError) Is(target error) bool { return target == ErrNoSolverAvailable }

func (e *NoSolverAvailableError) Unwrap() []error {
	var errs []error
	if e.LocalErr != nil {
		errs = append(errs, e.LocalErr)
	}
	if e.RemoteErr != nil {
		errs = append(errs, e.RemoteErr)
	}
	return errs
}

// =============================================================================
// Pipeline
// =============================================================================

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	// Local is tried first. Required.
	Local Evaluator

	// Remote is tried when Local fails. Required.
	Remote Evaluator

	// Metrics records attempts. May be nil.
	Metrics *observability.Metrics

	// Logger for attempt diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

// Pipeline is the two-stage solve fallback. Safe for concurrent use if
// its evaluators are.
type Pipeline struct {
	local   Evaluator
	remote  Evaluator
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPipeline validates cfg and returns a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Local == nil {
		return nil, errors.New("local evaluator is required")
	}
	if cfg.Remote == nil {
		return nil, errors.New("remote evaluator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		local:   cfg.Local,
		remote:  cfg.Remote,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Solve normalizes raw and computes its answer.
//
// # Description
//
// The local evaluator runs first; if it succeeds the remote solver is
// never called. Otherwise the remote solver is called once. There are no
// retries.
//
// # Inputs
//
//   - ctx: Cancelling ctx aborts the flow with ctx.Err().
//   - raw: The selected text, already trimmed.
//
// # Outputs
//
//   - Result: The answer and which solver produced it.
//   - error: *NoSolverAvailableError when both attempts fail, or the
//     context error.
func (p *Pipeline) Solve(ctx context.Context, raw string) (Result, error) {
	normalized := notation.Normalize(raw)

	ctx, span := observability.StartSpan(ctx, tracerName, "solver.Pipeline.Solve",
		trace.WithAttributes(attribute.String("solver.normalized", normalized)),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		return Result{}, err
	}

	answer, localErr := p.attempt(ctx, SolverLocal, p.local, normalized)
	if localErr == nil {
		span.SetAttributes(attribute.String("solver.used", SolverLocal))
		return Result{Answer: answer, Normalized: normalized, Solver: SolverLocal}, nil
	}
	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		return Result{}, err
	}

	p.logger.Info("local evaluation failed, trying remote solver",
		"expression", normalized, "error", localErr)

	answer, remoteErr := p.attempt(ctx, SolverRemote, p.remote, normalized)
	if remoteErr == nil {
		span.SetAttributes(attribute.String("solver.used", SolverRemote))
		return Result{Answer: answer, Normalized: normalized, Solver: SolverRemote}, nil
	}
	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		return Result{}, err
	}

	err := &NoSolverAvailableError{Raw: raw, LocalErr: localErr, RemoteErr: remoteErr}
	p.logger.Warn("no solver could handle expression",
		"raw", raw, "expression", normalized, "local_error", localErr, "remote_error", remoteErr)
	observability.RecordError(span, err)
	return Result{}, err
}

func (p *Pipeline) attempt(ctx context.Context, name string, ev Evaluator, expr string) (string, error) {
	start := time.Now()
	answer, err := ev.Evaluate(ctx, expr)
	if err == nil && answer == "" {
		err = ErrEmptyResult
	}
	p.metrics.RecordSolveAttempt(name, err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s evaluator: %w", name, err)
	}
	return answer, nil
}
