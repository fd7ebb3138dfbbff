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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// DefaultEvalTimeout bounds a single local evaluation.
const DefaultEvalTimeout = 2 * time.Second

// ErrUnsupportedResult is returned when an expression evaluates to
// something that is not a displayable number, array or boolean.
var ErrUnsupportedResult = errors.New("unsupported result type")

// scopePrelude binds the math.js function and constant names the local
// evaluator understands.
const scopePrelude = `
var sin = Math.sin, cos = Math.cos, tan = Math.tan,
    asin = Math.asin, acos = Math.acos, atan = Math.atan, atan2 = Math.atan2,
    sinh = Math.sinh, cosh = Math.cosh, tanh = Math.tanh,
    sqrt = Math.sqrt, cbrt = Math.cbrt, abs = Math.abs, exp = Math.exp,
    log = Math.log, log10 = Math.log10, log2 = Math.log2,
    floor = Math.floor, ceil = Math.ceil, round = Math.round, sign = Math.sign,
    min = Math.min, max = Math.max, pow = Math.pow,
    pi = Math.PI, e = Math.E, PI = Math.PI, E = Math.E,
    phi = (1 + Math.sqrt(5)) / 2, tau = 2 * Math.PI;
`

// JSEvaluatorConfig configures a JSEvaluator.
type JSEvaluatorConfig struct {
	// Timeout interrupts evaluations that run longer. Default:
	// DefaultEvalTimeout.
	Timeout time.Duration

	// Logger for evaluation diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

// JSEvaluator is the local evaluator. It evaluates numeric expressions on
// an embedded JavaScript runtime with a math.js-like scope.
//
// # Description
//
// Each call runs on a fresh goja runtime, so no state survives between
// evaluations. "^" is exponentiation, as in math.js. Symbolic operations
// such as integrate and diff are not defined, so they fail here and fall
// through to the remote solver.
//
// # Limitations
//
//   - "-2^2" is a syntax error in JavaScript; math.js accepts it.
//   - No units, complex numbers or matrix arithmetic.
//
// # Thread Safety
//
// Safe for concurrent use.
type JSEvaluator struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewJSEvaluator returns a JSEvaluator for cfg.
func NewJSEvaluator(cfg JSEvaluatorConfig) *JSEvaluator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEvalTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &JSEvaluator{timeout: cfg.Timeout, logger: cfg.Logger}
}

// Evaluate implements Evaluator.
func (j *JSEvaluator) Evaluate(ctx context.Context, expression string) (string, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return "", ErrEmptyResult
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	vm := goja.New()
	if _, err := vm.RunString(scopePrelude); err != nil {
		return "", fmt.Errorf("init scope: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	source := "(" + strings.ReplaceAll(expression, "^", "**") + "\n)"
	v, err := vm.RunString(source)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			j.logger.Warn("local evaluation interrupted", "expression", expression, "timeout", j.timeout)
			if cause, ok := interrupted.Value().(error); ok {
				return "", fmt.Errorf("evaluation interrupted: %w", cause)
			}
		}
		return "", fmt.Errorf("evaluation failed: %w", err)
	}

	out, err := formatValue(v)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", ErrEmptyResult
	}
	j.logger.Debug("local evaluation succeeded", "expression", expression, "result", out)
	return out, nil
}

// formatValue renders a result the way math.js formats it for display.
func formatValue(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("%w: no value", ErrUnsupportedResult)
	}
	if goja.IsNaN(v) {
		return "", fmt.Errorf("%w: NaN", ErrUnsupportedResult)
	}
	if _, ok := goja.AssertFunction(v); ok {
		return "", fmt.Errorf("%w: function", ErrUnsupportedResult)
	}

	switch x := v.Export().(type) {
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return formatNumber(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case []interface{}:
		return formatArray(x)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedResult, v.ExportType())
}

func formatArray(items []interface{}) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch x := item.(type) {
		case int64:
			parts = append(parts, strconv.FormatInt(x, 10))
		case float64:
			if math.IsNaN(x) {
				parts = append(parts, "NaN")
				continue
			}
			parts = append(parts, jsNumberString(x))
		case bool:
			parts = append(parts, strconv.FormatBool(x))
		case []interface{}:
			s, err := formatArray(x)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		default:
			return "", fmt.Errorf("%w: array element %T", ErrUnsupportedResult, item)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

// formatNumber prints integers exactly and everything else with 10
// significant digits, trailing zeros removed.
func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f):
		return jsNumberString(f)
	}
	return toPrecision(f, 10)
}

// jsNumberString is JavaScript's Number.prototype.toString for finite f.
func jsNumberString(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-7 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return jsExponent(strconv.FormatFloat(f, 'e', -1, 64))
}

// toPrecision is Number.prototype.toPrecision(p) with trailing zeros of
// the fraction removed.
func toPrecision(f float64, p int) string {
	e := strconv.FormatFloat(f, 'e', p-1, 64)
	mant, expStr, _ := strings.Cut(e, "e")
	exp, _ := strconv.Atoi(expStr)
	if exp < -6 || exp >= p {
		return jsExponent(trimFraction(mant) + "e" + expStr)
	}
	return trimFraction(strconv.FormatFloat(f, 'f', p-1-exp, 64))
}

func trimFraction(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// jsExponent rewrites Go's "1.5e+07" exponent as JavaScript's "1.5e+7".
func jsExponent(s string) string {
	mant, expStr, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	exp, err := strconv.Atoi(expStr)
	if err != nil {
		return s
	}
	sign := "+"
	if exp < 0 {
		sign = "-"
		exp = -exp
	}
	return mant + "e" + sign + strconv.Itoa(exp)
}

var _ Evaluator = (*JSEvaluator)(nil)
