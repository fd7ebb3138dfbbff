// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symbolic

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmptyExpression is returned by Solve for blank input.
	ErrEmptyExpression = errors.New("empty expression")

	// ErrTooLarge is returned when a numeric answer exceeds what can be
	// computed exactly or represented as a float.
	ErrTooLarge = errors.New("result too large to compute")

	// ErrNotReal is returned when a numeric answer has no real value,
	// such as sqrt(-1).
	ErrNotReal = errors.New("result is not a real number")
)

// Solve parses expr and renders the answer the solver server returns.
//
// # Description
//
// The rendering policy:
//
//   - integrate/diff calls are carried out and the result printed
//     symbolically.
//   - Expressions without free symbols are numbers. Exact rationals print
//     exactly (6, 1/3) unless the input contained a decimal literal;
//     everything else is evaluated to 15 significant digits. Division by
//     zero prints "zoo" and indeterminate forms such as 0/0 print "nan".
//   - Anything else is simplified and printed symbolically.
//
// # Inputs
//
//   - expr: Programming-style expression, e.g. "integrate(x**2, x)".
//
// # Outputs
//
//   - string: The rendered answer.
//   - error: ErrEmptyExpression, ErrTooLarge, ErrNotReal, or an error
//     from Parse.
//
// # Examples
//
//	Solve("integrate(x**2, x)") // "x**3/3"
//	Solve("diff(x**2, x)")      // "2*x"
//	Solve("2*3")                // "6"
func Solve(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", ErrEmptyExpression
	}
	parsed, err := Parse(expr)
	if err != nil {
		return "", err
	}
	e := parsed.Expr

	if parsed.Calculus || len(FreeSymbols(e)) > 0 {
		return e.String(), nil
	}

	switch v := e.(type) {
	case *Undefined:
		return v.String(), nil
	case *Num:
		if !parsed.Inexact {
			return v.String(), nil
		}
	}
	if anyNode(e, isCappedPower) {
		return "", ErrTooLarge
	}
	f, ok := e.Eval()
	if !ok {
		return e.String(), nil
	}
	if !anyNode(e, isUndefined) {
		switch {
		case math.IsInf(f, 0):
			return "", ErrTooLarge
		case math.IsNaN(f):
			return "", ErrNotReal
		}
	}
	return FormatFloat(f), nil
}

// isCappedPower matches an integer power of a number that PowOf left
// symbolic because the exponent exceeds maxExactExponent.
func isCappedPower(e Expr) bool {
	p, ok := e.(*Pow)
	if !ok {
		return false
	}
	_, numBase := p.base.(*Num)
	n, numExp := p.exp.(*Num)
	return numBase && numExp && n.IsInteger()
}

func isUndefined(e Expr) bool {
	_, ok := e.(*Undefined)
	return ok
}

// FormatFloat renders f the way numeric results are reported.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 0):
		return "zoo"
	}
	return strconv.FormatFloat(f, 'g', 15, 64)
}
