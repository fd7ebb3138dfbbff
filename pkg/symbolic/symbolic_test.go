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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolve(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"integral of square", "integrate(x**2, x)", "x**3/3"},
		{"derivative of square", "diff(x**2, x)", "2*x"},
		{"product", "2*3", "6"},
		{"precedence", "2 + 3*4", "14"},
		{"caret power", "2^10", "1024"},
		{"right associative power", "2**3**2", "512"},
		{"unary minus binds looser than power", "-2**2", "-4"},
		{"exact fraction", "1/3", "1/3"},
		{"decimal input", "0.5 + 0.25", "0.75"},
		{"perfect square root", "sqrt(16)", "4"},
		{"division by zero", "1/0", "zoo"},
		{"negative over zero", "-1/0", "zoo"},
		{"zero over zero", "0/0", "nan"},
		{"zero times division by zero", "0*(1/0)", "nan"},
		{"difference of infinities", "1/0 - 1/0", "nan"},
		{"infinity plus a number", "1/0 + 5", "zoo"},
		{"reciprocal of a vanishing sum", "1/(2 - 2)", "zoo"},
		{"symbol over zero", "x/0", "zoo*x"},
		{"coefficient absorbed by infinity", "2*x/0", "zoo*x"},
		{"symbol times zero over zero", "0*x/0", "nan"},
		{"infinity plus symbol", "x + 1/0", "x + zoo"},
		{"function of nan", "sin(0/0)", "nan"},
		{"integral of sin", "integrate(sin(x), x)", "-cos(x)"},
		{"integral of cos", "integrate(cos(x), x)", "sin(x)"},
		{"integral of reciprocal", "integrate(1/x, x)", "log(x)"},
		{"integral of exp", "integrate(exp(x), x)", "exp(x)"},
		{"integral of polynomial", "integrate(3*x**2 + 2*x + 1, x)", "x**3 + x**2 + x"},
		{"integral of linear argument", "integrate(cos(2*x), x)", "sin(2*x)/2"},
		{"integral of constant", "integrate(5, x)", "5*x"},
		{"definite integral", "integrate(x, (x, 0, 2))", "2"},
		{"implicit variable", "integrate(x**3)", "x**4/4"},
		{"derivative of cube", "diff(x**3, x)", "3*x**2"},
		{"second derivative", "diff(x**3, x, 2)", "6*x"},
		{"derivative of sin", "diff(sin(x), x)", "cos(x)"},
		{"derivative of cos", "diff(cos(x), x)", "-sin(x)"},
		{"chain rule", "diff(sin(x**2), x)", "2*x*cos(x**2)"},
		{"derivative of log", "diff(log(x), x)", "1/x"},
		{"implicit multiplication", "diff(3x**2, x)", "6*x"},
		{"like terms collected", "x + x + y", "2*x + y"},
		{"simplify", "simplify(x*x)", "x**2"},
		{"cancellation", "x - x", "0"},
		{"quotient", "x/(2*y)", "x/(2*y)"},
		{"constant pi", "sin(pi)", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Solve(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSolve_Errors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := Solve("   ")
		assert.ErrorIs(t, err, ErrEmptyExpression)
	})

	for _, in := range []string{"2 +", "(x", "x $ y", "integrate(x, (x, 0))", "diff()"} {
		t.Run(in, func(t *testing.T) {
			_, err := Solve(in)
			assert.ErrorIs(t, err, ErrParse)
		})
	}

	t.Run("unknown function", func(t *testing.T) {
		_, err := Solve("frobnicate(x)")
		assert.ErrorIs(t, err, ErrParse)
		assert.ErrorIs(t, err, ErrUnknownFunction)
	})

	t.Run("power beyond exact range", func(t *testing.T) {
		_, err := Solve("7**(10**8)")
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.NotErrorIs(t, err, ErrParse)
	})

	t.Run("float overflow", func(t *testing.T) {
		_, err := Solve("exp(1000)")
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	for _, in := range []string{"sqrt(-1)", "log(-2)"} {
		t.Run(in, func(t *testing.T) {
			_, err := Solve(in)
			assert.ErrorIs(t, err, ErrNotReal)
		})
	}

	t.Run("unsupported integrand", func(t *testing.T) {
		_, err := Solve("integrate(x*sin(x), x)")
		assert.ErrorIs(t, err, ErrCannotIntegrate)
	})
}

func TestParse_Flags(t *testing.T) {
	p, err := Parse("integrate(x, x)")
	require.NoError(t, err)
	assert.True(t, p.Calculus)
	assert.False(t, p.Inexact)

	p, err = Parse("integrate(x, x) + 1")
	require.NoError(t, err)
	assert.False(t, p.Calculus)

	p, err = Parse("1.5*2")
	require.NoError(t, err)
	assert.True(t, p.Inexact)
}

func TestKernel_Canonicalisation(t *testing.T) {
	x, y := S("x"), S("y")

	assert.Equal(t, "x**2", MulOf(x, x).String())
	assert.Equal(t, "1", MulOf(x, PowOf(x, N(-1))).String())
	assert.Equal(t, "x*y", MulOf(y, x).String())
	assert.Equal(t, "x**2*y**2", PowOf(MulOf(x, y), N(2)).String())
	assert.Equal(t, "x**6", PowOf(PowOf(x, N(2)), N(3)).String())
	assert.Equal(t, "0", AddOf(x, MulOf(N(-1), x)).String())
	assert.Equal(t, "x - 1", AddOf(x, N(-1)).String())
	assert.Equal(t, "exp(x)", PowOf(E, x).String())
	assert.Equal(t, "x", FuncOf("exp", FuncOf("log", x)).String())
}

func TestKernel_Undefined(t *testing.T) {
	x := S("x")

	assert.Equal(t, Zoo, PowOf(N(0), N(-1)))
	assert.Equal(t, Zoo, PowOf(N(0), Q(-1, 2)))
	assert.Equal(t, NaN, MulOf(N(0), Zoo))
	assert.Equal(t, NaN, MulOf(Zoo, N(0)), "zero absorption must not run before infinity")
	assert.Equal(t, NaN, AddOf(Zoo, MulOf(N(-1), Zoo)))
	assert.Equal(t, NaN, AddOf(MulOf(Zoo, x), MulOf(Zoo, x)))
	assert.Equal(t, NaN, AddOf(x, NaN))
	assert.Equal(t, NaN, PowOf(NaN, N(2)))
	assert.Equal(t, NaN, PowOf(x, NaN))
	assert.Equal(t, "1", PowOf(NaN, N(0)).String())
	assert.Equal(t, "0", PowOf(Zoo, N(-1)).String())
	assert.Equal(t, "zoo*x**2", PowOf(MulOf(Zoo, x), N(2)).String())
	assert.Equal(t, "zoo", MulOf(Zoo, x).Diff("x").String())

	v, ok := NaN.Eval()
	require.True(t, ok)
	assert.True(t, math.IsNaN(v))
	v, ok = Zoo.Eval()
	require.True(t, ok)
	assert.True(t, math.IsInf(v, 1))
}

func TestKernel_Eval(t *testing.T) {
	x := S("x")
	e := AddOf(PowOf(x, N(2)), N(1))

	_, ok := e.Eval()
	assert.False(t, ok)

	v, ok := e.Subs("x", N(3)).Eval()
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-12)
}

func TestFreeSymbols(t *testing.T) {
	p, err := Parse("x*y + sin(z) + pi")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, FreeSymbols(p.Expr))
}

func TestIntegrate_DerivativeRoundTrip(t *testing.T) {
	for _, in := range []string{"x**5", "sin(3*x)", "exp(2*x)", "4*x**3 - x"} {
		t.Run(in, func(t *testing.T) {
			p, err := Parse(in)
			require.NoError(t, err)
			anti, err := Integrate(p.Expr, "x")
			require.NoError(t, err)
			assert.Equal(t, p.Expr.String(), anti.Diff("x").String())
		})
	}
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.5", FormatFloat(0.5))
	assert.Equal(t, "zoo", FormatFloat(1/zero()))
	assert.Equal(t, "nan", FormatFloat(zero()/zero()))
}

func zero() float64 { return 0 }
