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
	"fmt"
	"math"
	"math/big"
	"sort"
)

// ErrCannotIntegrate is returned when no integration rule matches.
var ErrCannotIntegrate = errors.New("cannot integrate expression")

// =============================================================================
// Func: elementary function application
// =============================================================================

type Func struct {
	name string
	arg  Expr
}

func (f *Func) Name() string { return f.name }
func (f *Func) Arg() Expr    { return f.arg }

// funcTable maps supported function names to their float implementation.
var funcTable = map[string]func(float64) float64{
	"sin":     math.Sin,
	"cos":     math.Cos,
	"tan":     math.Tan,
	"asin":    math.Asin,
	"acos":    math.Acos,
	"atan":    math.Atan,
	"sinh":    math.Sinh,
	"cosh":    math.Cosh,
	"tanh":    math.Tanh,
	"exp":     math.Exp,
	"log":     math.Log,
	"Abs":     math.Abs,
	"sign":    sign,
	"floor":   math.Floor,
	"ceiling": math.Ceil,
}

var ratMinusOne = big.NewRat(-1, 1)

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// IsFunction reports whether name is a supported elementary function.
func IsFunction(name string) bool {
	_, ok := funcTable[name]
	return ok
}

// FuncOf applies the named function to arg, simplifying the identities
// that have exact values. name must satisfy IsFunction.
func FuncOf(name string, arg Expr) Expr {
	if arg == NaN {
		return NaN
	}
	if n, ok := arg.(*Num); ok {
		switch {
		case n.IsZero() && (name == "sin" || name == "tan" || name == "asin" || name == "atan" ||
			name == "sinh" || name == "tanh" || name == "sign"):
			return N(0)
		case n.IsZero() && (name == "cos" || name == "cosh" || name == "exp"):
			return N(1)
		case n.IsOne() && name == "log":
			return N(0)
		case name == "Abs":
			return numFromRat(new(big.Rat).Abs(n.val))
		case name == "sign":
			return N(int64(n.val.Sign()))
		case name == "floor" || name == "ceiling":
			if n.IsInteger() {
				return n
			}
		}
	}
	if c, ok := arg.(*Const); ok && c == E && name == "log" {
		return N(1)
	}
	if c, ok := arg.(*Const); ok && c == Pi {
		switch name {
		case "sin", "tan":
			return N(0)
		case "cos":
			return N(-1)
		}
	}
	if inner, ok := arg.(*Func); ok {
		if name == "exp" && inner.name == "log" {
			return inner.arg
		}
		if name == "log" && inner.name == "exp" {
			return inner.arg
		}
	}
	return &Func{name: name, arg: arg}
}

func (f *Func) String() string { return f.name + "(" + f.arg.String() + ")" }

func (f *Func) Eval() (float64, bool) {
	x, ok := f.arg.Eval()
	if !ok {
		return 0, false
	}
	fn, ok := funcTable[f.name]
	if !ok {
		return 0, false
	}
	return fn(x), true
}

func (f *Func) Subs(v string, value Expr) Expr {
	return FuncOf(f.name, f.arg.Subs(v, value))
}

func (f *Func) Diff(v string) Expr {
	u := f.arg
	du := u.Diff(v)
	if n, ok := du.(*Num); ok && n.IsZero() {
		return N(0)
	}

	var outer Expr
	switch f.name {
	case "sin":
		outer = FuncOf("cos", u)
	case "cos":
		outer = MulOf(N(-1), FuncOf("sin", u))
	case "tan":
		outer = AddOf(PowOf(FuncOf("tan", u), N(2)), N(1))
	case "asin":
		outer = PowOf(AddOf(N(1), MulOf(N(-1), PowOf(u, N(2)))), Q(-1, 2))
	case "acos":
		outer = MulOf(N(-1), PowOf(AddOf(N(1), MulOf(N(-1), PowOf(u, N(2)))), Q(-1, 2)))
	case "atan":
		outer = PowOf(AddOf(PowOf(u, N(2)), N(1)), N(-1))
	case "sinh":
		outer = FuncOf("cosh", u)
	case "cosh":
		outer = FuncOf("sinh", u)
	case "tanh":
		outer = AddOf(N(1), MulOf(N(-1), PowOf(FuncOf("tanh", u), N(2))))
	case "exp":
		outer = f
	case "log":
		outer = PowOf(u, N(-1))
	case "Abs":
		outer = FuncOf("sign", u)
	default:
		// sign, floor and ceiling are piecewise constant.
		return N(0)
	}
	return MulOf(outer, du)
}

// =============================================================================
// Structural queries
// =============================================================================

// FreeSymbols returns the sorted names of the symbols in e.
func FreeSymbols(e Expr) []string {
	seen := map[string]struct{}{}
	collectSymbols(e, seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectSymbols(e Expr, out map[string]struct{}) {
	switch v := e.(type) {
	case *Sym:
		out[v.name] = struct{}{}
	case *Add:
		for _, t := range v.terms {
			collectSymbols(t, out)
		}
	case *Mul:
		for _, f := range v.factors {
			collectSymbols(f, out)
		}
	case *Pow:
		collectSymbols(v.base, out)
		collectSymbols(v.exp, out)
	case *Func:
		collectSymbols(v.arg, out)
	}
}

func dependsOn(e Expr, v string) bool {
	switch x := e.(type) {
	case *Sym:
		return x.name == v
	case *Add:
		for _, t := range x.terms {
			if dependsOn(t, v) {
				return true
			}
		}
	case *Mul:
		for _, f := range x.factors {
			if dependsOn(f, v) {
				return true
			}
		}
	case *Pow:
		return dependsOn(x.base, v) || dependsOn(x.exp, v)
	case *Func:
		return dependsOn(x.arg, v)
	}
	return false
}

// =============================================================================
// Differentiation and integration
// =============================================================================

// Diff returns the n-th derivative of e with respect to v (n >= 1).
func Diff(e Expr, v string, n int) Expr {
	for i := 0; i < n; i++ {
		e = e.Diff(v)
	}
	return e
}

// Integrate returns an antiderivative of e with respect to v, without the
// constant of integration.
//
// # Description
//
// Rules, tried in order:
//
//  1. e does not depend on v: e*v
//  2. sums: integrate term by term
//  3. products: pull out factors independent of v; exactly one
//     dependent factor may remain
//  4. u**n with u linear in v: u**(n+1)/(a*(n+1)), or log(u)/a for n = -1
//  5. sin, cos, exp of a linear argument
//
// # Outputs
//
//   - Expr: The antiderivative.
//   - error: Wraps ErrCannotIntegrate if no rule matches.
//
// # Examples
//
//	Integrate(PowOf(S("x"), N(2)), "x") // x**3/3
//	Integrate(FuncOf("sin", S("x")), "x") // -cos(x)
func Integrate(e Expr, v string) (Expr, error) {
	if !dependsOn(e, v) {
		return MulOf(e, S(v)), nil
	}

	switch x := e.(type) {
	case *Sym:
		return MulOf(Q(1, 2), PowOf(x, N(2))), nil

	case *Add:
		parts := make([]Expr, 0, len(x.terms))
		for _, t := range x.terms {
			it, err := Integrate(t, v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, it)
		}
		return AddOf(parts...), nil

	case *Mul:
		var constant, dependent []Expr
		for _, f := range x.factors {
			if dependsOn(f, v) {
				dependent = append(dependent, f)
			} else {
				constant = append(constant, f)
			}
		}
		if len(dependent) == 1 {
			it, err := Integrate(dependent[0], v)
			if err != nil {
				return nil, err
			}
			return MulOf(append(constant, it)...), nil
		}

	case *Pow:
		if dependsOn(x.exp, v) {
			// c**u with constant base and linear u
			if a, ok := linearCoefficient(x.exp, v); ok {
				return MulOf(x, PowOf(MulOf(a, FuncOf("log", x.base)), N(-1))), nil
			}
			break
		}
		a, ok := linearCoefficient(x.base, v)
		if !ok {
			break
		}
		if n, isNum := x.exp.(*Num); isNum && n.val.Cmp(ratMinusOne) == 0 {
			return MulOf(FuncOf("log", x.base), PowOf(a, N(-1))), nil
		}
		np1 := AddOf(x.exp, N(1))
		return MulOf(PowOf(x.base, np1), PowOf(MulOf(a, np1), N(-1))), nil

	case *Func:
		a, ok := linearCoefficient(x.arg, v)
		if !ok {
			break
		}
		inv := PowOf(a, N(-1))
		switch x.name {
		case "sin":
			return MulOf(N(-1), FuncOf("cos", x.arg), inv), nil
		case "cos":
			return MulOf(FuncOf("sin", x.arg), inv), nil
		case "exp":
			return MulOf(x, inv), nil
		case "sinh":
			return MulOf(FuncOf("cosh", x.arg), inv), nil
		case "cosh":
			return MulOf(FuncOf("sinh", x.arg), inv), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCannotIntegrate, e.String())
}

// DefiniteIntegrate evaluates the integral of e over [a, b] exactly.
func DefiniteIntegrate(e Expr, v string, a, b Expr) (Expr, error) {
	anti, err := Integrate(e, v)
	if err != nil {
		return nil, err
	}
	return AddOf(anti.Subs(v, b), MulOf(N(-1), anti.Subs(v, a))), nil
}

// linearCoefficient returns a when u = a*v + b with a non-zero and free
// of v.
func linearCoefficient(u Expr, v string) (Expr, bool) {
	d := u.Diff(v)
	if dependsOn(d, v) {
		return nil, false
	}
	if n, ok := d.(*Num); ok && n.IsZero() {
		return nil, false
	}
	return d, true
}
