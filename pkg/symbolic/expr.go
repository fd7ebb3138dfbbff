// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package symbolic is a small exact-arithmetic expression kernel used by
// the remote solver server.
//
// # Description
//
// Expressions are immutable trees of Num (exact rationals), Sym, Const,
// Undefined, Add, Mul, Pow and Func nodes. The constructors AddOf, MulOf, PowOf and
// FuncOf always return a simplified, canonical form: constants are
// folded, like terms and like bases are collected, and operands are kept
// in a stable order so that String() is deterministic.
//
// On top of the kernel the package provides differentiation (Diff),
// pattern-based integration (Integrate), substitution (Subs), numeric
// evaluation (Eval) and a parser for the programming-style syntax produced
// by the notation normalizer (Parse). Solve ties these together with the
// result policy of the solver server.
//
// # Limitations
//
//   - Simplification is rule-based, not a full canonical form.
//   - Integration handles polynomials, 1/x, sin/cos/exp of linear
//     arguments, powers of linear arguments, sums and constant multiples.
//   - No complex numbers, matrices or equation solving. A square root or
//     logarithm of a negative number has no real value and Solve reports
//     ErrNotReal instead of SymPy's I.
//   - Exact integer powers stop at maxExactExponent. Larger powers of a
//     number stay symbolic and Solve reports ErrTooLarge when asked for
//     their value.
//   - Zoo absorbs numeric coefficients: 2*x/0 is zoo*x.
//
// # Thread Safety
//
// Expressions are immutable and safe to share between goroutines.
package symbolic

import (
	"math"
	"math/big"
	"sort"
	"strings"
)

// Expr is a node in an expression tree.
type Expr interface {
	// String renders the expression in SymPy-compatible syntax.
	String() string

	// Diff returns the derivative with respect to v.
	Diff(v string) Expr

	// Eval returns the numeric value, or false if the expression has
	// free symbols or an undefined subexpression.
	Eval() (float64, bool)

	// Subs replaces every occurrence of the symbol v with value.
	Subs(v string, value Expr) Expr
}

// =============================================================================
// Num: exact rational
// =============================================================================

type Num struct{ val *big.Rat }

// N returns the integer n.
func N(n int64) *Num { return &Num{val: new(big.Rat).SetInt64(n)} }

// Q returns the rational p/q. q must be non-zero.
func Q(p, q int64) *Num { return &Num{val: big.NewRat(p, q)} }

func numFromRat(r *big.Rat) *Num { return &Num{val: new(big.Rat).Set(r)} }

// Rat returns a copy of the value.
func (n *Num) Rat() *big.Rat { return new(big.Rat).Set(n.val) }

func (n *Num) IsZero() bool     { return n.val.Sign() == 0 }
func (n *Num) IsOne() bool      { return n.val.Cmp(ratOne) == 0 }
func (n *Num) IsInteger() bool  { return n.val.IsInt() }
func (n *Num) IsNegative() bool { return n.val.Sign() < 0 }

func (n *Num) String() string {
	if n.val.IsInt() {
		return n.val.Num().String()
	}
	return n.val.RatString()
}

func (n *Num) Diff(string) Expr       { return N(0) }
func (n *Num) Subs(string, Expr) Expr { return n }
func (n *Num) Eval() (float64, bool) {
	f, _ := n.val.Float64()
	return f, true
}

var ratOne = big.NewRat(1, 1)

// =============================================================================
// Sym and Const
// =============================================================================

type Sym struct{ name string }

// S returns the symbol named name.
func S(name string) *Sym { return &Sym{name: name} }

func (s *Sym) Name() string          { return s.name }
func (s *Sym) String() string        { return s.name }
func (s *Sym) Eval() (float64, bool) { return 0, false }
func (s *Sym) Diff(v string) Expr {
	if s.name == v {
		return N(1)
	}
	return N(0)
}
func (s *Sym) Subs(v string, value Expr) Expr {
	if s.name == v {
		return value
	}
	return s
}

// Const is a named irrational constant.
type Const struct {
	name  string
	value float64
}

var (
	Pi = &Const{name: "pi", value: math.Pi}
	E  = &Const{name: "E", value: math.E}
)

func (c *Const) String() string         { return c.name }
func (c *Const) Eval() (float64, bool)  { return c.value, true }
func (c *Const) Diff(string) Expr       { return N(0) }
func (c *Const) Subs(string, Expr) Expr { return c }

// Undefined is a value with no finite real representation.
type Undefined struct{ name string }

var (
	// Zoo is complex infinity, the value of a non-zero number over zero.
	Zoo = &Undefined{name: "zoo"}
	// NaN is an indeterminate form such as 0/0 or zoo - zoo.
	NaN = &Undefined{name: "nan"}
)

func (u *Undefined) String() string         { return u.name }
func (u *Undefined) Diff(string) Expr       { return N(0) }
func (u *Undefined) Subs(string, Expr) Expr { return u }
func (u *Undefined) Eval() (float64, bool) {
	if u == NaN {
		return math.NaN(), true
	}
	return math.Inf(1), true
}

// =============================================================================
// Add
// =============================================================================

type Add struct{ terms []Expr }

// Terms returns the summands in canonical order.
func (a *Add) Terms() []Expr { return append([]Expr(nil), a.terms...) }

// AddOf returns the simplified sum of terms.
func AddOf(terms ...Expr) Expr {
	var flat []Expr
	for _, t := range terms {
		if inner, ok := t.(*Add); ok {
			flat = append(flat, inner.terms...)
		} else {
			flat = append(flat, t)
		}
	}
	flat, zoos, nan := splitUndefined(flat)
	switch {
	case nan || zoos > 1:
		return NaN
	case zoos == 1:
		r := AddOf(flat...)
		if r == NaN {
			return NaN
		}
		if _, ok := r.(*Num); ok {
			return Zoo
		}
		return &Add{terms: append(termsOf(r), Zoo)}
	}

	constant := new(big.Rat)
	type bucket struct {
		coeff *big.Rat
		rest  Expr
	}
	buckets := map[string]*bucket{}
	var order []string

	for _, t := range flat {
		if n, ok := t.(*Num); ok {
			constant.Add(constant, n.val)
			continue
		}
		coeff, rest := splitCoeff(t)
		key := rest.String()
		if b, ok := buckets[key]; ok {
			if hasZooFactor(rest) {
				return NaN
			}
			b.coeff.Add(b.coeff, coeff)
			continue
		}
		buckets[key] = &bucket{coeff: coeff, rest: rest}
		order = append(order, key)
	}

	var out []Expr
	for _, key := range order {
		b := buckets[key]
		if b.coeff.Sign() == 0 {
			continue
		}
		out = append(out, MulOf(numFromRat(b.coeff), b.rest))
	}
	sortTerms(out)
	if constant.Sign() != 0 {
		out = append(out, numFromRat(constant))
	}

	switch len(out) {
	case 0:
		return N(0)
	case 1:
		return out[0]
	}
	return &Add{terms: out}
}

func (a *Add) String() string {
	var sb strings.Builder
	for i, t := range a.terms {
		if i == 0 {
			sb.WriteString(t.String())
			continue
		}
		if isNegativeTerm(t) {
			sb.WriteString(" - ")
			sb.WriteString(MulOf(N(-1), t).String())
		} else {
			sb.WriteString(" + ")
			sb.WriteString(t.String())
		}
	}
	return sb.String()
}

func (a *Add) Diff(v string) Expr {
	out := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		out[i] = t.Diff(v)
	}
	return AddOf(out...)
}

func (a *Add) Eval() (float64, bool) {
	sum := 0.0
	for _, t := range a.terms {
		f, ok := t.Eval()
		if !ok {
			return 0, false
		}
		sum += f
	}
	return sum, true
}

func (a *Add) Subs(v string, value Expr) Expr {
	out := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		out[i] = t.Subs(v, value)
	}
	return AddOf(out...)
}

// =============================================================================
// Mul
// =============================================================================

// Mul is a product. A numeric coefficient, if any, is factors[0].
type Mul struct{ factors []Expr }

// Factors returns the factors in canonical order.
func (m *Mul) Factors() []Expr { return append([]Expr(nil), m.factors...) }

// MulOf returns the simplified product of factors.
func MulOf(factors ...Expr) Expr {
	var flat []Expr
	for _, f := range factors {
		if inner, ok := f.(*Mul); ok {
			flat = append(flat, inner.factors...)
		} else {
			flat = append(flat, f)
		}
	}
	flat, zoos, nan := splitUndefined(flat)
	switch {
	case nan:
		return NaN
	case zoos > 0:
		return mulZoo(MulOf(flat...))
	}

	coeff := big.NewRat(1, 1)
	type bucket struct {
		base Expr
		exps []Expr
	}
	buckets := map[string]*bucket{}
	var order []string

	for _, f := range flat {
		if n, ok := f.(*Num); ok {
			coeff.Mul(coeff, n.val)
			continue
		}
		base, exp := splitPow(f)
		key := base.String()
		if b, ok := buckets[key]; ok {
			b.exps = append(b.exps, exp)
			continue
		}
		buckets[key] = &bucket{base: base, exps: []Expr{exp}}
		order = append(order, key)
	}
	if coeff.Sign() == 0 {
		return N(0)
	}

	var out []Expr
	regroup := false
	for _, key := range order {
		b := buckets[key]
		p := PowOf(b.base, AddOf(b.exps...))
		switch v := p.(type) {
		case *Num:
			coeff.Mul(coeff, v.val)
		case *Mul:
			// A distributed power may repeat bases already collected.
			out = append(out, v.factors...)
			regroup = true
		case *Undefined:
			out = append(out, v)
			regroup = true
		default:
			out = append(out, p)
		}
	}
	if coeff.Sign() == 0 {
		return N(0)
	}
	if regroup {
		return MulOf(append([]Expr{numFromRat(coeff)}, out...)...)
	}
	sortFactors(out)

	if len(out) == 0 {
		return numFromRat(coeff)
	}
	if coeff.Cmp(ratOne) == 0 {
		if len(out) == 1 {
			return out[0]
		}
		return &Mul{factors: out}
	}
	return &Mul{factors: append([]Expr{numFromRat(coeff)}, out...)}
}

func (m *Mul) String() string {
	coeff, rest := splitCoeff(m)
	var numer, denom []string

	for _, f := range factorsOf(rest) {
		if p, ok := f.(*Pow); ok {
			if n, ok := p.exp.(*Num); ok && n.IsNegative() {
				denom = append(denom, factorString(PowOf(p.base, MulOf(N(-1), n))))
				continue
			}
		}
		numer = append(numer, factorString(f))
	}

	num := new(big.Int).Abs(coeff.Num())
	if num.Cmp(big.NewInt(1)) != 0 {
		numer = append([]string{num.String()}, numer...)
	}
	if !coeff.IsInt() {
		denom = append([]string{coeff.Denom().String()}, denom...)
	}

	sign := ""
	if coeff.Sign() < 0 {
		sign = "-"
	}
	top := strings.Join(numer, "*")
	if top == "" {
		top = "1"
	}
	if len(denom) == 0 {
		return sign + top
	}
	bottom := strings.Join(denom, "*")
	if len(denom) > 1 {
		bottom = "(" + bottom + ")"
	}
	return sign + top + "/" + bottom
}

func (m *Mul) Diff(v string) Expr {
	var terms []Expr
	for i := range m.factors {
		parts := make([]Expr, 0, len(m.factors))
		for j, f := range m.factors {
			if i == j {
				parts = append(parts, f.Diff(v))
			} else {
				parts = append(parts, f)
			}
		}
		terms = append(terms, MulOf(parts...))
	}
	return AddOf(terms...)
}

func (m *Mul) Eval() (float64, bool) {
	prod := 1.0
	for _, f := range m.factors {
		x, ok := f.Eval()
		if !ok {
			return 0, false
		}
		prod *= x
	}
	return prod, true
}

func (m *Mul) Subs(v string, value Expr) Expr {
	out := make([]Expr, len(m.factors))
	for i, f := range m.factors {
		out[i] = f.Subs(v, value)
	}
	return MulOf(out...)
}

// =============================================================================
// Pow
// =============================================================================

type Pow struct{ base, exp Expr }

func (p *Pow) Base() Expr     { return p.base }
func (p *Pow) Exponent() Expr { return p.exp }

// maxExactExponent bounds exact rational exponentiation.
const maxExactExponent = 4096

// PowOf returns the simplified power base**exp.
func PowOf(base, exp Expr) Expr {
	if exp == NaN {
		return NaN
	}
	if e, ok := exp.(*Num); ok {
		if e.IsZero() {
			return N(1)
		}
		if e.IsOne() {
			return base
		}
		switch b := base.(type) {
		case *Undefined:
			switch {
			case b == NaN:
				return NaN
			case e.IsNegative():
				return N(0)
			}
			return Zoo
		case *Num:
			if r, ok := ratPow(b.val, e.val); ok {
				return numFromRat(r)
			}
		case *Pow:
			if e.IsInteger() {
				return PowOf(b.base, MulOf(b.exp, e))
			}
		case *Mul:
			if e.IsInteger() {
				parts := make([]Expr, len(b.factors))
				for i, f := range b.factors {
					parts[i] = PowOf(f, e)
				}
				return MulOf(parts...)
			}
		}
	}
	if b, ok := base.(*Num); ok {
		if b.IsOne() {
			return N(1)
		}
		if e, ok := exp.(*Num); ok && b.IsZero() {
			if e.IsNegative() {
				return Zoo
			}
			return N(0)
		}
	}
	if base == NaN {
		return NaN
	}
	if b, ok := base.(*Const); ok && b == E {
		return FuncOf("exp", exp)
	}
	return &Pow{base: base, exp: exp}
}

func (p *Pow) String() string {
	if e, ok := p.exp.(*Num); ok {
		switch {
		case e.val.Cmp(big.NewRat(1, 2)) == 0:
			return "sqrt(" + p.base.String() + ")"
		case e.val.Cmp(big.NewRat(-1, 1)) == 0:
			return "1/" + factorString(p.base)
		case e.val.Cmp(big.NewRat(-1, 2)) == 0:
			return "1/sqrt(" + p.base.String() + ")"
		}
	}
	return powBaseString(p.base) + "**" + powExpString(p.exp)
}

func (p *Pow) Diff(v string) Expr {
	baseDep := dependsOn(p.base, v)
	expDep := dependsOn(p.exp, v)
	switch {
	case !baseDep && !expDep:
		return N(0)
	case !expDep:
		return MulOf(p.exp, PowOf(p.base, AddOf(p.exp, N(-1))), p.base.Diff(v))
	case !baseDep:
		return MulOf(p, FuncOf("log", p.base), p.exp.Diff(v))
	}
	return MulOf(p, AddOf(
		MulOf(p.exp.Diff(v), FuncOf("log", p.base)),
		MulOf(p.exp, p.base.Diff(v), PowOf(p.base, N(-1))),
	))
}

func (p *Pow) Eval() (float64, bool) {
	b, ok := p.base.Eval()
	if !ok {
		return 0, false
	}
	e, ok := p.exp.Eval()
	if !ok {
		return 0, false
	}
	return math.Pow(b, e), true
}

func (p *Pow) Subs(v string, value Expr) Expr {
	return PowOf(p.base.Subs(v, value), p.exp.Subs(v, value))
}

// =============================================================================
// Helpers
// =============================================================================

// splitCoeff separates the numeric coefficient from the rest of a term.
func splitCoeff(e Expr) (*big.Rat, Expr) {
	switch v := e.(type) {
	case *Num:
		return new(big.Rat).Set(v.val), N(1)
	case *Mul:
		if n, ok := v.factors[0].(*Num); ok {
			rest := v.factors[1:]
			if len(rest) == 1 {
				return new(big.Rat).Set(n.val), rest[0]
			}
			return new(big.Rat).Set(n.val), &Mul{factors: rest}
		}
	}
	return big.NewRat(1, 1), e
}

// splitUndefined removes Zoo and NaN from xs, reporting how many Zoo
// factors it saw and whether NaN was among them.
func splitUndefined(xs []Expr) ([]Expr, int, bool) {
	var out []Expr
	zoos := 0
	for _, x := range xs {
		switch x {
		case NaN:
			return nil, 0, true
		case Zoo:
			zoos++
		default:
			out = append(out, x)
		}
	}
	if zoos == 0 {
		return xs, 0, false
	}
	return out, zoos, false
}

// mulZoo multiplies complex infinity by r. Zero gives NaN; a non-zero
// numeric coefficient is absorbed.
func mulZoo(r Expr) Expr {
	if n, ok := r.(*Num); ok {
		if n.IsZero() {
			return NaN
		}
		return Zoo
	}
	if r == Zoo || r == NaN || hasZooFactor(r) {
		return r
	}
	_, rest := splitCoeff(r)
	return &Mul{factors: append([]Expr{Zoo}, factorsOf(rest)...)}
}

func hasZooFactor(e Expr) bool {
	m, ok := e.(*Mul)
	return ok && m.factors[0] == Zoo
}

func termsOf(e Expr) []Expr {
	if a, ok := e.(*Add); ok {
		return append([]Expr(nil), a.terms...)
	}
	return []Expr{e}
}

// anyNode reports whether pred holds for e or any subexpression.
func anyNode(e Expr, pred func(Expr) bool) bool {
	if pred(e) {
		return true
	}
	switch v := e.(type) {
	case *Add:
		for _, t := range v.terms {
			if anyNode(t, pred) {
				return true
			}
		}
	case *Mul:
		for _, f := range v.factors {
			if anyNode(f, pred) {
				return true
			}
		}
	case *Pow:
		return anyNode(v.base, pred) || anyNode(v.exp, pred)
	case *Func:
		return anyNode(v.arg, pred)
	}
	return false
}

func splitPow(e Expr) (Expr, Expr) {
	if p, ok := e.(*Pow); ok {
		return p.base, p.exp
	}
	return e, N(1)
}

func factorsOf(e Expr) []Expr {
	if m, ok := e.(*Mul); ok {
		return m.factors
	}
	if n, ok := e.(*Num); ok && n.IsOne() {
		return nil
	}
	return []Expr{e}
}

func isNegativeTerm(e Expr) bool {
	c, _ := splitCoeff(e)
	return c.Sign() < 0
}

func factorString(e Expr) string {
	if _, ok := e.(*Add); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func powBaseString(e Expr) string {
	switch v := e.(type) {
	case *Add, *Mul, *Pow:
		return "(" + e.String() + ")"
	case *Num:
		if v.IsNegative() || !v.IsInteger() {
			return "(" + e.String() + ")"
		}
	}
	return e.String()
}

func powExpString(e Expr) string {
	switch v := e.(type) {
	case *Sym, *Const, *Func:
		return e.String()
	case *Num:
		if v.IsInteger() && !v.IsNegative() {
			return e.String()
		}
	}
	return "(" + e.String() + ")"
}

// ratPow computes b**e exactly when possible: integer exponents within
// maxExactExponent, and rational exponents with a perfect-root base.
func ratPow(b, e *big.Rat) (*big.Rat, bool) {
	if !e.IsInt() {
		q := e.Denom()
		if !q.IsInt64() || q.Int64() > 3 || b.Sign() < 0 {
			return nil, false
		}
		num, ok1 := intRoot(b.Num(), int(q.Int64()))
		den, ok2 := intRoot(b.Denom(), int(q.Int64()))
		if !ok1 || !ok2 {
			return nil, false
		}
		root := new(big.Rat).SetFrac(num, den)
		return ratPow(root, new(big.Rat).SetInt(e.Num()))
	}

	n := e.Num()
	if !n.IsInt64() || abs64(n.Int64()) > maxExactExponent {
		return nil, false
	}
	k := n.Int64()
	if b.Sign() == 0 {
		if k < 0 {
			return nil, false
		}
		return new(big.Rat), true
	}
	neg := k < 0
	if neg {
		k = -k
	}
	bk := big.NewInt(k)
	num := new(big.Int).Exp(b.Num(), bk, nil)
	den := new(big.Int).Exp(b.Denom(), bk, nil)
	if neg {
		num, den = den, num
	}
	if den.Sign() < 0 {
		num.Neg(num)
		den.Neg(den)
	}
	return new(big.Rat).SetFrac(num, den), true
}

// intRoot returns the exact k-th root of a non-negative integer.
func intRoot(x *big.Int, k int) (*big.Int, bool) {
	if x.Sign() == 0 {
		return new(big.Int), true
	}
	var r *big.Int
	if k == 2 {
		r = new(big.Int).Sqrt(x)
	} else {
		f, _ := new(big.Float).SetInt(x).Float64()
		r = big.NewInt(int64(math.Round(math.Pow(f, 1/float64(k)))))
	}
	if new(big.Int).Exp(r, big.NewInt(int64(k)), nil).Cmp(x) == 0 {
		return r, true
	}
	return nil, false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// polyDegree returns the total degree of a monomial in symbols, or false
// for anything that is not a monomial.
func polyDegree(e Expr) (float64, bool) {
	switch v := e.(type) {
	case *Sym:
		return 1, true
	case *Pow:
		if _, ok := v.base.(*Sym); !ok {
			return 0, false
		}
		if n, ok := v.exp.(*Num); ok {
			f, _ := n.val.Float64()
			return f, true
		}
	case *Mul:
		total := 0.0
		for _, f := range v.factors {
			if _, ok := f.(*Num); ok {
				continue
			}
			d, ok := polyDegree(f)
			if !ok {
				return 0, false
			}
			total += d
		}
		return total, true
	}
	return 0, false
}

// sortTerms orders summands: monomials by descending degree, then
// everything else alphabetically.
func sortTerms(terms []Expr) {
	sort.SliceStable(terms, func(i, j int) bool {
		di, pi := polyDegree(terms[i])
		dj, pj := polyDegree(terms[j])
		if pi != pj {
			return pi
		}
		if pi && di != dj {
			return di > dj
		}
		_, ri := splitCoeff(terms[i])
		_, rj := splitCoeff(terms[j])
		return ri.String() < rj.String()
	})
}

// sortFactors orders factors: symbols and their powers first, then
// everything else, alphabetically within each group.
func sortFactors(factors []Expr) {
	rank := func(e Expr) int {
		base, _ := splitPow(e)
		if _, ok := base.(*Sym); ok {
			return 0
		}
		if _, ok := base.(*Const); ok {
			return 1
		}
		return 2
	}
	sort.SliceStable(factors, func(i, j int) bool {
		ri, rj := rank(factors[i]), rank(factors[j])
		if ri != rj {
			return ri < rj
		}
		return factors[i].String() < factors[j].String()
	})
}
