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
	"math/big"
	"strings"
	"unicode"
)

var (
	// ErrParse is returned for input that is not a well-formed expression.
	ErrParse = errors.New("parse error")

	// ErrUnknownFunction is returned for a call to an unsupported function.
	// It is always wrapped together with ErrParse.
	ErrUnknownFunction = errors.New("unknown function")
)

// Parsed is the result of parsing an input string.
type Parsed struct {
	// Expr is the evaluated expression. Calls to integrate and diff have
	// already been carried out.
	Expr Expr

	// Calculus is true when the outermost expression was an integrate or
	// diff call.
	Calculus bool

	// Inexact is true when the input contained a decimal literal.
	Inexact bool
}

// Parse parses input and returns the evaluated expression.
//
// # Description
//
// Accepts the syntax produced by the notation normalizer: binary
// + - * / and ** (or ^), unary minus, parentheses, number-symbol implicit
// multiplication (2x, 3(x+1)), the constants pi and E, elementary
// function calls, and the calculus calls
//
//	integrate(f, x)
//	integrate(f, (x, a, b))
//	diff(f, x)
//	diff(f, x, n)
//	simplify(f)
//
// The variable may be omitted when f has exactly one free symbol.
//
// # Outputs
//
//   - Parsed: The expression and flags describing the input.
//   - error: Wraps ErrParse for malformed input, ErrCannotIntegrate for
//     integrands no rule handles.
func Parse(input string) (Parsed, error) {
	toks, err := lex(input)
	if err != nil {
		return Parsed{}, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return Parsed{}, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return Parsed{}, p.unexpected(t)
	}
	return Parsed{Expr: e, Calculus: p.outerCalculus, Inexact: p.inexact}, nil
}

// =============================================================================
// Lexer
// =============================================================================

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(input string) ([]token, error) {
	var toks []token
	rs := []rune(input)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
			if i < len(rs) && rs[i] == '.' {
				i++
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			toks = append(toks, token{kind: tokNum, text: string(rs[start:i]), pos: start})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(rs) && (rs[i] == '_' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "**", pos: i})
			i += 2
		case strings.ContainsRune("+-*/^(),", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		default:
			return nil, fmt.Errorf("%w: invalid character %q at position %d", ErrParse, r, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

// =============================================================================
// Parser
// =============================================================================

type parser struct {
	toks          []token
	pos           int
	depth         int
	inexact       bool
	outerCalculus bool
}

// maxDepth bounds recursion on pathological input.
const maxDepth = 256

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) expect(text string) error {
	t := p.next()
	if t.kind != tokOp || t.text != text {
		return fmt.Errorf("%w: expected %q at position %d", ErrParse, text, t.pos)
	}
	return nil
}

func (p *parser) unexpected(t token) error {
	if t.kind == tokEOF {
		return fmt.Errorf("%w: unexpected end of input", ErrParse)
	}
	return fmt.Errorf("%w: unexpected %q at position %d", ErrParse, t.text, t.pos)
}

// expr := term (('+' | '-') term)*
func (p *parser) parseExpr() (Expr, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, fmt.Errorf("%w: expression nested too deeply", ErrParse)
	}

	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		p.outerCalculus = false
		if op == "-" {
			right = MulOf(N(-1), right)
		}
		left = AddOf(left, right)
	}
	return left, nil
}

// term := unary (('*' | '/') unary)*
func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		p.outerCalculus = false
		if op == "/" {
			right = PowOf(right, N(-1))
		}
		left = MulOf(left, right)
	}
	return left, nil
}

// unary := ('-' | '+') unary | power
func (p *parser) parseUnary() (Expr, error) {
	if p.isOp("-") {
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		p.outerCalculus = false
		return MulOf(N(-1), e), nil
	}
	if p.isOp("+") {
		p.next()
		return p.parseUnary()
	}
	return p.parsePower()
}

// power := implicit (('**' | '^') unary)?
func (p *parser) parsePower() (Expr, error) {
	base, err := p.parseImplicit()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") || p.isOp("^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		p.outerCalculus = false
		return PowOf(base, exp), nil
	}
	return base, nil
}

// implicit := primary, or a number directly followed by a symbol, call or
// parenthesised group.
func (p *parser) parseImplicit() (Expr, error) {
	startsWithNum := p.peek().kind == tokNum
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !startsWithNum {
		return left, nil
	}
	if t := p.peek(); t.kind == tokIdent || (t.kind == tokOp && t.text == "(") {
		right, err := p.parseImplicitOperand()
		if err != nil {
			return nil, err
		}
		p.outerCalculus = false
		return MulOf(left, right), nil
	}
	return left, nil
}

// parseImplicitOperand binds ** tighter than the implicit product, so
// 2x**2 is 2*(x**2).
func (p *parser) parseImplicitOperand() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") || p.isOp("^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return PowOf(base, exp), nil
	}
	return base, nil
}

// primary := number | ident | ident '(' args ')' | '(' expr ')'
func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		p.outerCalculus = false
		return p.number(t)

	case tokIdent:
		if p.isOp("(") {
			return p.call(t)
		}
		p.outerCalculus = false
		switch t.text {
		case "pi":
			return Pi, nil
		case "E":
			return E, nil
		}
		return S(t.text), nil

	case tokOp:
		if t.text == "(" {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, p.unexpected(t)
}

func (p *parser) number(t token) (Expr, error) {
	if strings.ContainsAny(t.text, ".eE") {
		p.inexact = true
	}
	r, ok := new(big.Rat).SetString(t.text)
	if !ok {
		return nil, fmt.Errorf("%w: invalid number %q at position %d", ErrParse, t.text, t.pos)
	}
	return numFromRat(r), nil
}

// arg is a call argument: an expression or a (var, lower, upper) limit
// tuple.
type arg struct {
	expr  Expr
	tuple []Expr
}

func (p *parser) call(name token) (Expr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []arg
	if !p.isOp(")") {
		for {
			a, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if !p.isOp(",") {
				break
			}
			p.next()
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}

	switch name.text {
	case "integrate":
		e, err := p.integrate(args)
		p.outerCalculus = err == nil
		return e, err
	case "diff":
		e, err := p.diff(args)
		p.outerCalculus = err == nil
		return e, err
	}

	p.outerCalculus = false
	exprs, err := plainArgs(name.text, args)
	if err != nil {
		return nil, err
	}

	switch name.text {
	case "simplify":
		if len(exprs) != 1 {
			return nil, arity(name.text, 1, len(exprs))
		}
		return exprs[0], nil
	case "sqrt":
		if len(exprs) != 1 {
			return nil, arity(name.text, 1, len(exprs))
		}
		return PowOf(exprs[0], Q(1, 2)), nil
	case "log", "ln":
		switch len(exprs) {
		case 1:
			return FuncOf("log", exprs[0]), nil
		case 2:
			return MulOf(FuncOf("log", exprs[0]), PowOf(FuncOf("log", exprs[1]), N(-1))), nil
		}
		return nil, arity(name.text, 1, len(exprs))
	case "abs":
		name.text = "Abs"
	}

	if !IsFunction(name.text) {
		return nil, fmt.Errorf("%w: %w: %s", ErrParse, ErrUnknownFunction, name.text)
	}
	if len(exprs) != 1 {
		return nil, arity(name.text, 1, len(exprs))
	}
	return FuncOf(name.text, exprs[0]), nil
}

// parseArg tries a limit tuple first and falls back to an expression.
func (p *parser) parseArg() (arg, error) {
	if p.isOp("(") {
		save := p.pos
		p.next()
		first, err := p.parseExpr()
		if err == nil && p.isOp(",") {
			tuple := []Expr{first}
			for p.isOp(",") {
				p.next()
				e, err := p.parseExpr()
				if err != nil {
					return arg{}, err
				}
				tuple = append(tuple, e)
			}
			if err := p.expect(")"); err != nil {
				return arg{}, err
			}
			return arg{tuple: tuple}, nil
		}
		p.pos = save
	}
	e, err := p.parseExpr()
	if err != nil {
		return arg{}, err
	}
	return arg{expr: e}, nil
}

func plainArgs(name string, args []arg) ([]Expr, error) {
	out := make([]Expr, 0, len(args))
	for _, a := range args {
		if a.tuple != nil {
			return nil, fmt.Errorf("%w: %s does not accept a tuple argument", ErrParse, name)
		}
		out = append(out, a.expr)
	}
	return out, nil
}

func arity(name string, want, got int) error {
	return fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrParse, name, want, got)
}

// variable resolves the integration or differentiation variable. An
// omitted variable is allowed when f has a single free symbol.
func variable(name string, f Expr, a *arg) (string, error) {
	if a == nil {
		free := FreeSymbols(f)
		if len(free) != 1 {
			return "", fmt.Errorf("%w: %s needs an explicit variable for %s", ErrParse, name, f.String())
		}
		return free[0], nil
	}
	s, ok := a.expr.(*Sym)
	if !ok {
		return "", fmt.Errorf("%w: %s variable must be a symbol", ErrParse, name)
	}
	return s.name, nil
}

func (p *parser) integrate(args []arg) (Expr, error) {
	if len(args) < 1 || len(args) > 2 || args[0].tuple != nil {
		return nil, fmt.Errorf("%w: integrate expects (f, x) or (f, (x, a, b))", ErrParse)
	}
	f := args[0].expr
	if len(args) == 2 && args[1].tuple != nil {
		limits := args[1].tuple
		if len(limits) != 3 {
			return nil, fmt.Errorf("%w: integration limits must be (x, a, b)", ErrParse)
		}
		s, ok := limits[0].(*Sym)
		if !ok {
			return nil, fmt.Errorf("%w: integrate variable must be a symbol", ErrParse)
		}
		return DefiniteIntegrate(f, s.name, limits[1], limits[2])
	}

	var va *arg
	if len(args) == 2 {
		va = &args[1]
	}
	v, err := variable("integrate", f, va)
	if err != nil {
		return nil, err
	}
	return Integrate(f, v)
}

func (p *parser) diff(args []arg) (Expr, error) {
	exprs, err := plainArgs("diff", args)
	if err != nil {
		return nil, err
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("%w: diff expects (f, x) or (f, x, n)", ErrParse)
	}
	f := exprs[0]
	if len(exprs) == 1 {
		v, err := variable("diff", f, nil)
		if err != nil {
			return nil, err
		}
		return Diff(f, v, 1), nil
	}

	// diff(f, x, 2) differentiates twice; diff(f, x, y) once in each.
	i := 1
	for i < len(exprs) {
		v, err := variable("diff", f, &args[i])
		if err != nil {
			return nil, err
		}
		order := 1
		if i+1 < len(exprs) {
			if n, ok := exprs[i+1].(*Num); ok {
				if !n.IsInteger() || n.IsNegative() || n.val.Num().Int64() > maxDerivativeOrder {
					return nil, fmt.Errorf("%w: invalid derivative order %s", ErrParse, n.String())
				}
				order = int(n.val.Num().Int64())
				i++
			}
		}
		f = Diff(f, v, order)
		i++
	}
	return f, nil
}

// maxDerivativeOrder bounds diff(f, x, n).
const maxDerivativeOrder = 64
