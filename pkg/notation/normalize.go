// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notation rewrites hand-typed mathematical text into the
// programming-style syntax the evaluators accept.
//
// # Description
//
// Users select text such as "∫x²dx" or "3×4". The evaluators want
// "integrate(x**2, x)" and "3*4". Normalize applies a fixed, ordered list
// of textual rewrite rules to bridge the two. It is not a parser: there is
// no AST and no precedence awareness, so malformed input stays malformed.
//
// # Limitations
//
//   - The integral rule captures everything up to the first "d", so
//     "∫ x dx + y dx" is split at the wrong place.
//   - The derivative rule only accepts a body without ")" characters.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package notation

import (
	"regexp"
)

// Hint lists the notations that are known to work. It is shown to the
// user when no solver could handle a selection.
const Hint = "Try formats like: integrate(x**2, x) for integrals, diff(x**2, x) for derivatives."

// Rule is a single textual rewrite step.
type Rule struct {
	// Name identifies the rule in logs and diagnostics.
	Name string

	pattern     *regexp.Regexp
	replacement string
}

// Apply rewrites every match of the rule in s.
func (r Rule) Apply(s string) string {
	return r.pattern.ReplaceAllString(s, r.replacement)
}

// rules run in order; later rules assume earlier ones already ran.
var rules = []Rule{
	{Name: "integral", pattern: regexp.MustCompile(`∫([^d]+)d([a-zA-Z])`), replacement: "integrate(${1}, ${2})"},
	{Name: "anchored-square", pattern: regexp.MustCompile(`([a-zA-Z0-9)])²`), replacement: "${1}**2"},
	{Name: "anchored-cube", pattern: regexp.MustCompile(`([a-zA-Z0-9)])³`), replacement: "${1}**3"},
	{Name: "anchored-fourth", pattern: regexp.MustCompile(`([a-zA-Z0-9)])⁴`), replacement: "${1}**4"},
	{Name: "anchored-fifth", pattern: regexp.MustCompile(`([a-zA-Z0-9)])⁵`), replacement: "${1}**5"},
	{Name: "times", pattern: regexp.MustCompile(`×`), replacement: "*"},
	{Name: "divide", pattern: regexp.MustCompile(`÷`), replacement: "/"},
	{Name: "bare-square", pattern: regexp.MustCompile(`²`), replacement: "**2"},
	{Name: "bare-cube", pattern: regexp.MustCompile(`³`), replacement: "**3"},
	{Name: "derivative", pattern: regexp.MustCompile(`d/d([a-zA-Z])\(([^)]+)\)`), replacement: "diff(${2}, ${1})"},
}

// Normalize rewrites raw into evaluator syntax.
//
// # Description
//
// Applies, in order: integral notation, anchored superscripts, the ×/÷
// glyphs, any leftover ²/³, and derivative notation. Text that matches no
// rule passes through unchanged.
//
// # Inputs
//
//   - raw: The user's selection. Any string, including empty.
//
// # Outputs
//
//   - string: The rewritten expression. Never fails.
//
// # Examples
//
//	notation.Normalize("∫x²dx")      // "integrate(x**2, x)"
//	notation.Normalize("d/dx(x**2)") // "diff(x**2, x)"
//	notation.Normalize("2×3")        // "2*3"
func Normalize(raw string) string {
	out := raw
	for _, r := range rules {
		out = r.Apply(out)
	}
	return out
}

// Rules returns the rewrite rules in the order Normalize applies them.
func Rules() []Rule {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return cp
}
