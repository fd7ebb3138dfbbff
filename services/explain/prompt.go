// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package explain

import (
	"strings"
	"text/template"
)

// promptTemplate asks the model to explain the given answer, never to
// recompute it.
var promptTemplate = template.Must(template.New("explain").Parse(
	`You are a math tutor helping students understand solutions. Given a math problem and its correct answer (already computed), explain HOW to solve it step-by-step.

Rules:
- Write exactly one clear action per line
- Each step should be a simple, actionable instruction
- End with "Final Answer: {{.Answer}}"
- Do NOT recalculate - trust the given answer
- Keep steps concise (max 5-6 steps)

Problem: {{.Problem}}
Correct Answer: {{.Answer}}

Steps:`))

// BuildPrompt renders the explanation prompt for problem and answer.
func BuildPrompt(problem, answer string) string {
	var sb strings.Builder
	// Execute only fails on writer errors; strings.Builder never returns one.
	_ = promptTemplate.Execute(&sb, struct{ Problem, Answer string }{problem, answer})
	return sb.String()
}
