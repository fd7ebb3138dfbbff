// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the agenticmath CLI.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Palette shared with the result card.
var (
	ColorPrimary = lipgloss.Color("#667EEA")
	ColorAccent  = lipgloss.Color("#764BA2")
	ColorSuccess = lipgloss.Color("#A8E6CF")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#8E8EA0")
)

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Printer writes styled status lines. When the output is not a terminal
// it writes plain "OK:"/"WARN:"/"ERROR:" prefixed lines instead, for
// scripts.
type Printer struct {
	out     io.Writer
	machine bool

	title   lipgloss.Style
	key     lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
}

// NewPrinter returns a Printer for w. Machine mode is chosen when w is
// not a terminal.
func NewPrinter(w io.Writer) *Printer {
	return newPrinter(w, !isTerminal(w))
}

// NewMachinePrinter returns a Printer that never styles its output.
func NewMachinePrinter(w io.Writer) *Printer {
	return newPrinter(w, true)
}

func newPrinter(w io.Writer, machine bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if machine {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{
		out:     w,
		machine: machine,
		title:   r.NewStyle().Bold(true).Foreground(ColorAccent),
		key:     r.NewStyle().Foreground(ColorPrimary),
		success: r.NewStyle().Foreground(ColorSuccess),
		warning: r.NewStyle().Foreground(ColorWarning),
		err:     r.NewStyle().Foreground(ColorError),
		muted:   r.NewStyle().Foreground(ColorMuted),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Title prints a styled title. Nothing in machine mode.
func (p *Printer) Title(text string) {
	if p.machine {
		return
	}
	fmt.Fprintln(p.out, p.title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if p.machine {
		fmt.Fprintf(p.out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.success.Render(string(IconSuccess)), p.success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if p.machine {
		fmt.Fprintf(p.out, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.warning.Render(string(IconWarning)), p.warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if p.machine {
		fmt.Fprintf(p.out, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.err.Render(string(IconError)), p.err.Render(text))
}

// Field prints one "key: value" line, key padded to width. An empty
// value prints as "(not set)".
func (p *Printer) Field(key, value string, width int) {
	if value == "" {
		value = p.muted.Render("(not set)")
	}
	if p.machine {
		fmt.Fprintf(p.out, "%s=%s\n", key, value)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.key.Render(fmt.Sprintf("%-*s", width+1, key+":")), value)
}
