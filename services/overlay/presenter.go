// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package overlay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Card palette, the gradient ends of the browser card.
var (
	colorIndigo = lipgloss.Color("#667EEA")
	colorPurple = lipgloss.Color("#764BA2")
	colorMint   = lipgloss.Color("#A8E6CF")
	colorError  = lipgloss.Color("#E74C3C")
	colorMuted  = lipgloss.Color("#8E8EA0")
)

// styles are bound to one renderer so colour follows the output writer.
type styles struct {
	card      lipgloss.Style
	errorCard lipgloss.Style
	title     lipgloss.Style
	heading   lipgloss.Style
	answer    lipgloss.Style
	stepNum   lipgloss.Style
	errorText lipgloss.Style
	hint      lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		card: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorIndigo).
			Padding(0, 1),
		errorCard: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorError).
			Padding(0, 1),
		title:     r.NewStyle().Bold(true).Foreground(colorPurple),
		heading:   r.NewStyle().Bold(true),
		answer:    r.NewStyle().Bold(true).Foreground(colorMint),
		stepNum:   r.NewStyle().Bold(true).Foreground(colorMint),
		errorText: r.NewStyle().Foreground(colorError),
		hint:      r.NewStyle().Foreground(colorMuted),
	}
}

// PresenterConfig configures a Presenter.
type PresenterConfig struct {
	// Out receives rendered cards. nil discards them; the current-card
	// reference and subscribers still work.
	Out io.Writer

	// Color forces colour on or off. nil enables colour only when Out is
	// a terminal.
	Color *bool

	// Hub, if set, receives every rendered message.
	Hub *Hub

	// Logger for diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

// Presenter owns the current overlay.
//
// # Description
//
// There is at most one card at a time. Render replaces the current card
// wholesale, so when two flows race the last writer wins. Dismiss removes
// it.
//
// # Thread Safety
//
// Safe for concurrent use.
type Presenter struct {
	mu      sync.Mutex
	current Message
	out     io.Writer
	styles  styles
	hub     *Hub
	logger  *slog.Logger
}

// NewPresenter returns a Presenter for cfg.
func NewPresenter(cfg PresenterConfig) *Presenter {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	color := isTerminal(cfg.Out)
	if cfg.Color != nil {
		color = *cfg.Color
	}
	r := lipgloss.NewRenderer(cfg.Out)
	if color {
		r.SetColorProfile(termenv.TrueColor)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Presenter{
		out:    cfg.Out,
		styles: newStyles(r),
		hub:    cfg.Hub,
		logger: cfg.Logger,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render replaces the current card with msg and draws it. Rendering a
// DismissMessage is the same as calling Dismiss.
func (p *Presenter) Render(msg Message) {
	if msg == nil {
		return
	}
	if _, ok := msg.(DismissMessage); ok {
		p.Dismiss()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = msg
	card := p.renderCard(msg)
	if _, err := fmt.Fprintln(p.out, card); err != nil {
		p.logger.Warn("failed to write overlay card", "error", err)
	}
	// Published under mu so subscribers see cards in the order current
	// changed. Publish never blocks.
	p.hub.Publish(msg)
}

// Dismiss removes the current card and tells subscribers with a
// DismissMessage. It reports whether there was a card.
func (p *Presenter) Dismiss() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return false
	}
	p.current = nil
	p.hub.Publish(DismissMessage{})
	return true
}

// Current returns the card on screen, if any.
func (p *Presenter) Current() (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != nil
}

// Card returns the rendered form of msg without changing the current card.
func (p *Presenter) Card(msg Message) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderCard(msg)
}

func (p *Presenter) renderCard(msg Message) string {
	s := p.styles
	var b strings.Builder

	switch m := msg.(type) {
	case ResultMessage:
		b.WriteString(s.title.Render("∑ Agentic Math"))
		b.WriteString("\n\n")
		b.WriteString(s.heading.Render("Final Answer"))
		b.WriteString("\n")
		b.WriteString(s.answer.Render(m.Answer))
		b.WriteString("\n\n")
		b.WriteString(s.heading.Render("Step-by-Step Solution"))
		for i, step := range Steps(m.Steps) {
			b.WriteString("\n")
			b.WriteString(s.stepNum.Render(fmt.Sprintf("%d.", i+1)))
			b.WriteString(" ")
			b.WriteString(step)
		}
		b.WriteString("\n\n")
		b.WriteString(s.hint.Render("✕ Close"))
		return s.card.Render(b.String())

	case ErrorMessage:
		b.WriteString(s.title.Render("⚠ Agentic Math - Error"))
		b.WriteString("\n\n")
		b.WriteString(s.errorText.Render(m.Error))
		b.WriteString("\n\n")
		b.WriteString(s.hint.Render("✕ Close"))
		return s.errorCard.Render(b.String())
	}
	return ""
}

// Steps splits explanation text into its non-blank, trimmed lines.
func Steps(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Run renders every message received on ch until ch is closed or ctx is
// done. It is the single consumer of the flow's message channel.
func (p *Presenter) Run(ctx context.Context, ch <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p.Render(msg)
		}
	}
}
