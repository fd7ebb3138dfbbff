// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package overlay owns the result card shown to the user: the two
// presentation messages, the dismissal notice, the current-card reference
// and its rendering.
package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire type tags. They match the messages the browser extension's
// content script listens for.
const (
	TypeResult  = "AGENTIC_MATH_RESULT"
	TypeError   = "AGENTIC_MATH_ERROR"
	TypeDismiss = "AGENTIC_MATH_DISMISS"
)

// ErrUnknownMessageType is returned by DecodeMessage for an unknown tag.
var ErrUnknownMessageType = errors.New("unknown message type")

// Message is a message sent to overlay subscribers. The implementations
// are ResultMessage, ErrorMessage and DismissMessage.
type Message interface {
	// Type returns the wire tag.
	Type() string

	isMessage()
}

// ResultMessage carries a solved answer and its explanation.
type ResultMessage struct {
	Answer string
	Steps  string
}

func (ResultMessage) Type() string { return TypeResult }
func (ResultMessage) isMessage()   {}

// ErrorMessage carries a user-facing failure.
type ErrorMessage struct {
	Error string
}

func (ErrorMessage) Type() string { return TypeError }
func (ErrorMessage) isMessage()   {}

// DismissMessage tells subscribers to remove the card on screen. It is
// never the current card.
type DismissMessage struct{}

func (DismissMessage) Type() string { return TypeDismiss }
func (DismissMessage) isMessage()   {}

// envelope is the JSON shape of every message.
type envelope struct {
	Type   string  `json:"type"`
	Answer *string `json:"answer,omitempty"`
	Steps  *string `json:"steps,omitempty"`
	Error  *string `json:"error,omitempty"`
}

func (m ResultMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: TypeResult, Answer: &m.Answer, Steps: &m.Steps})
}

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: TypeError, Error: &m.Error})
}

func (DismissMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: TypeDismiss})
}

// DecodeMessage parses the JSON form of a presentation message.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch env.Type {
	case TypeResult:
		m := ResultMessage{}
		if env.Answer != nil {
			m.Answer = *env.Answer
		}
		if env.Steps != nil {
			m.Steps = *env.Steps
		}
		return m, nil
	case TypeError:
		m := ErrorMessage{}
		if env.Error != nil {
			m.Error = *env.Error
		}
		return m, nil
	case TypeDismiss:
		return DismissMessage{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
}
