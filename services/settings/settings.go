// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings holds the user's persisted configuration: the
// explanation service credential and the remote solver endpoint.
//
// # Description
//
// Settings are a flat key-value map, read at the point of use by the
// solver pipeline and the explanation requester and written by the
// settings form (the PUT /v1/settings route or `agenticmath settings`).
// Missing keys fall back to defaults, so a fresh store is always usable.
//
// # Thread Safety
//
// Store implementations must be safe for concurrent use.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Storage keys. They match the keys the browser extension writes, so a
// settings export from the extension can be imported as-is.
const (
	KeyCredential        = "GROQ_API_KEY"
	KeySolverEndpointURL = "SYMPY_SERVER_URL"
)

// DefaultSolverEndpointURL is the loopback address of a locally started
// solver server.
const DefaultSolverEndpointURL = "http://localhost:5000/solve"

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

var settingsValidate = validator.New()

// Settings is the persisted user configuration.
type Settings struct {
	// Credential is the bearer token for the explanation service.
	// Empty means "not configured".
	Credential string `json:"credential" yaml:"credential" validate:"omitempty,printascii,max=512"`

	// SolverEndpointURL is the remote solver's POST endpoint.
	SolverEndpointURL string `json:"solver_endpoint_url" yaml:"solver_endpoint_url" validate:"required,url,startswith=http"`
}

// Defaults returns the settings used when nothing has been stored.
func Defaults() Settings {
	return Settings{SolverEndpointURL: DefaultSolverEndpointURL}
}

// WithDefaults fills empty fields from Defaults().
func (s Settings) WithDefaults() Settings {
	if strings.TrimSpace(s.SolverEndpointURL) == "" {
		s.SolverEndpointURL = DefaultSolverEndpointURL
	}
	return s
}

// Validate checks the settings before they are saved.
//
// # Outputs
//
//   - error: nil when valid; otherwise wraps ErrInvalidSettings and names
//     the offending field.
func (s Settings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidSettings, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Masked returns a copy safe for display. All but the last four
// characters of the credential are replaced with '*'.
func (s Settings) Masked() Settings {
	s.Credential = MaskCredential(s.Credential)
	return s
}

// MaskCredential hides all but the last four characters of cred.
func MaskCredential(cred string) string {
	if cred == "" {
		return ""
	}
	if len(cred) <= 4 {
		return strings.Repeat("*", len(cred))
	}
	return strings.Repeat("*", len(cred)-4) + cred[len(cred)-4:]
}

// Store persists Settings.
type Store interface {
	// Load returns the stored settings with defaults applied.
	Load(ctx context.Context) (Settings, error)

	// Save validates and persists s.
	Save(ctx context.Context, s Settings) error
}
