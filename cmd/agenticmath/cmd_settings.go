// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"strings"

	"github.com/AleutianAI/AgenticMath/pkg/ux"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// clearCredential passed to --credential removes the stored key.
const clearCredential = "-"

// withStore opens the settings database for the duration of fn.
func withStore(cmd *cobra.Command, fn func(settings.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "agenticmath")
	defer logger.Close()

	store, err := openStore(cfg, logger.Slog())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(store settings.Store) error {
		s, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		printSettings(ux.NewPrinter(cmd.OutOrStdout()), s)
		return nil
	})
}

func runSettingsSet(cmd *cobra.Command, _ []string) error {
	credChanged := cmd.Flags().Changed("credential")
	urlChanged := cmd.Flags().Changed("solver-url")
	if !credChanged && !urlChanged {
		return errors.New("nothing to set: pass --credential and/or --solver-url")
	}

	return withStore(cmd, func(store settings.Store) error {
		s, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		if credChanged {
			s = applyCredential(s, settingsCredential)
		}
		if urlChanged {
			s.SolverEndpointURL = strings.TrimSpace(settingsEndpointURL)
		}
		if err := store.Save(cmd.Context(), s); err != nil {
			return err
		}
		p := ux.NewPrinter(cmd.OutOrStdout())
		p.Success("Settings saved.")
		printSettings(p, s.WithDefaults())
		return nil
	})
}

// runSettingsEdit shows the settings form: the API key and the solver URL.
func runSettingsEdit(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(store settings.Store) error {
		s, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}

		credential := ""
		endpoint := s.SolverEndpointURL
		keyHint := "Not set."
		if s.Credential != "" {
			keyHint = "Current: " + settings.MaskCredential(s.Credential) + ". Leave blank to keep it, enter - to clear it."
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Groq API Key").
					Description(keyHint).
					EchoMode(huh.EchoModePassword).
					Value(&credential),
				huh.NewInput().
					Title("SymPy Server URL").
					Description("Solver endpoint used when local evaluation fails.").
					Value(&endpoint).
					Validate(validateEndpoint),
			),
		)
		if err := form.RunWithContext(cmd.Context()); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				ux.NewPrinter(cmd.OutOrStdout()).Warning("Cancelled. Nothing was saved.")
				return nil
			}
			return err
		}

		if credential != "" {
			s = applyCredential(s, credential)
		}
		s.SolverEndpointURL = strings.TrimSpace(endpoint)
		if err := store.Save(cmd.Context(), s); err != nil {
			return err
		}
		ux.NewPrinter(cmd.OutOrStdout()).Success("Settings saved.")
		return nil
	})
}

// applyCredential sets the credential, or clears it for clearCredential.
func applyCredential(s settings.Settings, value string) settings.Settings {
	value = strings.TrimSpace(value)
	if value == clearCredential {
		value = ""
	}
	s.Credential = value
	return s
}

func validateEndpoint(v string) error {
	return settings.Settings{SolverEndpointURL: strings.TrimSpace(v)}.Validate()
}

func printSettings(p *ux.Printer, s settings.Settings) {
	p.Title("Agentic Math Settings")
	p.Field("Groq API Key", s.Masked().Credential, 16)
	p.Field("SymPy Server URL", s.SolverEndpointURL, 16)
}
