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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	jsonOutput bool // solve: print the message JSON instead of the card

	settingsCredential  string
	settingsEndpointURL string

	apiAddress    string // serve / dismiss / solve override for server.api_address
	solverAddress string // serve override for server.solver_address

	rootCmd = &cobra.Command{
		Use:   "agenticmath",
		Short: "Solve highlighted math and explain it step by step",
		Long: `Agentic Math normalizes a math selection, solves it with a local
evaluator or a remote symbolic solver, and asks an LLM to explain the
answer step by step.`,
		SilenceUsage: true,
	}

	// --- Solve ---
	solveCmd = &cobra.Command{
		Use:   "solve [expression...]",
		Short: "Solve an expression and show the result card (reads stdin when no args)",
		RunE:  runSolve, // Defined in cmd_solve.go
	}

	// --- Servers ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the symbolic solver server",
		RunE:  runServe, // Defined in cmd_serve.go
	}
	dismissCmd = &cobra.Command{
		Use:   "dismiss",
		Short: "Dismiss the card shown by a running server",
		Args:  cobra.NoArgs,
		RunE:  runDismiss, // Defined in cmd_serve.go
	}

	// --- Settings ---
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Show or change the API key and solver server URL",
	}
	settingsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the stored settings (the API key is masked)",
		Args:  cobra.NoArgs,
		RunE:  runSettingsShow, // Defined in cmd_settings.go
	}
	settingsSetCmd = &cobra.Command{
		Use:   "set",
		Short: "Change stored settings from flags",
		Args:  cobra.NoArgs,
		RunE:  runSettingsSet, // Defined in cmd_settings.go
	}
	settingsEditCmd = &cobra.Command{
		Use:   "edit",
		Short: "Edit the stored settings in an interactive form",
		Args:  cobra.NoArgs,
		RunE:  runSettingsEdit, // Defined in cmd_settings.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.agenticmath/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	solveCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the presentation message as JSON")
	solveCmd.Flags().StringVar(&apiAddress, "addr", "", "address of a running API to send the solve to (overrides config)")

	serveCmd.Flags().StringVar(&apiAddress, "addr", "", "API listen address (overrides config)")
	serveCmd.Flags().StringVar(&solverAddress, "solver-addr", "", "solver listen address (overrides config; \"off\" disables)")
	dismissCmd.Flags().StringVar(&apiAddress, "addr", "", "address of the running API (overrides config)")

	settingsSetCmd.Flags().StringVar(&settingsCredential, "credential", "", "Groq API key (\"-\" clears it)")
	settingsSetCmd.Flags().StringVar(&settingsEndpointURL, "solver-url", "", "SymPy-compatible solver URL")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsEditCmd)
	rootCmd.AddCommand(solveCmd, serveCmd, dismissCmd, settingsCmd)
}
