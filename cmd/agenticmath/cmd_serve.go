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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AleutianAI/AgenticMath/pkg/ux"
	"github.com/AleutianAI/AgenticMath/services/api"
	"github.com/AleutianAI/AgenticMath/services/solverd"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runServe handles `agenticmath serve`.
//
// # Description
//
// Runs the API server and, unless disabled, the symbolic solver server
// in one process. Either server failing stops both. SIGINT or SIGTERM
// shuts both down gracefully.
func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cmd.OutOrStdout(), false)
	if err != nil {
		return err
	}
	defer a.close()

	if apiAddress != "" {
		a.cfg.Server.APIAddress = apiAddress
	}
	if solverAddress != "" {
		a.cfg.Server.SolverAddress = solverAddress
	}
	if solverAddress == "off" {
		a.cfg.Server.SolverAddress = ""
	}

	gin.SetMode(gin.ReleaseMode)
	log := a.logger.Slog()

	router, err := api.NewRouter(api.Config{
		Assistant: a.assistant,
		Presenter: a.presenter,
		Hub:       a.hub,
		Settings:  a.store,
		Gatherer:  a.registry,
		Metrics:   a.metrics,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return api.Serve(ctx, a.cfg.Server.APIAddress, router, log.With("server", "api"))
	})
	if a.cfg.Server.SolverAddress != "" {
		solverRouter := solverd.NewRouter(solverd.Config{
			Metrics: a.metrics,
			Logger:  log.With("server", "solverd"),
		})
		g.Go(func() error {
			return api.Serve(ctx, a.cfg.Server.SolverAddress, solverRouter, log.With("server", "solverd"))
		})
	}
	return g.Wait()
}

// runDismiss handles `agenticmath dismiss`.
func runDismiss(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Server.APIAddress
	if apiAddress != "" {
		addr = apiAddress
	}

	dismissed, err := requestDismiss(cmd.Context(), "http://"+addr)
	if err != nil {
		return err
	}
	p := ux.NewPrinter(cmd.OutOrStdout())
	if dismissed {
		p.Success("Card dismissed.")
	} else {
		p.Warning("No card is showing.")
	}
	return nil
}

// requestDismiss asks the API at baseURL to dismiss the current card.
func requestDismiss(ctx context.Context, baseURL string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/overlay/dismiss", nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("could not reach the agenticmath server at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("dismiss failed: server returned status %d", resp.StatusCode)
	}
	var out struct {
		Dismissed bool `json:"dismissed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode dismiss response: %w", err)
	}
	return out.Dismissed, nil
}
