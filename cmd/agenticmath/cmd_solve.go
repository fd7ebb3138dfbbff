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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/AgenticMath/services/api"
	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxStdinSelection caps a selection read from stdin.
const maxStdinSelection = 64 * 1024

// solveRequestTimeout bounds a solve sent to a running server, including
// the explanation round trip.
const solveRequestTimeout = 2 * time.Minute

// errServerUnreachable marks a solve request that never reached a server.
var errServerUnreachable = errors.New("agenticmath server is not running")

// runSolve handles `agenticmath solve`.
//
// # Description
//
// Treats the arguments (or stdin) as the highlighted text and runs one
// solve action. When `agenticmath serve` is running the action is sent to
// its /v1/solve, so the settings database stays with the server and the
// card also reaches its overlay clients. Otherwise the flow runs
// in-process and a solver server is embedded on an ephemeral port when the
// default one is not listening. In-process, the assistant and the
// presenter are connected by a single typed channel, the same way the
// server's flows are.
func runSolve(cmd *cobra.Command, args []string) error {
	selection, err := readSelection(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Server.APIAddress
	if apiAddress != "" {
		addr = apiAddress
	}

	out := cmd.OutOrStdout()
	msg, err := requestSolve(cmd.Context(), "http://"+addr, selection)
	switch {
	case err == nil:
		return printMessage(out, msg)
	case !errors.Is(err, errServerUnreachable):
		return err
	}

	cardOut := out
	if jsonOutput {
		cardOut = io.Discard
	}
	gin.SetMode(gin.ReleaseMode)
	a, err := newApp(cmd.Context(), cardOut, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := solveOnce(cmd.Context(), a, selection); err != nil {
		return err
	}
	if jsonOutput {
		msg, _ := a.presenter.Current()
		return printJSON(out, msg)
	}
	return nil
}

// requestSolve sends selection to the API at baseURL and returns the
// presentation message it answered with. A server that cannot be reached
// yields an error wrapping errServerUnreachable.
func requestSolve(ctx context.Context, baseURL, selection string) (overlay.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, solveRequestTimeout)
	defer cancel()

	body, err := json.Marshal(api.SolveRequest{Selection: selection})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/solve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("solve request to %s: %w", baseURL, err)
		}
		return nil, fmt.Errorf("%w at %s: %v", errServerUnreachable, baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read solve response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solve failed: server returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return overlay.DecodeMessage(data)
}

// printMessage shows msg as a card, or as JSON with --json.
func printMessage(w io.Writer, msg overlay.Message) error {
	if jsonOutput {
		return printJSON(w, msg)
	}
	overlay.NewPresenter(overlay.PresenterConfig{Out: w}).Render(msg)
	return nil
}

func printJSON(w io.Writer, msg overlay.Message) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// solveOnce dispatches one selection and renders the resulting message.
func solveOnce(ctx context.Context, a *app, selection string) error {
	msgs := make(chan overlay.Message)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(msgs)
		return a.assistant.Dispatch(gctx, selection, msgs)
	})
	g.Go(func() error {
		return a.presenter.Run(gctx, msgs)
	})
	return g.Wait()
}

// readSelection joins args, or reads r when there are none.
func readSelection(args []string, r io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(io.LimitReader(r, maxStdinSelection))
	if err != nil {
		return "", fmt.Errorf("read selection from stdin: %w", err)
	}
	return string(data), nil
}
