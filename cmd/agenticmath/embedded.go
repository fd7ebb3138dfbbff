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
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/AleutianAI/AgenticMath/services/api"
	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/AleutianAI/AgenticMath/services/solverd"
)

// solverDialTimeout bounds the check for a solver server already
// listening on the default endpoint.
const solverDialTimeout = 300 * time.Millisecond

// embeddedSolver is a solver server on an ephemeral loopback port, used by
// `solve` when no server is running.
type embeddedSolver struct {
	endpoint string
	cancel   context.CancelFunc
	done     chan error
}

// startEmbeddedSolver serves the symbolic solver on 127.0.0.1:0 until
// stop is called or ctx ends.
func startEmbeddedSolver(ctx context.Context, metrics *observability.Metrics, logger *slog.Logger) (*embeddedSolver, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for embedded solver: %w", err)
	}
	router := solverd.NewRouter(solverd.Config{Metrics: metrics, Logger: logger})

	ctx, cancel := context.WithCancel(ctx)
	e := &embeddedSolver{
		endpoint: "http://" + ln.Addr().String() + "/solve",
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() { e.done <- api.ServeListener(ctx, ln, router, logger) }()
	return e, nil
}

func (e *embeddedSolver) stop() error {
	e.cancel()
	return <-e.done
}

// solverReachable reports whether something accepts connections at the
// host of endpoint.
func solverReachable(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	conn, err := net.DialTimeout("tcp", host, solverDialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// embeddedEndpointStore reports the embedded solver in place of the
// default endpoint. A user-configured endpoint is passed through.
type embeddedEndpointStore struct {
	settings.Store
	endpoint string
}

func (s embeddedEndpointStore) Load(ctx context.Context) (settings.Settings, error) {
	cur, err := s.Store.Load(ctx)
	if err != nil {
		return cur, err
	}
	if cur.SolverEndpointURL == settings.DefaultSolverEndpointURL {
		cur.SolverEndpointURL = s.endpoint
	}
	return cur, nil
}

// solverSettings returns the store the remote solver reads its endpoint
// from. When the endpoint is the default one and nothing listens there, a
// solver server is embedded for the life of the app.
func (a *app) solverSettings(ctx context.Context, log *slog.Logger) (settings.Store, error) {
	cur, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if cur.SolverEndpointURL != settings.DefaultSolverEndpointURL || solverReachable(cur.SolverEndpointURL) {
		return a.store, nil
	}

	e, err := startEmbeddedSolver(ctx, a.metrics, log.With("server", "solverd"))
	if err != nil {
		return nil, err
	}
	a.solver = e
	log.Debug("started embedded solver", "endpoint", e.endpoint)
	return embeddedEndpointStore{Store: a.store, endpoint: e.endpoint}, nil
}
