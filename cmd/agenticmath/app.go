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
	"io"
	"log/slog"
	"os"

	"github.com/AleutianAI/AgenticMath/cmd/agenticmath/config"
	"github.com/AleutianAI/AgenticMath/pkg/logging"
	"github.com/AleutianAI/AgenticMath/services/assistant"
	"github.com/AleutianAI/AgenticMath/services/explain"
	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/AleutianAI/AgenticMath/services/solver"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds the components shared by the commands. Build it with
// newApp and release it with close.
type app struct {
	cfg       config.AgenticMathConfig
	logger    *logging.Logger
	store     *settings.BadgerStore
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	hub       *overlay.Hub
	presenter *overlay.Presenter
	assistant *assistant.Assistant
	solver    *embeddedSolver

	shutdownTracing func(context.Context) error
}

// loadConfig reads the config file and applies the global flags.
func loadConfig() (config.AgenticMathConfig, error) {
	cfg, err := config.Load(configPath, os.Stderr)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.AgenticMathConfig, service string) *logging.Logger {
	level, ok := logging.ParseLevel(cfg.Logging.Level)
	if !ok {
		level = logging.LevelInfo
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: service,
		JSON:    cfg.Logging.JSON,
	})
}

// openStore opens the badger settings database.
func openStore(cfg config.AgenticMathConfig, logger *slog.Logger) (*settings.BadgerStore, error) {
	bc := settings.DefaultBadgerConfig(cfg.Storage.SettingsPath)
	bc.Logger = logger
	store, err := settings.OpenBadgerStore(bc)
	if err != nil {
		return nil, fmt.Errorf("open settings at %s (is another agenticmath process running?): %w",
			cfg.Storage.SettingsPath, err)
	}
	return store, nil
}

// newApp wires the full solve flow. Cards are rendered to cardOut. With
// embedSolver the default solver endpoint is served in-process when
// nothing else serves it.
func newApp(ctx context.Context, cardOut io.Writer, embedSolver bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, "agenticmath")
	slog.SetDefault(logger.Slog())
	if path := logger.Path(); path != "" {
		logger.Debug("writing logs to file", "path", path)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx, cardOut, embedSolver); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cardOut io.Writer, embedSolver bool) error {
	log := a.logger.Slog()

	tcfg := observability.DefaultConfig()
	tcfg.TraceExporter = a.cfg.Telemetry.TraceExporter
	tcfg.OTLPEndpoint = a.cfg.Telemetry.OTLPEndpoint
	shutdown, err := observability.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	a.store, err = openStore(a.cfg, log)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(a.registry)

	var solverStore settings.Store = a.store
	if embedSolver {
		if solverStore, err = a.solverSettings(ctx, log); err != nil {
			return err
		}
	}
	remote, err := solver.NewRemoteSolver(solver.RemoteSolverConfig{
		Settings: solverStore,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	pipeline, err := solver.NewPipeline(solver.PipelineConfig{
		Local: solver.NewJSEvaluator(solver.JSEvaluatorConfig{
			Timeout: a.cfg.Evaluator.Timeout,
			Logger:  log,
		}),
		Remote:  remote,
		Metrics: a.metrics,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	temperature := a.cfg.LLM.Temperature
	explainer, err := explain.NewExplainer(explain.Config{
		Settings:    a.store,
		NewClient:   explain.OpenAIClientFactory(a.cfg.LLM.BaseURL, a.cfg.LLM.Model, nil, log),
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: &temperature,
		Metrics:     a.metrics,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	a.assistant, err = assistant.New(assistant.Config{
		Solver:    pipeline,
		Explainer: explainer,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	a.hub = overlay.NewHub()
	a.presenter = overlay.NewPresenter(overlay.PresenterConfig{
		Out:    cardOut,
		Hub:    a.hub,
		Logger: log,
	})
	return nil
}

func (a *app) close() {
	if a.solver != nil {
		if err := a.solver.stop(); err != nil {
			a.logger.Warn("embedded solver stop error", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("settings store close error", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.Background()); err != nil {
			a.logger.Warn("tracer shutdown error", "error", err)
		}
	}
	_ = a.logger.Close()
}
