// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command solverd runs the symbolic solver server on its own.
//
// Environment variables:
//   - SOLVERD_PORT: listen port (default 5000)
//   - SOLVERD_HOST: listen host (default 0.0.0.0)
//   - LOG_LEVEL: debug, info, warn, error (default info)
//   - OTEL_TRACES_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT: tracing
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AgenticMath/pkg/logging"
	"github.com/AleutianAI/AgenticMath/services/api"
	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/solverd"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	port := getEnvOr("SOLVERD_PORT", "5000")
	host := getEnvOr("SOLVERD_HOST", "0.0.0.0")
	level, _ := logging.ParseLevel(os.Getenv("LOG_LEVEL"))

	logger := logging.New(logging.Config{Level: level, Service: "solverd", JSON: true})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := observability.DefaultConfig()
	tcfg.ServiceName = "agenticmath-solverd"
	shutdown, err := observability.Init(ctx, tcfg)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	gin.SetMode(gin.ReleaseMode)
	router := solverd.NewRouter(solverd.Config{
		Metrics:  observability.NewMetrics(prometheus.DefaultRegisterer),
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger.Slog(),
	})

	addr := net.JoinHostPort(host, port)
	logger.Info("Starting solver server", "address", addr)
	if err := api.Serve(ctx, addr, router, logger.Slog()); err != nil {
		logger.Error("solver server failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
