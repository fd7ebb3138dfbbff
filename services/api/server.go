// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the solve action, the overlay and the settings over
// HTTP. It stands in for the browser extension's context menu and
// settings popup.
//
//	POST /v1/solve          selection in, presentation message out
//	GET  /v1/overlay        current card (204 when none)
//	POST /v1/overlay/dismiss
//	GET  /v1/overlay/ws     stream of rendered messages
//	GET  /v1/settings       masked settings
//	PUT  /v1/settings       validate and save
//	GET  /health, /metrics
package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// MenuItemID is the only context-menu entry the solve endpoint accepts.
const MenuItemID = "agentic-math-solve"

// Defaults for the request limiter.
const (
	DefaultRateLimit = rate.Limit(10)
	DefaultBurst     = 20
)

// Handler runs one solve action. Implemented by *assistant.Assistant.
type Handler interface {
	Handle(ctx context.Context, selection string) overlay.Message
}

// Config wires the API router.
type Config struct {
	// Assistant handles solve actions. Required.
	Assistant Handler

	// Presenter shows the resulting card. Required.
	Presenter *overlay.Presenter

	// Hub feeds websocket subscribers. nil disables /v1/overlay/ws.
	Hub *overlay.Hub

	// Settings backs the settings endpoints. Required.
	Settings settings.Store

	// Gatherer is served on /metrics. nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Metrics records requests. May be nil.
	Metrics *observability.Metrics

	// RateLimit and Burst bound requests across all clients. Zero values
	// use DefaultRateLimit and DefaultBurst; rate.Inf disables limiting.
	RateLimit rate.Limit
	Burst     int

	// ServiceName tags spans. Default "agenticmath-api".
	ServiceName string

	// Logger for diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

// NewRouter validates cfg and returns the gin engine.
//
// # Description
//
// Middleware order: recovery, otelgin tracing, request ID, request
// metrics, then the rate limiter. Health and metrics are exempt from
// the limiter.
//
// # Outputs
//
//   - *gin.Engine: Ready to serve.
//   - error: Non-nil when a required dependency is missing.
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Assistant == nil {
		return nil, errors.New("assistant is required")
	}
	if cfg.Presenter == nil {
		return nil, errors.New("presenter is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("settings store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agenticmath-api"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	h := &handlers{
		assistant: cfg.Assistant,
		presenter: cfg.Presenter,
		hub:       cfg.Hub,
		settings:  cfg.Settings,
		logger:    cfg.Logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(RequestID())
	router.Use(RequestMetrics(cfg.Metrics))

	router.GET("/health", HealthCheck)
	if cfg.Gatherer != nil {
		router.GET("/metrics", MetricsHandler(cfg.Gatherer))
	}

	v1 := router.Group("/v1")
	v1.Use(RateLimiter(rate.NewLimiter(cfg.RateLimit, cfg.Burst)))
	{
		v1.POST("/solve", h.Solve)

		ov := v1.Group("/overlay")
		{
			ov.GET("", h.CurrentOverlay)
			ov.POST("/dismiss", h.DismissOverlay)
			if cfg.Hub != nil {
				ov.GET("/ws", h.OverlayWebSocket)
			}
		}

		v1.GET("/settings", h.GetSettings)
		v1.PUT("/settings", h.PutSettings)
	}
	return router, nil
}
