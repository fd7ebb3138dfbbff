// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package solverd is the remote symbolic solver: an HTTP front end for
// pkg/symbolic speaking the solver wire contract.
package solverd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/AgenticMath/pkg/symbolic"
	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Version is reported by GET /health.
const Version = "1.0.0"

// SolverName labels symbolic solves in metrics.
const SolverName = "symbolic"

const tracerName = "agenticmath.solverd"

// SolveFunc computes the answer for an expression. symbolic.Solve by
// default.
type SolveFunc func(expr string) (string, error)

// Config wires the solver server.
type Config struct {
	// Solve defaults to symbolic.Solve.
	Solve SolveFunc

	// Metrics records solves. May be nil.
	Metrics *observability.Metrics

	// Gatherer is served on /metrics. nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// ServiceName tags spans. Default "agenticmath-solverd".
	ServiceName string

	// Logger for diagnostics. nil uses slog.Default().
	Logger *slog.Logger
}

type server struct {
	solve   SolveFunc
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRouter returns the solver server's gin engine.
//
//	POST /solve   {"expression": "..."} -> {"result": "..."}
//	GET  /health  {"status": "healthy", "version": "1.0.0"}
//	GET  /        service description
//	GET  /metrics when cfg.Gatherer is set
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Solve == nil {
		cfg.Solve = symbolic.Solve
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agenticmath-solverd"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &server{solve: cfg.Solve, metrics: cfg.Metrics, logger: cfg.Logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(CORS())

	router.POST("/solve", s.handleSolve)
	router.GET("/health", handleHealth)
	router.GET("/", handleInfo)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// CORS allows any origin, as the browser calls the solver directly.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// handleSolve handles POST /solve.
//
// # Description
//
// Status codes:
//
//	400 {"error":"No expression provided"}                  missing body or field
//	400 {"error":"Invalid mathematical expression: ..."}    parse failure
//	500 {"error":"Server error: ..."}                       anything else
func (s *server) handleSolve(c *gin.Context) {
	_, span := observability.StartSpan(c.Request.Context(), tracerName, "solverd.Solve")
	defer span.End()

	var body map[string]json.RawMessage
	raw, ok := []byte(nil), false
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err == nil && body != nil {
		raw, ok = body["expression"]
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No expression provided"})
		return
	}

	var expr string
	if err := json.Unmarshal(raw, &expr); err != nil {
		err = fmt.Errorf("expression must be a string: %w", err)
		observability.RecordError(span, err)
		s.logger.Error("server error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error: " + err.Error()})
		return
	}
	expr = strings.TrimSpace(expr)
	span.SetAttributes(attribute.String("solverd.expression", expr))
	s.logger.Info("solving expression", "expression", expr)

	start := time.Now()
	result, err := s.solve(expr)
	s.metrics.RecordSolveAttempt(SolverName, err, time.Since(start))
	if err != nil {
		s.respondError(c, span, err)
		return
	}

	s.logger.Info("solved expression", "expression", expr, "result", result)
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *server) respondError(c *gin.Context, span trace.Span, err error) {
	observability.RecordError(span, err)
	if errors.Is(err, symbolic.ErrParse) || errors.Is(err, symbolic.ErrEmptyExpression) {
		s.logger.Error("parse error", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mathematical expression: " + err.Error()})
		return
	}
	s.logger.Error("server error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error: " + err.Error()})
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": Version})
}

func handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Agentic Math Solver",
		"description": "Solves symbolic mathematical expressions for Agentic Math",
		"endpoints": gin.H{
			"/solve":  "POST - Solve mathematical expressions",
			"/health": "GET - Health check",
		},
	})
}
