// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SolveRequest is the body of POST /v1/solve.
type SolveRequest struct {
	// Selection is the highlighted text. Empty is allowed and answered
	// with an error message.
	Selection string `json:"selection"`

	// MenuItemID, when set, must name the solve menu item.
	MenuItemID string `json:"menu_item_id" binding:"omitempty,eq=agentic-math-solve"`
}

// SettingsRequest is the body of PUT /v1/settings. Omitted fields keep
// their stored value.
type SettingsRequest struct {
	Credential        *string `json:"credential"`
	SolverEndpointURL *string `json:"solver_endpoint_url"`
}

type handlers struct {
	assistant Handler
	presenter *overlay.Presenter
	hub       *overlay.Hub
	settings  settings.Store
	logger    *slog.Logger
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MetricsHandler serves the metrics in g.
func MetricsHandler(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// Solve handles POST /v1/solve.
//
// # Description
//
// Runs the solve action, shows the resulting card and returns it. Solve
// and explanation failures are reported in the message with status 200;
// only a malformed request yields 400.
func (h *handlers) Solve(c *gin.Context) {
	var req SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	msg := h.assistant.Handle(c.Request.Context(), req.Selection)
	h.presenter.Render(msg)

	h.logger.Info("solve action handled",
		"request_id", GetRequestID(c),
		"type", msg.Type())
	c.JSON(http.StatusOK, msg)
}

// CurrentOverlay handles GET /v1/overlay.
func (h *handlers) CurrentOverlay(c *gin.Context) {
	msg, ok := h.presenter.Current()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DismissOverlay handles POST /v1/overlay/dismiss.
func (h *handlers) DismissOverlay(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dismissed": h.presenter.Dismiss()})
}

// GetSettings handles GET /v1/settings. The credential is masked.
func (h *handlers) GetSettings(c *gin.Context) {
	s, err := h.settings.Load(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, s.Masked())
}

// PutSettings handles PUT /v1/settings.
func (h *handlers) PutSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	s, err := h.settings.Load(ctx)
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	if req.Credential != nil {
		s.Credential = *req.Credential
	}
	if req.SolverEndpointURL != nil {
		s.SolverEndpointURL = *req.SolverEndpointURL
	}

	if err := h.settings.Save(ctx, s); err != nil {
		if errors.Is(err, settings.ErrInvalidSettings) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to save settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	h.logger.Info("settings saved",
		"credential_present", s.Credential != "",
		"solver_endpoint_url", s.SolverEndpointURL)
	c.JSON(http.StatusOK, s.WithDefaults().Masked())
}
