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
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ActionDismiss is the only client-to-server websocket action.
const ActionDismiss = "dismiss"

const wsWriteTimeout = 5 * time.Second

// ExtensionOriginScheme is the origin scheme of the browser extension's
// background worker.
const ExtensionOriginScheme = "chrome-extension"

var upgrader = websocket.Upgrader{
	CheckOrigin:     checkOrigin,
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
}

// checkOrigin admits clients without an Origin header (the CLI and other
// non-browser clients), the browser extension, and pages served from a
// loopback host. Any other web page is refused so it cannot read cards or
// dismiss them.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return allowedOrigin(origin)
}

func allowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case ExtensionOriginScheme:
		return u.Host != ""
	case "http", "https":
		host := u.Hostname()
		if strings.EqualFold(host, "localhost") {
			return true
		}
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
	return false
}

// wsRequest is a client message on /v1/overlay/ws.
type wsRequest struct {
	Action string `json:"action"`
}

// OverlayWebSocket handles GET /v1/overlay/ws.
//
// # Description
//
// Streams every rendered presentation message as JSON. The current card,
// if any, is sent first. Dismissals, from any client or from
// POST /v1/overlay/dismiss, arrive as {"type":"AGENTIC_MATH_DISMISS"}. The
// client may send {"action":"dismiss"}.
//
// Browser origins other than the extension and loopback pages are refused
// with 403 Forbidden.
//
// # Limitations
//
//   - A client that reads slower than cards are produced misses
//     intermediate cards, never the latest.
func (h *handlers) OverlayWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	msgs, cancel := h.hub.Subscribe()
	defer cancel()
	h.logger.Info("overlay websocket client connected", "request_id", GetRequestID(c))

	if cur, ok := h.presenter.Current(); ok {
		if err := h.send(ws, cur); err != nil {
			return
		}
	}

	// Reader: handles dismiss and notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var req wsRequest
			if err := ws.ReadJSON(&req); err != nil {
				h.logger.Info("overlay websocket client disconnected", "error", err.Error())
				return
			}
			if req.Action == ActionDismiss {
				h.presenter.Dismiss()
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := h.send(ws, msg); err != nil {
				return
			}
		}
	}
}

func (h *handlers) send(ws *websocket.Conn, msg overlay.Message) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := ws.WriteJSON(msg)
	if err != nil {
		h.logger.Warn("failed to write websocket message", "error", err)
	}
	return err
}
