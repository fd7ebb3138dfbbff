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
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/AgenticMath/services/observability"
	"github.com/AleutianAI/AgenticMath/services/overlay"
	"github.com/AleutianAI/AgenticMath/services/settings"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAssistant answers "6" for non-empty selections.
type stubAssistant struct {
	calls atomic.Int32
}

func (s *stubAssistant) Handle(_ context.Context, selection string) overlay.Message {
	s.calls.Add(1)
	if strings.TrimSpace(selection) == "" {
		return overlay.ErrorMessage{Error: "No text selected."}
	}
	return overlay.ResultMessage{Answer: "6", Steps: "Multiply\nFinal Answer: 6"}
}

type fixture struct {
	router    *gin.Engine
	assistant *stubAssistant
	presenter *overlay.Presenter
	hub       *overlay.Hub
	store     *settings.MemoryStore
	registry  *prometheus.Registry
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		assistant: &stubAssistant{},
		hub:       overlay.NewHub(),
		store:     settings.NewMemoryStore(settings.Settings{Credential: "gsk_abcdefgh1234"}),
		registry:  prometheus.NewRegistry(),
	}
	f.presenter = overlay.NewPresenter(overlay.PresenterConfig{Hub: f.hub})
	cfg := Config{
		Assistant: f.assistant,
		Presenter: f.presenter,
		Hub:       f.hub,
		Settings:  f.store,
		Gatherer:  f.registry,
		Metrics:   observability.NewMetrics(f.registry),
		RateLimit: rate.Inf,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	router, err := NewRouter(cfg)
	require.NoError(t, err)
	f.router = router
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestID_Echoed(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestSolve_Result(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/v1/solve", `{"selection":"2×3","menu_item_id":"agentic-math-solve"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"AGENTIC_MATH_RESULT","answer":"6","steps":"Multiply\nFinal Answer: 6"}`, w.Body.String())

	cur, ok := f.presenter.Current()
	require.True(t, ok)
	assert.Equal(t, overlay.ResultMessage{Answer: "6", Steps: "Multiply\nFinal Answer: 6"}, cur)
}

func TestSolve_EmptySelectionIsErrorMessage(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/v1/solve", `{"selection":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"AGENTIC_MATH_ERROR","error":"No text selected."}`, w.Body.String())
}

func TestSolve_BadRequests(t *testing.T) {
	f := newFixture(t, nil)
	for name, body := range map[string]string{
		"malformed":  `{`,
		"empty body": ``,
		"wrong menu": `{"selection":"1+1","menu_item_id":"other-item"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/v1/solve", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.EqualValues(t, 0, f.assistant.calls.Load())
}

func TestOverlay_CurrentAndDismiss(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodGet, "/v1/overlay", "").Code)

	f.do(http.MethodPost, "/v1/solve", `{"selection":"1+1"}`)
	w := f.do(http.MethodGet, "/v1/overlay", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AGENTIC_MATH_RESULT")

	w = f.do(http.MethodPost, "/v1/overlay/dismiss", "")
	assert.JSONEq(t, `{"dismissed":true}`, w.Body.String())
	w = f.do(http.MethodPost, "/v1/overlay/dismiss", "")
	assert.JSONEq(t, `{"dismissed":false}`, w.Body.String())
}

func TestSettings_GetIsMasked(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/v1/settings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got settings.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "************1234", got.Credential)
	assert.Equal(t, settings.DefaultSolverEndpointURL, got.SolverEndpointURL)
	assert.NotContains(t, w.Body.String(), "gsk_abcdefgh")
}

func TestSettings_PutPartialUpdate(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPut, "/v1/settings", `{"solver_endpoint_url":"http://solver.local:5000/solve"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gsk_abcdefgh1234", stored.Credential, "omitted credential is kept")
	assert.Equal(t, "http://solver.local:5000/solve", stored.SolverEndpointURL)

	w = f.do(http.MethodPut, "/v1/settings", `{"credential":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err = f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored.Credential)
}

func TestSettings_PutInvalid(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPut, "/v1/settings", `{"solver_endpoint_url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid settings")

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultSolverEndpointURL, stored.SolverEndpointURL)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/v1/settings", `[`).Code)
}

func TestRateLimiter(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RateLimit = rate.Every(time.Hour)
		c.Burst = 1
	})

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/v1/solve", `{"selection":"1"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/v1/solve", `{"selection":"1"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code, "health is not limited")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodGet, "/health", "")
	f.do(http.MethodPost, "/v1/solve", `{"selection":"1"}`)

	assert.Equal(t, 1.0, f.requestCount(t, "/v1/solve", "200"))
	assert.Equal(t, 1.0, f.requestCount(t, "/health", "200"))

	n, err := testutil.GatherAndCount(f.registry, "agentic_math_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agentic_math_requests_total")
}

// requestCount reads the request counter for endpoint and status.
func (f *fixture) requestCount(t *testing.T, endpoint, status string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "agentic_math_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["endpoint"] == endpoint && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestOverlayWebSocket(t *testing.T) {
	f := newFixture(t, nil)
	f.presenter.Render(overlay.ErrorMessage{Error: "earlier"})

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/overlay/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Current card first.
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := overlay.DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, overlay.ErrorMessage{Error: "earlier"}, msg)

	// Wait until the handler has subscribed before producing a card.
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/v1/solve", "application/json", strings.NewReader(`{"selection":"2*3"}`))
	require.NoError(t, err)
	resp.Body.Close()

	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	msg, err = overlay.DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, overlay.ResultMessage{Answer: "6", Steps: "Multiply\nFinal Answer: 6"}, msg)

	require.NoError(t, ws.WriteJSON(map[string]string{"action": ActionDismiss}))
	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	msg, err = overlay.DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, overlay.DismissMessage{}, msg)
	_, ok := f.presenter.Current()
	assert.False(t, ok)

	// A dismissal over HTTP reaches websocket clients too.
	f.presenter.Render(overlay.ErrorMessage{Error: "again"})
	resp, err = http.Post(srv.URL+"/v1/overlay/dismiss", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	for _, want := range []overlay.Message{overlay.ErrorMessage{Error: "again"}, overlay.DismissMessage{}} {
		_, data, err = ws.ReadMessage()
		require.NoError(t, err)
		msg, err = overlay.DecodeMessage(data)
		require.NoError(t, err)
		assert.Equal(t, want, msg)
	}
}

func TestOverlayWebSocket_Origins(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/overlay/ws"

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{"chrome-extension://abcdefghijklmnopabcdefghijklmnop", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8420", true},
		{"http://[::1]:8080", true},
		{"https://evil.example", false},
		{"http://localhost.evil.example", false},
		{"null", false},
		{"chrome-extension://", false},
	}
	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			header := http.Header{}
			if tc.origin != "" {
				header.Set("Origin", tc.origin)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tc.ok {
				require.NoError(t, err)
				ws.Close()
				return
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestServeListener_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, ln, f.router, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
