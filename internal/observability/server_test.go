// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", NewRegistry(), ready, nil)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
		http.DefaultClient.CloseIdleConnections()
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	registry := NewRegistry()
	metrics := NewMetrics(registry)
	server := NewServer("127.0.0.1:0", registry, nil, nil)
	_, err := server.Start()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, server.Stop(context.Background()))
		http.DefaultClient.CloseIdleConnections()
	}()

	metrics.ObserveRequest("GET", "/api/v1/weather/current", "200", 20*time.Millisecond)
	metrics.ObserveUpstream("weather", "200")
	metrics.RecordRegistration()
	metrics.RecordLogin(LoginSuccess)

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `skycast_http_requests_total{method="GET",route="/api/v1/weather/current",status="200"} 1`)
	assert.Contains(t, body, "skycast_http_request_duration_seconds_bucket")
	assert.Contains(t, body, `skycast_weather_upstream_requests_total{endpoint="weather",status="200"} 1`)
	assert.Contains(t, body, "skycast_user_registrations_total 1")
	assert.Contains(t, body, `skycast_user_logins_total{status="success"} 1`)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, nil)
	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessChecker
		status int
		body   string
	}{
		{"nil checker", nil, http.StatusOK, "ok\n"},
		{"ready", func(context.Context) error { return nil }, http.StatusOK, "ok\n"},
		{"storage down", func(context.Context) error { return errors.New("connection refused") }, http.StatusServiceUnavailable, "not ready\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, server, "/healthz/readiness")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestServer_ReadinessCheckHasDeadline(t *testing.T) {
	var hadDeadline bool
	server := startServer(t, func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	})
	status, _ := get(t, server, "/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, hadDeadline)
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)
	_, err := server.Start()
	assert.Error(t, err)
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	server := NewServer(l.Addr().String(), NewRegistry(), nil, nil)
	_, err = server.Start()
	require.Error(t, err)

	// a failed start leaves the server stopped
	assert.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", NewRegistry(), nil, nil)
	assert.NoError(t, server.Stop(context.Background()))
	assert.NoError(t, server.Stop(context.Background()))
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", NewRegistry(), nil, nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "expected closed channel, got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after shutdown")
	}
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	registry := NewRegistry()
	NewMetrics(registry)
	assert.Panics(t, func() { NewMetrics(registry) })
}
