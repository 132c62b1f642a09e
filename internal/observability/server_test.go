// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bugreport/bugreport/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready, nil)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, server.Stop(ctx))
		http.DefaultClient.CloseIdleConnections()
	})
	require.NotEmpty(t, server.Addr())
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

func TestServer_MetricsEndpoint(t *testing.T) {
	server := startServer(t, nil)
	server.Metrics().RecordAuthEvent("login", "ok")
	server.Metrics().RecordMailDispatch("reset", "sent")
	server.Metrics().ObserveHTTP("GET", "/api/issues/:id", 200, 15*time.Millisecond)

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, "go_build_info")
	assert.Contains(t, body, `bugreport_auth_events_total{event="login",outcome="ok"} 1`)
	assert.Contains(t, body, `bugreport_mail_dispatch_total{kind="reset",outcome="sent"} 1`)
	assert.Contains(t, body, `bugreport_http_requests_total{method="GET",route="/api/issues/:id",status="200"} 1`)
	assert.Contains(t, body, "bugreport_http_request_duration_seconds_bucket")
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, PingReadiness(fakePinger{err: errors.New("down")}))
	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status, "liveness ignores dependencies")
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessChecker
		status int
		body   string
	}{
		{"nil checker", nil, http.StatusOK, `{"status":"ok"}`},
		{"ping ok", PingReadiness(fakePinger{}), http.StatusOK, `{"status":"ok"}`},
		{
			"ping fails",
			PingReadiness(fakePinger{err: errors.New("connection refused")}),
			http.StatusServiceUnavailable,
			`{"status":"unavailable","failed":"database"}`,
		},
		{
			"unnamed failure",
			func(context.Context) error { return errors.New("warming up") },
			http.StatusServiceUnavailable,
			`{"status":"unavailable"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, server, "/healthz/readiness")
			assert.Equal(t, tt.status, status)
			assert.JSONEq(t, tt.body, body)
		})
	}
}

func TestServer_HandlerRejectsOtherMethods(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz/liveness", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCheckError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := PingReadiness(fakePinger{err: cause})(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "database: connection refused", err.Error())
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)
	_, err := server.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_RUNNING")
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)
	assert.NoError(t, server.Stop(context.Background()))
}

func TestServer_ListenFailure(t *testing.T) {
	first := startServer(t, nil)
	second := NewServer(first.Addr(), nil, nil)
	_, err := second.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")

	// A failed start leaves the server startable.
	assert.NoError(t, second.Stop(context.Background()))
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "unexpected error %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed")
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordAuthEvent("refresh", "revoked")
	m.RecordAuthEvent("refresh", "revoked")
	assert.InDelta(t, 2, testutil.ToFloat64(m.AuthEvents.WithLabelValues("refresh", "revoked")), 0)

	m.RecordMailDispatch("activate", "dropped")
	assert.InDelta(t, 1, testutil.ToFloat64(m.MailDispatch.WithLabelValues("activate", "dropped")), 0)
}
