package httpserver_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/commhub/pkg/httpserver"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func startServer(t *testing.T, ctx context.Context, srv *httpserver.Server, h http.Handler) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, h) }()
	return done
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()
	started := make(chan string, 1)
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithShutdownTimeout(time.Second),
		httpserver.WithLogger(discard()),
		httpserver.WithStartHook(func(addr string) { started <- addr }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startServer(t, ctx, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello")
	}))

	var addr string
	select {
	case addr = <-started:
	case err := <-done:
		require.FailNow(t, "server exited early", "%v", err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "server did not start")
	}

	resp, err := http.Get("http://" + addr)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "hello", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not finish")
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	t.Parallel()
	started := make(chan string, 1)
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithLogger(discard()),
		httpserver.WithStartHook(func(addr string) { started <- addr }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startServer(t, ctx, srv, nil)
	<-started

	assert.ErrorIs(t, srv.Run(ctx, nil), httpserver.ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_StartError(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := httpserver.New(httpserver.WithAddr(ln.Addr().String()), httpserver.WithLogger(discard()))
	err = srv.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestShutdown_BeforeRun(t *testing.T) {
	t.Parallel()
	srv := httpserver.New(httpserver.WithLogger(discard()))
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()
	started := make(chan string, 1)
	srv := httpserver.NewFromConfig(httpserver.Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		httpserver.WithLogger(discard()),
		httpserver.WithStartHook(func(addr string) { started <- addr }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := startServer(t, ctx, srv, nil)
	addr := <-started
	assert.NotEqual(t, "127.0.0.1:0", addr)

	cancel()
	require.NoError(t, <-done)
}

func TestOptionsPanic(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { httpserver.WithAddr("") })
	assert.Panics(t, func() { httpserver.WithReadTimeout(0) })
	assert.Panics(t, func() { httpserver.WithReadHeaderTimeout(-time.Second) })
	assert.Panics(t, func() { httpserver.WithWriteTimeout(0) })
	assert.Panics(t, func() { httpserver.WithIdleTimeout(0) })
	assert.Panics(t, func() { httpserver.WithShutdownTimeout(0) })
	assert.Panics(t, func() { httpserver.WithStartHook(nil) })
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("postgres unavailable") }

	tests := []struct {
		name       string
		checks     []func(context.Context) error
		wantStatus int
		wantBody   string
	}{
		{"liveness", nil, http.StatusOK, "ALIVE"},
		{"ready", []func(context.Context) error{ok, ok}, http.StatusOK, "READY"},
		{"not ready", []func(context.Context) error{ok, fail}, http.StatusServiceUnavailable, "NOT_READY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			httpserver.HealthCheckHandler(discard(), tt.checks...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}
