package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yelena0000/fish-store/core"
)

func get(t *testing.T, h http.Handler, path string) (int, StatusResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body StatusResponse
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", "fish-store-bot", nil)
	s.AddCheck("strapi", core.HealthCheckFunc(func(ctx context.Context) error {
		return errors.New("down")
	}))

	code, body := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "fish-store-bot", body.Service)
}

func TestReady(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		s := NewServer(":0", "bot", nil)
		code, body := get(t, s.Handler(), "/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", body.Status)
	})

	t.Run("all passing", func(t *testing.T) {
		s := NewServer(":0", "bot", nil)
		s.AddCheck("strapi", core.HealthCheckFunc(func(ctx context.Context) error { return nil }))
		s.AddCheck("sessions", core.HealthCheckFunc(func(ctx context.Context) error { return nil }))

		code, body := get(t, s.Handler(), "/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, map[string]string{"strapi": "ok", "sessions": "ok"}, body.Checks)
	})

	t.Run("one failing", func(t *testing.T) {
		s := NewServer(":0", "bot", nil)
		s.AddCheck("strapi", core.HealthCheckFunc(func(ctx context.Context) error {
			return errors.New("connection refused")
		}))
		s.AddCheck("sessions", core.HealthCheckFunc(func(ctx context.Context) error { return nil }))

		code, body := get(t, s.Handler(), "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, "error: connection refused", body.Checks["strapi"])
		assert.Equal(t, "ok", body.Checks["sessions"])
	})

	t.Run("checks are bounded by a deadline", func(t *testing.T) {
		s := NewServer(":0", "bot", nil)
		s.AddCheck("slow", core.HealthCheckFunc(func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			return nil
		}))
		code, _ := get(t, s.Handler(), "/ready")
		assert.Equal(t, http.StatusOK, code)
	})
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := NewServer(":0", "bot", nil)

	code, _ := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, code)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := NewServer(addr, "bot", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
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
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
