// Package integration exercises internal/handler end to end against real
// TCP listeners, rather than the net.Pipe fakes used in internal/transport's
// unit tests. No mocking framework: every server in this package is a real
// http.Server on loopback.
package integration

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/pconn/internal/handler"
)

func newHandler(t *testing.T, maxConns int) *handler.MessageHandler {
	t.Helper()
	h := handler.New(handler.Options{
		MaxConnectionsPerServer:     maxConns,
		PooledConnectionLifetime:    time.Minute,
		PooledConnectionIdleTimeout: 30 * time.Second,
		ConnectTimeout:              2 * time.Second,
		ReaperFloor:                 500 * time.Millisecond,
	}, &net.Dialer{Timeout: 2 * time.Second})
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHandler_ReusesConnectionAcrossSequentialRequests(t *testing.T) {
	var connCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			atomic.AddInt32(&connCount, 1)
		}
	}

	h := newHandler(t, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/echo", nil)
		require.NoError(t, err)
		resp, err := h.Do(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&connCount), "expected a single dialed connection to be reused")
}

func TestHandler_QueuesUnderConnectionCap(t *testing.T) {
	release := make(chan struct{})
	var inFlight int32
	var maxInFlight int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHandler(t, 1)
	ctx := context.Background()

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/echo", nil)
			if err != nil {
				done <- struct{}{}
				return
			}
			resp, err := h.Do(ctx, req)
			if err == nil {
				_ = resp.Body.Close()
			}
			done <- struct{}{}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(release)
	for i := 0; i < 3; i++ {
		<-done
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight), "cap of 1 should serialise all requests onto one connection")
}

func TestHandler_RecoversFromStaleConnection(t *testing.T) {
	var serveCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&serveCount, 1)
		if n == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHandler(t, 1)
	ctx := context.Background()

	req1, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/echo", nil)
	require.NoError(t, err)
	_, _ = h.Do(ctx, req1) // server drops mid-request; error is acceptable here

	time.Sleep(50 * time.Millisecond)

	req2, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/echo", nil)
	require.NoError(t, err)
	resp2, err := h.Do(ctx, req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	_ = resp2.Body.Close()
}
