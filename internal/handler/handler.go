// Package handler is the thin public façade spec.md §1 describes: a
// message handler that dispatches requests over the pooled transport,
// composing the auth and decompression layers ahead of the pool in the
// fixed order spec.md §4.2 specifies.
package handler

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/thushan/pconn/internal/adapter/compression"
	"github.com/thushan/pconn/internal/adapter/middleware"
	"github.com/thushan/pconn/internal/core/domain"
	"github.com/thushan/pconn/internal/core/ports"
	"github.com/thushan/pconn/internal/transport"
)

// Options mirrors spec.md §6's configuration table.
type Options struct {
	MaxConnectionsPerServer     int
	PooledConnectionLifetime    time.Duration
	LifetimeInfinite            bool
	PooledConnectionIdleTimeout time.Duration
	IdleInfinite                bool
	ConnectTimeout              time.Duration
	ConnectTimeoutInfinite      bool
	ReaperFloor                 time.Duration
	PreAuthenticate             bool
	TLSConfig                   *tls.Config
	Proxy                       ports.ProxyResolver
	Credentials                 ports.AuthHandler
	DefaultProxyCredentials     ports.AuthHandler
	ConnectCallback             transport.ConnectCallback
	Stats                       ports.StatsCollector
	Decompress                  bool
}

// MessageHandler is the public entry point: construct once per process (or
// per logical client), call Do per request. It owns one transport.Manager
// and the middleware chain built atop it.
type MessageHandler struct {
	manager *transport.Manager
	chain   middleware.Sender
}

// New builds a MessageHandler from opts. dialer is typically a *net.Dialer;
// pass your own to control keep-alive/timeouts at the socket level.
func New(opts Options, dialer ports.Dialer) *MessageHandler {
	mgrOpts := transport.ManagerOptions{
		MaxConnectionsPerServer:     opts.MaxConnectionsPerServer,
		PooledConnectionLifetime:    opts.PooledConnectionLifetime,
		LifetimeInfinite:            opts.LifetimeInfinite,
		PooledConnectionIdleTimeout: opts.PooledConnectionIdleTimeout,
		IdleInfinite:                opts.IdleInfinite,
		ConnectTimeout:              opts.ConnectTimeout,
		ConnectTimeoutInfinite:      opts.ConnectTimeoutInfinite,
		ReaperFloor:                 opts.ReaperFloor,
		TLSConfig:                   opts.TLSConfig,
		Connect:                     opts.ConnectCallback,
	}

	manager := transport.NewManager(mgrOpts, dialer, opts.Proxy, opts.Stats)

	tail := middleware.SenderFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return sendOverPool(ctx, manager, req)
	})

	var chain middleware.Sender = tail
	if opts.Decompress {
		chain = compression.Decompressor{Next: chain}
	}
	chain = middleware.ProxyAuth{
		Next:    chain,
		Handler: opts.DefaultProxyCredentials,
		ShouldApply: func(req *http.Request) bool {
			if req.Header.Get("Proxy-Authorization") != "" || opts.DefaultProxyCredentials == nil || opts.Proxy == nil {
				return false
			}
			proxyURI, err := opts.Proxy.Resolve(req.URL)
			if err != nil {
				return false
			}
			key, err := domain.ClassifyConnect(req.URL, proxyURI, false)
			return err == nil && key.Kind == domain.KindProxy
		},
	}
	chain = middleware.RequestAuth{Next: chain, Handler: opts.Credentials}

	return &MessageHandler{manager: manager, chain: chain}
}

// Do dispatches req through the full chain: request auth, proxy auth,
// decompression (if enabled), then the pooled transport with its own
// acquire/retry loop. A request-id header is stamped if one isn't already
// present, matching the pack's convention of always having a correlatable
// id for logging.
func (h *MessageHandler) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
	return h.chain.Send(ctx, req)
}

// Close disposes the underlying pool manager and every pool it owns.
func (h *MessageHandler) Close() error {
	h.manager.Dispose()
	return nil
}

func sendOverPool(ctx context.Context, manager *transport.Manager, req *http.Request) (*http.Response, error) {
	var response *http.Response
	err := transport.SendWithRetry(ctx, manager, req.URL, func(conn *transport.HttpConnection) error {
		// The pool's cached Host header value takes precedence over whatever
		// req.Write would otherwise recompute from the request itself, so
		// every request sharing this connection agrees on Host.
		if host := conn.HostHeader(); host != "" {
			req.Host = host
		}

		// conn.Writer() marks bytes sent as they actually leave the socket,
		// so a reused connection that turns out to be dead before any byte
		// reaches the peer stays retryable; one that fails mid-write does not.
		// A connection with no cached Host header is a Proxy-kind one, which
		// carries the request in absolute-form.
		write := req.Write
		if conn.HostHeader() == "" {
			write = req.WriteProxy
		}
		if err := write(conn.Writer()); err != nil {
			return err
		}

		resp, err := http.ReadResponse(conn.Reader(), req)
		if err != nil {
			return err
		}
		// The pool takes the connection back as soon as this callback
		// returns, so the body is read off the socket here first.
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("handler: dispatching request: %w", err)
	}
	return response, nil
}
