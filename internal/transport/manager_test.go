package transport

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/thushan/pconn/internal/core/domain"
	"github.com/thushan/pconn/internal/core/ports"
)

// fakeDialer hands out one side of a net.Pipe whose peer is driven by serve,
// letting tests script exact byte-level proxy behaviour.
type fakeDialer struct {
	serve func(t *testing.T, peer net.Conn)
	t     *testing.T
}

func (f *fakeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go f.serve(f.t, server)
	return client, nil
}

func TestManager_TunnelRejected407(t *testing.T) {
	dialer := &fakeDialer{t: t, serve: func(t *testing.T, peer net.Conn) {
		defer peer.Close()
		req, err := http.ReadRequest(bufio.NewReader(peer))
		if err != nil {
			return
		}
		if req.Method != http.MethodConnect {
			t.Errorf("expected CONNECT, got %s", req.Method)
		}
		resp := &http.Response{
			StatusCode: http.StatusProxyAuthRequired,
			Status:     "407 Proxy Authentication Required",
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     make(http.Header),
		}
		_ = resp.Write(peer)
	}}

	opts := ManagerOptions{
		MaxConnectionsPerServer:     1,
		PooledConnectionLifetime:    time.Hour,
		PooledConnectionIdleTimeout: time.Hour,
		ConnectTimeout:              time.Second,
		ReaperFloor:                 time.Second,
	}
	mgr := NewManager(opts, dialer, ports.NoProxy{}, nil)
	defer mgr.Dispose()

	proxyURL, _ := url.Parse("http://proxy.internal:3128")
	reqURL, _ := url.Parse("https://origin.example:443/")
	_ = proxyURL

	mgr.proxy = fixedProxyResolver{uri: "proxy.internal:3128"}

	var capturedErr error
	err := mgr.Send(context.Background(), reqURL, func(c *HttpConnection) error {
		return nil
	})
	capturedErr = err

	var rejected *domain.ProxyTunnelRejectedError
	if capturedErr == nil {
		t.Fatal("expected a proxy tunnel rejection to surface")
	}
	if !asProxyTunnelRejected(capturedErr, &rejected) {
		t.Fatalf("expected ProxyTunnelRejectedError, got %v", capturedErr)
	}
	if rejected.Response.StatusCode != http.StatusProxyAuthRequired {
		t.Fatalf("expected 407 in surfaced response, got %d", rejected.Response.StatusCode)
	}

	key := domain.EndpointKey{Kind: domain.KindSslProxyTunnel, Host: "origin.example", Port: 443, SslHost: "origin.example", ProxyUri: "proxy.internal:3128"}
	if pool, ok := mgr.pools[key]; ok && pool.AssociatedCount() != 0 {
		t.Fatalf("expected associatedCount back to 0 after tunnel rejection, got %d", pool.AssociatedCount())
	}
}

type fixedProxyResolver struct{ uri string }

func (f fixedProxyResolver) Resolve(*url.URL) (string, error) { return f.uri, nil }

func asProxyTunnelRejected(err error, target **domain.ProxyTunnelRejectedError) bool {
	for err != nil {
		if rej, ok := err.(*domain.ProxyTunnelRejectedError); ok {
			*target = rej
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
