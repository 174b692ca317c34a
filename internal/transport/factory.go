package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/thushan/pconn/internal/core/domain"
	"github.com/thushan/pconn/internal/core/ports"
)

// ConnectCallback lets a caller replace the default TCP dial with a custom
// hook (spec 6's connectCallback option), e.g. for Unix sockets or
// test doubles. Returning a nil error and a live net.Conn hands that
// connection straight to the factory's TLS/tunnel steps.
type ConnectCallback func(ctx context.Context, network, addr string) (net.Conn, error)

// FactoryOptions configures how the Connection Factory builds a transport
// for one pool. TLSConfig is the handler-wide config; the TLS handshake
// clones it and sets ServerName for the target host.
type FactoryOptions struct {
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
	Infinite       bool
	Connect        ConnectCallback // optional, overrides the default dial
}

// TunnelDialer fetches the sibling ProxyConnect pool needed to establish a
// CONNECT tunnel for ProxyTunnel/SslProxyTunnel kinds. Supplied by the Pool
// Manager, which alone knows how to look up or create that sibling pool.
type TunnelDialer interface {
	DialTunnel(ctx context.Context, proxyURI, targetHostPort string) (net.Conn, *http.Response, error)
}

// Factory builds ready HttpConnections for one Endpoint Key: dial, optional
// proxy CONNECT tunnel, optional TLS handshake.
type Factory struct {
	dialer  ports.Dialer
	tunnels TunnelDialer
	opts    FactoryOptions
}

// NewFactory constructs a Factory. dialer is typically a *net.Dialer;
// tunnels may be nil for keys that never need a CONNECT tunnel.
func NewFactory(dialer ports.Dialer, tunnels TunnelDialer, opts FactoryOptions) *Factory {
	return &Factory{dialer: dialer, tunnels: tunnels, opts: opts}
}

// Dial builds the Dial closure GetOrReserve invokes for key. The returned
// closure honors ConnectTimeout by deriving a bounded context around the
// whole dial+tunnel+handshake sequence.
func (f *Factory) Dial(key domain.EndpointKey) Dial {
	return func(ctx context.Context) (*HttpConnection, error) {
		if !f.opts.Infinite && f.opts.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.opts.ConnectTimeout)
			defer cancel()
		}

		conn, response, err := f.establish(ctx, key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, domain.NewConnectTimedOutError(key, f.opts.ConnectTimeout.String(), err)
			}
			return nil, err
		}
		if response != nil {
			return nil, domain.NewProxyTunnelRejectedError(key, response)
		}

		if key.SslHost != "" {
			conn, err = f.handshake(ctx, conn, key)
			if err != nil {
				return nil, err
			}
		}

		return NewHttpConnection(conn, key.String(), key.HostHeader()), nil
	}
}

// establish performs the raw dial (or tunnel) step only; it never touches
// TLS. Returns exactly one of (conn, nil, nil) or (nil, response, nil) for
// a rejected tunnel, or a non-nil error.
func (f *Factory) establish(ctx context.Context, key domain.EndpointKey) (net.Conn, *http.Response, error) {
	switch key.Kind {
	case domain.KindHttp, domain.KindHttps, domain.KindProxyConnect:
		conn, err := f.rawDial(ctx, fmt.Sprintf("%s:%d", key.Host, key.Port))
		return conn, nil, err

	case domain.KindProxy:
		host, port, err := splitProxyAddr(key.ProxyUri)
		if err != nil {
			return nil, nil, err
		}
		conn, err := f.rawDial(ctx, fmt.Sprintf("%s:%d", host, port))
		return conn, nil, err

	case domain.KindProxyTunnel, domain.KindSslProxyTunnel:
		if f.tunnels == nil {
			return nil, nil, fmt.Errorf("transport: no tunnel dialer configured for %s", key)
		}
		target := fmt.Sprintf("%s:%d", key.Host, key.Port)
		conn, response, err := f.tunnels.DialTunnel(ctx, key.ProxyUri, target)
		if err != nil {
			return nil, nil, err
		}
		if response != nil && response.StatusCode != http.StatusOK {
			return nil, response, nil
		}
		return conn, nil, nil

	default:
		return nil, nil, fmt.Errorf("transport: unhandled endpoint kind %s", key.Kind)
	}
}

func (f *Factory) rawDial(ctx context.Context, addr string) (net.Conn, error) {
	if f.opts.Connect != nil {
		return f.opts.Connect(ctx, "tcp", addr)
	}
	return f.dialer.DialContext(ctx, "tcp", addr)
}

func (f *Factory) handshake(ctx context.Context, raw net.Conn, key domain.EndpointKey) (net.Conn, error) {
	cfg := f.opts.TLSConfig.Clone()
	cfg.ServerName = key.SslHost

	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, domain.NewTlsHandshakeFailedError(key, key.SslHost, err)
	}
	return tlsConn, nil
}

// splitProxyAddr parses a proxy URI of the form "host:port" or
// "scheme://host:port" into a dialable host/port pair.
func splitProxyAddr(proxyURI string) (string, int, error) {
	if proxyURI == "" {
		return "", 0, fmt.Errorf("transport: empty proxy uri")
	}
	trimmed := proxyURI
	if idx := indexScheme(trimmed); idx >= 0 {
		trimmed = trimmed[idx:]
	}
	host, portStr, err := net.SplitHostPort(trimmed)
	if err != nil {
		return trimmed, 80, nil
	}
	port := 80
	if _, scanErr := fmt.Sscanf(portStr, "%d", &port); scanErr != nil {
		return "", 0, fmt.Errorf("transport: invalid proxy port %q: %w", portStr, scanErr)
	}
	return host, port, nil
}

func indexScheme(s string) int {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == ':' && s[i+1] == '/' && s[i+2] == '/' {
			return i + 3
		}
	}
	return -1
}

// writeConnectRequest renders the proxy CONNECT line and headers exactly as
// spec 6 requires, honoring optional proxy auth headers supplied by the
// caller.
func writeConnectRequest(w io.Writer, hostPort string, authHeaders http.Header) error {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: hostPort},
		Host:   hostPort,
		Header: authHeaders,
	}
	return req.Write(w)
}
