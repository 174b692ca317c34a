package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// EndpointKind classifies how a pool's connections reach the origin.
type EndpointKind int

const (
	// KindHttp is a direct, unencrypted connection to an origin.
	KindHttp EndpointKind = iota
	// KindHttps is a direct, TLS-wrapped connection to an origin.
	KindHttps
	// KindProxy is a plain HTTP request forwarded through a proxy, no tunnel.
	KindProxy
	// KindProxyTunnel is an HTTP origin reached through a proxy CONNECT tunnel.
	KindProxyTunnel
	// KindSslProxyTunnel is an HTTPS origin reached through a proxy CONNECT tunnel.
	KindSslProxyTunnel
	// KindProxyConnect is the pool used to send the CONNECT request itself.
	KindProxyConnect
)

func (k EndpointKind) String() string {
	switch k {
	case KindHttp:
		return "Http"
	case KindHttps:
		return "Https"
	case KindProxy:
		return "Proxy"
	case KindProxyTunnel:
		return "ProxyTunnel"
	case KindSslProxyTunnel:
		return "SslProxyTunnel"
	case KindProxyConnect:
		return "ProxyConnect"
	default:
		return "Unknown"
	}
}

// EndpointKey is the tuple that uniquely identifies a pool: (kind, host,
// port, sslHost, proxyUri). It must be comparable so it can key a map.
type EndpointKey struct {
	Kind     EndpointKind
	Host     string
	Port     int
	SslHost  string
	ProxyUri string
}

// String renders a stable, human-readable form suitable for logging and map
// diagnostics. It is not used for equality - EndpointKey is comparable as a
// struct and should be used directly as a map key.
func (k EndpointKey) String() string {
	var b strings.Builder
	b.WriteString(k.Kind.String())
	b.WriteByte(':')
	if k.Host != "" {
		b.WriteString(k.Host)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(k.Port))
	}
	if k.SslHost != "" {
		b.WriteString("(sni=")
		b.WriteString(k.SslHost)
		b.WriteByte(')')
	}
	if k.ProxyUri != "" {
		b.WriteString("@")
		b.WriteString(k.ProxyUri)
	}
	return b.String()
}

// HostHeader returns the pre-encoded Host header value for origin
// connections: host:port, except when port is the scheme's default, in
// which case host alone. Returns "" for the raw Proxy kind, which has no
// host of its own - the absolute-form request URI already carries the
// target host, and the caller must leave Host alone.
func (k EndpointKey) HostHeader() string {
	if k.Host == "" {
		return ""
	}
	defaultPort := 80
	if k.Kind == KindHttps || k.Kind == KindSslProxyTunnel {
		defaultPort = 443
	}
	if k.Port == defaultPort {
		return k.Host
	}
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// ClassifyConnect builds the Endpoint Key for dispatching a request. proxyURI
// is the resolver's answer for reqURL ("" means no proxy). isConnectProbe is
// true only when the caller is dispatching the proxy CONNECT request itself,
// never a regular request.
func ClassifyConnect(reqURL *url.URL, proxyURI string, isConnectProbe bool) (EndpointKey, error) {
	if isConnectProbe {
		host, port, err := hostPort(proxyURI, 80)
		if err != nil {
			return EndpointKey{}, fmt.Errorf("classify proxy connect: %w", err)
		}
		return EndpointKey{Kind: KindProxyConnect, Host: host, Port: port, ProxyUri: proxyURI}, nil
	}

	isTLS := reqURL.Scheme == "https"

	if proxyURI == "" {
		host, port, err := hostPort(reqURL.Host, defaultPortFor(isTLS))
		if err != nil {
			return EndpointKey{}, fmt.Errorf("classify direct: %w", err)
		}
		if isTLS {
			return EndpointKey{Kind: KindHttps, Host: host, Port: port, SslHost: host}, nil
		}
		return EndpointKey{Kind: KindHttp, Host: host, Port: port}, nil
	}

	if !isTLS {
		if strings.HasPrefix(proxyURI, "https://") {
			// A proxy reached over its own TLS connection is typically a
			// secure forward proxy that only speaks CONNECT, even for a
			// plain-HTTP origin - absolute-form forwarding isn't an option
			// over that kind of front-end, so tunnel instead.
			return ClassifyProxyTunnel(reqURL, proxyURI)
		}
		// Otherwise plain HTTP through a proxy is forwarded as an
		// absolute-form request on the proxy's own connection, no tunnel.
		return EndpointKey{Kind: KindProxy, ProxyUri: proxyURI}, nil
	}

	host, port, err := hostPort(reqURL.Host, defaultPortFor(true))
	if err != nil {
		return EndpointKey{}, fmt.Errorf("classify ssl tunnel: %w", err)
	}
	return EndpointKey{Kind: KindSslProxyTunnel, Host: host, Port: port, SslHost: host, ProxyUri: proxyURI}, nil
}

// ClassifyProxyTunnel is the non-TLS analogue used when a plain-HTTP origin
// must still be reached through an explicit CONNECT tunnel rather than
// absolute-form forwarding - ClassifyConnect calls this itself for proxies
// it detects as CONNECT-only.
func ClassifyProxyTunnel(reqURL *url.URL, proxyURI string) (EndpointKey, error) {
	host, port, err := hostPort(reqURL.Host, defaultPortFor(false))
	if err != nil {
		return EndpointKey{}, fmt.Errorf("classify proxy tunnel: %w", err)
	}
	return EndpointKey{Kind: KindProxyTunnel, Host: host, Port: port, ProxyUri: proxyURI}, nil
}

func defaultPortFor(tls bool) int {
	if tls {
		return 443
	}
	return 80
}

func hostPort(hostport string, defaultPort int) (string, int, error) {
	if hostport == "" {
		return "", 0, fmt.Errorf("empty host")
	}
	host, portStr, err := splitHostPort(hostport)
	if err != nil {
		return hostport, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// splitHostPort is a thin wrapper so callers without an explicit port (the
// common case for bare "example.com") fall through to the defaultPort path
// above instead of erroring.
func splitHostPort(hostport string) (host, port string, err error) {
	idx := strings.LastIndexByte(hostport, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("no port in %q", hostport)
	}
	// guard against IPv6 literals like [::1]:80 being mis-split elsewhere;
	// url.URL.Host already normalises brackets so a direct split is safe.
	return hostport[:idx], hostport[idx+1:], nil
}
