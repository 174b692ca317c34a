package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/thushan/pconn/internal/core/domain"
	"github.com/thushan/pconn/internal/core/ports"
)

// ManagerOptions mirrors the handler-wide configuration a Manager clones
// per pool (spec 6's configuration table).
type ManagerOptions struct {
	MaxConnectionsPerServer     int
	PooledConnectionLifetime    time.Duration
	LifetimeInfinite            bool
	PooledConnectionIdleTimeout time.Duration
	IdleInfinite                bool
	ConnectTimeout              time.Duration
	ConnectTimeoutInfinite      bool
	ReaperFloor                 time.Duration
	TLSConfig                   *tls.Config
	Connect                     ConnectCallback
	ProxyAuthHeaders            http.Header
}

// Manager owns the key-to-pool map, the proxy resolver, and the background
// reaper. It is the entry point request dispatch flows through: resolve
// proxy, classify key, look up or create the pool, call Send.
type Manager struct {
	opts       ManagerOptions
	dialer     ports.Dialer
	proxy      ports.ProxyResolver
	stats      ports.StatsCollector
	pollBudget time.Duration

	mu       sync.Mutex
	pools    map[domain.EndpointKey]*Pool
	disposed bool

	reaperDone chan struct{}
	reaperOnce sync.Once
}

// NewManager constructs a Manager and starts its reaper goroutine. Call
// Dispose to stop the reaper and tear down every pool.
func NewManager(opts ManagerOptions, dialer ports.Dialer, proxy ports.ProxyResolver, stats ports.StatsCollector) *Manager {
	if proxy == nil {
		proxy = ports.NoProxy{}
	}
	if stats == nil {
		stats = ports.NoopStats{}
	}
	if opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	m := &Manager{
		opts:       opts,
		dialer:     dialer,
		proxy:      proxy,
		stats:      stats,
		pollBudget: time.Millisecond,
		pools:      make(map[domain.EndpointKey]*Pool),
		reaperDone: make(chan struct{}),
	}
	go m.runReaper()
	return m
}

// Send is the manager's request-dispatch entry point: resolve proxy,
// classify the key, look up or create the pool, delegate the connection
// lifecycle to fn.
func (m *Manager) Send(ctx context.Context, reqURL *url.URL, fn func(*HttpConnection) error) error {
	proxyURI, err := m.proxy.Resolve(reqURL)
	if err != nil {
		return fmt.Errorf("transport: resolving proxy: %w", err)
	}

	key, err := domain.ClassifyConnect(reqURL, proxyURI, false)
	if err != nil {
		return fmt.Errorf("transport: classifying endpoint: %w", err)
	}

	pool, err := m.poolFor(key)
	if err != nil {
		return err
	}
	return pool.Send(ctx, fn)
}

// poolFor looks up or double-checked-creates the pool for key.
func (m *Manager) poolFor(key domain.EndpointKey) (*Pool, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, domain.NewDisposedError(domain.EndpointKey{}, "poolFor")
	}
	if p, ok := m.pools[key]; ok {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	pool := m.newPool(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return nil, domain.NewDisposedError(domain.EndpointKey{}, "poolFor")
	}
	if existing, ok := m.pools[key]; ok {
		// lost the race: another caller created it first, discard ours.
		return existing, nil
	}
	m.pools[key] = pool
	return pool, nil
}

func (m *Manager) newPool(key domain.EndpointKey) *Pool {
	poolOpts := PoolOptions{
		MaxConnections:     m.opts.MaxConnectionsPerServer,
		ConnectionLifetime: m.opts.PooledConnectionLifetime,
		LifetimeInfinite:   m.opts.LifetimeInfinite,
		IdleTimeout:        m.opts.PooledConnectionIdleTimeout,
		IdleInfinite:       m.opts.IdleInfinite,
		PollReadBudget:     m.pollBudget,
	}

	factory := NewFactory(m.dialer, m, FactoryOptions{
		TLSConfig:      m.opts.TLSConfig,
		ConnectTimeout: m.opts.ConnectTimeout,
		Infinite:       m.opts.ConnectTimeoutInfinite,
		Connect:        m.opts.Connect,
	})

	return NewPool(key, poolOpts, factory.Dial(key), m.stats)
}

// DialTunnel implements TunnelDialer: it acquires a connection from the
// sibling ProxyConnect pool for proxyURI and negotiates a CONNECT tunnel on
// it directly (not via Pool.Send, which would auto-return the connection to
// that pool's idle stack - a connection handed off as a live tunnel must
// never be simultaneously idle-pooled and checked out, per spec 8). On a 200
// response the connection is detached from the ProxyConnect pool and its raw
// socket becomes the caller's transport. On any other outcome the response
// body is drained and the connection is disposed, never returned.
func (m *Manager) DialTunnel(ctx context.Context, proxyURI, targetHostPort string) (net.Conn, *http.Response, error) {
	connectKey, err := domain.ClassifyConnect(nil, proxyURI, true)
	if err != nil {
		return nil, nil, err
	}

	pool, err := m.poolFor(connectKey)
	if err != nil {
		return nil, nil, err
	}

	conn, fresh, err := pool.GetOrReserve(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := writeConnectRequest(conn.Writer(), targetHostPort, m.opts.ProxyAuthHeaders); err != nil {
		retryable := !fresh && conn.CanRetry()
		pool.DisposeConn(conn, "tunnel write failed")
		return nil, nil, domain.NewTransportFailureError(connectKey, err, retryable)
	}

	resp, err := http.ReadResponse(conn.Reader(), &http.Request{Method: http.MethodConnect})
	if err != nil {
		retryable := !fresh && conn.CanRetry()
		pool.DisposeConn(conn, "tunnel response read failed")
		return nil, nil, domain.NewTransportFailureError(connectKey, err, retryable)
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		pool.DisposeConn(conn, "tunnel rejected")
		return nil, resp, nil
	}

	pool.Detach(conn)
	return conn.Conn(), nil, nil
}

// runReaper periodically sweeps every pool, removing ones that report
// themselves quiescent. Holds no pool lock across iterations.
func (m *Manager) runReaper() {
	ticker := time.NewTicker(m.reaperPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-m.reaperDone:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// reaperPeriod is min(idleTimeout, connectionLifetime), clamped to
// ReaperFloor. An infinite bound drops out of the min; if both are
// infinite, the floor itself is the period.
func (m *Manager) reaperPeriod() time.Duration {
	period := time.Duration(0)
	have := false

	if !m.opts.IdleInfinite {
		period = m.opts.PooledConnectionIdleTimeout
		have = true
	}
	if !m.opts.LifetimeInfinite {
		if !have || m.opts.PooledConnectionLifetime < period {
			period = m.opts.PooledConnectionLifetime
		}
		have = true
	}
	if !have || period < m.opts.ReaperFloor {
		period = m.opts.ReaperFloor
	}
	return period
}

func (m *Manager) sweep() {
	m.mu.Lock()
	snapshot := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		snapshot = append(snapshot, p)
	}
	m.mu.Unlock()

	for _, p := range snapshot {
		if p.CleanCacheAndDisposeIfUnused() {
			m.mu.Lock()
			delete(m.pools, p.Key())
			m.mu.Unlock()
		}
	}
}

// Dispose stops the reaper and disposes every pool. Safe to call once.
func (m *Manager) Dispose() {
	m.reaperOnce.Do(func() { close(m.reaperDone) })

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.pools = nil
	m.mu.Unlock()

	for _, p := range pools {
		p.Dispose()
	}
}
