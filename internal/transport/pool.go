package transport

import (
	"context"
	"sync"
	"time"

	"github.com/thushan/pconn/internal/core/domain"
	"github.com/thushan/pconn/internal/core/ports"
)

// PoolOptions are the immutable, per-endpoint tunables a Pool is
// constructed with, copied from the handler-wide configuration. TLS
// settings are not part of them; the factory's handshake clones the TLS
// config and sets ServerName per connection.
type PoolOptions struct {
	MaxConnections     int
	ConnectionLifetime time.Duration
	LifetimeInfinite   bool
	IdleTimeout        time.Duration
	IdleInfinite       bool
	PollReadBudget     time.Duration
}

// Dial creates a brand new, ready-to-use connection for this pool's key.
// Supplied by the Connection Factory; kept as a narrow function type so the
// pool has no compile-time dependency on dialing, tunnelling or TLS.
type Dial func(ctx context.Context) (*HttpConnection, error)

// Pool is the per-endpoint arbitration structure: an idle-connection LIFO
// stack, a waiter FIFO queue, a live-connection counter, and a disposed
// flag. Every mutation of that state happens under mu; no blocking I/O is
// ever performed while mu is held.
type Pool struct {
	key   domain.EndpointKey
	opts  PoolOptions
	dial  Dial
	stats ports.StatsCollector

	mu                   sync.Mutex
	idle                 []CachedConnection // LIFO: append/pop at the back
	waiters              []*Waiter          // FIFO: append at back, pop from front
	associatedCount      int
	disposed             bool
	usedSinceLastCleanup bool
}

// NewPool constructs a pool for key. stats may be nil, in which case
// observations are discarded.
func NewPool(key domain.EndpointKey, opts PoolOptions, dial Dial, stats ports.StatsCollector) *Pool {
	if stats == nil {
		stats = ports.NoopStats{}
	}
	return &Pool{
		key:   key,
		opts:  opts,
		dial:  dial,
		stats: stats,
	}
}

// Key returns the endpoint key this pool serves.
func (p *Pool) Key() domain.EndpointKey { return p.key }

// Send acquires a connection (reusing, creating, or waiting as needed),
// hands it to fn, and returns the connection to the pool or disposes it
// depending on how fn concludes. A nil error hands the connection to Return;
// a non-nil error disposes it and comes back wrapped as a
// TransportFailureError, marked retryable when the connection was reused
// (not freshly dialed) and CanRetry still holds.
func (p *Pool) Send(ctx context.Context, fn func(*HttpConnection) error) error {
	conn, fresh, err := p.GetOrReserve(ctx)
	if err != nil {
		return err
	}

	sendErr := fn(conn)
	if sendErr != nil {
		retryable := !fresh && conn.CanRetry()
		p.dispose(conn, "send failed")
		return domain.NewTransportFailureError(p.key, sendErr, retryable)
	}

	p.Return(conn)
	return nil
}

// GetOrReserve implements spec 4.2's acquisition algorithm: pop-and-verify
// from the idle stack, or reserve a counter slot and dial, or queue as a
// waiter. Returns the connection and whether it was freshly dialed (fresh
// connections are never retry-eligible on transport failure).
func (p *Pool) GetOrReserve(ctx context.Context) (conn *HttpConnection, fresh bool, err error) {
	for {
		p.mu.Lock()
		if p.disposed {
			p.mu.Unlock()
			return nil, false, domain.NewDisposedError(p.key, "acquire")
		}

		if n := len(p.idle); n > 0 {
			cached := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()

			if p.isUsable(cached) {
				p.stats.ConnectionReused(p.key)
				return cached.Conn, false, nil
			}
			p.dispose(cached.Conn, "stale on acquire")
			continue
		}

		if p.associatedCount < p.opts.MaxConnections || p.opts.MaxConnections <= 0 {
			p.associatedCount++
			p.mu.Unlock()

			conn, dialErr := p.dial(ctx)
			if dialErr != nil {
				p.mu.Lock()
				p.associatedCount--
				p.mu.Unlock()
				p.transferCapacity()
				return nil, false, dialErr
			}
			p.stats.ConnectionDialed(p.key)
			return conn, true, nil
		}

		waiter := NewWaiter()
		p.waiters = append(p.waiters, waiter)
		p.mu.Unlock()
		p.stats.WaiterQueued(p.key)

		got, hasConn, waitErr := waiter.Await(ctx)
		if waitErr != nil {
			return nil, false, domain.NewAcquisitionCancelledError(p.key, waitErr)
		}
		if !hasConn {
			// Capacity freed signal: try the whole algorithm again.
			continue
		}
		p.stats.WaiterServed(p.key)
		return got, false, nil
	}
}

// Return is called once the caller is finished with conn. Evaluates
// lifetime, probes the connection with a poll-read so neither a waiter nor
// the idle stack ever receives a connection that died since it was checked
// out, then hands it to a waiting caller, pools it, or disposes it.
func (p *Pool) Return(conn *HttpConnection) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		p.dispose(conn, "pool disposed")
		return
	}
	p.usedSinceLastCleanup = true
	p.mu.Unlock()

	if !p.withinBounds(CachedConnection{Conn: conn, ReturnedAt: time.Now()}) {
		p.dispose(conn, "expired on return")
		return
	}

	if dirty, pollErr := conn.PollRead(p.opts.PollReadBudget); dirty || pollErr != nil {
		p.dispose(conn, "dirty on return")
		return
	}

	conn.ResetForReuse()

	p.mu.Lock()
	hasWaiters := len(p.waiters) > 0
	p.mu.Unlock()

	if hasWaiters && p.transferConnection(conn) {
		return
	}
	// either there were no waiters, or every queued one had already been
	// cancelled - either way, pool the connection rather than disposing a
	// perfectly good one.

	p.mu.Lock()
	if p.opts.IdleTimeout == 0 && !p.opts.IdleInfinite {
		p.mu.Unlock()
		p.dispose(conn, "idle timeout zero")
		return
	}

	p.idle = append(p.idle, CachedConnection{Conn: conn, ReturnedAt: time.Now()})
	p.mu.Unlock()
}

// transferConnection implements the handoff policy: dequeue waiters FIFO
// until one accepts the connection. Returns true if delivered, false if the
// queue was (or became) empty - caller must then pool or dispose conn.
func (p *Pool) transferConnection(conn *HttpConnection) bool {
	for {
		p.mu.Lock()
		if len(p.waiters) == 0 {
			p.mu.Unlock()
			return false
		}
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()

		if w.Complete(conn) {
			return true
		}
		// already cancelled, try the next one
	}
}

// transferCapacity signals one waiter that a slot is free without handing
// over a connection, so it re-enters GetOrReserve and tries again.
func (p *Pool) transferCapacity() {
	for {
		p.mu.Lock()
		if len(p.waiters) == 0 {
			p.mu.Unlock()
			return
		}
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()

		if w.Complete(nil) {
			return
		}
	}
}

// dispose closes conn, decrements associatedCount and frees a waiting slot.
// Always safe to call, including on an already-disposed connection.
func (p *Pool) dispose(conn *HttpConnection, reason string) {
	_ = conn.Dispose()
	p.mu.Lock()
	p.associatedCount--
	p.mu.Unlock()
	p.stats.ConnectionDisposed(p.key, reason)
	p.transferCapacity()
}

// DisposeConn is the public form of dispose, for callers (the Pool Manager's
// tunnel negotiation) that acquired a connection directly via GetOrReserve
// and need to tear it down on failure rather than returning it.
func (p *Pool) DisposeConn(conn *HttpConnection, reason string) {
	p.dispose(conn, reason)
}

// Detach removes conn from this pool's bookkeeping without closing the
// socket or returning it to the idle stack. Used when the underlying
// net.Conn is being repurposed as the transport for a different pool - a
// successful CONNECT tunnel handing its raw socket to the tunnelled pool -
// so it must stop being this pool's to manage.
func (p *Pool) Detach(conn *HttpConnection) {
	p.mu.Lock()
	p.associatedCount--
	p.mu.Unlock()
	p.transferCapacity()
}

// Dispose marks the pool disposed and closes every idle connection.
// Checked-out connections are left for their eventual Return, which will
// observe disposed and close them too.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		_ = c.Conn.Dispose()
	}
}

// CleanCacheAndDisposeIfUnused is the reaper entry point. It sweeps the
// idle stack in place (actively probing each connection with poll-read),
// disposing anything no longer usable. If the sweep leaves the pool
// completely empty and it saw no traffic since the previous sweep, it
// disposes the pool itself and returns true so the manager removes it.
func (p *Pool) CleanCacheAndDisposeIfUnused() bool {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return true
	}
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	kept := make([]CachedConnection, 0, len(idle))
	for _, c := range idle {
		if !p.withinBounds(c) {
			_ = c.Conn.Dispose()
			p.stats.ConnectionDisposed(p.key, "reaper sweep")
			p.mu.Lock()
			p.associatedCount--
			p.mu.Unlock()
			continue
		}
		if dirty, pollErr := c.Conn.PollRead(p.opts.PollReadBudget); dirty || pollErr != nil {
			_ = c.Conn.Dispose()
			p.stats.ConnectionDisposed(p.key, "reaper poll-read")
			p.mu.Lock()
			p.associatedCount--
			p.mu.Unlock()
			continue
		}
		kept = append(kept, c)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, kept...)

	if len(p.idle) == 0 && p.associatedCount == 0 && !p.usedSinceLastCleanup {
		p.disposed = true
		p.stats.PoolReaped(p.key)
		return true
	}
	p.usedSinceLastCleanup = false
	return false
}

// isUsable probes a just-popped idle connection: bounds check plus an
// active poll-read. Called with the pool lock already released.
func (p *Pool) isUsable(c CachedConnection) bool {
	if !p.withinBounds(c) {
		return false
	}
	dirty, err := c.Conn.PollRead(p.opts.PollReadBudget)
	return !dirty && err == nil
}

// withinBounds checks only the lifetime/idle-timeout bounds, no I/O. Safe
// to call whether or not the pool lock is held.
func (p *Pool) withinBounds(c CachedConnection) bool {
	return c.IsUsableNow(p.opts.ConnectionLifetime, p.opts.LifetimeInfinite, p.opts.IdleTimeout, p.opts.IdleInfinite)
}

// AssociatedCount reports the current live-connection count, for tests and
// diagnostics.
func (p *Pool) AssociatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.associatedCount
}

// IdleCount reports the current idle-stack depth, for tests and diagnostics.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// WaiterCount reports the current waiter-queue depth, for tests and
// diagnostics.
func (p *Pool) WaiterCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
