// Package transport implements the pooled client-side HTTP/1.1 connection
// machinery: the Endpoint Key classifier, the per-endpoint Pool, the Pool
// Manager, the Connection Factory, and the retry loop that sits above them.
package transport

import (
	"bufio"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// HttpConnection is exclusively owned by whoever currently holds it: the
// pool's idle stack, or exactly one in-flight requester. It wraps the raw
// byte stream with the bits the pool needs to answer "is this still good":
// a creation timestamp, a can-retry flag toggled once request bytes have
// been observably written, and a non-destructive poll-read.
type HttpConnection struct {
	conn       net.Conn
	br         *bufio.Reader
	createdAt  time.Time
	key        string // EndpointKey.String(), for logging only
	hostHeader string // EndpointKey.HostHeader(), cached so every request on this connection agrees

	disposed  atomic.Bool
	canRetry  atomic.Bool
	bytesSent atomic.Int64
}

// NewHttpConnection wraps a freshly dialed (and, if applicable, TLS- or
// tunnel-wrapped) net.Conn. A connection is retry-safe until the first byte
// of a request is written to it. hostHeader is the pool's pre-computed
// EndpointKey.HostHeader() value, "" for kinds that have none (Proxy).
func NewHttpConnection(conn net.Conn, key string, hostHeader string) *HttpConnection {
	c := &HttpConnection{
		conn:       conn,
		br:         bufio.NewReader(conn),
		createdAt:  time.Now(),
		key:        key,
		hostHeader: hostHeader,
	}
	c.canRetry.Store(true)
	return c
}

func (c *HttpConnection) Conn() net.Conn        { return c.conn }
func (c *HttpConnection) Reader() *bufio.Reader { return c.br }
func (c *HttpConnection) CreatedAt() time.Time  { return c.createdAt }
func (c *HttpConnection) Key() string           { return c.key }
func (c *HttpConnection) HostHeader() string    { return c.hostHeader }
func (c *HttpConnection) IsDisposed() bool      { return c.disposed.Load() }

// CanRetry reports whether a failure on this connection is safe to retry
// transparently: true until the caller has observably started writing
// request bytes to the peer (see MarkBytesSent).
func (c *HttpConnection) CanRetry() bool { return c.canRetry.Load() }

// MarkBytesSent flips CanRetry to false the first time it is called with a
// positive count. Once the peer may have seen any part of a request, a
// transport failure on this connection can no longer be silently retried -
// replaying it could duplicate a non-idempotent request.
func (c *HttpConnection) MarkBytesSent(n int) {
	if n <= 0 {
		return
	}
	if c.bytesSent.Add(int64(n)) > 0 {
		c.canRetry.Store(false)
	}
}

// Writer returns an io.Writer over the connection that marks bytes sent as
// they actually leave the socket, not before. A partial write that is
// followed by an error still flips CanRetry to false, because the peer may
// already have seen those bytes; a write that fails before transmitting
// anything (n == 0) leaves CanRetry untouched, so a connection that was
// reused but had already gone stale underneath us is still safe to retry on
// a fresh connection.
func (c *HttpConnection) Writer() io.Writer { return connWriter{c} }

type connWriter struct{ c *HttpConnection }

func (w connWriter) Write(p []byte) (int, error) {
	n, err := w.c.conn.Write(p)
	if n > 0 {
		w.c.MarkBytesSent(n)
	}
	return n, err
}

// ResetForReuse clears the per-request retry flag so a connection handed
// back to the pool is eligible for the fast retry path again on its next
// checkout.
func (c *HttpConnection) ResetForReuse() {
	c.bytesSent.Store(0)
	c.canRetry.Store(true)
}

// PollRead performs a non-destructive readiness check: it attempts to peek
// one byte without consuming it, using a short read deadline so a
// quiescent-but-healthy connection doesn't block. Three outcomes:
//   - (false, nil): no bytes available, deadline expired - connection is idle and healthy.
//   - (true, nil): a stray byte is sitting in the buffer, the peer closed, or
//     the read failed - unusable.
//   - (true, err): the read deadline could not be set - unusable.
func (c *HttpConnection) PollRead(budget time.Duration) (dirty bool, err error) {
	if budget <= 0 {
		budget = time.Millisecond
	}
	if deadlineErr := c.conn.SetReadDeadline(time.Now().Add(budget)); deadlineErr != nil {
		return true, deadlineErr
	}
	defer c.conn.SetReadDeadline(time.Time{})

	_, peekErr := c.br.Peek(1)
	if peekErr == nil {
		// Data sitting unread on an idle connection is a protocol violation,
		// not a usable resource.
		return true, nil
	}
	if ne, ok := peekErr.(net.Error); ok && ne.Timeout() {
		return false, nil
	}
	// EOF or any other read error means the peer closed or the socket is dead.
	return true, nil
}

// Dispose closes the underlying socket. Safe to call more than once.
func (c *HttpConnection) Dispose() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
