package transport

import (
	"errors"
	"net"
	"testing"
	"time"
)

// scriptedConn is a minimal net.Conn whose Write is driven by a caller-
// supplied function, so tests can exercise exact (n, err) combinations a
// real socket can return (in particular n == 0 with a non-nil err, which
// net.Pipe cannot produce deterministically once the peer is closed).
type scriptedConn struct {
	net.Conn
	write func(p []byte) (int, error)
}

func (c scriptedConn) Write(p []byte) (int, error) { return c.write(p) }

func TestHttpConnection_WriterMarksOnlyBytesActuallySent(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	failWrite := errors.New("write: connection reset by peer")
	sc := scriptedConn{
		Conn: client,
		write: func(p []byte) (int, error) {
			return 0, failWrite
		},
	}

	conn := NewHttpConnection(sc, "h:80", "h")
	if !conn.CanRetry() {
		t.Fatal("expected a freshly-wrapped connection to be retry-eligible")
	}

	n, err := conn.Writer().Write([]byte("GET / HTTP/1.1\r\n"))
	if n != 0 || !errors.Is(err, failWrite) {
		t.Fatalf("expected the zero-byte failing write to pass through unchanged, got n=%d err=%v", n, err)
	}
	if !conn.CanRetry() {
		t.Fatal("a write that transmitted zero bytes must leave the connection retry-eligible")
	}
}

func TestHttpConnection_WriterMarksPartialWriteNonRetryable(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	failWrite := errors.New("write: broken pipe")
	sc := scriptedConn{
		Conn: client,
		write: func(p []byte) (int, error) {
			return 3, failWrite
		},
	}

	conn := NewHttpConnection(sc, "h:80", "h")

	n, err := conn.Writer().Write([]byte("GET / HTTP/1.1\r\n"))
	if n != 3 || !errors.Is(err, failWrite) {
		t.Fatalf("expected the partial write to pass through unchanged, got n=%d err=%v", n, err)
	}
	if conn.CanRetry() {
		t.Fatal("a write that transmitted any bytes must flip the connection non-retryable")
	}
}

func TestHttpConnection_PollReadIdleConnectionIsClean(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	conn := NewHttpConnection(client, "h:80", "h")
	dirty, err := conn.PollRead(5 * time.Millisecond)
	if dirty || err != nil {
		t.Fatalf("expected an idle connection with no stray bytes to poll clean, got dirty=%v err=%v", dirty, err)
	}
}
