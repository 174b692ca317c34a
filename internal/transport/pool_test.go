package transport

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thushan/pconn/internal/core/domain"
)

func testKey(t *testing.T) domain.EndpointKey {
	t.Helper()
	return domain.EndpointKey{Kind: domain.KindHttp, Host: "h", Port: 80}
}

// newCountingDial returns a Dial that hands out one side of an in-memory
// net.Pipe per call, closing the peer side immediately so nothing blocks,
// and counts how many times it was invoked.
func newCountingDial(t *testing.T) (Dial, *int32) {
	t.Helper()
	var dials int32
	dial := func(ctx context.Context) (*HttpConnection, error) {
		atomic.AddInt32(&dials, 1)
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
		return NewHttpConnection(client, "h:80", "h"), nil
	}
	return dial, &dials
}

func newTestPool(t *testing.T, maxConns int) (*Pool, *int32) {
	t.Helper()
	dial, dials := newCountingDial(t)
	opts := PoolOptions{
		MaxConnections:     maxConns,
		ConnectionLifetime: time.Hour,
		IdleTimeout:        time.Hour,
		PollReadBudget:     5 * time.Millisecond,
	}
	return NewPool(testKey(t), opts, dial, nil), dials
}

func TestPool_ReuseAcrossSequentialRequests(t *testing.T) {
	pool, dials := newTestPool(t, 1)

	for i := 0; i < 2; i++ {
		err := pool.Send(context.Background(), func(c *HttpConnection) error {
			return nil
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if got := atomic.LoadInt32(dials); got != 1 {
		t.Fatalf("expected exactly one dial, got %d", got)
	}
	if pool.AssociatedCount() != 1 {
		t.Fatalf("expected associatedCount 1, got %d", pool.AssociatedCount())
	}
	if pool.IdleCount() != 1 {
		t.Fatalf("expected one idle connection after return, got %d", pool.IdleCount())
	}
}

func TestPool_CapAndWaiterHandoff(t *testing.T) {
	pool, dials := newTestPool(t, 1)

	conn, fresh, err := pool.GetOrReserve(context.Background())
	if err != nil || !fresh {
		t.Fatalf("expected fresh connection, got fresh=%v err=%v", fresh, err)
	}

	waiterDone := make(chan *HttpConnection, 1)
	go func() {
		got, _, waitErr := pool.GetOrReserve(context.Background())
		if waitErr != nil {
			t.Errorf("waiter GetOrReserve: %v", waitErr)
			waiterDone <- nil
			return
		}
		waiterDone <- got
	}()

	// give the goroutine a moment to enqueue
	for i := 0; i < 100 && pool.WaiterCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if pool.WaiterCount() != 1 {
		t.Fatalf("expected one queued waiter, got %d", pool.WaiterCount())
	}

	pool.Return(conn)

	select {
	case got := <-waiterDone:
		if got != conn {
			t.Fatalf("expected waiter to receive the same connection directly")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never completed")
	}

	if got := atomic.LoadInt32(dials); got != 1 {
		t.Fatalf("expected exactly one dial across cap+waiter handoff, got %d", got)
	}
}

func TestPool_StaleConnectionIsDisposedAndRedialed(t *testing.T) {
	pool, dials := newTestPool(t, 1)

	conn1, _, err := pool.GetOrReserve(context.Background())
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	pool.Return(conn1)

	// simulate the peer closing the socket while idle.
	_ = conn1.Conn().Close()

	conn2, fresh, err := pool.GetOrReserve(context.Background())
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if !fresh {
		t.Fatal("expected a fresh dial after stale detection")
	}
	if conn2 == conn1 {
		t.Fatal("expected a different connection after stale detection")
	}
	if got := atomic.LoadInt32(dials); got != 2 {
		t.Fatalf("expected two dials total, got %d", got)
	}
}

func TestPool_LifetimeEviction(t *testing.T) {
	dial, dials := newCountingDial(t)
	opts := PoolOptions{
		MaxConnections:     1,
		ConnectionLifetime: 50 * time.Millisecond,
		IdleTimeout:        time.Hour,
		PollReadBudget:     5 * time.Millisecond,
	}
	pool := NewPool(testKey(t), opts, dial, nil)

	conn1, _, err := pool.GetOrReserve(context.Background())
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	pool.Return(conn1)

	time.Sleep(100 * time.Millisecond)

	conn2, fresh, err := pool.GetOrReserve(context.Background())
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if !fresh || conn2 == conn1 {
		t.Fatal("expected the expired connection to be replaced by a fresh dial")
	}
	if got := atomic.LoadInt32(dials); got != 2 {
		t.Fatalf("expected two dials total, got %d", got)
	}
}

func TestPool_CancelledWaiterDoesNotConsumeReturnedConnection(t *testing.T) {
	pool, dials := newTestPool(t, 1)

	conn, _, err := pool.GetOrReserve(context.Background())
	if err != nil {
		t.Fatalf("acquire A: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bDone := make(chan error, 1)
	go func() {
		_, _, waitErr := pool.GetOrReserve(ctx)
		bDone <- waitErr
	}()

	for i := 0; i < 100 && pool.WaiterCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-bDone:
		var cancelErr *domain.AcquisitionCancelledError
		if !errors.As(err, &cancelErr) {
			t.Fatalf("expected AcquisitionCancelledError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("B never observed cancellation")
	}

	pool.Return(conn)

	connC, fresh, err := pool.GetOrReserve(context.Background())
	if err != nil {
		t.Fatalf("acquire C: %v", err)
	}
	if fresh {
		t.Fatal("expected C to reuse A's returned connection, not dial fresh")
	}
	if connC != conn {
		t.Fatal("expected C to receive the exact connection A returned")
	}
	if got := atomic.LoadInt32(dials); got != 1 {
		t.Fatalf("expected exactly one dial overall, got %d", got)
	}
}
