package transport

import (
	"context"
	"testing"
	"time"
)

func TestWaiter_CompleteThenCancelStillDelivers(t *testing.T) {
	w := NewWaiter()
	conn := &HttpConnection{}

	if !w.Complete(conn) {
		t.Fatal("expected the first Complete to win")
	}
	if w.Complete(conn) {
		t.Fatal("a second Complete must not also win")
	}

	// Cancel arrives after Complete already won the pending->completed
	// transition; it must lose, and the already-guaranteed delivery must
	// still be observable rather than silently dropped.
	if w.Cancel() {
		t.Fatal("Cancel must lose once Complete has already completed the waiter")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already-done context: Await must still surface the delivered connection
	got, hasConn, err := w.Await(ctx)
	if err != nil {
		t.Fatalf("expected no error once a connection was already delivered, got %v", err)
	}
	if !hasConn || got != conn {
		t.Fatalf("expected the delivered connection back, got %v (hasConn=%v)", got, hasConn)
	}
}

func TestWaiter_CancelThenCompleteLoses(t *testing.T) {
	w := NewWaiter()

	if !w.Cancel() {
		t.Fatal("expected the first Cancel to win")
	}
	if w.Complete(&HttpConnection{}) {
		t.Fatal("Complete must lose once Cancel has already cancelled the waiter")
	}
	if !w.IsCancelled() {
		t.Fatal("expected IsCancelled to report true after a winning Cancel")
	}
}

func TestWaiter_AwaitReceivesBeforeContextCancellation(t *testing.T) {
	w := NewWaiter()
	conn := &HttpConnection{}

	go func() {
		time.Sleep(5 * time.Millisecond)
		w.Complete(conn)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, hasConn, err := w.Await(ctx)
	if err != nil || !hasConn || got != conn {
		t.Fatalf("expected a clean delivery, got conn=%v hasConn=%v err=%v", got, hasConn, err)
	}
}

func TestWaiter_AwaitTimesOutWhenNeverCompleted(t *testing.T) {
	w := NewWaiter()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, hasConn, err := w.Await(ctx)
	if err == nil || hasConn {
		t.Fatalf("expected a context-deadline error with no connection, got hasConn=%v err=%v", hasConn, err)
	}
	if !w.IsCancelled() {
		t.Fatal("expected the waiter to be left cancelled after an unanswered Await")
	}
}
