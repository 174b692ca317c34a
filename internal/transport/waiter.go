package transport

import (
	"context"
	"sync/atomic"
)

// waiterResult is what a releaser hands a Waiter: either a directly
// transferred connection, or nil to mean "capacity freed, try again".
type waiterResult struct {
	conn *HttpConnection
}

const (
	waiterPending int32 = iota
	waiterCompleted
	waiterCancelled
)

// Waiter is a single-shot handoff slot awaiting either a connection or a
// capacity-freed signal. States: pending -> completed | cancelled, terminal.
// The pending -> {completed, cancelled} transition is a single atomic
// compare-and-swap, so a releaser's Complete and the waiting goroutine's
// Cancel can never both believe they won: whichever CAS lands first settles
// the waiter, and the other is told it lost. A Waiter is produced by exactly
// one consumer (the blocked acquirer) and completed by exactly one producer
// (whichever releaser pops it off the queue first).
type Waiter struct {
	ch    chan waiterResult
	state atomic.Int32
}

// NewWaiter creates a pending Waiter with a one-slot buffered channel so a
// releaser never blocks handing off, even if the waiter has already been
// cancelled and nobody will ever receive.
func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan waiterResult, 1)}
}

// Complete hands a connection (or nil for "capacity freed") to the waiter.
// Returns false if the waiter was already completed or cancelled - the
// caller (transferConnection) must then try the next waiter in the queue.
// Once Complete wins the pending->completed transition, the send onto ch is
// guaranteed to follow and cannot be lost: ch is buffered, so it never
// blocks, and Await either receives it directly or, having lost the same
// race, blocks until it arrives instead of giving up early.
func (w *Waiter) Complete(conn *HttpConnection) bool {
	if !w.state.CompareAndSwap(waiterPending, waiterCompleted) {
		return false
	}
	w.ch <- waiterResult{conn: conn}
	return true
}

// Cancel marks the waiter cancelled, unless a releaser has already won the
// race and completed it first - in which case it returns false and the
// delivered connection must still be awaited, not treated as lost.
func (w *Waiter) Cancel() bool {
	return w.state.CompareAndSwap(waiterPending, waiterCancelled)
}

// IsCancelled reports whether Cancel has already won. transferConnection
// does not call it; it skips dead waiters by Complete's return value.
func (w *Waiter) IsCancelled() bool {
	return w.state.Load() == waiterCancelled
}

// Await blocks until the waiter is completed or ctx is cancelled. On context
// cancellation it races Cancel against a concurrent Complete: if Cancel
// wins, no releaser can ever complete this waiter again, so there is
// nothing to wait for. If Cancel loses - a releaser already completed it -
// the send onto ch is guaranteed, so Await blocks for it rather than
// returning early and leaking the connection.
func (w *Waiter) Await(ctx context.Context) (*HttpConnection, bool, error) {
	select {
	case res := <-w.ch:
		return res.conn, res.conn != nil, nil
	case <-ctx.Done():
		if w.Cancel() {
			return nil, false, ctx.Err()
		}
		res := <-w.ch
		return res.conn, res.conn != nil, nil
	}
}
