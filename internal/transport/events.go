package transport

import (
	"time"

	"github.com/thushan/pconn/internal/core/domain"
	"github.com/thushan/pconn/pkg/eventbus"
)

// PoolEventKind names the pool lifecycle transitions broadcast on the
// event bus, for diagnostics consumers (nerdstats, a future metrics
// exporter, or a CLI progress view) that want a live feed rather than
// polling counters.
type PoolEventKind int

const (
	EventConnectionDialed PoolEventKind = iota
	EventConnectionReused
	EventConnectionDisposed
	EventWaiterQueued
	EventWaiterServed
	EventPoolReaped
)

func (k PoolEventKind) String() string {
	switch k {
	case EventConnectionDialed:
		return "dialed"
	case EventConnectionReused:
		return "reused"
	case EventConnectionDisposed:
		return "disposed"
	case EventWaiterQueued:
		return "waiter_queued"
	case EventWaiterServed:
		return "waiter_served"
	case EventPoolReaped:
		return "reaped"
	default:
		return "unknown"
	}
}

// PoolEvent is one observation published by an EventBusStats collector.
type PoolEvent struct {
	Kind   PoolEventKind
	Key    domain.EndpointKey
	Reason string
	At     time.Time
}

// EventBusStats adapts a pool's StatsCollector calls onto a
// pkg/eventbus.EventBus[PoolEvent], so any number of subscribers (a nerd
// stats reporter, a test assertion, a future metrics bridge) can observe
// pool activity live without the transport package knowing who's
// listening.
type EventBusStats struct {
	bus *eventbus.EventBus[PoolEvent]
}

// NewEventBusStats wraps bus as a ports.StatsCollector. Pass a bus built
// with eventbus.New[PoolEvent]() or eventbus.NewWithConfig.
func NewEventBusStats(bus *eventbus.EventBus[PoolEvent]) *EventBusStats {
	return &EventBusStats{bus: bus}
}

func (s *EventBusStats) publish(kind PoolEventKind, key domain.EndpointKey, reason string) {
	s.bus.PublishAsync(PoolEvent{Kind: kind, Key: key, Reason: reason, At: time.Now()})
}

func (s *EventBusStats) ConnectionDialed(key domain.EndpointKey) {
	s.publish(EventConnectionDialed, key, "")
}

func (s *EventBusStats) ConnectionReused(key domain.EndpointKey) {
	s.publish(EventConnectionReused, key, "")
}

func (s *EventBusStats) ConnectionDisposed(key domain.EndpointKey, reason string) {
	s.publish(EventConnectionDisposed, key, reason)
}

func (s *EventBusStats) WaiterQueued(key domain.EndpointKey) {
	s.publish(EventWaiterQueued, key, "")
}

func (s *EventBusStats) WaiterServed(key domain.EndpointKey) {
	s.publish(EventWaiterServed, key, "")
}

func (s *EventBusStats) PoolReaped(key domain.EndpointKey) {
	s.publish(EventPoolReaped, key, "")
}
