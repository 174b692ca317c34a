package ports

import "github.com/thushan/pconn/internal/core/domain"

// StatsCollector receives pool lifecycle counters for diagnostics. A nil
// collector may be passed in; the transport's constructors replace it with
// NoopStats.
type StatsCollector interface {
	ConnectionDialed(key domain.EndpointKey)
	ConnectionReused(key domain.EndpointKey)
	ConnectionDisposed(key domain.EndpointKey, reason string)
	WaiterQueued(key domain.EndpointKey)
	WaiterServed(key domain.EndpointKey)
	PoolReaped(key domain.EndpointKey)
}

// NoopStats discards every observation.
type NoopStats struct{}

func (NoopStats) ConnectionDialed(domain.EndpointKey)            {}
func (NoopStats) ConnectionReused(domain.EndpointKey)             {}
func (NoopStats) ConnectionDisposed(domain.EndpointKey, string)   {}
func (NoopStats) WaiterQueued(domain.EndpointKey)                 {}
func (NoopStats) WaiterServed(domain.EndpointKey)                 {}
func (NoopStats) PoolReaped(domain.EndpointKey)                   {}
