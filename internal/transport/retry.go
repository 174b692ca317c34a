package transport

import (
	"context"
	"errors"
	"net/url"

	"github.com/thushan/pconn/internal/core/domain"
)

// SendWithRetry wraps one manager dispatch in the retry loop spec 4.5
// describes: a transport failure on a reused connection whose can-retry
// flag is still set is swallowed and the whole acquire-send cycle runs
// again. A failure on a freshly dialed connection always propagates - it
// means the origin is actually unreachable, not that this one socket went
// stale.
func SendWithRetry(ctx context.Context, m *Manager, reqURL *url.URL, fn func(*HttpConnection) error) error {
	for {
		err := m.Send(ctx, reqURL, fn)
		if err == nil {
			return nil
		}

		var transportErr *domain.TransportFailureError
		if errors.As(err, &transportErr) && transportErr.Retryable {
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		return err
	}
}
