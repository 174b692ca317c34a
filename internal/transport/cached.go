package transport

import "time"

// CachedConnection is an immutable bundle of a live HttpConnection and the
// instant it was returned to the pool. It exists only between a Return and
// the next acquisition or reaper sweep.
type CachedConnection struct {
	Conn       *HttpConnection
	ReturnedAt time.Time
}

// IsUsableNow answers whether this cached connection may still be handed
// to an acquirer: both the lifetime and idle-timeout bounds must hold. A
// lifetime of zero means "never pool" (always unusable once cached); an
// idle timeout of zero means "dispose on return" (also always unusable
// once cached). An infinite bound (signalled by the *Infinite flags)
// disables that half of the check.
func (c CachedConnection) IsUsableNow(lifetime time.Duration, lifetimeInfinite bool, idleTimeout time.Duration, idleInfinite bool) bool {
	if c.Conn.IsDisposed() {
		return false
	}

	if !lifetimeInfinite {
		if lifetime <= 0 {
			return false
		}
		if time.Since(c.Conn.CreatedAt()) >= lifetime {
			return false
		}
	}

	if !idleInfinite {
		if idleTimeout <= 0 {
			return false
		}
		if time.Since(c.ReturnedAt) >= idleTimeout {
			return false
		}
	}

	return true
}
