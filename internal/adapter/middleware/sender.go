// Package middleware implements the explicit delegating-handler chain
// spec.md's design notes call for in place of the source's dynamic-dispatch
// wrappers: each layer satisfies Sender and owns the next layer, with the
// pool sitting at the tail.
package middleware

import (
	"context"
	"net/http"

	"github.com/thushan/pconn/internal/core/ports"
)

// Sender is the one capability every layer in the chain provides.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f SenderFunc) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// RequestAuth wraps next with request-level authentication: when handler
// is non-nil, Authenticate is given a send callback that re-enters next
// directly, letting schemes like Digest perform their own challenge round
// trip without the chain knowing.
type RequestAuth struct {
	Next    Sender
	Handler ports.AuthHandler
}

func (a RequestAuth) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if a.Handler == nil {
		return a.Next.Send(ctx, req)
	}
	return a.Handler.Authenticate(req, func(r *http.Request) (*http.Response, error) {
		return a.Next.Send(ctx, r)
	})
}

// ProxyAuth wraps next with proxy-level authentication, applied only when
// shouldApply reports true for the request in flight (spec.md §4.2: proxy
// auth applies only when the key is Proxy or ProxyConnect).
type ProxyAuth struct {
	Next        Sender
	Handler     ports.AuthHandler
	ShouldApply func(req *http.Request) bool
}

func (a ProxyAuth) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if a.Handler == nil || (a.ShouldApply != nil && !a.ShouldApply(req)) {
		return a.Next.Send(ctx, req)
	}
	return a.Handler.Authenticate(req, func(r *http.Request) (*http.Response, error) {
		return a.Next.Send(ctx, r)
	})
}

// Chain composes layers outer-to-inner: Chain(tail, a, b) sends through a,
// then b, then tail - matching spec.md §4.2's fixed order (request auth,
// then proxy auth, then SendWithRetry).
func Chain(tail Sender, layers ...func(Sender) Sender) Sender {
	s := tail
	for i := len(layers) - 1; i >= 0; i-- {
		s = layers[i](s)
	}
	return s
}
