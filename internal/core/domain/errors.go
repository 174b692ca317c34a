package domain

import (
	"fmt"
	"net/http"
)

// AcquisitionCancelledError is returned when a caller's cancellation token
// trips while the acquisition was waiting on a Waiter.
type AcquisitionCancelledError struct {
	Key EndpointKey
	Err error
}

func (e *AcquisitionCancelledError) Error() string {
	return fmt.Sprintf("connection acquisition cancelled for %s: %v", e.Key, e.Err)
}

func (e *AcquisitionCancelledError) Unwrap() error {
	return e.Err
}

// ConnectTimedOutError is returned when dial or handshake does not complete
// within the configured connectTimeout.
type ConnectTimedOutError struct {
	Key     EndpointKey
	Timeout string
	Err     error
}

func (e *ConnectTimedOutError) Error() string {
	return fmt.Sprintf("connect timed out for %s after %s: %v", e.Key, e.Timeout, e.Err)
}

func (e *ConnectTimedOutError) Unwrap() error {
	return e.Err
}

// TransportFailureError is an I/O error on a connection. Retryable iff the
// connection was reused (not freshly dialed) and no observable request
// bytes reached the peer.
type TransportFailureError struct {
	Key       EndpointKey
	Err       error
	Retryable bool
}

func (e *TransportFailureError) Error() string {
	return fmt.Sprintf("transport failure on %s (retryable=%v): %v", e.Key, e.Retryable, e.Err)
}

func (e *TransportFailureError) Unwrap() error {
	return e.Err
}

// ProxyTunnelRejectedError is returned when a tunnel CONNECT returns a
// non-200 status; the proxy's own response is carried unchanged.
type ProxyTunnelRejectedError struct {
	Key      EndpointKey
	Response *http.Response
}

func (e *ProxyTunnelRejectedError) Error() string {
	status := "unknown"
	if e.Response != nil {
		status = e.Response.Status
	}
	return fmt.Sprintf("proxy tunnel rejected for %s: %s", e.Key, status)
}

// TlsHandshakeFailedError wraps a TLS negotiation error.
type TlsHandshakeFailedError struct {
	Key     EndpointKey
	SslHost string
	Err     error
}

func (e *TlsHandshakeFailedError) Error() string {
	return fmt.Sprintf("tls handshake failed for %s (sni=%s): %v", e.Key, e.SslHost, e.Err)
}

func (e *TlsHandshakeFailedError) Unwrap() error {
	return e.Err
}

// ProtocolViolationError is unexpected bytes on an idle connection, or a
// framing error on a freshly dialed one.
type ProtocolViolationError struct {
	Key    EndpointKey
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation on %s: %s", e.Key, e.Reason)
}

// DisposedError is returned for any operation against a disposed pool or
// manager.
type DisposedError struct {
	Key EndpointKey
	Op  string
}

func (e *DisposedError) Error() string {
	if e.Key == (EndpointKey{}) {
		return fmt.Sprintf("%s: manager is disposed", e.Op)
	}
	return fmt.Sprintf("%s: pool %s is disposed", e.Op, e.Key)
}

func NewAcquisitionCancelledError(key EndpointKey, err error) *AcquisitionCancelledError {
	return &AcquisitionCancelledError{Key: key, Err: err}
}

func NewConnectTimedOutError(key EndpointKey, timeout string, err error) *ConnectTimedOutError {
	return &ConnectTimedOutError{Key: key, Timeout: timeout, Err: err}
}

func NewTransportFailureError(key EndpointKey, err error, retryable bool) *TransportFailureError {
	return &TransportFailureError{Key: key, Err: err, Retryable: retryable}
}

func NewProxyTunnelRejectedError(key EndpointKey, resp *http.Response) *ProxyTunnelRejectedError {
	return &ProxyTunnelRejectedError{Key: key, Response: resp}
}

func NewTlsHandshakeFailedError(key EndpointKey, sslHost string, err error) *TlsHandshakeFailedError {
	return &TlsHandshakeFailedError{Key: key, SslHost: sslHost, Err: err}
}

func NewProtocolViolationError(key EndpointKey, reason string) *ProtocolViolationError {
	return &ProtocolViolationError{Key: key, Reason: reason}
}

func NewDisposedError(key EndpointKey, op string) *DisposedError {
	return &DisposedError{Key: key, Op: op}
}
