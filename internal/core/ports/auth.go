package ports

import "net/http"

// SendFunc is the callback an AuthHandler uses to re-dispatch a request
// once it has attached credentials, letting the pool answer a 401/407
// challenge without the auth layer knowing anything about pooling.
type SendFunc func(*http.Request) (*http.Response, error)

// AuthHandler is the black-box credential state machine spec.md §9 treats
// as an external collaborator. Authenticate may call send zero or more
// times (e.g. Digest's challenge round trip) before returning the final
// response.
type AuthHandler interface {
	// Scheme identifies the credential type this handler answers for, e.g.
	// "Basic", "Digest", "NTLM", "Kerberos".
	Scheme() string
	Authenticate(req *http.Request, send SendFunc) (*http.Response, error)
}

// CredentialCache holds per-pool preemptive-auth state when preAuthenticate
// is enabled: once a handler has successfully answered a challenge for a
// pool, later requests on that pool attach credentials without waiting for
// a fresh 401/407.
type CredentialCache interface {
	Get(poolKey string) (scheme string, ok bool)
	Remember(poolKey, scheme string)
	Forget(poolKey string)
}
