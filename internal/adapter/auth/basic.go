package auth

import (
	"encoding/base64"
	"net/http"

	"github.com/thushan/pconn/internal/core/ports"
)

// Basic implements RFC 7617: a single header, no challenge round trip.
// Authenticate never calls send itself when preemptive mode is used by the
// caller; when invoked reactively (after a 401/407), it attaches the
// header and performs exactly one re-send.
type Basic struct {
	creds Credentials
}

func NewBasic(creds Credentials) *Basic {
	return &Basic{creds: creds}
}

func (b *Basic) Scheme() string { return "Basic" }

// HeaderValue renders the "Basic <base64>" value so callers doing
// preemptive auth can attach it without a round trip.
func (b *Basic) HeaderValue() string {
	raw := b.creds.Username + ":" + b.creds.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func (b *Basic) Authenticate(req *http.Request, send ports.SendFunc) (*http.Response, error) {
	req.Header.Set("Authorization", b.HeaderValue())
	return send(req)
}
