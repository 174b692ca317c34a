// Package auth implements the black-box credential collaborator spec.md §9
// treats as external to the pool: a handler that may re-dispatch a request
// zero or more times while attaching credentials, without the pool knowing
// anything about the scheme in play.
package auth

import (
	"fmt"
	"net/http"

	"github.com/thushan/pconn/internal/core/ports"
)

// Credentials is the minimal username/password pair the two supported
// schemes need. Request-level and proxy-level credentials both use this
// shape; which one applies is determined by the caller, not by auth.
type Credentials struct {
	Username string
	Password string
}

// Handler is the ports.AuthHandler surface this package's schemes
// implement.
type Handler = ports.AuthHandler

// NotSupported answers any challenge by reporting the scheme as
// unimplemented. pconn never fabricates an NTLM/Kerberos implementation -
// those protocols need SSPI/GSSAPI or a vendored state machine this pack
// has no real library for.
type NotSupported struct {
	scheme string
}

// NewNTLM and NewKerberos are the two schemes spec.md's source handles via
// platform SSPI/GSSAPI that pconn deliberately does not fake.
func NewNTLM() *NotSupported     { return &NotSupported{scheme: "NTLM"} }
func NewKerberos() *NotSupported { return &NotSupported{scheme: "Kerberos"} }

func (n *NotSupported) Scheme() string { return n.scheme }

func (n *NotSupported) Authenticate(req *http.Request, send ports.SendFunc) (*http.Response, error) {
	return nil, fmt.Errorf("auth: %s is not supported by this handler", n.scheme)
}
