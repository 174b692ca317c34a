package auth

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/thushan/pconn/internal/core/ports"
)

// Digest implements RFC 7616's single round-trip flow: send the request
// unauthenticated, read the 401/407 challenge, compute a response, resend
// once. No session reuse across requests - each Authenticate call performs
// its own fresh challenge round trip, matching spec.md's "black box"
// framing rather than optimising for repeat calls.
type Digest struct {
	creds Credentials
	nc    atomic.Uint32
}

func NewDigest(creds Credentials) *Digest {
	return &Digest{creds: creds}
}

func (d *Digest) Scheme() string { return "Digest" }

func (d *Digest) Authenticate(req *http.Request, send ports.SendFunc) (*http.Response, error) {
	resp, err := send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusProxyAuthRequired {
		return resp, nil
	}

	headerName := "WWW-Authenticate"
	if resp.StatusCode == http.StatusProxyAuthRequired {
		headerName = "Proxy-Authenticate"
	}
	challenge := parseDigestChallenge(resp.Header.Get(headerName))
	if challenge == nil {
		return resp, nil
	}
	_ = resp.Body.Close()

	authHeader := "Authorization"
	if resp.StatusCode == http.StatusProxyAuthRequired {
		authHeader = "Proxy-Authorization"
	}

	value, err := d.buildResponse(req, challenge)
	if err != nil {
		return nil, err
	}
	req.Header.Set(authHeader, value)
	return send(req)
}

type digestChallenge struct {
	realm  string
	nonce  string
	qop    string
	opaque string
	algo   string
}

func parseDigestChallenge(header string) *digestChallenge {
	if header == "" || !strings.HasPrefix(header, "Digest ") {
		return nil
	}
	fields := splitDigestFields(strings.TrimPrefix(header, "Digest "))
	c := &digestChallenge{algo: "MD5"}
	for k, v := range fields {
		switch strings.ToLower(k) {
		case "realm":
			c.realm = v
		case "nonce":
			c.nonce = v
		case "qop":
			c.qop = v
		case "opaque":
			c.opaque = v
		case "algorithm":
			c.algo = v
		}
	}
	if c.nonce == "" {
		return nil
	}
	return c
}

// splitDigestFields parses comma-separated key=value (optionally quoted)
// pairs, tolerant of quoted commas.
func splitDigestFields(s string) map[string]string {
	out := make(map[string]string)
	var key, val strings.Builder
	inQuotes := false
	readingKey := true

	flush := func() {
		k := strings.TrimSpace(key.String())
		if k != "" {
			out[k] = val.String()
		}
		key.Reset()
		val.Reset()
		readingKey = true
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '=' && readingKey && !inQuotes:
			readingKey = false
		case r == ',' && !inQuotes:
			flush()
		default:
			if readingKey {
				key.WriteRune(r)
			} else {
				val.WriteRune(r)
			}
		}
	}
	flush()
	return out
}

func (d *Digest) buildResponse(req *http.Request, c *digestChallenge) (string, error) {
	cnonce, err := randomHex(16)
	if err != nil {
		return "", fmt.Errorf("auth: generating cnonce: %w", err)
	}
	nc := d.nc.Add(1)
	ncValue := fmt.Sprintf("%08x", nc)

	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", d.creds.Username, c.realm, d.creds.Password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", req.Method, req.URL.RequestURI()))

	var response string
	qop := firstQop(c.qop)
	if qop != "" {
		response = md5Hex(strings.Join([]string{ha1, c.nonce, ncValue, cnonce, qop, ha2}, ":"))
	} else {
		response = md5Hex(strings.Join([]string{ha1, c.nonce, ha2}, ":"))
	}

	var b strings.Builder
	b.WriteString("Digest ")
	fmt.Fprintf(&b, `username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		d.creds.Username, c.realm, c.nonce, req.URL.RequestURI(), response)
	if qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, qop, ncValue, cnonce)
	}
	if c.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.opaque)
	}
	return b.String(), nil
}

func firstQop(qop string) string {
	if qop == "" {
		return ""
	}
	parts := strings.Split(qop, ",")
	return strings.TrimSpace(parts[0])
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
