package util

import (
	"fmt"
	"math/rand"
)

// GenerateRequestID produces a short human-readable correlation id for
// logging, in place of an opaque UUID everywhere one isn't already required.
func GenerateRequestID() string {
	verbs := []string{
		"dialing", "reusing", "draining", "queuing", "tunnelling",
		"handshaking", "retrying", "polling", "reaping", "closing",
	}
	nouns := []string{
		"socket", "endpoint", "waiter", "pool", "tunnel",
		"conn", "handshake", "origin", "cache", "lease",
	}

	noun := nouns[rand.Intn(len(nouns))]
	verb := verbs[rand.Intn(len(verbs))]
	suffix := fmt.Sprintf("%04x", rand.Intn(65536))

	return fmt.Sprintf("%s_%s_%s", noun, verb, suffix)
}
