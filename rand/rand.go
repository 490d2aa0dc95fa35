// Package rand provides the random bytes of the handshake and the ids of sessions.
package rand

import (
	cryptoRand "crypto/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Fill fills b with cryptographically-safe random data.
func Fill(b []byte) error {
	_, err := cryptoRand.Read(b)
	return errors.Wrap(err, "rand: reading random data")
}

// SessionID returns a new UUID in string format (including hyphens).
func SessionID() string {
	return uuid.NewString()
}
