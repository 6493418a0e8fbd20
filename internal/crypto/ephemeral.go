package crypto

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

// GenerateEphemeralKey returns KeySize bytes of fresh randomness: one
// participant's contribution to a conference's ephemeral encryption key.
func GenerateEphemeralKey() (SecretKey, error) {
	var key SecretKey
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, errors.Wrap(err, "generating ephemeral key")
	}
	return key, nil
}

// ApplyPart XORs part into key in place, folding one participant's
// contribution into the running ephemeral key accumulator.
func ApplyPart(key *SecretKey, part [KeySize]byte) {
	for i := range key {
		key[i] ^= part[i]
	}
}
