package crypto

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters, carried over from occlude's oprfA/oprfB: time=3,
// memory=1e5 KiB, 4 threads, 32-byte output.
const (
	argonTime    = 3
	argonMemory  = 1e5
	argonThreads = 4
	argonKeyLen  = 32
)

// SaltSize is the size in bytes of a join salt or encryption salt.
const SaltSize = 32

// GenerateSalt returns SaltSize bytes of cryptographically secure randomness,
// suitable for use as a join salt or encryption salt.
func GenerateSalt() ([SaltSize]byte, error) {
	var salt [SaltSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return salt, errors.Wrap(err, "generating salt")
	}
	return salt, nil
}

// HashPassword derives a password hash under a freshly generated salt.
func HashPassword(password []byte) (hash SecretKey, salt [SaltSize]byte, err error) {
	salt, err = GenerateSalt()
	if err != nil {
		return SecretKey{}, salt, err
	}
	hash = HashPasswordWithSalt(password, salt)
	return hash, salt, nil
}

// HashPasswordWithSalt deterministically derives a password hash using
// Argon2id under the given salt.
func HashPasswordWithSalt(password []byte, salt [SaltSize]byte) SecretKey {
	var hash SecretKey
	derived := argon2.IDKey(password, salt[:], argonTime, argonMemory, argonThreads, argonKeyLen)
	copy(hash[:], derived)
	zero(derived)
	return hash
}
