package crypto

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the ChaCha20-Poly1305 key size in bytes.
	KeySize = chacha20poly1305.KeySize
	// IVSize is the ChaCha20-Poly1305 nonce size in bytes.
	IVSize = chacha20poly1305.NonceSize
	// TagSize is the ChaCha20-Poly1305 authentication tag size in bytes.
	TagSize = 16
)

// ErrInvalidEncryptionResult is returned when decoding a byte slice that is
// too short to contain an IV and an authentication tag.
var ErrInvalidEncryptionResult = errors.New("crypto: encryption result too short")

// EncryptionResult is the output of an AEAD encryption: the ciphertext
// (including its appended tag) and the IV used to produce it.
type EncryptionResult struct {
	IV         [IVSize]byte
	Ciphertext []byte // includes the trailing Poly1305 tag
}

// Encode returns the wire encoding iv ‖ ciphertext_with_tag.
func (r EncryptionResult) Encode() []byte {
	out := make([]byte, 0, IVSize+len(r.Ciphertext))
	out = append(out, r.IV[:]...)
	out = append(out, r.Ciphertext...)
	return out
}

// DecodeEncryptionResult parses the wire encoding produced by Encode.
func DecodeEncryptionResult(data []byte) (EncryptionResult, error) {
	if len(data) < IVSize+TagSize {
		return EncryptionResult{}, ErrInvalidEncryptionResult
	}
	var r EncryptionResult
	copy(r.IV[:], data[:IVSize])
	r.Ciphertext = append([]byte(nil), data[IVSize:]...)
	return r, nil
}

// Encrypt seals plaintext under key using ChaCha20-Poly1305 with a fresh
// random IV and no associated data.
func Encrypt(plaintext []byte, key SecretKey) (EncryptionResult, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return EncryptionResult{}, errors.Wrap(err, "initializing chacha20-poly1305")
	}

	var iv [IVSize]byte
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return EncryptionResult{}, errors.Wrap(err, "generating iv")
	}

	ciphertext := aead.Seal(nil, iv[:], plaintext, nil)
	return EncryptionResult{IV: iv, Ciphertext: ciphertext}, nil
}

// Decrypt opens an EncryptionResult under key, returning the plaintext or an
// error if the authentication tag does not verify.
func Decrypt(key SecretKey, result EncryptionResult) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "initializing chacha20-poly1305")
	}

	plaintext, err := aead.Open(nil, result.IV[:], result.Ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting message")
	}
	return plaintext, nil
}
