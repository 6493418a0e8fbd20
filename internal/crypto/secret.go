// Package crypto implements the cryptographic primitives used by the
// conference protocol: AEAD message encryption, Argon2 password hashing,
// ephemeral key folding, and bLSAG ring signatures over Ristretto255.
package crypto

// SecretKey is a fixed-size symmetric key that must be wiped from memory once
// its owner no longer needs it. initial_encryption_key and
// ephemeral_encryption_key are held as SecretKey values; personal_private_key
// is a Ristretto255 scalar held in a KeyPair, which has its own Zero method.
type SecretKey [32]byte

// Zero overwrites k with zeroes in place.
func (k *SecretKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// zero overwrites an arbitrary byte slice in place.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
