package crypto

import (
	"crypto/rand"

	"github.com/pkg/errors"
	ristretto "github.com/gtank/ristretto255"
)

// RandomScalar returns a uniformly random Ristretto255 scalar, grounded on
// occlude's randomScalar: 64 bytes of entropy reduced via FromUniformBytes.
func RandomScalar() (*ristretto.Scalar, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "reading entropy for scalar")
	}
	return new(ristretto.Scalar).FromUniformBytes(b), nil
}

// KeyPair is a Ristretto255 scalar/point pair: a personal_private_key and its
// corresponding personal_public_key.
type KeyPair struct {
	Private *ristretto.Scalar
	Public  *ristretto.Element
}

// GenerateKeyPair produces a fresh private scalar and its base-point
// multiple, as every conference manager does on entry.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	pub := new(ristretto.Element).ScalarBaseMult(priv)
	return &KeyPair{Private: priv, Public: pub}, nil
}

// Zero overwrites the private scalar with a canonical zero value. The public
// point is not secret and is left untouched.
func (k *KeyPair) Zero() {
	if k == nil || k.Private == nil {
		return
	}
	k.Private.Zero()
}
