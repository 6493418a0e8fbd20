package crypto

import (
	"github.com/pkg/errors"
	ristretto "github.com/gtank/ristretto255"
	"golang.org/x/crypto/sha3"
)

// ErrMalformedSignature is returned when a ring signature's wire encoding
// cannot be parsed: a scalar fails canonical decode, or the key image fails
// to decompress.
var ErrMalformedSignature = errors.New("crypto: malformed ring signature")

// RingSignature is a bLSAG signature: a single challenge scalar, one response
// scalar per ring member, and the key image linking signatures by the same
// signer without revealing which ring member produced them.
type RingSignature struct {
	Challenge *ristretto.Scalar
	Responses []*ristretto.Scalar
	KeyImage  *ristretto.Element
}

// hashToPoint maps a compressed Ristretto255 point to another point on the
// curve via Keccak-512, the role occlude's H' plays for hash-to-curve but
// applied to an already-encoded group element rather than a password.
func hashToPoint(p *ristretto.Element) *ristretto.Element {
	h := sha3.NewLegacyKeccak512()
	h.Write(p.Encode(nil))
	return new(ristretto.Element).FromUniformBytes(h.Sum(nil))
}

// hashToScalar derives a challenge scalar from the transcript parts via
// Keccak-512.
func hashToScalar(parts ...[]byte) *ristretto.Scalar {
	h := sha3.NewLegacyKeccak512()
	for _, part := range parts {
		h.Write(part)
	}
	return new(ristretto.Scalar).FromUniformBytes(h.Sum(nil))
}

// Sign produces a bLSAG ring signature proving knowledge of the private key
// behind ring[selfIndex] without revealing selfIndex, over message.
func Sign(priv *ristretto.Scalar, selfIndex int, ring []*ristretto.Element, message []byte) (*RingSignature, error) {
	n := len(ring)
	if selfIndex < 0 || selfIndex >= n {
		return nil, errors.New("crypto: self index out of range")
	}

	selfHp := hashToPoint(ring[selfIndex])
	keyImage := new(ristretto.Element).ScalarMult(priv, selfHp)

	alpha, err := RandomScalar()
	if err != nil {
		return nil, err
	}

	l := new(ristretto.Element).ScalarBaseMult(alpha)
	r := new(ristretto.Element).ScalarMult(alpha, selfHp)
	c := hashToScalar(message, l.Encode(nil), r.Encode(nil))

	responses := make([]*ristretto.Scalar, n)
	var stored *ristretto.Scalar

	for step := 1; step < n; step++ {
		i := (selfIndex + step) % n
		if i == 0 {
			stored = c
		}

		ri, err := RandomScalar()
		if err != nil {
			return nil, err
		}
		responses[i] = ri

		hp := hashToPoint(ring[i])
		li := new(ristretto.Element).ScalarBaseMult(ri)
		li.Add(li, new(ristretto.Element).ScalarMult(c, ring[i]))
		ci := new(ristretto.Element).ScalarMult(ri, hp)
		ci.Add(ci, new(ristretto.Element).ScalarMult(c, keyImage))
		c = hashToScalar(message, li.Encode(nil), ci.Encode(nil))
	}

	// c now holds the incoming challenge for selfIndex. When selfIndex == 0
	// the loop above never visits i == 0, so stored is captured here instead.
	if stored == nil {
		stored = c
	}

	responses[selfIndex] = new(ristretto.Scalar).Subtract(alpha, new(ristretto.Scalar).Multiply(c, priv))

	return &RingSignature{Challenge: stored, Responses: responses, KeyImage: keyImage}, nil
}

// Verify checks a bLSAG ring signature against ring and message.
func Verify(sig *RingSignature, ring []*ristretto.Element, message []byte) bool {
	if sig == nil || sig.Challenge == nil || sig.KeyImage == nil || len(sig.Responses) != len(ring) {
		return false
	}

	c := sig.Challenge
	for i, pub := range ring {
		ri := sig.Responses[i]
		if ri == nil {
			return false
		}

		hp := hashToPoint(pub)
		li := new(ristretto.Element).ScalarBaseMult(ri)
		li.Add(li, new(ristretto.Element).ScalarMult(c, pub))
		riPoint := new(ristretto.Element).ScalarMult(ri, hp)
		riPoint.Add(riPoint, new(ristretto.Element).ScalarMult(c, sig.KeyImage))
		c = hashToScalar(message, li.Encode(nil), riPoint.Encode(nil))
	}

	return c.Equal(sig.Challenge) == 1
}

// Encode returns the wire encoding challenge(32) ‖ responses(32·|ring|) ‖
// key_image(32).
func (sig *RingSignature) Encode() []byte {
	out := make([]byte, 0, 32+32*len(sig.Responses)+32)
	out = sig.Challenge.Encode(out)
	for _, r := range sig.Responses {
		out = r.Encode(out)
	}
	out = sig.KeyImage.Encode(out)
	return out
}

// DecodeRingSignature parses a bLSAG signature followed by its signed
// message, given the expected ring size. It returns ErrMalformedSignature if
// any scalar fails canonical decode or the key image fails to decompress.
func DecodeRingSignature(data []byte, ringSize int) (*RingSignature, []byte, error) {
	want := 32 + 32*ringSize + 32
	if ringSize <= 0 || len(data) < want {
		return nil, nil, ErrMalformedSignature
	}

	offset := 0
	challenge := new(ristretto.Scalar)
	if err := challenge.Decode(data[offset : offset+32]); err != nil {
		return nil, nil, ErrMalformedSignature
	}
	offset += 32

	responses := make([]*ristretto.Scalar, ringSize)
	for i := 0; i < ringSize; i++ {
		s := new(ristretto.Scalar)
		if err := s.Decode(data[offset : offset+32]); err != nil {
			return nil, nil, ErrMalformedSignature
		}
		responses[i] = s
		offset += 32
	}

	keyImage := new(ristretto.Element)
	if err := keyImage.Decode(data[offset : offset+32]); err != nil {
		return nil, nil, ErrMalformedSignature
	}
	offset += 32

	message := data[offset:]
	return &RingSignature{Challenge: challenge, Responses: responses, KeyImage: keyImage}, message, nil
}
