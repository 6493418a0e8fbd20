package crypto

import (
	"bytes"
	"testing"

	ristretto "github.com/gtank/ristretto255"
)

func buildRing(t *testing.T, n int) ([]*ristretto.Scalar, []*ristretto.Element) {
	t.Helper()
	privs := make([]*ristretto.Scalar, n)
	ring := make([]*ristretto.Element, n)
	for i := 0; i < n; i++ {
		kp, err := GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		privs[i] = kp.Private
		ring[i] = kp.Public
	}
	return privs, ring
}

func TestRingSignatureSignVerifyRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		privs, ring := buildRing(t, n)
		for self := 0; self < n; self++ {
			message := []byte("hello ring")
			sig, err := Sign(privs[self], self, ring, message)
			if err != nil {
				t.Fatalf("n=%d self=%d: %v", n, self, err)
			}
			if !Verify(sig, ring, message) {
				t.Fatalf("n=%d self=%d: signature did not verify", n, self)
			}
		}
	}
}

func TestRingSignatureDoesNotRevealSigner(t *testing.T) {
	// Two signatures from different ring members must both verify against
	// the same ring and message, and must carry distinct key images.
	privs, ring := buildRing(t, 4)
	message := []byte("anonymous broadcast")

	sigA, err := Sign(privs[0], 0, ring, message)
	if err != nil {
		t.Fatal(err)
	}
	sigB, err := Sign(privs[2], 2, ring, message)
	if err != nil {
		t.Fatal(err)
	}

	if !Verify(sigA, ring, message) || !Verify(sigB, ring, message) {
		t.Fatal("both signatures must verify against the shared ring")
	}
	if bytes.Equal(sigA.KeyImage.Encode(nil), sigB.KeyImage.Encode(nil)) {
		t.Fatal("distinct signers must produce distinct key images")
	}
}

func TestRingSignatureVerifyFailsOnTamperedMessage(t *testing.T) {
	privs, ring := buildRing(t, 3)
	sig, err := Sign(privs[1], 1, ring, []byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	if Verify(sig, ring, []byte("tampered")) {
		t.Fatal("expected verification to fail on tampered message")
	}
}

func TestRingSignatureVerifyFailsOnTamperedRing(t *testing.T) {
	privs, ring := buildRing(t, 3)
	message := []byte("original")
	sig, err := Sign(privs[1], 1, ring, message)
	if err != nil {
		t.Fatal(err)
	}

	otherKP, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	tamperedRing := append([]*ristretto.Element(nil), ring...)
	tamperedRing[0] = otherKP.Public

	if Verify(sig, tamperedRing, message) {
		t.Fatal("expected verification to fail when a ring element is replaced")
	}
}

func TestRingSignatureEncodeDecodeRoundTrip(t *testing.T) {
	privs, ring := buildRing(t, 3)
	message := []byte("payload")
	sig, err := Sign(privs[0], 0, ring, message)
	if err != nil {
		t.Fatal(err)
	}

	encoded := append(sig.Encode(), message...)
	decoded, decodedMessage, err := DecodeRingSignature(encoded, len(ring))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decodedMessage, message) {
		t.Fatalf("decoded message mismatch: got %q want %q", decodedMessage, message)
	}
	if !Verify(decoded, ring, decodedMessage) {
		t.Fatal("decoded signature failed to verify")
	}
}

func TestDecodeRingSignatureRejectsMalformedKeyImage(t *testing.T) {
	privs, ring := buildRing(t, 2)
	message := []byte("payload")
	sig, err := Sign(privs[0], 0, ring, message)
	if err != nil {
		t.Fatal(err)
	}

	encoded := append(sig.Encode(), message...)
	// Corrupt the key image bytes so decompression fails.
	keyImageOffset := 32 + 32*len(ring)
	for i := 0; i < 32; i++ {
		encoded[keyImageOffset+i] = 0xff
	}

	if _, _, err := DecodeRingSignature(encoded, len(ring)); err == nil {
		t.Fatal("expected malformed key image to be rejected")
	}
}

func TestDecodeRingSignatureRejectsShortInput(t *testing.T) {
	if _, _, err := DecodeRingSignature([]byte{0x01, 0x02}, 3); err == nil {
		t.Fatal("expected short input to be rejected")
	}
}
