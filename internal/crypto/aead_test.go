package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key SecretKey
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	message := []byte("Hello, conference!")

	result, err := Encrypt(message, key)
	if err != nil {
		t.Fatal(err)
	}

	plaintext, err := Decrypt(key, result)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plaintext, message) {
		t.Fatalf("got %q, want %q", plaintext, message)
	}
}

func TestDecryptFailsOnBitFlip(t *testing.T) {
	var key SecretKey
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	message := []byte("Hello, conference!")

	result, err := Encrypt(message, key)
	if err != nil {
		t.Fatal(err)
	}

	flipped := result
	flipped.Ciphertext = append([]byte(nil), result.Ciphertext...)
	flipped.Ciphertext[0] ^= 0x01
	if _, err := Decrypt(key, flipped); err == nil {
		t.Fatal("expected decryption to fail after flipping a ciphertext bit")
	}

	flipped = result
	flipped.IV[0] ^= 0x01
	if _, err := Decrypt(key, flipped); err == nil {
		t.Fatal("expected decryption to fail after flipping an iv bit")
	}

	flipped = result
	flipped.Ciphertext = append([]byte(nil), result.Ciphertext...)
	flipped.Ciphertext[len(flipped.Ciphertext)-1] ^= 0x01 // flips a tag byte
	if _, err := Decrypt(key, flipped); err == nil {
		t.Fatal("expected decryption to fail after flipping a tag bit")
	}
}

func TestEncryptionResultEncodeDecodeRoundTrip(t *testing.T) {
	var key SecretKey
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	result, err := Encrypt([]byte("round trip"), key)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeEncryptionResult(result.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.IV != result.IV || !bytes.Equal(decoded.Ciphertext, result.Ciphertext) {
		t.Fatal("decoded EncryptionResult does not match original")
	}
}

func TestDecodeEncryptionResultRejectsShortInput(t *testing.T) {
	if _, err := DecodeEncryptionResult(make([]byte, IVSize)); err == nil {
		t.Fatal("expected error decoding too-short input")
	}
}
