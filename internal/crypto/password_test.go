package crypto

import "testing"

func TestHashPasswordWithSaltIsDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatal(err)
	}
	password := []byte("correct horse battery staple")

	a := HashPasswordWithSalt(password, salt)
	b := HashPasswordWithSalt(password, salt)
	if a != b {
		t.Fatal("hash_password_with_salt is not deterministic")
	}
}

func TestHashPasswordWithSaltDiffersForDifferentPasswords(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatal(err)
	}

	a := HashPasswordWithSalt([]byte("password one"), salt)
	b := HashPasswordWithSalt([]byte("password two"), salt)
	if a == b {
		t.Fatal("expected different passwords to produce different hashes")
	}
}

func TestHashPasswordGeneratesFreshSalt(t *testing.T) {
	password := []byte("shared password")

	hashA, saltA, err := HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	hashB, saltB, err := HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}

	if saltA == saltB {
		t.Fatal("expected distinct salts across calls")
	}
	if hashA == hashB {
		t.Fatal("expected distinct hashes when salts differ")
	}
}
