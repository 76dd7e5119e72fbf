package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// RFC 5869 Appendix A.1 (Test Case 1).
func TestHKDFSHA256_RFC5869(t *testing.T) {
	ikm := mustHex(t, "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	salt := mustHex(t, "000102030405060708090a0b0c")
	info := mustHex(t, "f0f1f2f3f4f5f6f7f8f9")
	want := mustHex(t, "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865")

	got, err := HKDFSHA256(ikm, salt, info, 42)
	if err != nil {
		t.Fatalf("HKDFSHA256: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("OKM = %x, want %x", got, want)
	}
}

func TestDeriveSecret(t *testing.T) {
	master := []byte("fleet master key for presenters")

	a, err := DeriveSecret(master, 0x1234)
	if err != nil {
		t.Fatalf("DeriveSecret: %v", err)
	}
	if len(a) != SecretSize256 {
		t.Fatalf("secret length = %d, want %d", len(a), SecretSize256)
	}

	again, _ := DeriveSecret(master, 0x1234)
	if !bytes.Equal(a, again) {
		t.Error("derivation should be deterministic")
	}

	other, _ := DeriveSecret(master, 0x1235)
	if bytes.Equal(a, other) {
		t.Error("different device IDs should derive different secrets")
	}
}

func TestGenerateSecret(t *testing.T) {
	for _, size := range []int{SecretSize128, SecretSize256} {
		s, err := GenerateSecret(size)
		if err != nil {
			t.Fatalf("GenerateSecret(%d): %v", size, err)
		}
		if len(s) != size {
			t.Errorf("len = %d, want %d", len(s), size)
		}
	}

	if _, err := GenerateSecret(24); !errors.Is(err, ErrInvalidSecretSize) {
		t.Errorf("GenerateSecret(24) error = %v, want ErrInvalidSecretSize", err)
	}
}

func TestSecretFromPasscode(t *testing.T) {
	salt := []byte("cuelink-salt-0001")

	a, err := SecretFromPasscode([]byte("20202021"), salt, PBKDF2IterationsMin)
	if err != nil {
		t.Fatalf("SecretFromPasscode: %v", err)
	}
	if len(a) != SecretSize256 {
		t.Errorf("len = %d, want %d", len(a), SecretSize256)
	}

	b, _ := SecretFromPasscode([]byte("20202022"), salt, PBKDF2IterationsMin)
	if bytes.Equal(a, b) {
		t.Error("different passcodes should produce different secrets")
	}

	if _, err := SecretFromPasscode([]byte("1"), salt, 10); !errors.Is(err, ErrInvalidIterations) {
		t.Errorf("low iteration error = %v, want ErrInvalidIterations", err)
	}
}
