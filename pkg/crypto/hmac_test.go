package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// Test vectors from RFC 4231: Identifiers and Test Vectors for HMAC-SHA-224,
// HMAC-SHA-256, HMAC-SHA-384, and HMAC-SHA-512.
// https://datatracker.ietf.org/doc/html/rfc4231
var hmacSHA256TestVectors = []struct {
	name     string
	key      string // hex-encoded
	data     string // hex-encoded
	expected string // hex-encoded HMAC-SHA-256
}{
	{
		name:     "RFC4231_TC1",
		key:      "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
		data:     "4869205468657265", // "Hi There"
		expected: "b0344c61d8db38535ca8afceaf0bf12b881dc200c9833da726e9376c2e32cff7",
	},
	{
		name:     "RFC4231_TC2",
		key:      "4a656665",                                                 // "Jefe"
		data:     "7768617420646f2079612077616e7420666f72206e6f7468696e673f", // "what do ya want for nothing?"
		expected: "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
	},
	{
		name:     "RFC4231_TC5",
		key:      "0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c",
		data:     "546573742057697468205472756e636174696f6e", // "Test With Truncation"
		expected: "a3b6167473100ee06e0c796c2955552bfa6f7c0a6a8aef8b93f860aab0cd20c5",
	},
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("failed to decode hex %q: %v", s, err)
	}
	return b
}

func TestHMACSHA256(t *testing.T) {
	for _, tc := range hmacSHA256TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			result := HMACSHA256(mustHex(t, tc.key), mustHex(t, tc.data))
			expected := mustHex(t, tc.expected)

			if !bytes.Equal(result[:], expected) {
				t.Errorf("HMAC mismatch\ngot:  %x\nwant: %x", result[:], expected)
			}
		})
	}
}

func TestTruncatedMAC(t *testing.T) {
	for _, tc := range hmacSHA256TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			result := TruncatedMAC(mustHex(t, tc.key), mustHex(t, tc.data), 4)
			expected := mustHex(t, tc.expected)[:4]

			if !bytes.Equal(result, expected) {
				t.Errorf("truncated MAC = %x, want %x", result, expected)
			}
		})
	}

	if got := TruncatedMAC([]byte("k"), []byte("m"), 64); len(got) != SHA256LenBytes {
		t.Errorf("oversized truncation length = %d, want %d", len(got), SHA256LenBytes)
	}
}

func TestMACEqual(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	c := []byte{1, 2, 3, 5}

	if !MACEqual(a, b) {
		t.Error("equal MACs should compare equal")
	}
	if MACEqual(a, c) {
		t.Error("different MACs should not compare equal")
	}
	if MACEqual(a, a[:3]) {
		t.Error("MACs of different length should not compare equal")
	}
}
