// Package crypto provides the cryptographic primitives used by the radio link:
// single-block AES encryption, HMAC-SHA256 message authentication and key
// derivation for provisioning per-device shared secrets.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// SHA256LenBytes is the SHA-256 output length in bytes.
const SHA256LenBytes = sha256.Size

// HMACSHA256 computes the HMAC-SHA256 of a message using the given key.
//
// Returns a 32-byte (256-bit) MAC.
func HMACSHA256(key, message []byte) [SHA256LenBytes]byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	var result [SHA256LenBytes]byte
	copy(result[:], h.Sum(nil))
	return result
}

// TruncatedMAC computes HMAC-SHA256 and keeps the first n bytes.
// n is clamped to the full MAC length.
func TruncatedMAC(key, message []byte, n int) []byte {
	full := HMACSHA256(key, message)
	if n > len(full) {
		n = len(full)
	}
	if n < 0 {
		n = 0
	}
	out := make([]byte, n)
	copy(out, full[:n])
	return out
}

// MACEqual compares two MACs for equality in constant time.
// This should be used instead of bytes.Equal to prevent timing attacks.
func MACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}
