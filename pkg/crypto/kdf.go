package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Shared secret sizes accepted by the device registry.
const (
	// SecretSize128 is a bare AES-128 key.
	SecretSize128 = 16

	// SecretSize256 matches the 32-byte keys issued by the pairing tool.
	// Only the first 16 bytes are used for encryption and authentication.
	SecretSize256 = 32
)

// PBKDF2 iteration limits for passcode-derived secrets.
const (
	PBKDF2IterationsMin = 1000
	PBKDF2IterationsMax = 100000
)

// deviceSecretInfo is the HKDF info prefix for per-device secrets.
var deviceSecretInfo = []byte("cuelink device")

// ValidSecretSize reports whether n is an accepted shared secret length.
func ValidSecretSize(n int) bool {
	return n == SecretSize128 || n == SecretSize256
}

// GenerateSecret returns a fresh random shared secret of the given size.
func GenerateSecret(size int) ([]byte, error) {
	if !ValidSecretSize(size) {
		return nil, ErrInvalidSecretSize
	}
	secret := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// HKDFSHA256 derives key material using HKDF-SHA256 (RFC 5869).
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// DeriveSecret derives a 32-byte shared secret for deviceID from a master key.
// A fleet provisioned from the same master can be re-paired without
// transporting every key out of band.
func DeriveSecret(master []byte, deviceID uint16) ([]byte, error) {
	info := make([]byte, len(deviceSecretInfo)+2)
	copy(info, deviceSecretInfo)
	binary.BigEndian.PutUint16(info[len(deviceSecretInfo):], deviceID)
	return HKDFSHA256(master, nil, info, SecretSize256)
}

// SecretFromPasscode stretches a human-entered pairing passcode into a
// 32-byte shared secret using PBKDF2-HMAC-SHA256.
func SecretFromPasscode(passcode, salt []byte, iterations int) ([]byte, error) {
	if iterations < PBKDF2IterationsMin || iterations > PBKDF2IterationsMax {
		return nil, ErrInvalidIterations
	}
	return pbkdf2.Key(passcode, salt, iterations, SecretSize256, sha256.New), nil
}
