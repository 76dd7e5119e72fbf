package crypto

import "errors"

// Errors returned by the crypto package.
var (
	// ErrInvalidKeySize is returned when a secret is shorter than an AES-128 key.
	ErrInvalidKeySize = errors.New("crypto: secret must be at least 16 bytes")

	// ErrInvalidSecretSize is returned when a requested secret size is not 16 or 32 bytes.
	ErrInvalidSecretSize = errors.New("crypto: secret size must be 16 or 32 bytes")

	// ErrInvalidIterations is returned when PBKDF2 iterations are out of range.
	ErrInvalidIterations = errors.New("crypto: PBKDF2 iterations out of range")
)
