package crypto

import (
	"crypto/aes"
)

// Block cipher constants.
const (
	// BlockSize is the AES block size in bytes.
	BlockSize = aes.BlockSize

	// KeySize is the AES-128 key size in bytes. Longer secrets are truncated
	// to their first KeySize bytes.
	KeySize = 16
)

// cipherKey returns the AES-128 key for a shared secret.
func cipherKey(secret []byte) ([]byte, error) {
	if len(secret) < KeySize {
		return nil, ErrInvalidKeySize
	}
	return secret[:KeySize], nil
}

// EncryptBlock encrypts exactly one 16-byte block with AES-128 in ECB mode.
// Only the first 16 bytes of secret are used as key material.
//
// No IV or nonce is involved: identical plaintext under the same key always
// yields identical ciphertext.
func EncryptBlock(secret []byte, plaintext [BlockSize]byte) ([BlockSize]byte, error) {
	var out [BlockSize]byte

	key, err := cipherKey(secret)
	if err != nil {
		return out, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return out, err
	}

	block.Encrypt(out[:], plaintext[:])
	return out, nil
}

// DecryptBlock decrypts exactly one 16-byte block with AES-128 in ECB mode.
func DecryptBlock(secret []byte, ciphertext [BlockSize]byte) ([BlockSize]byte, error) {
	var out [BlockSize]byte

	key, err := cipherKey(secret)
	if err != nil {
		return out, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return out, err
	}

	block.Decrypt(out[:], ciphertext[:])
	return out, nil
}
