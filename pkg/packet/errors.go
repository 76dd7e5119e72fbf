package packet

import "errors"

// Packet codec errors.
var (
	// Encode errors
	ErrPayloadTooLarge = errors.New("packet: payload exceeds 7 bytes")
	ErrInvalidSecret   = errors.New("packet: invalid shared secret")

	// Decode errors, in the order Decode checks them
	ErrMalformedLength      = errors.New("packet: wire packet must be exactly 22 bytes")
	ErrUnpairedSender       = errors.New("packet: sender is not paired")
	ErrAuthenticationFailed = errors.New("packet: MAC verification failed")
	ErrMalformedPayload     = errors.New("packet: decrypted payload length exceeds 7")

	// Payload helpers
	ErrInvalidAck      = errors.New("packet: invalid ACK payload")
	ErrInvalidHIDType  = errors.New("packet: unsupported HID report type")
	ErrInvalidHIDSlot  = errors.New("packet: HID slot must be 1-16")
	ErrInvalidVersion  = errors.New("packet: unsupported payload version")
	ErrTooManyKeycodes = errors.New("packet: at most 4 simultaneous keycodes")
)

// Wire format constants.
const (
	// Size is the fixed length of every wire packet.
	// DeviceID (2) + encrypted block (16) + MAC (4) = 22
	Size = DeviceIDSize + BlockSize + MACSize

	// DeviceIDSize is the size of the clear-text sender ID.
	DeviceIDSize = 2

	// BlockSize is the size of the single encrypted block.
	BlockSize = 16

	// MACSize is the size of the truncated HMAC-SHA256.
	MACSize = 4

	// MaxPayloadSize is the maximum command payload carried in one block.
	MaxPayloadSize = 7

	// authenticatedSize covers DeviceID and the encrypted block.
	authenticatedSize = DeviceIDSize + BlockSize
)

// Plaintext block offsets.
const (
	offSequence   = 0
	offCommand    = 2
	offPayloadLen = 3
	offPayload    = 4
	// bytes 11-15 are reserved and always zero
)
