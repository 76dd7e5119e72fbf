package packet

import (
	"encoding/binary"

	"github.com/loracue/cuelink/pkg/crypto"
)

// WirePacket is the fixed 22-byte unit carried by the radio.
//
// Layout:
//
//	0-1   device ID, big-endian, clear text
//	2-17  AES-128 encrypted plaintext block
//	18-21 first 4 bytes of HMAC-SHA256(secret, bytes 0-17)
type WirePacket struct {
	DeviceID  uint16
	Encrypted [BlockSize]byte
	MAC       [MACSize]byte
}

// Bytes serializes the packet into its wire representation.
func (p *WirePacket) Bytes() []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint16(buf[0:], p.DeviceID)
	copy(buf[DeviceIDSize:], p.Encrypted[:])
	copy(buf[authenticatedSize:], p.MAC[:])
	return buf
}

// ParseWire splits raw radio bytes into their wire fields.
// It only checks the length; authentication is Decode's job.
func ParseWire(data []byte) (WirePacket, error) {
	var p WirePacket
	if len(data) != Size {
		return p, ErrMalformedLength
	}
	p.DeviceID = binary.BigEndian.Uint16(data[0:])
	copy(p.Encrypted[:], data[DeviceIDSize:authenticatedSize])
	copy(p.MAC[:], data[authenticatedSize:])
	return p, nil
}

// Message is a decoded, authenticated command.
type Message struct {
	DeviceID uint16
	Sequence uint16
	Command  Command
	Payload  []byte
	RSSI     int16
}

// SecretLookup resolves a sender's shared secret by device ID.
// Implementations return a copy the codec may use for a single call.
type SecretLookup func(deviceID uint16) (secret []byte, ok bool)

// Encode builds an authenticated, encrypted wire packet.
//
// The plaintext block holds the sequence number, command, payload length and
// payload, zero-padded to 16 bytes. The MAC covers the clear-text device ID and
// the ciphertext, keyed with the same secret.
//
// Returns ErrPayloadTooLarge if payload is longer than 7 bytes.
func Encode(localID uint16, secret []byte, sequence uint16, command Command, payload []byte) (WirePacket, error) {
	var p WirePacket

	if len(payload) > MaxPayloadSize {
		return p, ErrPayloadTooLarge
	}

	var plaintext [BlockSize]byte
	binary.BigEndian.PutUint16(plaintext[offSequence:], sequence)
	plaintext[offCommand] = byte(command)
	plaintext[offPayloadLen] = byte(len(payload))
	copy(plaintext[offPayload:], payload)

	encrypted, err := crypto.EncryptBlock(secret, plaintext)
	if err != nil {
		return p, ErrInvalidSecret
	}

	p.DeviceID = localID
	p.Encrypted = encrypted
	copy(p.MAC[:], computeMAC(secret, localID, encrypted))

	return p, nil
}

// Decode authenticates and decrypts a received wire packet.
//
// Checks run in a fixed order so that nothing derived from unauthenticated
// bytes is ever trusted:
//  1. length must be exactly 22 bytes (ErrMalformedLength)
//  2. the clear-text sender must be paired (ErrUnpairedSender)
//  3. the MAC must match in constant time (ErrAuthenticationFailed)
//  4. the decrypted payload length must be <= 7 (ErrMalformedPayload)
//
// Decode has no side effects. Replay admission is the caller's job.
func Decode(data []byte, rssi int16, lookup SecretLookup) (*Message, error) {
	p, err := ParseWire(data)
	if err != nil {
		return nil, err
	}

	secret, ok := lookup(p.DeviceID)
	if !ok {
		return nil, ErrUnpairedSender
	}

	if len(secret) < crypto.KeySize {
		return nil, ErrAuthenticationFailed
	}

	expected := computeMAC(secret, p.DeviceID, p.Encrypted)
	if !crypto.MACEqual(expected, p.MAC[:]) {
		return nil, ErrAuthenticationFailed
	}

	plaintext, err := crypto.DecryptBlock(secret, p.Encrypted)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	payloadLen := int(plaintext[offPayloadLen])
	if payloadLen > MaxPayloadSize {
		return nil, ErrMalformedPayload
	}

	payload := make([]byte, payloadLen)
	copy(payload, plaintext[offPayload:offPayload+payloadLen])

	return &Message{
		DeviceID: p.DeviceID,
		Sequence: binary.BigEndian.Uint16(plaintext[offSequence:]),
		Command:  Command(plaintext[offCommand]),
		Payload:  payload,
		RSSI:     rssi,
	}, nil
}

// computeMAC returns the truncated MAC over deviceID || ciphertext.
// The key is the same 16 bytes used for encryption.
func computeMAC(secret []byte, deviceID uint16, encrypted [BlockSize]byte) []byte {
	var data [authenticatedSize]byte
	binary.BigEndian.PutUint16(data[0:], deviceID)
	copy(data[DeviceIDSize:], encrypted[:])
	return crypto.TruncatedMAC(secret[:crypto.KeySize], data[:], MACSize)
}
