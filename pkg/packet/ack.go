package packet

import "encoding/binary"

// AckPayloadSize is the size of an ACK payload: acknowledged sequence (2)
// followed by the device ID the ACK is addressed to (2).
const AckPayloadSize = 4

// minAckPayloadSize is the legacy ACK payload (sequence only).
const minAckPayloadSize = 2

// Ack identifies the packet an ACK acknowledges.
type Ack struct {
	// Sequence is the acknowledged sequence number.
	Sequence uint16

	// To is the device the ACK is addressed to.
	// Zero when the peer sent a sequence-only ACK.
	To uint16
}

// AckPayload builds the payload of an ACK for sequence, addressed to the
// device that sent it.
func AckPayload(sequence, to uint16) []byte {
	buf := make([]byte, AckPayloadSize)
	binary.BigEndian.PutUint16(buf[0:], sequence)
	binary.BigEndian.PutUint16(buf[2:], to)
	return buf
}

// ParseAck extracts the acknowledged sequence from an ACK payload.
// Sequence-only payloads (2 bytes) are accepted with To left at zero.
func ParseAck(payload []byte) (Ack, error) {
	if len(payload) < minAckPayloadSize {
		return Ack{}, ErrInvalidAck
	}
	ack := Ack{Sequence: binary.BigEndian.Uint16(payload[0:])}
	if len(payload) >= AckPayloadSize {
		ack.To = binary.BigEndian.Uint16(payload[2:])
	}
	return ack, nil
}

// IsFor reports whether the ACK may be consumed by localID.
// Sequence-only ACKs match any receiver.
func (a Ack) IsFor(localID uint16) bool {
	return a.To == 0 || a.To == localID
}
