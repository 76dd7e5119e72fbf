package radio

import (
	"encoding/binary"
	"errors"

	"github.com/sigurn/crc16"
)

// Serial framing between host and modem:
//
//	0x94 0xC3 | length (2, BE) | body | CRC-16/CCITT-FALSE over body (2, BE)
//
// Host to modem bodies are a raw packet. Modem to host bodies are the packet
// followed by the RSSI of its reception (int16, BE, dBm).
const (
	frameStart1 = 0x94
	frameStart2 = 0xC3

	frameHeaderSize = 4
	frameCRCSize    = 2
	rssiSize        = 2

	// maxFrameBody bounds the body length so a corrupt header cannot make the
	// decoder wait for kilobytes.
	maxFrameBody = MaxPacketSize + rssiSize
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

var errShortFrame = errors.New("radio: frame body too short")

func frameChecksum(body []byte) uint16 {
	return crc16.Checksum(body, crcTable)
}

// encodeFrame wraps body in a serial frame.
func encodeFrame(body []byte) []byte {
	frame := make([]byte, 0, frameHeaderSize+len(body)+frameCRCSize)
	frame = append(frame, frameStart1, frameStart2)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(body)))
	frame = append(frame, body...)
	frame = binary.BigEndian.AppendUint16(frame, frameChecksum(body))
	return frame
}

// frameDecoder reassembles frames from a byte stream that may arrive in
// arbitrary pieces. Garbage between frames and frames with a bad checksum
// are skipped.
type frameDecoder struct {
	buf       []byte
	badFrames uint64
}

// Write appends stream bytes to the decoder.
func (d *frameDecoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame body, or false if more bytes are
// needed.
func (d *frameDecoder) Next() ([]byte, bool) {
	for {
		start := d.syncStart()
		if start < 0 {
			// Keep a trailing first marker byte, it may begin a frame.
			if n := len(d.buf); n > 0 && d.buf[n-1] == frameStart1 {
				d.buf = d.buf[n-1:]
			} else {
				d.buf = d.buf[:0]
			}
			return nil, false
		}
		d.buf = d.buf[start:]

		if len(d.buf) < frameHeaderSize {
			return nil, false
		}
		bodyLen := int(binary.BigEndian.Uint16(d.buf[2:4]))
		if bodyLen > maxFrameBody {
			d.badFrames++
			d.buf = d.buf[1:]
			continue
		}

		total := frameHeaderSize + bodyLen + frameCRCSize
		if len(d.buf) < total {
			return nil, false
		}

		body := d.buf[frameHeaderSize : frameHeaderSize+bodyLen]
		sum := binary.BigEndian.Uint16(d.buf[frameHeaderSize+bodyLen:])
		if sum != frameChecksum(body) {
			d.badFrames++
			d.buf = d.buf[1:]
			continue
		}

		out := append([]byte(nil), body...)
		d.buf = d.buf[total:]
		return out, true
	}
}

// syncStart returns the offset of the first start marker, or -1.
func (d *frameDecoder) syncStart() int {
	for i := 0; i+1 < len(d.buf); i++ {
		if d.buf[i] == frameStart1 && d.buf[i+1] == frameStart2 {
			return i
		}
	}
	return -1
}

// splitReceived separates a modem-to-host body into packet and RSSI.
func splitReceived(body []byte) ([]byte, int16, error) {
	if len(body) < rssiSize {
		return nil, 0, errShortFrame
	}
	n := len(body) - rssiSize
	return body[:n], int16(binary.BigEndian.Uint16(body[n:])), nil
}
