// Package radio provides the half-duplex packet transports the link layer
// runs on: an in-memory pipe for tests, a UART-attached modem and an MQTT
// bridged gateway.
package radio

import "time"

// MaxPacketSize is the largest packet a transport must carry.
const MaxPacketSize = 22

// Transport is a half-duplex radio carrying one packet per call.
//
// Implementations are not required to be safe for concurrent use. A single
// owner goroutine drives each transport.
type Transport interface {
	// Init prepares the radio. It may be called again to recover from
	// repeated failures.
	Init() error

	// Send transmits one packet of at most MaxPacketSize bytes.
	Send(packet []byte) error

	// Receive waits up to timeout for one packet and copies it into buf.
	// Returns ErrTimeout if nothing arrives.
	Receive(buf []byte, timeout time.Duration) (int, error)

	// LastRSSI returns the signal strength of the last received packet in dBm.
	LastRSSI() int16

	// Close releases the radio.
	Close() error
}
