package radio

import "errors"

// Radio errors.
var (
	// ErrTimeout is returned by Receive when nothing arrives in time.
	ErrTimeout = errors.New("radio: receive timeout")

	// ErrTransportFailure is returned when the underlying link fails.
	// Wrapped errors carry the cause.
	ErrTransportFailure = errors.New("radio: transport failure")

	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("radio: closed")

	// ErrPacketTooLarge is returned when a packet exceeds MaxPacketSize.
	ErrPacketTooLarge = errors.New("radio: packet too large")

	// ErrNotInitialized is returned when Send or Receive runs before Init.
	ErrNotInitialized = errors.New("radio: not initialized")
)
