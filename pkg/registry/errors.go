package registry

import "errors"

// Registry errors.
var (
	// ErrRegistryFull is returned when pairing a new device would exceed capacity.
	ErrRegistryFull = errors.New("registry: full")
	// ErrNotFound is returned when a device is not paired.
	ErrNotFound = errors.New("registry: device not found")
	// ErrInvalidSecret is returned when a shared secret is not 16 or 32 bytes.
	ErrInvalidSecret = errors.New("registry: shared secret must be 16 or 32 bytes")
	// ErrInvalidDeviceID is returned for the reserved device ID 0.
	ErrInvalidDeviceID = errors.New("registry: device ID 0 is reserved")
	// ErrCorruptStore is returned when persisted records cannot be decoded.
	ErrCorruptStore = errors.New("registry: corrupt store")
)
