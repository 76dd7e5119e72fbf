package link

import "errors"

// Messenger errors.
var (
	// ErrDeliveryTimedOut is returned by SendReliable when no ACK arrived
	// after the original transmission and every retry.
	ErrDeliveryTimedOut = errors.New("link: delivery timed out")

	// ErrStopped is returned when the messenger's Run loop is not running.
	ErrStopped = errors.New("link: messenger stopped")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("link: already running")

	// ErrInvalidConfig is returned for an unusable Config.
	ErrInvalidConfig = errors.New("link: invalid config")
)
