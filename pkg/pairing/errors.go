package pairing

import "errors"

// Pairing request errors.
var (
	ErrInvalidJSON    = errors.New("pairing: request is not valid JSON")
	ErrMissingField   = errors.New("pairing: missing required field")
	ErrInvalidAddress = errors.New("pairing: mac must be six colon-separated hex octets")
	ErrInvalidKey     = errors.New("pairing: key must be 32 or 64 hex characters")
	ErrInvalidName    = errors.New("pairing: name is empty")
)
