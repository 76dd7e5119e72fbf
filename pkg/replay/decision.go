package replay

// Decision is the outcome of admitting a sequence number.
type Decision uint8

const (
	// Accept means the sequence number is fresh and has been recorded.
	Accept Decision = iota

	// Duplicate means the sequence number was already accepted.
	Duplicate

	// TooOld means the sequence number is behind the tracked window.
	TooOld
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case Accept:
		return "Accept"
	case Duplicate:
		return "Duplicate"
	case TooOld:
		return "TooOld"
	default:
		return "Unknown"
	}
}
