// Package replay implements per-device replay protection for 16-bit sequence
// numbers using a 64-bit sliding bitmap window.
package replay

// WindowSize is the number of sequence numbers tracked by the bitmap,
// including the highest one.
const WindowSize = 64

// State is the replay-protection state of one peer.
//
// Bit k of Window is set when sequence Highest-k has been accepted, so bit 0
// always corresponds to Highest itself once initialized.
//
// State is volatile and is not safe for concurrent use. The registry owns it
// and serializes access.
type State struct {
	Highest     uint16
	Window      uint64
	Initialized bool
}

// Admit checks sequence against the window and records it when fresh.
//
// Sequence numbers are compared with 16-bit signed arithmetic so the window
// follows the counter across wraparound. A sequence ahead of Highest slides
// the window forward. One within the last 63 positions is accepted once.
// Anything further behind is TooOld.
//
// The first sequence admitted into an uninitialized state is always accepted.
func Admit(s *State, sequence uint16) Decision {
	if !s.Initialized {
		s.Highest = sequence
		s.Window = 1
		s.Initialized = true
		return Accept
	}

	diff := int16(sequence - s.Highest)

	if diff > 0 {
		s.advance(uint16(diff))
		s.Highest = sequence
		return Accept
	}

	if diff == 0 {
		return Duplicate
	}

	// diff is negative; behind is in [1, 32768].
	behind := uint32(-int32(diff))
	if behind >= WindowSize {
		return TooOld
	}

	mask := uint64(1) << behind
	if s.Window&mask != 0 {
		return Duplicate
	}
	s.Window |= mask
	return Accept
}

// advance shifts the window forward by shift positions and marks the new
// highest sequence as seen.
func (s *State) advance(shift uint16) {
	if shift >= WindowSize {
		s.Window = 1
		return
	}
	s.Window = s.Window<<shift | 1
}

// Seen reports whether sequence is currently recorded in the window.
func (s *State) Seen(sequence uint16) bool {
	if !s.Initialized {
		return false
	}
	diff := int16(sequence - s.Highest)
	if diff > 0 {
		return false
	}
	behind := uint32(-int32(diff))
	if behind >= WindowSize {
		return false
	}
	return s.Window&(uint64(1)<<behind) != 0
}

// Reset clears the state so the next sequence is accepted unconditionally.
func (s *State) Reset() {
	*s = State{}
}
