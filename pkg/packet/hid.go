package packet

// HID payload format, version 1.
//
// A CommandHIDReport payload is 7 bytes:
//
//	0    version (bits 7-4) and slot (bits 3-0, slot 16 is encoded as 0)
//	1    HID type
//	2    modifiers
//	3-6  up to 4 keycodes
const (
	// HIDPayloadVersion is the only supported HID payload version.
	HIDPayloadVersion = 0x01

	// DefaultSlot is the receiver slot used when none is configured.
	DefaultSlot = 1

	// MaxSlot is the highest addressable receiver slot.
	MaxSlot = 16

	hidPayloadSize = 7
	maxKeycodes    = 4
)

// HIDType identifies the kind of HID report.
type HIDType uint8

const (
	HIDTypeNone     HIDType = 0x0
	HIDTypeKeyboard HIDType = 0x1
	HIDTypeMouse    HIDType = 0x2
	HIDTypeMedia    HIDType = 0x3
)

// Keyboard modifier bits.
const (
	ModifierCtrl  uint8 = 1 << 0
	ModifierShift uint8 = 1 << 1
	ModifierAlt   uint8 = 1 << 2
	ModifierGUI   uint8 = 1 << 3
)

// Common USB HID keyboard usage IDs used by presenters.
const (
	KeyEnter      uint8 = 0x28
	KeyEscape     uint8 = 0x29
	KeySpace      uint8 = 0x2C
	KeyB          uint8 = 0x05
	KeyF5         uint8 = 0x3E
	KeyPageUp     uint8 = 0x4B
	KeyPageDown   uint8 = 0x4E
	KeyArrowRight uint8 = 0x4F
	KeyArrowLeft  uint8 = 0x50
)

// KeyboardReport is a keyboard HID report addressed to a receiver slot.
type KeyboardReport struct {
	Slot      uint8
	Modifiers uint8
	Keycodes  []uint8
}

// EncodeKeyboard packs a keyboard report into a HID payload.
func EncodeKeyboard(r KeyboardReport) ([]byte, error) {
	if r.Slot < 1 || r.Slot > MaxSlot {
		return nil, ErrInvalidHIDSlot
	}
	if len(r.Keycodes) > maxKeycodes {
		return nil, ErrTooManyKeycodes
	}

	buf := make([]byte, hidPayloadSize)
	buf[0] = HIDPayloadVersion<<4 | (r.Slot & 0x0F)
	buf[1] = byte(HIDTypeKeyboard)
	buf[2] = r.Modifiers
	copy(buf[3:], r.Keycodes)
	return buf, nil
}

// DecodeKeyboard unpacks a HID payload carrying a keyboard report.
// Trailing zero keycodes are dropped.
func DecodeKeyboard(payload []byte) (KeyboardReport, error) {
	var r KeyboardReport

	if len(payload) != hidPayloadSize {
		return r, ErrMalformedPayload
	}
	if payload[0]>>4 != HIDPayloadVersion {
		return r, ErrInvalidVersion
	}
	if HIDType(payload[1]) != HIDTypeKeyboard {
		return r, ErrInvalidHIDType
	}

	r.Slot = payload[0] & 0x0F
	if r.Slot == 0 {
		r.Slot = MaxSlot
	}
	r.Modifiers = payload[2]

	keys := payload[3:]
	n := len(keys)
	for n > 0 && keys[n-1] == 0 {
		n--
	}
	r.Keycodes = append([]uint8(nil), keys[:n]...)
	return r, nil
}

// SlideKey returns the keyboard usage a receiver sends to the host for a
// presentation command, or false for commands with no key binding.
func SlideKey(c Command) (uint8, bool) {
	switch c {
	case CommandNextSlide:
		return KeyArrowRight, true
	case CommandPrevSlide:
		return KeyArrowLeft, true
	case CommandBlackScreen:
		return KeyB, true
	case CommandStartPresentation:
		return KeyF5, true
	}
	return 0, false
}
