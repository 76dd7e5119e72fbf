package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestAckPayload(t *testing.T) {
	payload := AckPayload(0x0102, 0x0A0B)
	if !bytes.Equal(payload, []byte{0x01, 0x02, 0x0A, 0x0B}) {
		t.Fatalf("AckPayload = %x", payload)
	}

	ack, err := ParseAck(payload)
	if err != nil {
		t.Fatalf("ParseAck: %v", err)
	}
	if ack.Sequence != 0x0102 || ack.To != 0x0A0B {
		t.Errorf("ParseAck = %+v", ack)
	}
	if !ack.IsFor(0x0A0B) {
		t.Error("ACK should be for its addressee")
	}
	if ack.IsFor(0x0A0C) {
		t.Error("ACK should not be for another device")
	}
}

func TestParseAck_SequenceOnly(t *testing.T) {
	ack, err := ParseAck([]byte{0x00, 0x07})
	if err != nil {
		t.Fatalf("ParseAck: %v", err)
	}
	if ack.Sequence != 7 || ack.To != 0 {
		t.Errorf("ParseAck = %+v", ack)
	}
	if !ack.IsFor(0x1234) {
		t.Error("sequence-only ACK should match any receiver")
	}

	if _, err := ParseAck([]byte{0x01}); !errors.Is(err, ErrInvalidAck) {
		t.Errorf("short ACK error = %v, want ErrInvalidAck", err)
	}
}

func TestKeyboardReport(t *testing.T) {
	tests := []struct {
		name   string
		report KeyboardReport
		wire   []byte
	}{
		{
			name:   "arrow right slot 1",
			report: KeyboardReport{Slot: 1, Keycodes: []uint8{KeyArrowRight}},
			wire:   []byte{0x11, 0x01, 0x00, 0x4F, 0, 0, 0},
		},
		{
			name:   "ctrl+shift slot 16",
			report: KeyboardReport{Slot: 16, Modifiers: ModifierCtrl | ModifierShift, Keycodes: []uint8{KeyF5, KeyEnter}},
			wire:   []byte{0x10, 0x01, 0x03, 0x3E, 0x28, 0, 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeKeyboard(tc.report)
			if err != nil {
				t.Fatalf("EncodeKeyboard: %v", err)
			}
			if !bytes.Equal(got, tc.wire) {
				t.Fatalf("EncodeKeyboard = %x, want %x", got, tc.wire)
			}

			back, err := DecodeKeyboard(got)
			if err != nil {
				t.Fatalf("DecodeKeyboard: %v", err)
			}
			if back.Slot != tc.report.Slot || back.Modifiers != tc.report.Modifiers ||
				!bytes.Equal(back.Keycodes, tc.report.Keycodes) {
				t.Errorf("DecodeKeyboard = %+v, want %+v", back, tc.report)
			}
		})
	}
}

func TestKeyboardReport_Errors(t *testing.T) {
	if _, err := EncodeKeyboard(KeyboardReport{Slot: 0}); !errors.Is(err, ErrInvalidHIDSlot) {
		t.Errorf("slot 0 error = %v", err)
	}
	if _, err := EncodeKeyboard(KeyboardReport{Slot: 1, Keycodes: make([]uint8, 5)}); !errors.Is(err, ErrTooManyKeycodes) {
		t.Errorf("5 keycodes error = %v", err)
	}
	if _, err := DecodeKeyboard([]byte{0x11, 0x01}); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("short payload error = %v", err)
	}
	if _, err := DecodeKeyboard([]byte{0x21, 0x01, 0, 0, 0, 0, 0}); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("version 2 error = %v", err)
	}
	if _, err := DecodeKeyboard([]byte{0x11, 0x02, 0, 0, 0, 0, 0}); !errors.Is(err, ErrInvalidHIDType) {
		t.Errorf("mouse report error = %v", err)
	}
}

func TestCommandString(t *testing.T) {
	if CommandNextSlide.String() != "NEXT_SLIDE" {
		t.Errorf("String = %q", CommandNextSlide.String())
	}
	if Command(0x42).String() != "Command(0x42)" {
		t.Errorf("unknown String = %q", Command(0x42).String())
	}
	if Command(0x42).IsValid() {
		t.Error("0x42 should not be valid")
	}
	if c, ok := ParseCommand("next"); !ok || c != CommandNextSlide {
		t.Errorf("ParseCommand(next) = %v, %v", c, ok)
	}
	if k, ok := SlideKey(CommandPrevSlide); !ok || k != KeyArrowLeft {
		t.Errorf("SlideKey(prev) = %#x, %v", k, ok)
	}
}
