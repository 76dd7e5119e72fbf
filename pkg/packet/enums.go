package packet

import "fmt"

// Command identifies what a packet asks the receiver to do.
type Command uint8

const (
	// CommandHIDReport carries a structured HID report (see KeyboardReport).
	CommandHIDReport Command = 0x01

	// CommandNextSlide advances the presentation by one slide.
	CommandNextSlide Command = 0x10

	// CommandPrevSlide goes back one slide.
	CommandPrevSlide Command = 0x11

	// CommandBlackScreen toggles a blank screen.
	CommandBlackScreen Command = 0x12

	// CommandStartPresentation starts the slideshow.
	CommandStartPresentation Command = 0x13

	// CommandAck acknowledges a received sequence number.
	CommandAck Command = 0x80
)

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case CommandHIDReport:
		return "HID_REPORT"
	case CommandNextSlide:
		return "NEXT_SLIDE"
	case CommandPrevSlide:
		return "PREV_SLIDE"
	case CommandBlackScreen:
		return "BLACK_SCREEN"
	case CommandStartPresentation:
		return "START_PRESENTATION"
	case CommandAck:
		return "ACK"
	default:
		return fmt.Sprintf("Command(0x%02X)", uint8(c))
	}
}

// IsValid returns true if the command is a known value.
func (c Command) IsValid() bool {
	switch c {
	case CommandHIDReport, CommandNextSlide, CommandPrevSlide,
		CommandBlackScreen, CommandStartPresentation, CommandAck:
		return true
	}
	return false
}

// ParseCommand maps a short CLI name to a command.
func ParseCommand(name string) (Command, bool) {
	switch name {
	case "next", "NEXT_SLIDE":
		return CommandNextSlide, true
	case "prev", "PREV_SLIDE":
		return CommandPrevSlide, true
	case "black", "BLACK_SCREEN":
		return CommandBlackScreen, true
	case "start", "START_PRESENTATION":
		return CommandStartPresentation, true
	case "hid", "HID_REPORT":
		return CommandHIDReport, true
	}
	return 0, false
}
