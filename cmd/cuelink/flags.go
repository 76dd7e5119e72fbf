package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"
)

// Modes.
const (
	modeReceiver = "receiver"
	modeSender   = "sender"
	modePair     = "pair"
	modeUnpair   = "unpair"
	modeList     = "list"
	modeDemo     = "demo"
)

// Options holds the command-line flags.
type Options struct {
	ConfigPath string
	Mode       string

	// Command is the short command name sent in sender and demo modes.
	Command  string
	Reliable bool
	Count    int
	Interval time.Duration

	// Slot and Key build the payload of an "hid" command.
	Slot uint8
	Key  uint8

	// Request is the JSON pairing request for pair mode.
	Request string

	// Device selects the device for unpair mode.
	Device uint16
}

// DefaultOptions returns Options with the flag defaults.
func DefaultOptions() Options {
	return Options{
		Mode:     modeReceiver,
		Command:  "next",
		Reliable: true,
		Count:    1,
		Interval: time.Second,
		Slot:     1,
	}
}

// ParseFlags parses the command line into Options.
//
//	-config   configuration file (YAML, TOML or JSON)
//	-mode     receiver|sender|pair|unpair|list|demo (default: receiver)
//	-command  next|prev|black|start|hid (default: next)
//	-reliable wait for an acknowledgement (default: true)
//	-count    number of commands to send (default: 1)
//	-interval delay between commands (default: 1s)
//	-slot     receiver slot of an hid command (default: 1)
//	-key      keycode of an hid command (default: the slide key of -command)
//	-request  pairing request JSON
//	-device   device ID to unpair
func ParseFlags(args []string) (Options, error) {
	o := DefaultOptions()
	fs := flag.NewFlagSet("cuelink", flag.ContinueOnError)

	fs.StringVar(&o.ConfigPath, "config", "", "Configuration file (empty = environment only)")
	fs.StringVar(&o.Mode, "mode", o.Mode, "receiver, sender, pair, unpair, list or demo")
	fs.StringVar(&o.Command, "command", o.Command, "Command to send: next, prev, black, start or hid")
	fs.BoolVar(&o.Reliable, "reliable", o.Reliable, "Wait for an acknowledgement")
	fs.IntVar(&o.Count, "count", o.Count, "Number of commands to send")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Delay between commands")
	fs.Func("slot", fmt.Sprintf("Receiver slot of an hid command (default: %d)", o.Slot), func(s string) error {
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return err
		}
		if v < 1 || v > 16 {
			return fmt.Errorf("slot must be 1-16, got %d", v)
		}
		o.Slot = uint8(v)
		return nil
	})
	fs.Func("key", "Keycode of an hid command, decimal or 0x hex", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return err
		}
		o.Key = uint8(v)
		return nil
	})
	fs.StringVar(&o.Request, "request", "", "Pairing request JSON: {\"name\",\"mac\",\"aes_key\"}")
	fs.Func("device", "Device ID to unpair, decimal or 0x hex", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return err
		}
		o.Device = uint16(v)
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.Mode {
	case modeReceiver, modeSender, modeList, modeDemo:
	case modePair:
		if o.Request == "" {
			return o, fmt.Errorf("-mode pair requires -request")
		}
	case modeUnpair:
		if o.Device == 0 {
			return o, fmt.Errorf("-mode unpair requires -device")
		}
	default:
		return o, fmt.Errorf("unknown mode %q", o.Mode)
	}
	if o.Count < 1 {
		return o, fmt.Errorf("-count must be at least 1")
	}
	return o, nil
}
