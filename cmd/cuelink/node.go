package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/loracue/cuelink/pkg/config"
	"github.com/loracue/cuelink/pkg/link"
	"github.com/loracue/cuelink/pkg/packet"
	"github.com/loracue/cuelink/pkg/radio"
	"github.com/loracue/cuelink/pkg/registry"
	"github.com/pion/logging"
)

// openRegistry builds the registry on the configured store and loads it.
// The returned closer is nil unless the store holds an open handle.
func openRegistry(cfg *config.Config, lf logging.LoggerFactory) (*registry.Registry, io.Closer, error) {
	var (
		store  registry.Store
		closer io.Closer
	)
	switch cfg.Registry.Backend {
	case config.RegistryFile:
		store = registry.NewFileStore(cfg.Registry.Path)
	case config.RegistrySQLite:
		s, err := registry.NewSQLStore(cfg.Registry.Path)
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s
	default:
		store = registry.NewMemoryStore()
	}

	reg := registry.New(registry.Config{
		Capacity:      cfg.Registry.Capacity,
		Store:         store,
		LoggerFactory: lf,
	})
	if err := reg.Load(); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return reg, closer, nil
}

// openTransport builds the configured hardware transport. The pipe backend
// only exists inside a single process and is handled by demo mode.
func openTransport(cfg *config.Config, lf logging.LoggerFactory) (radio.Transport, error) {
	switch cfg.Radio.Backend {
	case config.RadioSerial:
		return radio.NewSerial(radio.SerialConfig{
			Port:          cfg.Radio.Serial.Port,
			BaudRate:      cfg.Radio.Serial.BaudRate,
			LoggerFactory: lf,
		}), nil
	case config.RadioMQTT:
		return radio.NewMQTT(radio.MQTTConfig{
			BrokerURL:     cfg.Radio.MQTT.Broker,
			Username:      cfg.Radio.MQTT.Username,
			Password:      cfg.Radio.MQTT.Password,
			ClientID:      cfg.Radio.MQTT.ClientID,
			RootTopic:     cfg.Radio.MQTT.RootTopic,
			LocalID:       cfg.LocalID,
			LoggerFactory: lf,
		}), nil
	}
	return nil, fmt.Errorf("radio backend %q needs -mode demo", cfg.Radio.Backend)
}

// messengerConfig fills a link.Config from the file configuration.
func messengerConfig(cfg *config.Config, secret []byte, t radio.Transport, reg *registry.Registry, lf logging.LoggerFactory) link.Config {
	return link.Config{
		LocalID:              cfg.LocalID,
		LocalSecret:          secret,
		PeerID:               cfg.Link.PeerID,
		Transport:            t,
		Registry:             reg,
		PollInterval:         cfg.Link.PollInterval,
		StaleAfter:           cfg.Link.StaleAfter,
		QualityCheckInterval: cfg.Link.QualityCheckInterval,
		MaxConsecutiveErrors: cfg.Link.MaxConsecutiveErrors,
		LoggerFactory:        lf,
	}
}

// commandPayload builds the command and payload the options ask for.
// An "hid" command carries a keyboard report; the key defaults to the
// right arrow.
func commandPayload(o Options) (packet.Command, []byte, error) {
	cmd, ok := packet.ParseCommand(o.Command)
	if !ok {
		return 0, nil, fmt.Errorf("unknown command %q", o.Command)
	}
	if cmd != packet.CommandHIDReport {
		return cmd, nil, nil
	}

	key := o.Key
	if key == 0 {
		key = packet.KeyArrowRight
	}
	payload, err := packet.EncodeKeyboard(packet.KeyboardReport{
		Slot:     o.Slot,
		Keycodes: []uint8{key},
	})
	return cmd, payload, err
}

// describe renders an inbound command for the log.
func describe(msg packet.Message) string {
	if key, ok := packet.SlideKey(msg.Command); ok {
		return fmt.Sprintf("%s from %#04x seq=%d rssi=%d key=%#02x",
			msg.Command, msg.DeviceID, msg.Sequence, msg.RSSI, key)
	}
	if msg.Command == packet.CommandHIDReport {
		report, err := packet.DecodeKeyboard(msg.Payload)
		if err != nil {
			return fmt.Sprintf("%s from %#04x seq=%d: %v", msg.Command, msg.DeviceID, msg.Sequence, err)
		}
		return fmt.Sprintf("%s from %#04x seq=%d rssi=%d slot=%d mods=%#02x keys=% x",
			msg.Command, msg.DeviceID, msg.Sequence, msg.RSSI, report.Slot, report.Modifiers, report.Keycodes)
	}
	return fmt.Sprintf("%s from %#04x seq=%d payload=% x", msg.Command, msg.DeviceID, msg.Sequence, msg.Payload)
}

// formatStats renders a statistics snapshot on one line.
func formatStats(s link.Stats) string {
	return fmt.Sprintf("sent=%d received=%d acks_sent=%d acks_received=%d retrans=%d failed=%d dropped=%d loss=%.2f rssi=%d",
		s.PacketsSent, s.PacketsReceived, s.AcksSent, s.AcksReceived,
		s.Retransmissions, s.FailedTransmissions, s.Dropped.Total(), s.LossRate, s.LastRSSI)
}

// closeAll closes every non-nil closer and joins the errors.
func closeAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
