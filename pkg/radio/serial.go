package radio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
	"go.bug.st/serial"
)

// SerialConfig configures a Serial transport.
type SerialConfig struct {
	// Port is the device path, e.g. /dev/ttyUSB0.
	Port string

	// BaudRate of the UART. Default: 115200
	BaudRate int

	// PollInterval bounds a single blocking read. Default: 10ms
	PollInterval time.Duration

	// LoggerFactory creates the transport logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// serialPort is the part of serial.Port the transport uses.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Serial is a Transport for a LoRa modem attached over a UART.
type Serial struct {
	config SerialConfig
	open   func(port string, mode *serial.Mode) (serialPort, error)
	log    logging.LeveledLogger

	mu       sync.Mutex
	port     serialPort
	decoder  frameDecoder
	lastRSSI int16
	readBuf  [64]byte
}

// NewSerial creates a serial transport. The port is opened by Init.
func NewSerial(config SerialConfig) *Serial {
	if config.BaudRate == 0 {
		config.BaudRate = 115200
	}
	if config.PollInterval == 0 {
		config.PollInterval = 10 * time.Millisecond
	}

	s := &Serial{
		config: config,
		open: func(port string, mode *serial.Mode) (serialPort, error) {
			return serial.Open(port, mode)
		},
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("radio-serial")
	}
	return s
}

// Init opens the serial port, closing any previously open handle first.
func (s *Serial) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
	s.decoder = frameDecoder{}

	port, err := s.open(s.config.Port, &serial.Mode{BaudRate: s.config.BaudRate})
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrTransportFailure, s.config.Port, err)
	}
	if err := port.SetReadTimeout(s.config.PollInterval); err != nil {
		port.Close()
		return fmt.Errorf("%w: set read timeout: %v", ErrTransportFailure, err)
	}
	s.port = port

	if s.log != nil {
		s.log.Infof("opened %s at %d baud", s.config.Port, s.config.BaudRate)
	}
	return nil
}

// Send implements Transport.
func (s *Serial) Send(packet []byte) error {
	if len(packet) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrNotInitialized
	}
	if _, err := s.port.Write(encodeFrame(packet)); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTransportFailure, err)
	}
	return nil
}

// Receive implements Transport.
func (s *Serial) Receive(buf []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return 0, ErrNotInitialized
	}

	deadline := time.Now().Add(timeout)
	for {
		if body, ok := s.decoder.Next(); ok {
			packet, rssi, err := splitReceived(body)
			if err != nil {
				continue
			}
			s.lastRSSI = rssi
			return copy(buf, packet), nil
		}

		if !time.Now().Before(deadline) {
			return 0, ErrTimeout
		}

		// A zero-length read with nil error is the port's read timeout.
		n, err := s.port.Read(s.readBuf[:])
		if err != nil {
			return 0, fmt.Errorf("%w: read: %v", ErrTransportFailure, err)
		}
		if n > 0 {
			s.decoder.Write(s.readBuf[:n])
		}
	}
}

// LastRSSI implements Transport.
func (s *Serial) LastRSSI() int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRSSI
}

// Close implements Transport.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

var _ Transport = (*Serial)(nil)
