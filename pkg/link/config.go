package link

import (
	"fmt"
	"time"

	"github.com/loracue/cuelink/pkg/packet"
	"github.com/loracue/cuelink/pkg/radio"
	"github.com/loracue/cuelink/pkg/registry"
	"github.com/pion/logging"
)

// Defaults.
const (
	DefaultPollInterval         = 20 * time.Millisecond
	DefaultAckTimeout           = 1 * time.Second
	DefaultMaxRetries           = 2
	DefaultStaleAfter           = 30 * time.Second
	DefaultQualityCheckInterval = 5 * time.Second
	DefaultMaxConsecutiveErrors = 10
	DefaultQueueSize            = 16
)

// Config configures a Messenger.
type Config struct {
	// LocalID is this node's device ID, sent in clear in every packet.
	LocalID uint16

	// LocalSecret keys every outgoing packet, ACKs included.
	// Peers must hold it in their registry under LocalID.
	LocalSecret []byte

	// PeerID, when non-zero, is the only device whose ACKs complete a
	// reliable send. Zero accepts an ACK from any paired device.
	PeerID uint16

	// Transport is the radio. The messenger becomes its only user.
	Transport radio.Transport

	// Registry resolves peer secrets and holds replay state.
	Registry *registry.Registry

	// OnCommand is called from the Run goroutine once per accepted inbound
	// command. ACKs are never delivered.
	OnCommand func(msg packet.Message)

	// OnStateChange is called from the Run goroutine when the connection
	// quality changes.
	OnStateChange func(from, to Quality)

	// PollInterval bounds each blocking receive. Default: 20ms
	PollInterval time.Duration

	// StaleAfter is how long without traffic before the link is Lost.
	// Default: 30s
	StaleAfter time.Duration

	// QualityCheckInterval is how often quality transitions are evaluated.
	// Default: 5s
	QualityCheckInterval time.Duration

	// MaxConsecutiveErrors is the number of back-to-back transport failures
	// after which the transport is re-initialized. Default: 10
	MaxConsecutiveErrors int

	// QueueSize is the number of send requests that may wait for the loop.
	// Default: 16
	QueueSize int

	// LoggerFactory creates the messenger logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Transport == nil {
		return fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if c.Registry == nil {
		return fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if c.LocalID == 0 {
		return fmt.Errorf("%w: local ID 0 is reserved", ErrInvalidConfig)
	}
	if len(c.LocalSecret) != 16 && len(c.LocalSecret) != 32 {
		return fmt.Errorf("%w: local secret must be 16 or 32 bytes", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.QualityCheckInterval <= 0 {
		c.QualityCheckInterval = DefaultQualityCheckInterval
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}
