// Package config loads node configuration from a file and the environment.
//
// Any key can be overridden with a CUELINK_ environment variable, nested keys
// joined by underscores:
//
//	CUELINK_LOCAL_ID=0x00a1
//	CUELINK_RADIO_BACKEND=serial
//	CUELINK_RADIO_SERIAL_PORT=/dev/ttyUSB0
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loracue/cuelink/pkg/crypto"
	"github.com/loracue/cuelink/pkg/link"
	"github.com/loracue/cuelink/pkg/registry"
	"github.com/pion/logging"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CUELINK"

// Radio backends.
const (
	RadioPipe   = "pipe"
	RadioSerial = "serial"
	RadioMQTT   = "mqtt"
)

// Registry backends.
const (
	RegistryMemory = "memory"
	RegistryFile   = "file"
	RegistrySQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Config is the full configuration of a node.
type Config struct {
	// LocalID is this node's device ID. Hex (0x00a1) or decimal.
	LocalID uint16 `mapstructure:"local_id"`

	// LocalSecret is the hex-encoded shared secret of this node. When empty
	// the secret is derived from MasterKey, or failing that from Passcode.
	LocalSecret string `mapstructure:"local_secret"`

	// MasterKey is a hex-encoded fleet key. Each device secret is derived
	// from it and the device ID.
	MasterKey string `mapstructure:"master_key"`

	// Passcode is stretched with PBKDF2 when neither key above is set.
	Passcode       string `mapstructure:"passcode"`
	PasscodeSalt   string `mapstructure:"passcode_salt"`
	PasscodeRounds int    `mapstructure:"passcode_rounds"`

	LogLevel string `mapstructure:"log_level"`

	Radio    RadioConfig    `mapstructure:"radio"`
	Registry RegistryConfig `mapstructure:"registry"`
	Link     LinkConfig     `mapstructure:"link"`
}

// RadioConfig selects and configures the transport.
type RadioConfig struct {
	Backend string       `mapstructure:"backend"`
	Serial  SerialConfig `mapstructure:"serial"`
	MQTT    MQTTConfig   `mapstructure:"mqtt"`
}

// SerialConfig configures a UART-attached modem.
type SerialConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// MQTTConfig configures a broker-bridged gateway.
type MQTTConfig struct {
	Broker    string `mapstructure:"broker"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	ClientID  string `mapstructure:"client_id"`
	RootTopic string `mapstructure:"root_topic"`
}

// RegistryConfig selects where paired devices are kept.
type RegistryConfig struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	Capacity int    `mapstructure:"capacity"`
}

// LinkConfig tunes the messenger.
type LinkConfig struct {
	AckTimeout           time.Duration `mapstructure:"ack_timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	StaleAfter           time.Duration `mapstructure:"stale_after"`
	QualityCheckInterval time.Duration `mapstructure:"quality_check_interval"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`

	// PeerID restricts which device may acknowledge reliable sends.
	// Zero accepts any paired device.
	PeerID uint16 `mapstructure:"peer_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("local_id", 0)
	v.SetDefault("local_secret", "")
	v.SetDefault("master_key", "")
	v.SetDefault("passcode", "")
	v.SetDefault("passcode_salt", "cuelink")
	v.SetDefault("passcode_rounds", 10000)
	v.SetDefault("log_level", "info")

	v.SetDefault("radio.backend", RadioPipe)
	v.SetDefault("radio.serial.port", "")
	v.SetDefault("radio.serial.baud_rate", 115200)
	v.SetDefault("radio.mqtt.broker", "")
	v.SetDefault("radio.mqtt.username", "")
	v.SetDefault("radio.mqtt.password", "")
	v.SetDefault("radio.mqtt.client_id", "cuelink")
	v.SetDefault("radio.mqtt.root_topic", "cuelink")

	v.SetDefault("registry.backend", RegistryMemory)
	v.SetDefault("registry.path", "")
	v.SetDefault("registry.capacity", registry.DefaultCapacity)

	v.SetDefault("link.ack_timeout", link.DefaultAckTimeout)
	v.SetDefault("link.max_retries", link.DefaultMaxRetries)
	v.SetDefault("link.poll_interval", link.DefaultPollInterval)
	v.SetDefault("link.stale_after", link.DefaultStaleAfter)
	v.SetDefault("link.quality_check_interval", link.DefaultQualityCheckInterval)
	v.SetDefault("link.max_consecutive_errors", link.DefaultMaxConsecutiveErrors)
	v.SetDefault("link.peer_id", 0)
}

// Load reads the configuration file at path, if any, and applies
// environment overrides. The file format follows its extension.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the configuration describes a runnable node.
func (c *Config) Validate() error {
	if c.LocalID == 0 {
		return fmt.Errorf("%w: local_id is required and must not be 0", ErrInvalid)
	}
	if c.LocalSecret == "" && c.MasterKey == "" && c.Passcode == "" {
		return fmt.Errorf("%w: one of local_secret, master_key or passcode is required", ErrInvalid)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Radio.Backend {
	case RadioPipe:
	case RadioSerial:
		if c.Radio.Serial.Port == "" {
			return fmt.Errorf("%w: radio.serial.port is required", ErrInvalid)
		}
	case RadioMQTT:
		if c.Radio.MQTT.Broker == "" {
			return fmt.Errorf("%w: radio.mqtt.broker is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown radio backend %q", ErrInvalid, c.Radio.Backend)
	}

	switch c.Registry.Backend {
	case RegistryMemory:
	case RegistryFile, RegistrySQLite:
		if c.Registry.Path == "" {
			return fmt.Errorf("%w: registry.path is required for %s", ErrInvalid, c.Registry.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown registry backend %q", ErrInvalid, c.Registry.Backend)
	}

	if c.Link.MaxRetries < 0 {
		return fmt.Errorf("%w: link.max_retries must not be negative", ErrInvalid)
	}
	return nil
}

// Secret resolves the local shared secret.
func (c *Config) Secret() ([]byte, error) {
	switch {
	case c.LocalSecret != "":
		secret, err := hex.DecodeString(c.LocalSecret)
		if err != nil || !crypto.ValidSecretSize(len(secret)) {
			return nil, fmt.Errorf("%w: local_secret must be 32 or 64 hex characters", ErrInvalid)
		}
		return secret, nil
	case c.MasterKey != "":
		master, err := hex.DecodeString(c.MasterKey)
		if err != nil || len(master) < crypto.KeySize {
			return nil, fmt.Errorf("%w: master_key must be at least 32 hex characters", ErrInvalid)
		}
		return crypto.DeriveSecret(master, c.LocalID)
	case c.Passcode != "":
		return crypto.SecretFromPasscode([]byte(c.Passcode), []byte(c.PasscodeSalt), c.PasscodeRounds)
	}
	return nil, fmt.Errorf("%w: no secret configured", ErrInvalid)
}

// LoggerFactory returns a logger factory at the configured level.
func (c *Config) LoggerFactory() logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	if level, err := parseLevel(c.LogLevel); err == nil {
		f.DefaultLogLevel = level
	}
	return f
}

func parseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return logging.LogLevelInfo, nil
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("%w: unknown log_level %q", ErrInvalid, s)
}
