package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loracue/cuelink/pkg/crypto"
	"github.com/loracue/cuelink/pkg/link"
	"github.com/pion/logging"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "node.yaml", `
local_id: 0x00a1
local_secret: 00112233445566778899aabbccddeeff
log_level: debug
radio:
  backend: serial
  serial:
    port: /dev/ttyUSB0
    baud_rate: 57600
registry:
  backend: file
  path: /var/lib/cuelink/devices.bin
  capacity: 8
link:
  ack_timeout: 500ms
  max_retries: 4
  peer_id: 0x1234
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.LocalID != 0x00A1 {
		t.Errorf("LocalID = %#x, want 0xa1", c.LocalID)
	}
	if c.Radio.Backend != RadioSerial || c.Radio.Serial.Port != "/dev/ttyUSB0" || c.Radio.Serial.BaudRate != 57600 {
		t.Errorf("Radio = %+v", c.Radio)
	}
	if c.Registry.Backend != RegistryFile || c.Registry.Capacity != 8 {
		t.Errorf("Registry = %+v", c.Registry)
	}
	if c.Link.AckTimeout != 500*time.Millisecond || c.Link.MaxRetries != 4 || c.Link.PeerID != 0x1234 {
		t.Errorf("Link = %+v", c.Link)
	}
	// Untouched keys keep their defaults.
	if c.Link.StaleAfter != link.DefaultStaleAfter || c.Link.PollInterval != link.DefaultPollInterval {
		t.Errorf("Link defaults = %+v", c.Link)
	}
	if c.Radio.MQTT.RootTopic != "cuelink" {
		t.Errorf("MQTT.RootTopic = %q", c.Radio.MQTT.RootTopic)
	}

	secret, err := c.Secret()
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	if len(secret) != 16 || secret[0] != 0x00 || secret[15] != 0xFF {
		t.Errorf("Secret() = %x", secret)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "node.json", `{"local_id": 5, "passcode": "20202021"}`)

	t.Setenv("CUELINK_LOCAL_ID", "0x1234")
	t.Setenv("CUELINK_RADIO_BACKEND", "mqtt")
	t.Setenv("CUELINK_RADIO_MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("CUELINK_LINK_MAX_RETRIES", "0")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.LocalID != 0x1234 {
		t.Errorf("LocalID = %#x, want 0x1234", c.LocalID)
	}
	if c.Radio.Backend != RadioMQTT || c.Radio.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Radio = %+v", c.Radio)
	}
	if c.Link.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", c.Link.MaxRetries)
	}

	secret, err := c.Secret()
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	want, _ := crypto.SecretFromPasscode([]byte("20202021"), []byte("cuelink"), 10000)
	if !bytes.Equal(secret, want) {
		t.Error("passcode secret does not match PBKDF2 derivation")
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("CUELINK_LOCAL_ID", "7")
	t.Setenv("CUELINK_MASTER_KEY", "000102030405060708090a0b0c0d0e0f")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Radio.Backend != RadioPipe || c.Registry.Backend != RegistryMemory {
		t.Errorf("backends = %s/%s", c.Radio.Backend, c.Registry.Backend)
	}

	secret, err := c.Secret()
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	master := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	want, _ := crypto.DeriveSecret(master, 7)
	if !bytes.Equal(secret, want) {
		t.Error("derived secret mismatch")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func validConfig() Config {
	return Config{
		LocalID:     1,
		LocalSecret: "00112233445566778899aabbccddeeff",
		LogLevel:    "info",
		Radio:       RadioConfig{Backend: RadioPipe},
		Registry:    RegistryConfig{Backend: RegistryMemory},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"zero id", func(c *Config) { c.LocalID = 0 }},
		{"no secret", func(c *Config) { c.LocalSecret = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"unknown radio", func(c *Config) { c.Radio.Backend = "ble" }},
		{"serial without port", func(c *Config) { c.Radio.Backend = RadioSerial }},
		{"mqtt without broker", func(c *Config) { c.Radio.Backend = RadioMQTT }},
		{"unknown registry", func(c *Config) { c.Registry.Backend = "nvs" }},
		{"file without path", func(c *Config) { c.Registry.Backend = RegistryFile }},
		{"sqlite without path", func(c *Config) { c.Registry.Backend = RegistrySQLite }},
		{"negative retries", func(c *Config) { c.Link.MaxRetries = -1 }},
	}

	base := validConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSecret_Invalid(t *testing.T) {
	c := validConfig()
	c.LocalSecret = "0011"
	if _, err := c.Secret(); !errors.Is(err, ErrInvalid) {
		t.Errorf("short local_secret: error = %v", err)
	}

	c = validConfig()
	c.LocalSecret = ""
	c.MasterKey = "zz"
	if _, err := c.Secret(); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad master_key: error = %v", err)
	}
}

func TestLoggerFactory_Level(t *testing.T) {
	c := validConfig()
	c.LogLevel = "warn"
	f, ok := c.LoggerFactory().(*logging.DefaultLoggerFactory)
	if !ok {
		t.Fatal("LoggerFactory() is not a *logging.DefaultLoggerFactory")
	}
	if f.DefaultLogLevel != logging.LogLevelWarn {
		t.Errorf("DefaultLogLevel = %v, want warn", f.DefaultLogLevel)
	}
}
