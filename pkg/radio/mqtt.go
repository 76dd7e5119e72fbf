package radio

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pion/logging"
)

// MQTTConfig configures an MQTT transport.
//
// The transport talks to a LoRa gateway bridged onto a broker. Outgoing
// packets are published to <RootTopic>/tx/<LocalID>. The gateway publishes
// received packets to <RootTopic>/rx/<anything>, each prefixed with the
// reception RSSI (int16, BE, dBm).
type MQTTConfig struct {
	BrokerURL string
	Username  string
	Password  string

	// ClientID prefix. A random suffix is appended. Default: "cuelink"
	ClientID string

	// RootTopic is the base topic of the gateway. Default: "cuelink"
	RootTopic string

	// LocalID names this node's transmit topic.
	LocalID uint16

	// Buffer is the number of received packets held before new ones are
	// dropped. Default: 32
	Buffer int

	// ConnectTimeout bounds broker connect and subscribe. Default: 10s
	ConnectTimeout time.Duration

	// LoggerFactory creates the transport logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// MQTT is a Transport reaching the radio through an MQTT broker.
type MQTT struct {
	config    MQTTConfig
	newClient func(*mqtt.ClientOptions) mqtt.Client
	log       logging.LeveledLogger

	mu       sync.Mutex
	client   mqtt.Client
	rx       chan []byte
	lastRSSI int16
}

// NewMQTT creates an MQTT transport. The broker connection is made by Init.
func NewMQTT(config MQTTConfig) *MQTT {
	if config.ClientID == "" {
		config.ClientID = "cuelink"
	}
	if config.RootTopic == "" {
		config.RootTopic = "cuelink"
	}
	if config.Buffer == 0 {
		config.Buffer = 32
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	m := &MQTT{
		config:    config,
		newClient: mqtt.NewClient,
		rx:        make(chan []byte, config.Buffer),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("radio-mqtt")
	}
	return m
}

// TxTopic is the topic outgoing packets are published to.
func (m *MQTT) TxTopic() string {
	return fmt.Sprintf("%s/tx/%04x", m.config.RootTopic, m.config.LocalID)
}

// RxFilter is the subscription filter for received packets.
func (m *MQTT) RxFilter() string {
	return m.config.RootTopic + "/rx/#"
}

// Init connects to the broker and subscribes to received packets.
// Calling it again drops the old connection and reconnects.
func (m *MQTT) Init() error {
	m.mu.Lock()
	old := m.client
	m.client = nil
	m.mu.Unlock()

	// A client that lost its connection may still be reconnecting.
	if old != nil {
		old.Disconnect(250)
	}

	randomID := make([]byte, 4)
	_, _ = rand.Read(randomID)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.config.BrokerURL)
	opts.SetUsername(m.config.Username)
	opts.SetPassword(m.config.Password)
	opts.SetClientID(fmt.Sprintf("%s-%x", m.config.ClientID, randomID))
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)

	client := m.newClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(m.config.ConnectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: connect timeout", ErrTransportFailure)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: connect: %v", ErrTransportFailure, err)
	}

	token = client.Subscribe(m.RxFilter(), 0, m.handleMessage)
	if !token.WaitTimeout(m.config.ConnectTimeout) {
		client.Disconnect(250)
		return fmt.Errorf("%w: subscribe timeout", ErrTransportFailure)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(250)
		return fmt.Errorf("%w: subscribe: %v", ErrTransportFailure, err)
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	if m.log != nil {
		m.log.Infof("connected to %s, listening on %s", m.config.BrokerURL, m.RxFilter())
	}
	return nil
}

func (m *MQTT) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if len(payload) < rssiSize || len(payload) > rssiSize+MaxPacketSize {
		if m.log != nil {
			m.log.Debugf("ignoring %d-byte message on %s", len(payload), msg.Topic())
		}
		return
	}

	select {
	case m.rx <- append([]byte(nil), payload...):
	default:
		if m.log != nil {
			m.log.Warnf("receive buffer full, dropping packet from %s", msg.Topic())
		}
	}
}

// Send implements Transport.
func (m *MQTT) Send(packet []byte) error {
	if len(packet) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return ErrNotInitialized
	}

	token := client.Publish(m.TxTopic(), 0, false, append([]byte(nil), packet...))
	if !token.WaitTimeout(m.config.ConnectTimeout) {
		return fmt.Errorf("%w: publish timeout", ErrTransportFailure)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: publish: %v", ErrTransportFailure, err)
	}
	return nil
}

// Receive implements Transport.
func (m *MQTT) Receive(buf []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	initialized := m.client != nil
	m.mu.Unlock()
	if !initialized {
		return 0, ErrNotInitialized
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-m.rx:
		rssi := int16(binary.BigEndian.Uint16(payload))
		m.mu.Lock()
		m.lastRSSI = rssi
		m.mu.Unlock()
		return copy(buf, payload[rssiSize:]), nil
	case <-timer.C:
		return 0, ErrTimeout
	}
}

// LastRSSI implements Transport.
func (m *MQTT) LastRSSI() int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRSSI
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	return nil
}

var _ Transport = (*MQTT)(nil)
