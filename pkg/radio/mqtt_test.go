package radio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeBroker is an mqtt.Client that records publishes and lets the test
// deliver gateway messages to the subscription handler.
type fakeBroker struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	hang        bool
	disconnects int
	filter      string
	handler     mqtt.MessageHandler
	published   map[string][][]byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: make(map[string][][]byte)}
}

func (b *fakeBroker) IsConnected() bool      { b.mu.Lock(); defer b.mu.Unlock(); return b.connected }
func (b *fakeBroker) IsConnectionOpen() bool { return b.IsConnected() }

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hang {
		return &fakeToken{pending: true}
	}
	if b.connectErr == nil {
		b.connected = true
	}
	return &fakeToken{err: b.connectErr}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.disconnects++
}

func (b *fakeBroker) disconnectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnects
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[topic] = append(b.published[topic], payload.([]byte))
	return &fakeToken{}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = topic
	b.handler = callback
	return &fakeToken{}
}

func (b *fakeBroker) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (b *fakeBroker) Unsubscribe(...string) mqtt.Token        { return &fakeToken{} }
func (b *fakeBroker) AddRoute(string, mqtt.MessageHandler)    {}
func (b *fakeBroker) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (b *fakeBroker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()
	handler(b, &fakeMessage{topic: topic, payload: payload})
}

func newTestMQTT(t *testing.T, broker *fakeBroker) *MQTT {
	t.Helper()
	m := NewMQTT(MQTTConfig{BrokerURL: "tcp://broker:1883", RootTopic: "lab", LocalID: 0x1234, Buffer: 2})
	m.newClient = func(*mqtt.ClientOptions) mqtt.Client { return broker }
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m
}

func gatewayPayload(packet []byte, rssi int16) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(rssi))
	return append(out, packet...)
}

func TestMQTT_Topics(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMQTT(t, broker)
	defer m.Close()

	if m.TxTopic() != "lab/tx/1234" {
		t.Errorf("TxTopic = %q", m.TxTopic())
	}
	if broker.filter != "lab/rx/#" {
		t.Errorf("subscribed to %q", broker.filter)
	}
}

func TestMQTT_Send(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMQTT(t, broker)
	defer m.Close()

	packet := []byte{0x12, 0x34, 0x01}
	if err := m.Send(packet); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := broker.published["lab/tx/1234"]
	if len(got) != 1 || !bytes.Equal(got[0], packet) {
		t.Errorf("published %x", got)
	}
}

func TestMQTT_Receive(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMQTT(t, broker)
	defer m.Close()

	packet := bytes.Repeat([]byte{0xC0}, MaxPacketSize)
	broker.deliver("lab/rx/gw1", gatewayPayload(packet, -101))

	buf := make([]byte, MaxPacketSize)
	n, err := m.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(buf[:n], packet) {
		t.Errorf("received %x", buf[:n])
	}
	if m.LastRSSI() != -101 {
		t.Errorf("LastRSSI = %d, want -101", m.LastRSSI())
	}

	if _, err := m.Receive(buf, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("idle Receive error = %v, want ErrTimeout", err)
	}
}

func TestMQTT_DropsMalformedAndOverflow(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMQTT(t, broker)
	defer m.Close()

	broker.deliver("lab/rx/gw1", []byte{0x01})
	broker.deliver("lab/rx/gw1", make([]byte, rssiSize+MaxPacketSize+1))

	// Buffer holds two packets; the third is dropped.
	for i := byte(1); i <= 3; i++ {
		broker.deliver("lab/rx/gw1", gatewayPayload([]byte{i}, -50))
	}

	buf := make([]byte, MaxPacketSize)
	for want := byte(1); want <= 2; want++ {
		n, err := m.Receive(buf, time.Second)
		if err != nil || n != 1 || buf[0] != want {
			t.Fatalf("Receive = %x, %v; want %02x", buf[:n], err, want)
		}
	}
	if _, err := m.Receive(buf, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("overflowed packet was delivered: %v", err)
	}
}

func TestMQTT_ConnectFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.connectErr = errors.New("connection refused")

	m := NewMQTT(MQTTConfig{BrokerURL: "tcp://broker:1883"})
	m.newClient = func(*mqtt.ClientOptions) mqtt.Client { return broker }

	if err := m.Init(); !errors.Is(err, ErrTransportFailure) {
		t.Errorf("Init error = %v, want ErrTransportFailure", err)
	}
	if err := m.Send([]byte{1}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Send error = %v, want ErrNotInitialized", err)
	}
}

func TestMQTT_ConnectTimeoutReleasesClient(t *testing.T) {
	broker := newFakeBroker()
	broker.hang = true

	m := NewMQTT(MQTTConfig{BrokerURL: "tcp://broker:1883", ConnectTimeout: time.Millisecond})
	m.newClient = func(*mqtt.ClientOptions) mqtt.Client { return broker }

	for i := 1; i <= 3; i++ {
		if err := m.Init(); !errors.Is(err, ErrTransportFailure) {
			t.Fatalf("Init error = %v, want ErrTransportFailure", err)
		}
		if got := broker.disconnectCount(); got != i {
			t.Errorf("after %d failed connects, Disconnect called %d times", i, got)
		}
	}
	if err := m.Send([]byte{1}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Send error = %v, want ErrNotInitialized", err)
	}
}
