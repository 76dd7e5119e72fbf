// Package link implements the reliable messenger on top of a radio transport:
// encoding and authenticating commands, acknowledgement with retry, replay
// admission of inbound packets, and link statistics.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loracue/cuelink/pkg/packet"
	"github.com/loracue/cuelink/pkg/radio"
	"github.com/loracue/cuelink/pkg/registry"
	"github.com/loracue/cuelink/pkg/replay"
	"github.com/pion/logging"
)

// sendState tracks an outstanding reliable request.
type sendState uint8

const (
	stateIdle sendState = iota
	stateSent
	stateAwaitingAck
	stateAcked
	stateTimedOut
)

// maxReinitBackoff caps the delay between re-initializations of a dead radio.
const maxReinitBackoff = 30 * time.Second

// request is a send handed to the Run goroutine.
type request struct {
	ctx        context.Context
	reliable   bool
	command    packet.Command
	payload    []byte
	timeout    time.Duration
	maxRetries int
	done       chan error
}

// outstanding is the reliable request currently waiting for its ACK.
type outstanding struct {
	req      *request
	sequence uint16
	wire     []byte
	sends    int
	deadline time.Time
	state    sendState
	ackedBy  uint16
}

// Messenger owns a radio transport and runs the link protocol on it.
//
// All transport access happens on the goroutine running Run. SendReliable
// and SendFireAndForget hand their work to it through a queue, so they are
// safe to call from any goroutine. At most one reliable request is in flight;
// others wait in FIFO order.
type Messenger struct {
	config    Config
	transport radio.Transport
	registry  *registry.Registry
	counter   *replay.SequenceCounter
	log       logging.LeveledLogger

	requests chan *request
	running  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once

	stats statsCollector

	// Owned by the Run goroutine.
	current           *outstanding
	queue             []*request
	consecutiveErrors int
	reinitBackoff     time.Duration
	nextReinit        time.Time
	lastQuality       Quality
	lastQualityCheck  time.Time
	rxBuf             [radio.MaxPacketSize]byte

	downMu   sync.Mutex
	linkDown bool
}

// New creates a messenger. Call Run to start it.
func New(config Config) (*Messenger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	m := &Messenger{
		config:      config,
		transport:   config.Transport,
		registry:    config.Registry,
		counter:     replay.NewSequenceCounter(),
		requests:    make(chan *request, config.QueueSize),
		done:        make(chan struct{}),
		lastQuality: QualityLost,
	}
	m.config.LocalSecret = append([]byte(nil), config.LocalSecret...)
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("link")
	}
	return m, nil
}

// LocalID returns this node's device ID.
func (m *Messenger) LocalID() uint16 {
	return m.config.LocalID
}

// SendReliable transmits a command and waits for its ACK.
//
// If no ACK arrives within timeout the same packet, with the same sequence
// number, is sent again, up to maxRetries times. Returns ErrDeliveryTimedOut
// once every transmission went unacknowledged. Returns ctx.Err() if the
// caller gives up first; a later ACK for the abandoned sequence is ignored.
func (m *Messenger) SendReliable(ctx context.Context, command packet.Command, payload []byte, timeout time.Duration, maxRetries int) error {
	if len(payload) > packet.MaxPayloadSize {
		return packet.ErrPayloadTooLarge
	}
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return m.submit(ctx, &request{
		ctx:        ctx,
		reliable:   true,
		command:    command,
		payload:    append([]byte(nil), payload...),
		timeout:    timeout,
		maxRetries: maxRetries,
		done:       make(chan error, 1),
	})
}

// SendFireAndForget transmits a command once without waiting for an ACK.
// It returns once the radio accepted the packet.
func (m *Messenger) SendFireAndForget(ctx context.Context, command packet.Command, payload []byte) error {
	if len(payload) > packet.MaxPayloadSize {
		return packet.ErrPayloadTooLarge
	}

	return m.submit(ctx, &request{
		ctx:     ctx,
		command: command,
		payload: append([]byte(nil), payload...),
		done:    make(chan error, 1),
	})
}

func (m *Messenger) submit(ctx context.Context, req *request) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}

	select {
	case m.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		// Run replies to everything it held before closing done.
		select {
		case err := <-req.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// Stats returns a snapshot of the link statistics.
func (m *Messenger) Stats() Stats {
	return m.stats.snapshot()
}

// ResetStats zeroes all counters. Registry and replay state are untouched.
func (m *Messenger) ResetStats() {
	m.stats.reset()
}

// Quality returns the current connection quality.
func (m *Messenger) Quality() Quality {
	return m.qualityAt(time.Now())
}

func (m *Messenger) qualityAt(now time.Time) Quality {
	m.downMu.Lock()
	down := m.linkDown
	m.downMu.Unlock()
	if down {
		return QualityLost
	}
	rssi, last := m.stats.lastReception()
	return classify(rssi, last, now, m.config.StaleAfter)
}

func (m *Messenger) setLinkDown(down bool) {
	m.downMu.Lock()
	m.linkDown = down
	m.downMu.Unlock()
}

// Run drives the transport until ctx is cancelled. It is the only goroutine
// that touches the transport or writes registry sequence state.
//
// Transport failures never stop the loop. Pending requests fail with
// ErrStopped when Run returns.
func (m *Messenger) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.shutdown()

	if err := m.transport.Init(); err != nil {
		m.transportError("init", err)
	}

	if m.log != nil {
		m.log.Infof("messenger running as %#04x", m.config.LocalID)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		m.acceptRequests()
		m.serviceOutstanding(time.Now())
		m.receive(ctx, m.pollTimeout(time.Now()))
		m.checkQuality(time.Now(), false)
	}
}

// shutdown fails every request still held by the loop.
func (m *Messenger) shutdown() {
	if m.current != nil {
		m.current.req.done <- ErrStopped
		m.current = nil
	}
	for _, req := range m.queue {
		req.done <- ErrStopped
	}
	m.queue = nil

drain:
	for {
		select {
		case req := <-m.requests:
			req.done <- ErrStopped
		default:
			break drain
		}
	}

	m.doneOnce.Do(func() { close(m.done) })
	if m.log != nil {
		m.log.Info("messenger stopped")
	}
}

// acceptRequests drains the request channel. Fire-and-forget sends go out
// immediately; reliable ones join the queue.
func (m *Messenger) acceptRequests() {
	for {
		select {
		case req := <-m.requests:
			if req.reliable {
				m.queue = append(m.queue, req)
			} else {
				req.done <- m.sendOnce(req)
			}
		default:
			return
		}
	}
}

// sendOnce encodes and transmits a fire-and-forget command.
func (m *Messenger) sendOnce(req *request) error {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	seq := m.counter.Next()
	wire, err := packet.Encode(m.config.LocalID, m.config.LocalSecret, seq, req.command, req.payload)
	if err != nil {
		return err
	}
	m.stats.update(func(s *Stats) { s.PacketsSent++ })
	if err := m.transmit(wire.Bytes()); err != nil {
		return err
	}
	if m.log != nil {
		m.log.Debugf("sent %v seq %d", req.command, seq)
	}
	return nil
}

// serviceOutstanding starts the next queued reliable request and handles
// cancellation, ACK timeout and retry of the current one.
func (m *Messenger) serviceOutstanding(now time.Time) {
	if m.current != nil {
		cur := m.current
		if err := cur.req.ctx.Err(); err != nil {
			// The sequence stays consumed; its late ACK is ignored.
			m.stats.update(func(s *Stats) { s.Abandoned++ })
			cur.req.done <- err
			m.current = nil
		} else if !now.Before(cur.deadline) {
			if cur.sends > cur.req.maxRetries {
				cur.state = stateTimedOut
				m.stats.update(func(s *Stats) { s.FailedTransmissions++ })
				if m.log != nil {
					m.log.Warnf("no ACK for %v seq %d after %d attempts", cur.req.command, cur.sequence, cur.sends)
				}
				cur.req.done <- ErrDeliveryTimedOut
				m.current = nil
			} else {
				if m.log != nil {
					m.log.Debugf("no ACK for seq %d, attempt %d/%d", cur.sequence, cur.sends, cur.req.maxRetries+1)
				}
				m.stats.update(func(s *Stats) { s.Retransmissions++ })
				m.transmitOutstanding(now)
			}
		}
	}

	for m.current == nil && len(m.queue) > 0 {
		req := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]

		if err := req.ctx.Err(); err != nil {
			req.done <- err
			continue
		}

		seq := m.counter.Next()
		wire, err := packet.Encode(m.config.LocalID, m.config.LocalSecret, seq, req.command, req.payload)
		if err != nil {
			req.done <- err
			continue
		}
		m.current = &outstanding{req: req, sequence: seq, wire: wire.Bytes(), state: stateIdle}
		m.transmitOutstanding(now)
	}
}

// transmitOutstanding sends the current packet and arms its ACK deadline.
// A transport failure still counts as an attempt.
func (m *Messenger) transmitOutstanding(now time.Time) {
	cur := m.current
	cur.sends++
	cur.deadline = now.Add(cur.req.timeout)
	cur.state = stateSent

	m.stats.update(func(s *Stats) { s.PacketsSent++ })
	if err := m.transmit(cur.wire); err != nil {
		if m.log != nil {
			m.log.Debugf("send of seq %d failed: %v", cur.sequence, err)
		}
	}
	cur.state = stateAwaitingAck
}

// transmit sends raw bytes and tracks transport health. Failures always
// match radio.ErrTransportFailure.
func (m *Messenger) transmit(wire []byte) error {
	if err := m.transport.Send(wire); err != nil {
		m.transportError("send", err)
		if !errors.Is(err, radio.ErrTransportFailure) {
			err = fmt.Errorf("%w: %w", radio.ErrTransportFailure, err)
		}
		return err
	}
	m.transportOK()
	return nil
}

// transportOK clears the failure count and the re-init backoff.
func (m *Messenger) transportOK() {
	m.consecutiveErrors = 0
	m.reinitBackoff = 0
	m.nextReinit = time.Time{}
}

// transportError counts a failure and re-initializes the transport once
// failures pile up. While the radio stays dead, re-initializations back off
// from PollInterval*MaxConsecutiveErrors up to maxReinitBackoff.
func (m *Messenger) transportError(op string, err error) {
	m.consecutiveErrors++
	m.stats.update(func(s *Stats) { s.TransportErrors++ })
	if m.log != nil {
		m.log.Debugf("transport %s failed: %v", op, err)
	}

	if m.consecutiveErrors < m.config.MaxConsecutiveErrors {
		return
	}
	now := time.Now()
	if now.Before(m.nextReinit) {
		return
	}

	if m.reinitBackoff == 0 {
		m.reinitBackoff = m.config.PollInterval * time.Duration(m.config.MaxConsecutiveErrors)
	} else {
		m.reinitBackoff *= 2
	}
	if m.reinitBackoff > maxReinitBackoff {
		m.reinitBackoff = maxReinitBackoff
	}
	m.nextReinit = now.Add(m.reinitBackoff)

	if m.log != nil {
		m.log.Warnf("%d consecutive transport errors, re-initializing radio (next attempt in %v)",
			m.consecutiveErrors, m.reinitBackoff)
	}
	m.consecutiveErrors = 0
	m.stats.update(func(s *Stats) { s.Reinits++ })
	m.setLinkDown(true)
	if err := m.transport.Init(); err != nil && m.log != nil {
		m.log.Errorf("radio re-init failed: %v", err)
	}
	m.checkQuality(time.Now(), true)
}

// pollTimeout bounds the next receive so an ACK deadline is never overrun
// by more than a poll interval.
func (m *Messenger) pollTimeout(now time.Time) time.Duration {
	timeout := m.config.PollInterval
	if m.current != nil {
		if until := m.current.deadline.Sub(now); until < timeout {
			timeout = until
		}
	}
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	return timeout
}

// receive waits for one packet and runs it through decode, replay admission
// and dispatch. Every failure is absorbed here. A transport that fails
// without blocking still costs the full timeout, so a dead radio cannot
// spin the loop.
func (m *Messenger) receive(ctx context.Context, timeout time.Duration) {
	start := time.Now()
	n, err := m.transport.Receive(m.rxBuf[:], timeout)
	if err != nil {
		if !errors.Is(err, radio.ErrTimeout) {
			m.transportError("receive", err)
			m.idle(ctx, timeout-time.Since(start))
		}
		return
	}
	m.transportOK()

	rssi := m.transport.LastRSSI()
	msg, err := packet.Decode(m.rxBuf[:n], rssi, m.registry.Secret)
	if err != nil {
		m.stats.countDecodeError(err)
		if m.log != nil {
			m.log.Debugf("dropped %d-byte packet: %v", n, err)
		}
		return
	}

	now := time.Now()
	m.stats.update(func(s *Stats) {
		s.PacketsReceived++
		s.LastRSSI = rssi
		s.LastReceived = now
	})
	m.setLinkDown(false)

	decision, err := m.registry.Admit(msg.DeviceID, msg.Sequence)
	if err != nil {
		// Unpaired between decode and admit.
		m.stats.countDecodeError(packet.ErrUnpairedSender)
		return
	}

	if msg.Command == packet.CommandAck {
		if decision != replay.Accept {
			m.stats.countRejected(decision)
			return
		}
		m.handleAck(msg)
		return
	}

	switch decision {
	case replay.Accept:
		if m.log != nil {
			m.log.Debugf("%v seq %d from %#04x (%d dBm)", msg.Command, msg.Sequence, msg.DeviceID, msg.RSSI)
		}
		if m.config.OnCommand != nil {
			m.config.OnCommand(*msg)
		}
		m.sendAck(msg)
	case replay.Duplicate:
		// The sender is retrying, so our ACK was lost. Acknowledge again
		// without delivering.
		m.stats.countRejected(decision)
		m.sendAck(msg)
	default:
		m.stats.countRejected(decision)
		if m.log != nil {
			m.log.Debugf("stale seq %d from %#04x", msg.Sequence, msg.DeviceID)
		}
	}
}

// idle waits for d or until ctx is done.
func (m *Messenger) idle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// handleAck completes the outstanding request. With Config.PeerID set, ACKs
// from any other device are ignored.
func (m *Messenger) handleAck(msg *packet.Message) {
	ack, err := packet.ParseAck(msg.Payload)
	if err != nil {
		m.stats.countDecodeError(packet.ErrMalformedPayload)
		return
	}
	if !ack.IsFor(m.config.LocalID) {
		return
	}
	if m.config.PeerID != 0 && msg.DeviceID != m.config.PeerID {
		if m.log != nil {
			m.log.Warnf("ignoring ACK for seq %d from %#04x, expecting %#04x", ack.Sequence, msg.DeviceID, m.config.PeerID)
		}
		return
	}
	m.stats.update(func(s *Stats) { s.AcksReceived++ })

	cur := m.current
	if cur == nil || cur.sequence != ack.Sequence {
		if m.log != nil {
			m.log.Debugf("ignoring ACK for seq %d from %#04x", ack.Sequence, msg.DeviceID)
		}
		return
	}

	cur.state = stateAcked
	cur.ackedBy = msg.DeviceID
	if m.log != nil {
		m.log.Debugf("ACK for seq %d from %#04x after %d attempts", cur.sequence, cur.ackedBy, cur.sends)
	}
	cur.req.done <- nil
	m.current = nil
}

func (m *Messenger) sendAck(msg *packet.Message) {
	wire, err := packet.Encode(m.config.LocalID, m.config.LocalSecret, m.counter.Next(),
		packet.CommandAck, packet.AckPayload(msg.Sequence, msg.DeviceID))
	if err != nil {
		return
	}
	if err := m.transmit(wire.Bytes()); err != nil {
		return
	}
	m.stats.update(func(s *Stats) { s.AcksSent++ })
}

// checkQuality reports quality transitions through OnStateChange. Unless
// forced, it runs at most once per QualityCheckInterval.
func (m *Messenger) checkQuality(now time.Time, force bool) {
	if !force && now.Sub(m.lastQualityCheck) < m.config.QualityCheckInterval {
		return
	}
	m.lastQualityCheck = now

	q := m.qualityAt(now)
	if q == m.lastQuality {
		return
	}
	prev := m.lastQuality
	m.lastQuality = q

	if m.log != nil {
		rssi, _ := m.stats.lastReception()
		m.log.Infof("connection %v -> %v (RSSI %d dBm)", prev, q, rssi)
	}
	if m.config.OnStateChange != nil {
		m.config.OnStateChange(prev, q)
	}
}
