package radio

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures channel impairment on a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of losing a packet (0.0 - 1.0).
	DropRate float64

	// DuplicateRate is the probability of delivering a packet twice (0.0 - 1.0).
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// ProcessInterval is how often queued packets are handed to receivers.
	// Default: 1ms
	ProcessInterval time.Duration

	// RSSI is the signal strength reported by both endpoints.
	// Default: -60 dBm
	RSSI int16

	// Seed seeds the impairment generator. Zero uses the current time.
	Seed int64
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		ProcessInterval: 1 * time.Millisecond,
		RSSI:            -60,
	}
}

// Pipe is an in-memory radio channel between two endpoints, built on pion's
// test.Bridge. Packets are delivered by a background ticker.
type Pipe struct {
	bridge *test.Bridge

	mu        sync.Mutex
	condition NetworkCondition
	rng       *rand.Rand
	closed    bool
	stopCh    chan struct{}
	wg        sync.WaitGroup

	radio0 *PipeRadio
	radio1 *PipeRadio
}

// NewPipePair creates a pipe and returns its two endpoints.
func NewPipePair(config PipeConfig) (*PipeRadio, *PipeRadio) {
	if config.ProcessInterval == 0 {
		config.ProcessInterval = 1 * time.Millisecond
	}
	if config.RSSI == 0 {
		config.RSSI = -60
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(seed)),
		stopCh: make(chan struct{}),
	}
	p.radio0 = newPipeRadio(p, 0, p.bridge.GetConn0(), config.RSSI)
	p.radio1 = newPipeRadio(p, 1, p.bridge.GetConn1(), config.RSSI)

	p.wg.Add(1)
	go p.process(config.ProcessInterval)

	return p.radio0, p.radio1
}

func (p *Pipe) process(interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for p.bridge.Tick() > 0 {
			}
		}
	}
}

// SetCondition configures impairment for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Close shuts down both endpoints and stops delivery.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	var errs []error
	for _, r := range []*PipeRadio{p.radio0, p.radio1} {
		r.closed.Store(true)
		// Unblock a pending Receive.
		r.conn.SetReadDeadline(time.Now())
		if err := r.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// impair decides how many copies of a packet reach the channel.
func (p *Pipe) impair() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cond := p.condition
	if cond.DropRate > 0 && p.rng.Float64() < cond.DropRate {
		return 0
	}
	if cond.DuplicateRate > 0 && p.rng.Float64() < cond.DuplicateRate {
		return 2
	}
	return 1
}

// PipeRadio is one endpoint of a Pipe. It implements Transport.
type PipeRadio struct {
	pipe *Pipe
	id   int
	conn net.Conn

	rssi     atomic.Int32
	lastRSSI atomic.Int32
	closed   atomic.Bool

	sent      atomic.Uint64
	inits     atomic.Uint64
	failSends atomic.Int64
}

func newPipeRadio(p *Pipe, id int, conn net.Conn, rssi int16) *PipeRadio {
	r := &PipeRadio{pipe: p, id: id, conn: conn}
	r.rssi.Store(int32(rssi))
	return r
}

// Pipe returns the channel this endpoint belongs to.
func (r *PipeRadio) Pipe() *Pipe {
	return r.pipe
}

// Init implements Transport. It counts calls so recovery can be observed.
func (r *PipeRadio) Init() error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.inits.Add(1)
	return nil
}

// Send implements Transport.
func (r *PipeRadio) Send(packet []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if len(packet) > MaxPacketSize {
		return ErrPacketTooLarge
	}
	r.sent.Add(1)

	if r.failSends.Load() > 0 && r.failSends.Add(-1) >= 0 {
		return fmt.Errorf("%w: injected", ErrTransportFailure)
	}

	for i := r.pipe.impair(); i > 0; i-- {
		if _, err := r.conn.Write(packet); err != nil {
			return fmt.Errorf("%w: %v", ErrTransportFailure, err)
		}
	}
	return nil
}

// Receive implements Transport.
func (r *PipeRadio) Receive(buf []byte, timeout time.Duration) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	n, err := r.conn.Read(buf)
	if err != nil {
		if r.closed.Load() {
			return 0, ErrClosed
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	r.lastRSSI.Store(r.rssi.Load())
	return n, nil
}

// LastRSSI implements Transport.
func (r *PipeRadio) LastRSSI() int16 {
	return int16(r.lastRSSI.Load())
}

// Close closes the whole pipe.
func (r *PipeRadio) Close() error {
	return r.pipe.Close()
}

// SetRSSI sets the signal strength reported for packets received by this
// endpoint from now on.
func (r *PipeRadio) SetRSSI(rssi int16) {
	r.rssi.Store(int32(rssi))
}

// DropNext drops the next n packets sent from this endpoint.
func (r *PipeRadio) DropNext(n int) {
	r.pipe.bridge.DropNextNWrites(r.id, n)
}

// FailNextSends makes the next n calls to Send return ErrTransportFailure.
func (r *PipeRadio) FailNextSends(n int) {
	r.failSends.Store(int64(n))
}

// Sent returns the number of Send calls that reached the radio, including
// injected failures.
func (r *PipeRadio) Sent() uint64 {
	return r.sent.Load()
}

// Inits returns the number of successful Init calls.
func (r *PipeRadio) Inits() uint64 {
	return r.inits.Load()
}

var _ Transport = (*PipeRadio)(nil)
