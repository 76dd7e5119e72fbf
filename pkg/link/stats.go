package link

import (
	"errors"
	"sync"
	"time"

	"github.com/loracue/cuelink/pkg/packet"
	"github.com/loracue/cuelink/pkg/replay"
)

// DropCounts counts inbound packets discarded on the receive path, by reason.
type DropCounts struct {
	MalformedLength      uint64
	UnpairedSender       uint64
	AuthenticationFailed uint64
	MalformedPayload     uint64
	Duplicate            uint64
	TooOld               uint64
}

// Total returns the number of dropped packets.
func (d DropCounts) Total() uint64 {
	return d.MalformedLength + d.UnpairedSender + d.AuthenticationFailed +
		d.MalformedPayload + d.Duplicate + d.TooOld
}

// Stats is a snapshot of link statistics for the local node.
type Stats struct {
	// PacketsSent counts command transmissions, retransmissions included.
	// ACKs are counted separately in AcksSent.
	PacketsSent uint64

	// PacketsReceived counts authenticated inbound packets.
	PacketsReceived uint64

	AcksSent            uint64
	AcksReceived        uint64
	Retransmissions     uint64
	FailedTransmissions uint64

	// Abandoned counts reliable sends whose caller gave up early.
	Abandoned uint64

	Dropped DropCounts

	// TransportErrors counts transport failures other than receive timeouts.
	TransportErrors uint64

	// Reinits counts transport re-initializations after repeated failures.
	Reinits uint64

	// LastRSSI and LastReceived describe the most recent authenticated packet.
	// They survive ResetStats.
	LastRSSI     int16
	LastReceived time.Time

	// LossRate is 1 - AcksReceived/PacketsSent, clamped to [0, 1], and 0
	// when nothing was sent.
	LossRate float64
}

// statsCollector accumulates counters. It is written by the Run goroutine and
// read from any goroutine.
type statsCollector struct {
	mu sync.Mutex
	s  Stats
}

func (c *statsCollector) update(fn func(s *Stats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.s)
}

func (c *statsCollector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.s
	if out.PacketsSent > 0 {
		out.LossRate = 1 - float64(out.AcksReceived)/float64(out.PacketsSent)
		if out.LossRate < 0 {
			out.LossRate = 0
		}
	}
	return out
}

func (c *statsCollector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s = Stats{LastRSSI: c.s.LastRSSI, LastReceived: c.s.LastReceived}
}

func (c *statsCollector) lastReception() (int16, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.LastRSSI, c.s.LastReceived
}

// countDecodeError records a packet rejected by the codec.
func (c *statsCollector) countDecodeError(err error) {
	c.update(func(s *Stats) {
		switch {
		case errors.Is(err, packet.ErrMalformedLength):
			s.Dropped.MalformedLength++
		case errors.Is(err, packet.ErrUnpairedSender):
			s.Dropped.UnpairedSender++
		case errors.Is(err, packet.ErrMalformedPayload):
			s.Dropped.MalformedPayload++
		default:
			s.Dropped.AuthenticationFailed++
		}
	})
}

// countRejected records a packet rejected by the replay guard.
func (c *statsCollector) countRejected(d replay.Decision) {
	c.update(func(s *Stats) {
		if d == replay.Duplicate {
			s.Dropped.Duplicate++
		} else {
			s.Dropped.TooOld++
		}
	})
}
