package replay

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// SequenceCounter allocates outgoing sequence numbers.
// It is safe for concurrent use.
type SequenceCounter struct {
	value uint16
	mu    sync.Mutex
}

// NewSequenceCounter creates a counter seeded with a random value, which keeps
// sequences from colliding with the previous boot's window at the receiver.
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{value: randomSeed()}
}

// NewSequenceCounterWithValue creates a counter with a specific initial value.
func NewSequenceCounterWithValue(initial uint16) *SequenceCounter {
	return &SequenceCounter{value: initial}
}

// Next returns the next sequence number and increments the counter.
// The counter wraps from 0xFFFF to 0.
func (c *SequenceCounter) Next() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.value
	c.value++
	return current
}

// Current returns the value the next call to Next will return.
func (c *SequenceCounter) Current() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func randomSeed() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.BigEndian.Uint16(buf[:])
}
