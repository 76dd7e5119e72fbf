package registry

import (
	"fmt"
	"time"

	"github.com/loracue/cuelink/pkg/replay"
)

const (
	// AddressSize is the size of a hardware (MAC) address.
	AddressSize = 6

	// MaxNameLen is the longest device name kept, in bytes.
	MaxNameLen = 31
)

// Address is a 6-byte hardware address.
type Address [AddressSize]byte

// String formats the address as colon-separated hex.
func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Record is one paired peer.
//
// DeviceID, Name, Address and Secret are persisted. Replay and LastSeen are
// volatile and start empty after every load.
type Record struct {
	DeviceID uint16
	Name     string
	Address  Address
	Secret   []byte

	Replay   replay.State
	LastSeen time.Time
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Secret = append([]byte(nil), r.Secret...)
	return &clone
}

// static returns a copy with only the persisted fields set.
func (r *Record) static() Record {
	return Record{
		DeviceID: r.DeviceID,
		Name:     r.Name,
		Address:  r.Address,
		Secret:   append([]byte(nil), r.Secret...),
	}
}

func validSecret(secret []byte) bool {
	return len(secret) == 16 || len(secret) == 32
}

// truncateName trims a name to MaxNameLen bytes without splitting a UTF-8
// sequence.
func truncateName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}
	cut := MaxNameLen
	for cut > 0 && name[cut]&0xC0 == 0x80 {
		cut--
	}
	return name[:cut]
}
