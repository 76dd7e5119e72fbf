// Package registry holds the set of paired peers: their identity, shared
// secret and volatile replay-protection state.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loracue/cuelink/pkg/replay"
	"github.com/pion/logging"
)

// Capacity bounds.
const (
	MinCapacity     = 4
	MaxCapacity     = 32
	DefaultCapacity = MaxCapacity
)

// Config configures a Registry.
type Config struct {
	// Capacity is the maximum number of paired devices.
	// Clamped to [MinCapacity, MaxCapacity]. Default: DefaultCapacity.
	Capacity int

	// Store persists the static record fields. Default: a new MemoryStore.
	Store Store

	// LoggerFactory creates the registry logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Registry is the authoritative mapping from device ID to Record.
//
// Static fields are written through to the Store on every Upsert and Remove.
// Replay state is kept in memory only.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	records  map[uint16]*Record
	capacity int
	store    Store
	log      logging.LeveledLogger
}

// New creates an empty registry. Call Load to restore persisted records.
func New(config Config) *Registry {
	if config.Capacity == 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Capacity < MinCapacity {
		config.Capacity = MinCapacity
	}
	if config.Capacity > MaxCapacity {
		config.Capacity = MaxCapacity
	}
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}

	r := &Registry{
		records:  make(map[uint16]*Record),
		capacity: config.Capacity,
		store:    config.Store,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("registry")
	}
	return r
}

// Load replaces the in-memory records with the ones in the store.
// Replay state of every record starts empty. Records beyond capacity and
// records with invalid secrets are skipped.
func (r *Registry) Load() error {
	stored, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("registry: load: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[uint16]*Record, len(stored))
	for i := range stored {
		rec := stored[i].static()
		if rec.DeviceID == 0 || !validSecret(rec.Secret) {
			if r.log != nil {
				r.log.Warnf("skipping invalid stored record for device %#04x", rec.DeviceID)
			}
			continue
		}
		if len(r.records) >= r.capacity {
			if r.log != nil {
				r.log.Warnf("registry full, skipping stored device %#04x", rec.DeviceID)
			}
			continue
		}
		rec.Name = truncateName(rec.Name)
		r.records[rec.DeviceID] = &rec
	}

	if r.log != nil {
		r.log.Infof("loaded %d paired devices", len(r.records))
	}
	return nil
}

// Capacity returns the maximum number of paired devices.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Lookup returns a copy of the record for deviceID.
func (r *Registry) Lookup(deviceID uint16) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Secret returns a copy of the shared secret for deviceID. It satisfies
// packet.SecretLookup, so decode works on a snapshot of the secret.
func (r *Registry) Secret(deviceID uint16) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), rec.Secret...), true
}

// IsPaired reports whether deviceID has a record.
func (r *Registry) IsPaired(deviceID uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[deviceID]
	return ok
}

// Count returns the number of paired devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// List returns copies of all records ordered by device ID.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Upsert pairs a device or re-pairs an existing one.
//
// Re-pairing replaces name, address and secret in one step and resets the
// device's replay state. Names longer than MaxNameLen bytes are truncated.
//
// Returns ErrRegistryFull if deviceID is new and the registry is at capacity.
// If persisting fails the registry is left unchanged.
func (r *Registry) Upsert(deviceID uint16, name string, address Address, secret []byte) error {
	if deviceID == 0 {
		return ErrInvalidDeviceID
	}
	if !validSecret(secret) {
		return ErrInvalidSecret
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous, exists := r.records[deviceID]
	if !exists && len(r.records) >= r.capacity {
		return ErrRegistryFull
	}

	r.records[deviceID] = &Record{
		DeviceID: deviceID,
		Name:     truncateName(name),
		Address:  address,
		Secret:   append([]byte(nil), secret...),
	}

	if err := r.persistLocked(); err != nil {
		if exists {
			r.records[deviceID] = previous
		} else {
			delete(r.records, deviceID)
		}
		return err
	}

	if r.log != nil {
		if exists {
			r.log.Infof("re-paired device %#04x (%s)", deviceID, address)
		} else {
			r.log.Infof("paired device %#04x (%s)", deviceID, address)
		}
	}
	return nil
}

// Remove unpairs a device.
//
// Returns ErrNotFound if the device is not paired.
func (r *Registry) Remove(deviceID uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return ErrNotFound
	}
	delete(r.records, deviceID)

	if err := r.persistLocked(); err != nil {
		r.records[deviceID] = rec
		return err
	}

	if r.log != nil {
		r.log.Infof("unpaired device %#04x", deviceID)
	}
	return nil
}

// UpdateSequenceState overwrites the replay state of a device.
// Nothing is persisted.
func (r *Registry) UpdateSequenceState(deviceID uint16, highest uint16, bitmap uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return ErrNotFound
	}
	rec.Replay = replay.State{Highest: highest, Window: bitmap, Initialized: true}
	return nil
}

// Admit runs the replay check for an authenticated packet from deviceID and
// updates the device's sequence state in the same critical section.
// LastSeen is refreshed for every authenticated packet, fresh or not.
func (r *Registry) Admit(deviceID uint16, sequence uint16) (replay.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return replay.TooOld, ErrNotFound
	}
	rec.LastSeen = time.Now()
	return replay.Admit(&rec.Replay, sequence), nil
}

// persistLocked writes the static fields of every record to the store.
// Caller must hold r.mu.
func (r *Registry) persistLocked() error {
	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec.static())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DeviceID < records[j].DeviceID })

	if err := r.store.SaveAll(records); err != nil {
		if r.log != nil {
			r.log.Errorf("failed to persist registry: %v", err)
		}
		return fmt.Errorf("registry: save: %w", err)
	}
	return nil
}
