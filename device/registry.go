package device

import (
	"sort"
	"sync"
)

// registry is the index table from spec §3: index is monotonically
// assigned and never reused during a session; on removal the index
// becomes defunct. Modeled on the Registry visitor-pattern interface the
// teacher's vendored device.Manager exposes (Get/VisitAll), backed here
// by a single RWMutex since spec §5 names the index table as one of the
// two process-wide mutable structures requiring a lock.
type registry struct {
	mu      sync.RWMutex
	next    uint32
	devices map[uint32]*Device
}

func newRegistry() *registry {
	return &registry{devices: make(map[uint32]*Device)}
}

// add assigns the next index, registers d under it, and returns the
// assigned index.
func (r *registry) add(build func(index uint32) *Device) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.next
	r.next++

	d := build(index)
	r.devices[index] = d
	return d
}

// get returns the device at index, or false if it was never registered
// or has been removed.
func (r *registry) get(index uint32) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[index]
	return d, ok
}

// remove deletes the device at index from the table. It does not stop
// the device; the caller does that outside the lock so Stop's blocking
// drain never happens while the registry lock is held (spec §5 "no lock
// is held across a suspension point").
func (r *registry) remove(index uint32) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[index]
	if ok {
		delete(r.devices, index)
	}
	return d, ok
}

// visitAll applies fn to every currently-registered device, in index
// order (spec §4.4 "StopAllDevices ... serialized in index order"),
// under a read lock.
func (r *registry) visitAll(fn func(*Device)) {
	r.mu.RLock()
	snapshot := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		snapshot = append(snapshot, d)
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Index < snapshot[j].Index })
	for _, d := range snapshot {
		fn(d)
	}
}
