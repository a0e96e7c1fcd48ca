package domain

import (
	"io"
	"log/slog"
	"time"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// LostObjectTracker is one reachability analysis: everything alive but not
// reachable from the pinned set at a given transaction serial. Save produces
// one on every pass; the domain caches the latest and reuses it while no
// further transaction commits.
type LostObjectTracker struct {
	serial              uint32
	unreachable         map[Capability][]event.ObjectID
	referencedDestroyed []event.ObjectID
	poolTotal           int
	poolUnused          int
}

func newLostObjectTracker(serial uint32) *LostObjectTracker {
	return &LostObjectTracker{
		serial:      serial,
		unreachable: make(map[Capability][]event.ObjectID),
	}
}

// Serial returns the transaction serial the analysis is valid for.
func (t *LostObjectTracker) Serial() uint32 { return t.serial }

// Unreachable returns the unreachable ids of one capability class, in id
// order.
func (t *LostObjectTracker) Unreachable(c Capability) []event.ObjectID {
	return t.unreachable[c]
}

// UnreachableCount returns the total number of unreachable objects.
func (t *LostObjectTracker) UnreachableCount() int {
	n := 0
	for _, ids := range t.unreachable {
		n += len(ids)
	}
	return n
}

// ReferencedDestroyed returns the reference targets that no longer resolve
// to a live object. A consistent graph never has any; a non-empty list
// indicates a lifecycle bug in application code.
func (t *LostObjectTracker) ReferencedDestroyed() []event.ObjectID {
	return t.referencedDestroyed
}

// PoolStats returns the reminder pool size and its unused portion at
// analysis time.
func (t *LostObjectTracker) PoolStats() (total, unused int) {
	return t.poolTotal, t.poolUnused
}

// LostObjects returns the current reachability analysis, reusing the cached
// one when no transaction committed since it was taken and recomputing via
// a discard-sink save otherwise. Runs under a read lock.
func (d *Domain) LostObjects(timeout time.Duration) (*LostObjectTracker, error) {
	if err := d.lock.acquireRead(timeout); err != nil {
		return nil, err
	}
	defer d.lock.releaseRead()
	return d.currentLost()
}

// currentLost needs the graph lock held. The cache itself is guarded by
// the save mutex because concurrent read-locked saves refresh it.
func (d *Domain) currentLost() (*LostObjectTracker, error) {
	d.saveMu.Lock()
	cached := d.lostCache
	d.saveMu.Unlock()
	if cached != nil && cached.serial == d.serial {
		return cached, nil
	}
	return d.writeSnapshot(io.Discard, wire.CompressionNone)
}

// CollectGarbage destroys every live object unreachable from the pinned
// set and trims the reminder pool when more than half of it sits unused
// past the sensitivity threshold.
//
// Two phases: the O(graph) analysis runs under a read lock (reusing the
// cached tracker when still current), then a transaction applies the
// destruction. A commit sneaking in between the phases invalidates the
// analysis; it is then redone under the write lock.
func (d *Domain) CollectGarbage(timeout time.Duration) *Result {
	var tracker *LostObjectTracker
	if err := d.Read(timeout, func() error {
		t, err := d.currentLost()
		tracker = t
		return err
	}); err != nil {
		return &Result{Errors: []error{err}}
	}

	return d.Modify(timeout, func(tx *Transaction) error {
		if tracker.serial != d.serial {
			t, err := d.currentLost()
			if err != nil {
				return err
			}
			tracker = t
		}
		if bad := tracker.ReferencedDestroyed(); len(bad) > 0 {
			d.logger.Error("live graph references destroyed objects",
				slog.Int("count", len(bad)))
		}
		for _, ids := range tracker.unreachable {
			for _, id := range ids {
				obj := d.table.resolve(id)
				if obj == nil {
					continue
				}
				if err := obj.Destroy(tx); err != nil {
					return err
				}
			}
		}

		total, unused := d.tm.poolStats()
		if total > poolTrimThreshold && unused > total/2 {
			trim := unused / 2
			d.logger.Info("trimming reminder pool",
				slog.Int("total", total),
				slog.Int("unused", unused),
				slog.Int("trim", trim))
			for i := 0; i < trim; i++ {
				r, ok := d.tm.takeReminder()
				if !ok {
					break
				}
				r.inUse = false
				if err := r.Destroy(tx); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
