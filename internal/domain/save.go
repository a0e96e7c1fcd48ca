package domain

import (
	"fmt"
	"io"
	"time"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Save serializes the whole domain to out. It takes a shared read lock
// unless the calling goroutine already holds the graph lock (a client hook
// or a read callback saving mid-transaction reuses the held lock). A
// narrower mutex serializes concurrent Save calls; it is the only lock ever
// held together with the graph lock.
func (d *Domain) Save(out io.Writer, comp wire.Compression, timeout time.Duration) error {
	if !d.lock.heldByCurrent() {
		if err := d.lock.acquireRead(timeout); err != nil {
			return err
		}
		defer d.lock.releaseRead()
	}
	_, err := d.writeSnapshot(out, comp)
	return err
}

// SnapshotNow asks every manual-snapshot-capable chain member to persist
// the domain, under a read lock. It is the commit path for clients
// configured with the manual (-1) skip policy.
func (d *Domain) SnapshotNow(timeout time.Duration) error {
	if err := d.lock.acquireRead(timeout); err != nil {
		return err
	}
	defer d.lock.releaseRead()
	took := false
	for _, c := range d.clients {
		if m, ok := c.(ManualSnapshotter); ok {
			if err := m.TakeSnapshot(d); err != nil {
				return err
			}
			took = true
		}
	}
	if !took {
		return fmt.Errorf("no manual-snapshot-capable client in chain")
	}
	return nil
}

// writeSnapshot serializes the domain and computes reachability as a side
// effect of the same pass. The caller must hold the graph lock (read or
// write).
//
// Layout, after the plaintext header and through the compression filter:
//
//	uniquifier, secret, name, serial, commit-time,
//	slot-count, free-list, property-name table, root refs,
//	observable entries (table order), internal objects (list order),
//	timed entities (active order, then idle), sidekick state, footer.
func (d *Domain) writeSnapshot(out io.Writer, comp wire.Compression) (*LostObjectTracker, error) {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	if err := wire.WriteHeader(out, comp); err != nil {
		return nil, err
	}
	body, err := wire.NewBodyWriter(out, comp)
	if err != nil {
		return nil, err
	}
	w := wire.NewWriter(body)

	w.U32(d.uniquifier)
	w.Raw(d.secret[:])
	w.String(d.name)
	w.U32(d.serial)
	w.Time(d.lastCommit)

	free := d.table.freeIDs()
	w.U32(uint32(len(d.table.slots)))
	w.U32(uint32(len(free)))
	for _, id := range free {
		w.I32(int32(id))
	}

	names := d.registry.Names()
	w.U32(uint32(len(names)))
	for _, name := range names {
		w.String(name)
	}

	w.U32(uint32(len(d.roots)))
	for _, id := range d.roots {
		w.I32(int32(id))
	}

	// Reachability edges are recorded while values are serialized: every
	// outgoing reference the encoder writes lands in the edge set of the
	// object being encoded.
	tracker := newLostObjectTracker(d.serial)
	edges := make(map[event.ObjectID][]event.ObjectID)
	var encoding event.ObjectID
	ref := func(target event.ObjectID) {
		if d.table.resolve(target) == nil {
			tracker.referencedDestroyed = append(tracker.referencedDestroyed, target)
			return
		}
		edges[encoding] = append(edges[encoding], target)
	}

	observables := 0
	for _, obj := range d.table.slots {
		if obj != nil && obj.Capability() == CapObservable {
			observables++
		}
	}
	w.U32(uint32(observables))
	for id, obj := range d.table.slots {
		if obj == nil || obj.Capability() != CapObservable {
			continue
		}
		encoding = event.ObjectID(id)
		w.I32(int32(id))
		w.U8(uint8(obj.Kind()))
		obj.encode(w, ref)
	}

	w.U32(uint32(d.internals))
	for obj := d.internalHead; obj != nil; obj = obj.next {
		encoding = obj.id
		w.I32(int32(obj.id))
		obj.encode(w, ref)
	}

	// Active entities first, in due order, so the loader rebuilds the
	// active list with tie order intact; idle ones follow in table order.
	w.Bool(d.tm.running)
	timed := d.tm.entities()
	for _, obj := range d.table.slots {
		if t, ok := obj.(timedEntity); ok && !t.timed().Active() {
			timed = append(timed, t)
		}
	}
	w.U32(uint32(len(timed)))
	for _, t := range timed {
		t.encode(w, nil)
	}

	var sidekick []byte
	if d.sidekick != nil {
		sidekick = d.sidekick.SidekickState()
	}
	w.Bytes(sidekick)
	w.Footer(d.name)

	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("flush snapshot body: %w", err)
	}

	d.analyze(tracker, edges)
	d.lostCache = tracker
	return tracker, nil
}

// analyze floods the edge set from the pinned objects and classifies
// everything never reached. Declared roots, the internal-object list,
// active timed entities, and pooled reminders are pinned; everything else
// lives only as long as something pinned can still reach it.
func (d *Domain) analyze(tracker *LostObjectTracker, edges map[event.ObjectID][]event.ObjectID) {
	reached := make(map[event.ObjectID]bool, d.table.live)
	var queue []event.ObjectID
	visit := func(id event.ObjectID) {
		if !reached[id] {
			reached[id] = true
			queue = append(queue, id)
		}
	}
	for _, id := range d.roots {
		visit(id)
	}
	for obj := d.internalHead; obj != nil; obj = obj.next {
		visit(obj.id)
	}
	for _, t := range d.tm.entities() {
		visit(t.ID())
	}
	for _, obj := range d.table.slots {
		if r, ok := obj.(*Reminder); ok && r.pooled {
			visit(r.id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, target := range edges[id] {
			visit(target)
		}
	}
	for id, obj := range d.table.slots {
		if obj != nil && !reached[event.ObjectID(id)] {
			c := obj.Capability()
			tracker.unreachable[c] = append(tracker.unreachable[c], event.ObjectID(id))
		}
	}
	tracker.poolTotal, tracker.poolUnused = d.tm.poolStats()
}
