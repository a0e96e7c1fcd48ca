package domain

import (
	"fmt"
	"io"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Load reconstructs a domain from a snapshot. The snapshot must carry the
// given domain name in both its body and its footer; a mismatch aborts the
// load. The time manager resumes with the persisted running flag unless
// WithTimeKeeping overrides it.
//
// Timer and reminder callbacks are runtime state and are not persisted.
// Restored active entities keep their schedule; the host re-registers
// callbacks before the first due time or the entity fires into nothing and
// deactivates.
func Load(r io.Reader, name string, opts ...Option) (*Domain, error) {
	d := New(name, opts...)
	if err := d.readSnapshot(r); err != nil {
		return nil, err
	}
	if d.runningOverride != nil {
		d.tm.running = *d.runningOverride
	}
	return d, nil
}

// Restore rewinds the domain in place from a snapshot of itself. It is the
// rollback primitive of the client chain and must run with the write lock
// held, inside OnTransactionFailure.
func (d *Domain) Restore(r io.Reader) error {
	return d.readSnapshot(r)
}

// readSnapshot replaces the domain's entire graph state with the
// snapshot's. Identity fields (name, secret) must match when already set.
func (d *Domain) readSnapshot(in io.Reader) error {
	_, comp, err := wire.ReadHeader(in)
	if err != nil {
		return err
	}
	body, err := wire.NewBodyReader(in, comp)
	if err != nil {
		return err
	}
	defer body.Close()
	r := wire.NewReader(body)

	uniquifier := r.U32()
	var secret [16]byte
	r.Raw(secret[:])
	name := r.String()
	serial := r.U32()
	lastCommit := r.Time()
	if err := r.Err(); err != nil {
		return fmt.Errorf("read snapshot prologue: %w", err)
	}
	if d.name != "" && name != d.name {
		return fmt.Errorf("snapshot is for domain %q, not %q", name, d.name)
	}

	slotCount := int(r.U32())
	freeCount := int(r.U32())
	free := make([]event.ObjectID, 0, freeCount)
	for i := 0; i < freeCount && r.Err() == nil; i++ {
		free = append(free, event.ObjectID(r.I32()))
	}

	nameCount := int(r.U32())
	names := make([]string, 0, nameCount)
	for i := 0; i < nameCount && r.Err() == nil; i++ {
		names = append(names, r.String())
	}

	rootCount := int(r.U32())
	roots := make([]event.ObjectID, 0, rootCount)
	for i := 0; i < rootCount && r.Err() == nil; i++ {
		roots = append(roots, event.ObjectID(r.I32()))
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("read snapshot tables: %w", err)
	}

	// The graph is rebuilt from scratch; stale handles into the previous
	// graph resolve to nothing afterwards.
	d.table.reset(slotCount, free)
	d.internalHead, d.internalTail, d.internals = nil, nil, 0
	d.tm.head, d.tm.tail, d.tm.count = nil, nil, 0
	d.tm.pool, d.tm.poolTotal = nil, 0
	d.lostCache = nil
	if err := d.registry.Restore(names); err != nil {
		return err
	}

	observables := int(r.U32())
	for i := 0; i < observables && r.Err() == nil; i++ {
		id := event.ObjectID(r.I32())
		kind := event.Kind(r.U8())
		obj, err := d.makeObservable(kind)
		if err != nil {
			r.Fail(err)
			break
		}
		b := obj.base()
		b.d, b.id = d, id
		obj.decode(r)
		if err := d.table.place(id, obj); err != nil {
			return err
		}
	}

	internals := int(r.U32())
	for i := 0; i < internals && r.Err() == nil; i++ {
		obj := &Internal{}
		obj.d = d
		obj.id = event.ObjectID(r.I32())
		obj.decode(r)
		if err := d.table.place(obj.id, obj); err != nil {
			return err
		}
		d.linkInternal(obj)
	}

	running := r.Bool()
	timedCount := int(r.U32())
	for i := 0; i < timedCount && r.Err() == nil; i++ {
		if err := d.loadTimed(r); err != nil {
			return err
		}
	}

	sidekick := r.Bytes()
	r.Footer(name)
	if err := r.Err(); err != nil {
		return fmt.Errorf("read snapshot body: %w", err)
	}

	d.uniquifier = uniquifier
	d.secret = secret
	d.serial = serial
	d.lastCommit = lastCommit
	d.roots = roots
	d.tm.running = running

	if d.sidekick != nil {
		if err := d.sidekick.RestoreSidekickState(sidekick); err != nil {
			return fmt.Errorf("restore sidekick state: %w", err)
		}
	}
	return nil
}

// observableObject is the decode-side view of the four feed shapes.
type observableObject interface {
	Object
	decode(r *wire.Reader)
}

func (d *Domain) makeObservable(kind event.Kind) (observableObject, error) {
	switch kind {
	case event.KindPlain:
		return &Plain{}, nil
	case event.KindArray:
		return &Array{}, nil
	case event.KindMap:
		return &Map{}, nil
	case event.KindSet:
		return &Set{}, nil
	default:
		return nil, fmt.Errorf("corrupt snapshot: unknown object kind %d", kind)
	}
}

// loadTimed decodes one timed entity. Active entities are serialized in due
// order, so re-inserting as they are read rebuilds the active list with tie
// order intact.
func (d *Domain) loadTimed(r *wire.Reader) error {
	tag := r.U8()
	id := event.ObjectID(r.I32())
	if err := r.Err(); err != nil {
		return err
	}
	switch tag {
	case timedKindTimer:
		t := &Timer{}
		t.d, t.id = d, id
		t.timedState.owner = t
		wasActive := t.decode(r)
		if err := d.table.place(id, t); err != nil {
			return err
		}
		if wasActive {
			d.tm.insert(&t.timedState)
		}
	case timedKindReminder:
		rem := &Reminder{}
		rem.d, rem.id = d, id
		rem.timedState.owner = rem
		wasActive := rem.decode(r)
		if err := d.table.place(id, rem); err != nil {
			return err
		}
		if rem.pooled {
			d.tm.poolTotal++
			if !rem.inUse {
				d.tm.pool = append(d.tm.pool, rem)
			}
		}
		if wasActive {
			d.tm.insert(&rem.timedState)
		}
	default:
		return fmt.Errorf("corrupt snapshot: unknown timed entity tag %d", tag)
	}
	return nil
}
