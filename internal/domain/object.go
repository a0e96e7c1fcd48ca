package domain

import (
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Capability classifies what a tracked object participates in.
type Capability uint8

const (
	// CapObservable objects emit change events into the feed.
	CapObservable Capability = iota + 1
	// CapInternal objects are engine-private state: persisted in the
	// snapshot's internal-object list but absent from the change feed.
	CapInternal
	// CapTimed objects are scheduler entities: timers and reminders.
	CapTimed
)

func (c Capability) String() string {
	switch c {
	case CapObservable:
		return "observable"
	case CapInternal:
		return "internal"
	case CapTimed:
		return "timed"
	default:
		return "capability(?)"
	}
}

// Object is a tracked object: anything with a stable integer identity
// inside a domain. The id is valid until destruction; after that it may be
// recycled for a different object. Holding an Object (or a Ref to its id)
// does not keep it alive; destruction is driven solely by Destroy or by
// GC-determined unreachability.
type Object interface {
	// ID returns the object's stable id.
	ID() event.ObjectID
	// Capability returns the object's capability class.
	Capability() Capability
	// Kind returns the feed-protocol shape. Non-observable objects
	// report KindPlain; they never appear in the feed.
	Kind() event.Kind
	// Destroyed reports whether the object has been destroyed. The flag
	// is one-way.
	Destroyed() bool
	// Destroy destroys the object inside tx: it is detached from every
	// traversal structure, its disposal event is emitted (observables),
	// and its id goes on the free list.
	Destroy(tx *Transaction) error

	base() *objectBase
	// detach removes the object from its traversal structures. Called
	// by Destroy with the write lock held, before the id is recycled.
	detach()
	// encode writes the object's payload to a snapshot body, reporting
	// every outgoing graph reference to ref (which may be nil).
	encode(w *wire.Writer, ref func(event.ObjectID))
}

// ChangeFunc observes one mutation event on a subscribed object. Callbacks
// run synchronously, in registration order, while the write lock is held.
type ChangeFunc func(ev event.Event)

type objectBase struct {
	d         *Domain
	id        event.ObjectID
	destroyed bool
	callbacks []ChangeFunc
}

func (b *objectBase) ID() event.ObjectID { return b.id }
func (b *objectBase) Destroyed() bool    { return b.destroyed }
func (b *objectBase) base() *objectBase  { return b }

// Subscribe registers a change callback. Registration order is invocation
// order. The emptiness fast path is a len check, so unobserved objects pay
// nothing beyond event construction.
func (b *objectBase) Subscribe(fn ChangeFunc) {
	b.callbacks = append(b.callbacks, fn)
}

func (b *objectBase) notify(ev event.Event) {
	if len(b.callbacks) == 0 {
		return
	}
	for _, fn := range b.callbacks {
		fn(ev)
	}
}

// guard validates that a mutation of this object is legal inside tx.
func (b *objectBase) guard(tx *Transaction) error {
	if err := tx.guard(b.d); err != nil {
		return err
	}
	if b.destroyed {
		return objectFault(FaultObjectDestroyed, b.id, "object is destroyed")
	}
	return nil
}
