package domain

import (
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Internal is a non-exported tracked object: a property bag the engine and
// embedding application can persist without exposing it on the change feed.
// Internal objects live in the object table like every tracked object and
// are additionally linked into the domain's internal-object list, which is
// what the snapshot serializes them from.
type Internal struct {
	objectBase
	props      map[event.PropID]event.Value
	prev, next *Internal
}

func (o *Internal) Capability() Capability { return CapInternal }

// Kind returns event.KindPlain: internal objects share the plain property
// bag shape, they just never surface on the feed.
func (o *Internal) Kind() event.Kind { return event.KindPlain }

// Set writes a property. No feed event is emitted; subscribed callbacks
// still observe the mutation.
func (o *Internal) Set(tx *Transaction, name string, v event.Value) error {
	if err := o.guard(tx); err != nil {
		return err
	}
	prop := tx.intern(name)
	if old, ok := o.props[prop]; ok && event.Equal(old, v) {
		return nil
	}
	o.notify(event.PropertySet{ID: o.id, Prop: prop, Value: v})
	o.props[prop] = v
	return nil
}

// Get returns the property value and whether it is set.
func (o *Internal) Get(name string) (event.Value, bool) {
	prop, ok := o.d.registry.Lookup(name)
	if !ok {
		return nil, false
	}
	v, ok := o.props[prop]
	return v, ok
}

// Destroy destroys the object and recycles its id.
func (o *Internal) Destroy(tx *Transaction) error {
	return destroyObject(tx, o)
}

func (o *Internal) detach() {
	o.d.removeRoot(o.id)
	o.d.unlinkInternal(o)
}

func (o *Internal) encode(w *wire.Writer, ref func(event.ObjectID)) {
	w.U32(uint32(len(o.props)))
	for _, prop := range sortedProps(o.props) {
		w.I32(int32(prop))
		writeValue(w, o.props[prop], ref)
	}
}

func (o *Internal) decode(r *wire.Reader) {
	n := int(r.U32())
	o.props = make(map[event.PropID]event.Value, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		prop := event.PropID(r.I32())
		o.props[prop] = readValue(r)
	}
}
