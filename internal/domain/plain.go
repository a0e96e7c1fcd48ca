package domain

import (
	"sort"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Plain is an observable object with named properties. Property names are
// interned into the domain registry; values are event.Value scalars or
// id-based references.
type Plain struct {
	objectBase
	props map[event.PropID]event.Value
}

func (p *Plain) Capability() Capability { return CapObservable }

// Kind returns event.KindPlain.
func (p *Plain) Kind() event.Kind { return event.KindPlain }

// Set writes a property. Setting a property to a value equal to its current
// value emits nothing and applies nothing.
func (p *Plain) Set(tx *Transaction, name string, v event.Value) error {
	if err := p.guard(tx); err != nil {
		return err
	}
	prop := tx.intern(name)
	if old, ok := p.props[prop]; ok && event.Equal(old, v) {
		return nil
	}
	tx.emit(&p.objectBase, event.PropertySet{ID: p.id, Prop: prop, Value: v})
	p.props[prop] = v
	return nil
}

// Get returns the property value and whether it is set.
func (p *Plain) Get(name string) (event.Value, bool) {
	prop, ok := p.d.registry.Lookup(name)
	if !ok {
		return nil, false
	}
	v, ok := p.props[prop]
	return v, ok
}

// Len returns the number of set properties.
func (p *Plain) Len() int {
	return len(p.props)
}

// Destroy destroys the object and recycles its id.
func (p *Plain) Destroy(tx *Transaction) error {
	return destroyObject(tx, p)
}

func (p *Plain) detach() {
	p.d.removeRoot(p.id)
}

func (p *Plain) encode(w *wire.Writer, ref func(event.ObjectID)) {
	w.U32(uint32(len(p.props)))
	for _, prop := range sortedProps(p.props) {
		w.I32(int32(prop))
		writeValue(w, p.props[prop], ref)
	}
}

func (p *Plain) decode(r *wire.Reader) {
	n := int(r.U32())
	p.props = make(map[event.PropID]event.Value, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		prop := event.PropID(r.I32())
		p.props[prop] = readValue(r)
	}
}

// sortedProps returns the property ids in ascending order so snapshots are
// byte-deterministic.
func sortedProps(props map[event.PropID]event.Value) []event.PropID {
	out := make([]event.PropID, 0, len(props))
	for prop := range props {
		out = append(out, prop)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
