package domain

import (
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Map is an observable mapping from string keys to values. Keys share the
// domain's property-name registry, so each distinct key is interned once
// and travels through the feed as its registry index.
type Map struct {
	objectBase
	entries map[event.PropID]event.Value
}

func (m *Map) Capability() Capability { return CapObservable }

// Kind returns event.KindMap.
func (m *Map) Kind() event.Kind { return event.KindMap }

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.entries)
}

// Set writes a key. Writing a value equal to the current one emits nothing.
func (m *Map) Set(tx *Transaction, key string, v event.Value) error {
	if err := m.guard(tx); err != nil {
		return err
	}
	prop := tx.intern(key)
	if old, ok := m.entries[prop]; ok && event.Equal(old, v) {
		return nil
	}
	tx.emit(&m.objectBase, event.PropertySet{ID: m.id, Prop: prop, Value: v})
	m.entries[prop] = v
	return nil
}

// Get returns the value for key and whether it is present.
func (m *Map) Get(key string) (event.Value, bool) {
	prop, ok := m.d.registry.Lookup(key)
	if !ok {
		return nil, false
	}
	v, ok := m.entries[prop]
	return v, ok
}

// Delete removes a key. Deleting an absent key is a no-op and emits
// nothing.
func (m *Map) Delete(tx *Transaction, key string) error {
	if err := m.guard(tx); err != nil {
		return err
	}
	prop, ok := m.d.registry.Lookup(key)
	if !ok {
		return nil
	}
	if _, present := m.entries[prop]; !present {
		return nil
	}
	tx.emit(&m.objectBase, event.KeyRemoved{ID: m.id, Prop: prop})
	delete(m.entries, prop)
	return nil
}

// Clear removes every key.
func (m *Map) Clear(tx *Transaction) error {
	if err := m.guard(tx); err != nil {
		return err
	}
	tx.emit(&m.objectBase, event.Cleared{ID: m.id})
	m.entries = make(map[event.PropID]event.Value)
	return nil
}

// Keys returns the present keys in interning order.
func (m *Map) Keys() []string {
	props := sortedProps(m.entries)
	out := make([]string, 0, len(props))
	for _, prop := range props {
		name, err := m.d.registry.Name(prop)
		if err != nil {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Destroy destroys the map and recycles its id.
func (m *Map) Destroy(tx *Transaction) error {
	return destroyObject(tx, m)
}

func (m *Map) detach() {
	m.d.removeRoot(m.id)
}

func (m *Map) encode(w *wire.Writer, ref func(event.ObjectID)) {
	w.U32(uint32(len(m.entries)))
	for _, prop := range sortedProps(m.entries) {
		w.I32(int32(prop))
		writeValue(w, m.entries[prop], ref)
	}
}

func (m *Map) decode(r *wire.Reader) {
	n := int(r.U32())
	m.entries = make(map[event.PropID]event.Value, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		prop := event.PropID(r.I32())
		m.entries[prop] = readValue(r)
	}
}
