package domain

import (
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Array is an observable ordered list of values.
type Array struct {
	objectBase
	elems []event.Value
}

func (a *Array) Capability() Capability { return CapObservable }

// Kind returns event.KindArray.
func (a *Array) Kind() event.Kind { return event.KindArray }

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.elems)
}

// Get returns the element at index i.
func (a *Array) Get(i int) (event.Value, error) {
	if i < 0 || i >= len(a.elems) {
		return nil, indexFault(a.id, i, len(a.elems))
	}
	return a.elems[i], nil
}

// Insert inserts v at index i, shifting later elements right.
func (a *Array) Insert(tx *Transaction, i int, v event.Value) error {
	if err := a.guard(tx); err != nil {
		return err
	}
	if i < 0 || i > len(a.elems) {
		return indexFault(a.id, i, len(a.elems))
	}
	tx.emit(&a.objectBase, event.Insert{ID: a.id, Index: i, Value: v})
	a.elems = append(a.elems, nil)
	copy(a.elems[i+1:], a.elems[i:])
	a.elems[i] = v
	return nil
}

// Append inserts v after the last element.
func (a *Array) Append(tx *Transaction, v event.Value) error {
	return a.Insert(tx, len(a.elems), v)
}

// RemoveAt removes the element at index i, shifting later elements left.
func (a *Array) RemoveAt(tx *Transaction, i int) error {
	if err := a.guard(tx); err != nil {
		return err
	}
	if i < 0 || i >= len(a.elems) {
		return indexFault(a.id, i, len(a.elems))
	}
	tx.emit(&a.objectBase, event.RemoveAt{ID: a.id, Index: i})
	a.elems = append(a.elems[:i], a.elems[i+1:]...)
	return nil
}

// SetAt replaces the element at index i. Replacing an element with an equal
// value emits nothing.
func (a *Array) SetAt(tx *Transaction, i int, v event.Value) error {
	if err := a.guard(tx); err != nil {
		return err
	}
	if i < 0 || i >= len(a.elems) {
		return indexFault(a.id, i, len(a.elems))
	}
	if event.Equal(a.elems[i], v) {
		return nil
	}
	tx.emit(&a.objectBase, event.SetAt{ID: a.id, Index: i, Value: v})
	a.elems[i] = v
	return nil
}

// Clear removes every element.
func (a *Array) Clear(tx *Transaction) error {
	if err := a.guard(tx); err != nil {
		return err
	}
	tx.emit(&a.objectBase, event.Cleared{ID: a.id})
	a.elems = nil
	return nil
}

// Destroy destroys the array and recycles its id.
func (a *Array) Destroy(tx *Transaction) error {
	return destroyObject(tx, a)
}

func (a *Array) detach() {
	a.d.removeRoot(a.id)
}

func (a *Array) encode(w *wire.Writer, ref func(event.ObjectID)) {
	w.U32(uint32(len(a.elems)))
	for _, v := range a.elems {
		writeValue(w, v, ref)
	}
}

func (a *Array) decode(r *wire.Reader) {
	n := int(r.U32())
	a.elems = nil
	for i := 0; i < n && r.Err() == nil; i++ {
		a.elems = append(a.elems, readValue(r))
	}
}

func indexFault(id event.ObjectID, i, n int) error {
	return objectFault(FaultIndexOutOfRange, id, "index %d out of range (len %d)", i, n)
}
