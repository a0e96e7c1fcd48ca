package domain

import (
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Set is an observable insertion-ordered collection of distinct values.
// Distinctness uses the same value equality as property setters.
type Set struct {
	objectBase
	elems []event.Value
}

func (s *Set) Capability() Capability { return CapObservable }

// Kind returns event.KindSet.
func (s *Set) Kind() event.Kind { return event.KindSet }

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.elems)
}

// Contains reports membership of v.
func (s *Set) Contains(v event.Value) bool {
	return s.indexOf(v) >= 0
}

// Add inserts v at the end. Adding an existing member is a no-op and emits
// nothing.
func (s *Set) Add(tx *Transaction, v event.Value) error {
	if err := s.guard(tx); err != nil {
		return err
	}
	if s.indexOf(v) >= 0 {
		return nil
	}
	tx.emit(&s.objectBase, event.Insert{ID: s.id, Index: len(s.elems), Value: v})
	s.elems = append(s.elems, v)
	return nil
}

// Remove removes v. Removing a non-member is a no-op and emits nothing.
func (s *Set) Remove(tx *Transaction, v event.Value) error {
	if err := s.guard(tx); err != nil {
		return err
	}
	i := s.indexOf(v)
	if i < 0 {
		return nil
	}
	tx.emit(&s.objectBase, event.RemoveAt{ID: s.id, Index: i})
	s.elems = append(s.elems[:i], s.elems[i+1:]...)
	return nil
}

// Clear removes every member.
func (s *Set) Clear(tx *Transaction) error {
	if err := s.guard(tx); err != nil {
		return err
	}
	tx.emit(&s.objectBase, event.Cleared{ID: s.id})
	s.elems = nil
	return nil
}

// Values returns the members in insertion order. The slice is a copy.
func (s *Set) Values() []event.Value {
	out := make([]event.Value, len(s.elems))
	copy(out, s.elems)
	return out
}

// Destroy destroys the set and recycles its id.
func (s *Set) Destroy(tx *Transaction) error {
	return destroyObject(tx, s)
}

func (s *Set) detach() {
	s.d.removeRoot(s.id)
}

func (s *Set) indexOf(v event.Value) int {
	for i, e := range s.elems {
		if event.Equal(e, v) {
			return i
		}
	}
	return -1
}

func (s *Set) encode(w *wire.Writer, ref func(event.ObjectID)) {
	w.U32(uint32(len(s.elems)))
	for _, v := range s.elems {
		writeValue(w, v, ref)
	}
}

func (s *Set) decode(r *wire.Reader) {
	n := int(r.U32())
	s.elems = nil
	for i := 0; i < n && r.Err() == nil; i++ {
		s.elems = append(s.elems, readValue(r))
	}
}
