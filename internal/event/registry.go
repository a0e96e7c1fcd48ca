package event

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Registry interns property names and map keys, assigning each distinct name
// a dense zero-based PropID on first use. Assignments survive snapshot
// save/load and an index is never rebound to a different name.
//
// Names are NFC-normalized before interning so that canonically equal
// spellings share one index.
//
// Thread-safety: the registry is guarded by the domain's graph lock; it has
// no locking of its own.
type Registry struct {
	names []string
	index map[string]PropID
}

// NewRegistry creates an empty property-name registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]PropID)}
}

// Intern returns the index of name, assigning the next dense index if the
// name has not been seen before. The second result reports whether a new
// assignment was made, in which case the caller must emit the matching
// PropertyDeclared event.
func (r *Registry) Intern(name string) (PropID, bool) {
	name = norm.NFC.String(name)
	if id, ok := r.index[name]; ok {
		return id, false
	}
	id := PropID(len(r.names))
	r.names = append(r.names, name)
	r.index[name] = id
	return id, true
}

// Lookup returns the index of name without interning it.
func (r *Registry) Lookup(name string) (PropID, bool) {
	id, ok := r.index[norm.NFC.String(name)]
	return id, ok
}

// Name returns the name bound to id.
func (r *Registry) Name(id PropID) (string, error) {
	if id < 0 || int(id) >= len(r.names) {
		return "", fmt.Errorf("property index %d out of range (have %d)", id, len(r.names))
	}
	return r.names[id], nil
}

// Len returns the number of interned names.
func (r *Registry) Len() int {
	return len(r.names)
}

// Names returns the interned names in index order. The returned slice is a
// copy and safe to retain.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Restore rebinds the registry to a previously persisted name table. It
// fails if the table rebinds an already-assigned index to a different name.
func (r *Registry) Restore(names []string) error {
	for i, name := range names {
		if i < len(r.names) && r.names[i] != name {
			return fmt.Errorf("property index %d already bound to %q, cannot rebind to %q", i, r.names[i], name)
		}
	}
	r.names = append(r.names[:0], names...)
	r.index = make(map[string]PropID, len(names))
	for i, name := range names {
		r.index[name] = PropID(i)
	}
	return nil
}
