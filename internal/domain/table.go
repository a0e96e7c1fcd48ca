package domain

import (
	"container/heap"
	"sort"

	"github.com/graveldb/gravel/internal/event"
)

// table is the object identity table: a growable indexed array mapping
// stable integer ids to live objects, with a free list of reclaimed ids.
// Ids equal slot indexes. Registration reuses the lowest free id before
// growing the array.
//
// Invariant: live + free.Len() == len(slots), and every occupied slot holds
// a non-destroyed object.
type table struct {
	slots []Object
	free  idHeap
	live  int
}

// register assigns the lowest available id to obj and stores it.
func (t *table) register(obj Object) event.ObjectID {
	var id event.ObjectID
	if t.free.Len() > 0 {
		id = heap.Pop(&t.free).(event.ObjectID)
	} else {
		id = event.ObjectID(len(t.slots))
		t.slots = append(t.slots, nil)
	}
	t.slots[id] = obj
	t.live++
	return id
}

// unregister clears the slot for id and recycles the id. Unregistering an
// empty slot is a programming error.
func (t *table) unregister(id event.ObjectID) error {
	if int(id) < 0 || int(id) >= len(t.slots) || t.slots[id] == nil {
		return objectFault(FaultDoubleUnregister, id, "id is not registered")
	}
	t.slots[id] = nil
	t.live--
	heap.Push(&t.free, id)
	return nil
}

// resolve returns the live object with the given id, or nil.
func (t *table) resolve(id event.ObjectID) Object {
	if int(id) < 0 || int(id) >= len(t.slots) {
		return nil
	}
	return t.slots[id]
}

// freeIDs returns the free list in ascending order, for serialization.
func (t *table) freeIDs() []event.ObjectID {
	out := make([]event.ObjectID, len(t.free))
	copy(out, t.free)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// reset rebuilds the table from a snapshot's length and free list. Slots
// are filled by the loader afterwards.
func (t *table) reset(length int, free []event.ObjectID) {
	t.slots = make([]Object, length)
	t.free = append(t.free[:0], free...)
	heap.Init(&t.free)
	t.live = 0
}

// place stores a loaded object at its persisted id. The id must lie inside
// the snapshot's slot range and outside its free list.
func (t *table) place(id event.ObjectID, obj Object) error {
	if int(id) < 0 || int(id) >= len(t.slots) {
		return objectFault(FaultDoubleUnregister, id, "persisted id outside slot range %d", len(t.slots))
	}
	if t.slots[id] != nil {
		return objectFault(FaultDoubleUnregister, id, "persisted id occupied twice")
	}
	t.slots[id] = obj
	t.live++
	return nil
}

// idHeap is a min-heap of reclaimed ids, so registration always reuses the
// lowest free id first.
type idHeap []event.ObjectID

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(event.ObjectID)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	id := old[n-1]
	*h = old[:n-1]
	return id
}
