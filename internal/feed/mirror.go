package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/graveldb/gravel/internal/event"
)

// Mirror is a consumer-side reconstruction of a domain graph, built purely
// by applying feed documents in order. It enforces the replay contract: a
// document is accepted only when its N equals lastApplied+1, so the mirror
// can never silently skip or reorder transactions.
type Mirror struct {
	lastApplied uint64
	registry    *event.Registry
	objects     map[event.ObjectID]*MirrorObject
}

// MirrorObject is the reconstructed state of one tracked object.
type MirrorObject struct {
	Kind  event.Kind
	Props map[event.PropID]event.Value // plain objects and maps
	Elems []event.Value                // arrays and sets
}

// NewMirror creates an empty mirror positioned before the first transaction.
func NewMirror() *Mirror {
	return &Mirror{
		registry: event.NewRegistry(),
		objects:  make(map[event.ObjectID]*MirrorObject),
	}
}

// NewMirrorAt creates a mirror that expects lastApplied+1 as the next
// document. Used when resuming from a snapshot taken at a known transaction.
func NewMirrorAt(lastApplied uint64) *Mirror {
	m := NewMirror()
	m.lastApplied = lastApplied
	return m
}

// LastApplied returns the number of the last accepted document.
func (m *Mirror) LastApplied() uint64 {
	return m.lastApplied
}

// Object returns the reconstructed object with the given id, or nil.
func (m *Mirror) Object(id event.ObjectID) *MirrorObject {
	return m.objects[id]
}

// Len returns the number of live reconstructed objects.
func (m *Mirror) Len() int {
	return len(m.objects)
}

// PropertyName resolves an interned property index.
func (m *Mirror) PropertyName(id event.PropID) (string, error) {
	return m.registry.Name(id)
}

// Apply applies one document. The document number must be exactly
// lastApplied+1; anything else (a gap, a replay, an out-of-order delivery)
// is rejected and the mirror is left unchanged.
func (m *Mirror) Apply(doc *Document) error {
	if doc.N != m.lastApplied+1 {
		return fmt.Errorf("feed document %d out of order: expected %d", doc.N, m.lastApplied+1)
	}
	events, err := doc.Events()
	if err != nil {
		return err
	}
	for i, ev := range events {
		if err := m.apply(ev); err != nil {
			return fmt.Errorf("document %d, record %d: %w", doc.N, i, err)
		}
	}
	m.lastApplied = doc.N
	return nil
}

func (m *Mirror) apply(ev event.Event) error {
	switch e := ev.(type) {
	case event.Created:
		if _, exists := m.objects[e.ID]; exists {
			return fmt.Errorf("object %d created twice", e.ID)
		}
		obj := &MirrorObject{Kind: e.Kind}
		switch e.Kind {
		case event.KindPlain, event.KindMap:
			obj.Props = make(map[event.PropID]event.Value)
		}
		m.objects[e.ID] = obj
		return nil

	case event.Destroyed:
		if _, exists := m.objects[e.ID]; !exists {
			return fmt.Errorf("object %d destroyed but not live", e.ID)
		}
		delete(m.objects, e.ID)
		return nil

	case event.PropertyDeclared:
		id, fresh := m.registry.Intern(e.Name)
		if id != e.Prop {
			return fmt.Errorf("property %q declared at %d but interned at %d", e.Name, e.Prop, id)
		}
		if !fresh {
			return fmt.Errorf("property %q declared twice", e.Name)
		}
		return nil

	case event.PropertySet:
		obj, err := m.object(e.ID, event.KindPlain, event.KindMap)
		if err != nil {
			return err
		}
		if _, err := m.registry.Name(e.Prop); err != nil {
			return err
		}
		obj.Props[e.Prop] = e.Value
		return nil

	case event.Insert:
		obj, err := m.object(e.ID, event.KindArray, event.KindSet)
		if err != nil {
			return err
		}
		if e.Index < 0 || e.Index > len(obj.Elems) {
			return fmt.Errorf("insert index %d out of range 0..%d on object %d", e.Index, len(obj.Elems), e.ID)
		}
		obj.Elems = append(obj.Elems, nil)
		copy(obj.Elems[e.Index+1:], obj.Elems[e.Index:])
		obj.Elems[e.Index] = e.Value
		return nil

	case event.RemoveAt:
		obj, err := m.object(e.ID, event.KindArray, event.KindSet)
		if err != nil {
			return err
		}
		if e.Index < 0 || e.Index >= len(obj.Elems) {
			return fmt.Errorf("remove index %d out of range on object %d", e.Index, e.ID)
		}
		obj.Elems = append(obj.Elems[:e.Index], obj.Elems[e.Index+1:]...)
		return nil

	case event.SetAt:
		obj, err := m.object(e.ID, event.KindArray)
		if err != nil {
			return err
		}
		if e.Index < 0 || e.Index >= len(obj.Elems) {
			return fmt.Errorf("set index %d out of range on object %d", e.Index, e.ID)
		}
		obj.Elems[e.Index] = e.Value
		return nil

	case event.Cleared:
		obj, ok := m.objects[e.ID]
		if !ok {
			return fmt.Errorf("object %d not live", e.ID)
		}
		switch obj.Kind {
		case event.KindArray, event.KindSet:
			obj.Elems = nil
		case event.KindMap:
			obj.Props = make(map[event.PropID]event.Value)
		default:
			return fmt.Errorf("clear on non-collection object %d", e.ID)
		}
		return nil

	case event.KeyRemoved:
		obj, err := m.object(e.ID, event.KindMap)
		if err != nil {
			return err
		}
		if _, ok := obj.Props[e.Prop]; !ok {
			return fmt.Errorf("key %d not present on map %d", e.Prop, e.ID)
		}
		delete(obj.Props, e.Prop)
		return nil

	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
}

func (m *Mirror) object(id event.ObjectID, kinds ...event.Kind) (*MirrorObject, error) {
	obj, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %d not live", id)
	}
	for _, k := range kinds {
		if obj.Kind == k {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("object %d has kind %s, expected one of %v", id, obj.Kind, kinds)
}

// Canonical renders the mirror's full state as deterministic JSON: objects
// sorted by id, properties sorted by name. Two mirrors holding equivalent
// graphs produce identical bytes, which is how replay equivalence is tested.
func (m *Mirror) Canonical() ([]byte, error) {
	type canonObject struct {
		ID    int64          `json:"id"`
		Kind  string         `json:"kind"`
		Props map[string]any `json:"props,omitempty"`
		Elems []any          `json:"elems,omitempty"`
	}

	ids := make([]event.ObjectID, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := struct {
		LastApplied uint64        `json:"lastApplied"`
		Objects     []canonObject `json:"objects"`
	}{LastApplied: m.lastApplied}

	for _, id := range ids {
		obj := m.objects[id]
		c := canonObject{ID: int64(id), Kind: obj.Kind.String()}
		if len(obj.Props) > 0 {
			c.Props = make(map[string]any, len(obj.Props))
			for prop, v := range obj.Props {
				name, err := m.registry.Name(prop)
				if err != nil {
					return nil, err
				}
				c.Props[name] = event.ToJSON(v)
			}
		}
		for _, v := range obj.Elems {
			c.Elems = append(c.Elems, event.ToJSON(v))
		}
		out.Objects = append(out.Objects, c)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("marshal mirror state: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
