package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/graveldb/gravel/internal/event"
)

// Document is the JSON export of one committed transaction.
type Document struct {
	// N is the transaction number. Consumers must apply documents with
	// strictly consecutive numbers.
	N uint64 `json:"N"`
	// E is the ordered list of event records.
	E []Record `json:"E"`
}

// Record is one event in a document, tagged by its opcode. Field presence
// depends on the opcode; absent fields are omitted from the JSON encoding.
type Record struct {
	Op    event.Op        `json:"O"`
	ID    *int64          `json:"I,omitempty"` // object id
	Kind  string          `json:"K,omitempty"` // object kind, for op N
	Index *int64          `json:"X,omitempty"` // collection index or property index
	Name  string          `json:"N,omitempty"` // property name, for op P
	Value json.RawMessage `json:"V,omitempty"` // value payload
}

// Encode builds the document for a committed transaction from its ordered
// event list.
func Encode(txNumber uint64, events []event.Event) (*Document, error) {
	doc := &Document{N: txNumber, E: make([]Record, 0, len(events))}
	for i, ev := range events {
		rec, err := encodeRecord(ev)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", i, err)
		}
		doc.E = append(doc.E, rec)
	}
	return doc, nil
}

func encodeRecord(ev event.Event) (Record, error) {
	switch e := ev.(type) {
	case event.Created:
		return Record{Op: e.Op(), ID: ref(int64(e.ID)), Kind: e.Kind.String()}, nil
	case event.Destroyed:
		return Record{Op: e.Op(), ID: ref(int64(e.ID))}, nil
	case event.PropertyDeclared:
		return Record{Op: e.Op(), Index: ref(int64(e.Prop)), Name: e.Name}, nil
	case event.PropertySet:
		v, err := marshalValue(e.Value)
		if err != nil {
			return Record{}, err
		}
		return Record{Op: e.Op(), ID: ref(int64(e.ID)), Index: ref(int64(e.Prop)), Value: v}, nil
	case event.Insert:
		v, err := marshalValue(e.Value)
		if err != nil {
			return Record{}, err
		}
		return Record{Op: e.Op(), ID: ref(int64(e.ID)), Index: ref(int64(e.Index)), Value: v}, nil
	case event.RemoveAt:
		return Record{Op: e.Op(), ID: ref(int64(e.ID)), Index: ref(int64(e.Index))}, nil
	case event.SetAt:
		v, err := marshalValue(e.Value)
		if err != nil {
			return Record{}, err
		}
		return Record{Op: e.Op(), ID: ref(int64(e.ID)), Index: ref(int64(e.Index)), Value: v}, nil
	case event.Cleared:
		return Record{Op: e.Op(), ID: ref(int64(e.ID))}, nil
	case event.KeyRemoved:
		return Record{Op: e.Op(), ID: ref(int64(e.ID)), Index: ref(int64(e.Prop))}, nil
	default:
		return Record{}, fmt.Errorf("unknown event type %T", ev)
	}
}

// Events decodes the document back into its event list.
func (d *Document) Events() ([]event.Event, error) {
	out := make([]event.Event, 0, len(d.E))
	for i, rec := range d.E {
		ev, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("document %d, record %d: %w", d.N, i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeRecord(rec Record) (event.Event, error) {
	id := func() (event.ObjectID, error) {
		if rec.ID == nil {
			return 0, fmt.Errorf("opcode %q requires an object id", rec.Op)
		}
		return event.ObjectID(*rec.ID), nil
	}
	index := func() (int64, error) {
		if rec.Index == nil {
			return 0, fmt.Errorf("opcode %q requires an index", rec.Op)
		}
		return *rec.Index, nil
	}

	switch rec.Op {
	case event.OpCreated:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		kind, err := event.KindFromString(rec.Kind)
		if err != nil {
			return nil, err
		}
		return event.Created{ID: oid, Kind: kind}, nil
	case event.OpDestroyed:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		return event.Destroyed{ID: oid}, nil
	case event.OpPropertyDeclared:
		x, err := index()
		if err != nil {
			return nil, err
		}
		if rec.Name == "" {
			return nil, fmt.Errorf("opcode P requires a property name")
		}
		return event.PropertyDeclared{Prop: event.PropID(x), Name: rec.Name}, nil
	case event.OpPropertySet:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		x, err := index()
		if err != nil {
			return nil, err
		}
		v, err := unmarshalValue(rec.Value)
		if err != nil {
			return nil, err
		}
		return event.PropertySet{ID: oid, Prop: event.PropID(x), Value: v}, nil
	case event.OpInsert:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		x, err := index()
		if err != nil {
			return nil, err
		}
		v, err := unmarshalValue(rec.Value)
		if err != nil {
			return nil, err
		}
		return event.Insert{ID: oid, Index: int(x), Value: v}, nil
	case event.OpRemoveAt:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		x, err := index()
		if err != nil {
			return nil, err
		}
		return event.RemoveAt{ID: oid, Index: int(x)}, nil
	case event.OpSetAt:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		x, err := index()
		if err != nil {
			return nil, err
		}
		v, err := unmarshalValue(rec.Value)
		if err != nil {
			return nil, err
		}
		return event.SetAt{ID: oid, Index: int(x), Value: v}, nil
	case event.OpCleared:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		return event.Cleared{ID: oid}, nil
	case event.OpKeyRemoved:
		oid, err := id()
		if err != nil {
			return nil, err
		}
		x, err := index()
		if err != nil {
			return nil, err
		}
		return event.KeyRemoved{ID: oid, Prop: event.PropID(x)}, nil
	default:
		return nil, fmt.Errorf("unknown opcode %q", rec.Op)
	}
}

// Marshal renders the document as deterministic JSON: fixed field order and
// HTML escaping disabled, no trailing newline.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("marshal feed document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal parses a document produced by Marshal.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal feed document: %w", err)
	}
	return &doc, nil
}

func marshalValue(v event.Value) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(event.ToJSON(v)); err != nil {
		return nil, fmt.Errorf("marshal feed value: %w", err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func unmarshalValue(raw json.RawMessage) (event.Value, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing value payload")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("unmarshal feed value: %w", err)
	}
	return event.FromJSON(generic)
}

func ref(v int64) *int64 {
	return &v
}
