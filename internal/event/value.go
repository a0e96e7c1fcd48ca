package event

import (
	"fmt"
	"strconv"
	"time"
)

// ObjectID is the stable integer identity of a tracked object within its
// domain. An id is valid from registration until destruction, after which it
// may be recycled for a new object.
type ObjectID int32

// PropID is the dense zero-based index assigned to an interned property name.
type PropID int32

// Kind identifies the shape of a tracked observable object.
type Kind uint8

const (
	// KindPlain is an object with named properties.
	KindPlain Kind = iota + 1
	// KindArray is an ordered list of values.
	KindArray
	// KindMap maps interned string keys to values.
	KindMap
	// KindSet is an insertion-ordered collection of distinct values.
	KindSet
)

// String returns the feed-protocol name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// KindFromString parses a feed-protocol kind name.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "plain":
		return KindPlain, nil
	case "array":
		return KindArray, nil
	case "map":
		return KindMap, nil
	case "set":
		return KindSet, nil
	default:
		return 0, fmt.Errorf("unknown object kind %q", s)
	}
}

// Value is the sealed interface of storable graph values.
// Only Null, Bool, Int, Float, String, Time, and Ref implement it.
// Object references are by id; the graph never stores owning pointers.
type Value interface {
	value() // sealed
}

// Null is the absent value.
type Null struct{}

func (Null) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Int is a 64-bit signed integer value.
type Int int64

func (Int) value() {}

// Float is a 64-bit floating point value.
type Float float64

func (Float) value() {}

// String is a string value.
type String string

func (String) value() {}

// Time is a UTC timestamp value with nanosecond precision.
type Time time.Time

func (Time) value() {}

// Ref is an id-based handle to another tracked object in the same domain.
// A Ref does not keep its target alive; resolution after the target is
// destroyed yields "not found".
type Ref ObjectID

func (Ref) value() {}

// Equal reports value equality between two Values. It is used by property
// setters to suppress no-op change events.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Time:
		bv, ok := b.(Time)
		return ok && time.Time(av).Equal(time.Time(bv))
	case Ref:
		bv, ok := b.(Ref)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

// ToJSON converts a Value into the generic form used by the feed protocol:
// nil, bool, int64, float64, string, or the single-key wrapper objects
// {"t": <RFC3339Nano>} for timestamps and {"r": <id>} for references.
func ToJSON(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Time:
		return map[string]any{"t": time.Time(val).UTC().Format(time.RFC3339Nano)}
	case Ref:
		return map[string]any{"r": int64(val)}
	default:
		return nil
	}
}

// FromJSON converts a decoded feed value back into a Value. Numeric values
// must arrive as json.Number-compatible strings or Go numerics; integers are
// distinguished from floats by the absence of a fractional form.
func FromJSON(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int64:
		return Int(val), nil
	case float64:
		return Float(val), nil
	case interface{ String() string }: // json.Number
		s := val.String()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid feed number %q: %w", s, err)
		}
		return Float(f), nil
	case map[string]any:
		if len(val) != 1 {
			return nil, fmt.Errorf("invalid feed value wrapper with %d keys", len(val))
		}
		if t, ok := val["t"]; ok {
			s, ok := t.(string)
			if !ok {
				return nil, fmt.Errorf("invalid feed timestamp %v", t)
			}
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("invalid feed timestamp %q: %w", s, err)
			}
			return Time(ts.UTC()), nil
		}
		if r, ok := val["r"]; ok {
			id, err := FromJSON(r)
			if err != nil {
				return nil, err
			}
			i, ok := id.(Int)
			if !ok {
				return nil, fmt.Errorf("invalid feed reference %v", r)
			}
			return Ref(ObjectID(i)), nil
		}
		return nil, fmt.Errorf("unknown feed value wrapper %v", val)
	default:
		return nil, fmt.Errorf("unsupported feed value type %T", raw)
	}
}
