package domain

import (
	"fmt"
	"time"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Value tags in the snapshot encoding.
const (
	wireNull   uint8 = 0
	wireBool   uint8 = 1
	wireInt    uint8 = 2
	wireFloat  uint8 = 3
	wireString uint8 = 4
	wireTime   uint8 = 5
	wireRef    uint8 = 6
)

// writeValue encodes a graph value. Outgoing references are reported to ref
// so the save pass can record reachability edges while serializing.
func writeValue(w *wire.Writer, v event.Value, ref func(event.ObjectID)) {
	switch val := v.(type) {
	case nil, event.Null:
		w.U8(wireNull)
	case event.Bool:
		w.U8(wireBool)
		w.Bool(bool(val))
	case event.Int:
		w.U8(wireInt)
		w.I64(int64(val))
	case event.Float:
		w.U8(wireFloat)
		w.F64(float64(val))
	case event.String:
		w.U8(wireString)
		w.String(string(val))
	case event.Time:
		w.U8(wireTime)
		w.Time(time.Time(val))
	case event.Ref:
		w.U8(wireRef)
		w.I32(int32(val))
		if ref != nil {
			ref(event.ObjectID(val))
		}
	}
}

func readValue(r *wire.Reader) event.Value {
	switch tag := r.U8(); tag {
	case wireNull:
		return event.Null{}
	case wireBool:
		return event.Bool(r.Bool())
	case wireInt:
		return event.Int(r.I64())
	case wireFloat:
		return event.Float(r.F64())
	case wireString:
		return event.String(r.String())
	case wireTime:
		return event.Time(r.Time())
	case wireRef:
		return event.Ref(r.I32())
	default:
		r.Fail(fmt.Errorf("corrupt value tag %d", tag))
		return event.Null{}
	}
}
