package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Writer encodes snapshot body fields. The first I/O or range error latches;
// all later calls are no-ops and Err returns the latched error.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(p); err != nil {
		w.err = err
	}
}

// U8 writes one byte.
func (w *Writer) U8(v uint8) {
	w.write([]byte{v})
}

// Bool writes a boolean as one byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// U16 writes a big-endian uint16.
func (w *Writer) U16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.write(buf[:])
}

// U32 writes a big-endian uint32.
func (w *Writer) U32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.write(buf[:])
}

// I32 writes a big-endian int32.
func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

// U64 writes a big-endian uint64.
func (w *Writer) U64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	w.write(buf[:])
}

// I64 writes a big-endian int64.
func (w *Writer) I64(v int64) {
	w.U64(uint64(v))
}

// F64 writes an IEEE 754 double.
func (w *Writer) F64(v float64) {
	w.U64(math.Float64bits(v))
}

// Time writes a UTC timestamp as a presence flag plus nanoseconds since the
// Unix epoch. The zero time has no representable UnixNano, so it is written
// as absent.
func (w *Writer) Time(t time.Time) {
	if t.IsZero() {
		w.Bool(false)
		return
	}
	w.Bool(true)
	w.I64(t.UTC().UnixNano())
}

// String writes a length-prefixed UTF-8 string (uint16 length).
func (w *Writer) String(s string) {
	if w.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		w.err = fmt.Errorf("string of %d bytes exceeds wire limit", len(s))
		return
	}
	w.U16(uint16(len(s)))
	w.write([]byte(s))
}

// Bytes writes a length-prefixed byte block (uint32 length).
func (w *Writer) Bytes(p []byte) {
	if w.err != nil {
		return
	}
	if len(p) > math.MaxUint32 {
		w.err = fmt.Errorf("byte block of %d bytes exceeds wire limit", len(p))
		return
	}
	w.U32(uint32(len(p)))
	w.write(p)
}

// Raw writes p without a length prefix. Used for fixed-width fields such as
// the 16-byte domain secret.
func (w *Writer) Raw(p []byte) {
	w.write(p)
}

// Footer writes the body terminator: the footer magic and the domain name
// echo that readers verify against the expected name.
func (w *Writer) Footer(domainName string) {
	w.Raw(footerMagic[:])
	w.String(domainName)
}
