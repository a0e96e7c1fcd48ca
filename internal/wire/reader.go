package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// maxBlock caps length-prefixed byte blocks so a corrupt length field cannot
// drive an allocation of arbitrary size.
const maxBlock = 1 << 30

// Reader decodes snapshot body fields. Like Writer, it latches the first
// error: every later call returns the zero value and Err reports the error.
type Reader struct {
	r   io.Reader
	err error
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Fail latches err if no earlier error is latched. Decoders use it to
// report semantic corruption (bad tags, impossible counts) through the same
// channel as I/O errors.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, p); err != nil {
		r.err = err
		return false
	}
	return true
}

// U8 reads one byte.
func (r *Reader) U8() uint8 {
	var buf [1]byte
	if !r.read(buf[:]) {
		return 0
	}
	return buf[0]
}

// Bool reads a one-byte boolean, rejecting values other than 0 and 1.
func (r *Reader) Bool() bool {
	switch v := r.U8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		if r.err == nil {
			r.err = fmt.Errorf("corrupt boolean byte %d", v)
		}
		return false
	}
}

// U16 reads a big-endian uint16.
func (r *Reader) U16() uint16 {
	var buf [2]byte
	if !r.read(buf[:]) {
		return 0
	}
	return binary.BigEndian.Uint16(buf[:])
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() uint32 {
	var buf [4]byte
	if !r.read(buf[:]) {
		return 0
	}
	return binary.BigEndian.Uint32(buf[:])
}

// I32 reads a big-endian int32.
func (r *Reader) I32() int32 {
	return int32(r.U32())
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() uint64 {
	var buf [8]byte
	if !r.read(buf[:]) {
		return 0
	}
	return binary.BigEndian.Uint64(buf[:])
}

// I64 reads a big-endian int64.
func (r *Reader) I64() int64 {
	return int64(r.U64())
}

// F64 reads an IEEE 754 double.
func (r *Reader) F64() float64 {
	return math.Float64frombits(r.U64())
}

// Time reads a timestamp written by Writer.Time. Absent timestamps decode as
// the zero time.
func (r *Reader) Time() time.Time {
	present := r.Bool()
	ns := int64(0)
	if present {
		ns = r.I64()
	}
	if r.err != nil || !present {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() string {
	n := r.U16()
	if r.err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if !r.read(buf) {
		return ""
	}
	return string(buf)
}

// Bytes reads a length-prefixed byte block.
func (r *Reader) Bytes() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}
	if n > maxBlock {
		r.err = fmt.Errorf("byte block length %d exceeds limit", n)
		return nil
	}
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	if !r.read(buf) {
		return nil
	}
	return buf
}

// Raw reads exactly len(p) bytes into p.
func (r *Reader) Raw(p []byte) {
	r.read(p)
}

// Footer verifies the body terminator written by Writer.Footer. A magic or
// domain-name mismatch is reported as an error; the snapshot must not be
// trusted past a bad footer.
func (r *Reader) Footer(domainName string) {
	var magic [4]byte
	r.Raw(magic[:])
	name := r.String()
	if r.err != nil {
		return
	}
	if magic != footerMagic {
		r.err = fmt.Errorf("corrupt snapshot footer magic %q", magic[:])
		return
	}
	if name != domainName {
		r.err = fmt.Errorf("snapshot footer names domain %q, expected %q", name, domainName)
	}
}
