package wire

import (
	"compress/zlib"
	"fmt"
	"io"
)

// Format versions. A reader accepts any version in the inclusive range
// [MinFormatVersion, MaxFormatVersion]; the writer always emits
// FormatVersion.
const (
	FormatVersion    byte = 1
	MinFormatVersion byte = 1
	MaxFormatVersion byte = 1
)

// Compression identifies the stream filter applied to the snapshot body.
type Compression uint8

const (
	// CompressionNone stores the body raw.
	CompressionNone Compression = 0
	// CompressionZlib passes the body through a zlib stream.
	CompressionZlib Compression = 1
)

// zlibMarker is the 7-byte compression marker for zlib-filtered bodies. The
// raw marker is the single byte 0x00.
var zlibMarker = [7]byte{byte(CompressionZlib), 'Z', 'L', 'I', 'B', '0', '1'}

// footerMagic terminates every snapshot body, before the domain name echo.
var footerMagic = [4]byte{'G', 'R', 'V', 'L'}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// WriteHeader writes the plaintext prologue: format version, then the
// compression marker.
func WriteHeader(w io.Writer, comp Compression) error {
	if _, err := w.Write([]byte{FormatVersion}); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	var marker []byte
	switch comp {
	case CompressionNone:
		marker = []byte{byte(CompressionNone)}
	case CompressionZlib:
		marker = zlibMarker[:]
	default:
		return fmt.Errorf("write snapshot header: unknown compression %d", comp)
	}
	if _, err := w.Write(marker); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	return nil
}

// ReadHeader reads the prologue and returns the format version and the
// body's compression kind. Versions outside the supported range are
// rejected here, before any body byte is consumed.
func ReadHeader(r io.Reader) (byte, Compression, error) {
	var lead [2]byte
	if _, err := io.ReadFull(r, lead[:]); err != nil {
		return 0, 0, fmt.Errorf("read snapshot header: %w", err)
	}
	version := lead[0]
	if version < MinFormatVersion || version > MaxFormatVersion {
		return 0, 0, fmt.Errorf("unsupported snapshot format version %d (supported %d..%d)",
			version, MinFormatVersion, MaxFormatVersion)
	}
	switch Compression(lead[1]) {
	case CompressionNone:
		return version, CompressionNone, nil
	case CompressionZlib:
		var rest [6]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return 0, 0, fmt.Errorf("read compression marker: %w", err)
		}
		for i, b := range rest {
			if b != zlibMarker[i+1] {
				return 0, 0, fmt.Errorf("corrupt compression marker %q", rest[:])
			}
		}
		return version, CompressionZlib, nil
	default:
		return 0, 0, fmt.Errorf("unknown compression kind %d", lead[1])
	}
}

// NewBodyWriter wraps w in the stream filter for comp. The caller must Close
// the returned writer to flush the filter before the snapshot is complete.
func NewBodyWriter(w io.Writer, comp Compression) (io.WriteCloser, error) {
	switch comp {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZlib:
		return zlib.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown compression kind %d", comp)
	}
}

// NewBodyReader wraps r in the stream filter recorded by the header.
func NewBodyReader(r io.Reader, comp Compression) (io.ReadCloser, error) {
	switch comp {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zlib body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unknown compression kind %d", comp)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
