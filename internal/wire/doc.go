// Package wire implements the versioned binary snapshot encoding.
//
// A snapshot starts with a plaintext prologue (one format-version byte and a
// compression marker, one byte for raw or seven bytes for zlib) followed by
// the body, which passes through the compression filter named by the marker.
// The body ends with a footer: a four-byte magic and an echo of the domain
// name. Readers reject versions outside the supported range and footer or
// name mismatches. The compression kind is a property of the snapshot, not
// of the reader: a reader never needs to know the writer's current setting.
//
// All multi-byte integers are big-endian. Strings are length-prefixed UTF-8
// (uint16 length); raw byte blocks carry a uint32 length. Writer and Reader
// latch the first error and turn every subsequent call into a no-op, so
// encoding code can run straight-line and check the error once.
package wire
