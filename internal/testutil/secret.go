package testutil

// Secret is a fixed 16-byte domain secret so snapshots and external
// reference tokens in tests are byte-for-byte reproducible.
var Secret = [16]byte{
	0x67, 0x72, 0x61, 0x76, 0x65, 0x6c, 0x2d, 0x74,
	0x65, 0x73, 0x74, 0x2d, 0x30, 0x30, 0x30, 0x31,
}
