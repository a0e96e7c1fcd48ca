// Package feed implements the JSON change-feed protocol consumed by remote
// observers of a domain.
//
// Every committed transaction exports one document:
//
//	{"N": <tx-number>, "E": [<record>, ...]}
//
// where E is the ordered list of event records, each tagged by a one- or
// two-letter opcode:
//
//	N  new object (kind: plain | array | map | set)
//	D  dispose object
//	P  declare property name at registry index
//	C  property (or map key) value changed
//	I  collection insert
//	R  collection remove-at
//	S  collection set-at
//	CL collection clear
//	K  map key removed
//
// The feed is a strict append-only replay log, not a CRDT: a consumer must
// apply every document, in order, exactly once. Mirror enforces this:
// applying a document whose N is not exactly lastApplied+1 is rejected.
//
// Encoding is deterministic: fixed field order, HTML escaping disabled, and
// value wrappers as defined by package event. Two equivalent graphs export
// byte-identical documents, which the snapshot round-trip tests rely on.
package feed
