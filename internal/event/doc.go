// Package event defines the observable change vocabulary of a domain.
//
// Every mutation performed inside a transaction is described by exactly one
// Event value before it is applied: object creation and disposal, property
// writes, collection inserts/removes/sets/clears, and map key removal.
// Events are immutable once emitted and are ordered by emission order within
// their transaction. They feed two consumers: the binary snapshot diff and
// the JSON change feed (package feed).
//
// The package also owns the property-name registry. Property names are
// interned the first time they are used and receive a dense zero-based index
// that is stable for the life of the domain, including across snapshot
// save/load cycles. An index is never reassigned to a different name.
//
// Values stored in the graph are restricted to the sealed Value interface:
// null, bool, int64, float64, string, time, and object references. Object
// references are id-based handles resolved through the domain, never raw
// pointers, which keeps cyclic graphs serializable and ownership trivial.
package event
