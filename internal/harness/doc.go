// Package harness runs declarative YAML scenarios against a fresh domain and
// checks the resulting change feed and object graph.
//
// A scenario is a sequence of transactions, each a list of ops over labeled
// objects, plus assertions over the final state. Scenarios run with a manual
// clock and a fixed secret, so a scenario always produces the same trace and
// can be pinned with a golden file.
package harness
