// Package domdef compiles CUE domain definition files into Definitions and
// materializes them into live domains.
//
// A definition declares what a domain is before any transaction runs: its
// name, optional fixed secret, time keeping, lost-event policy, snapshot
// policy, root objects, and timers. Object kinds are a closed set (plain,
// array, map, set), so definitions name them directly and the compiler
// rejects anything else.
package domdef
