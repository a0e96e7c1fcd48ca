// Package domain implements the transactional object-graph engine.
//
// A Domain owns a table of tracked objects with stable integer ids, a
// property-name registry, a time manager for timers and reminders, and a
// chain of persistence clients. Application code mutates the graph inside
// explicit transactions; on commit the engine advances the scheduler with
// the transaction clock, hands the ordered event list to the client chain
// (which snapshots the domain or rolls it back on failure), and returns a
// Result carrying events, commands, and the next scheduler due time.
//
// ARCHITECTURE:
//
// Single-Writer Transactions:
// One reader-writer lock guards the whole graph. Begin acquires the write
// lock; Read acquires a shared read lock. Recursive acquisition from the
// same goroutine is a usage fault, detected and reported, never silently
// upgraded. All lock acquisitions take a timeout and return a
// distinguishable timeout outcome instead of blocking forever (a negative
// timeout requests unbounded waiting).
//
// Change Tracking:
// Every mutation first computes the event.Event describing it (property
// setters suppress no-op writes by value equality), appends it to the open
// transaction, then applies the change. Creation and disposal always emit,
// listener or not: the change feed replay protocol depends on them.
//
// Rollback:
// The in-memory snapshot client serializes the domain on the first
// transaction start and after commits per its skip policy. When a
// transaction fails, the chain restores the last snapshot, which also
// rewinds the transaction serial number. A skip policy above zero widens
// the rollback window: committed transactions since the last snapshot are
// lost on failure. That knob is deliberate and is NOT a durability
// guarantee; see the snapshot client documentation.
//
// INVARIANTS:
//   - liveObjectCount + freeListCount == tableLength
//   - every live table slot holds a non-destroyed object
//   - a destroyed object is removed from the root list, internal list, and
//     active timed list before its id is recycled
//   - the active timed list is sorted ascending by due time; entries with
//     equal due times keep insertion order
//   - the destroyed flag is one-way: alive to destroyed, never back
package domain
