// Package archive provides SQLite-backed durable storage for gravel domains.
//
// The archive holds two append-mostly tables:
//   - Snapshots: full binary domain images keyed by (domain, serial)
//   - Feed Documents: one canonical-JSON change document per committed
//     transaction, keyed by (domain, n)
//
// # Critical Patterns
//
// Idempotent writes
//   - Both tables use ON CONFLICT DO NOTHING on their primary key
//   - A crash between commit and archive can safely retry the write
//
// Gapless feed
//   - Per domain, the archived n sequence must be strictly consecutive
//   - Replay applies documents through a feed.Mirror, which rejects gaps
//   - Rollback truncates documents past the restored serial
//
// Deterministic reads
//   - Feed reads are ORDER BY n ASC; domain listings ORDER BY domain ASC
//   - Identical archives replay to identical graphs
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Client is the chain member that feeds the archive from a live domain; the
// rest of the package serves offline inspection and replay.
package archive
