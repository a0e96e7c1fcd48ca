package domain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/graveldb/gravel/internal/wire"
)

// SnapshotClient is the reference client-chain member: it keeps the latest
// full snapshot in memory and rewinds the domain from it when a transaction
// fails.
//
// The skip policy trades snapshot cost against rollback granularity:
//
//	-1  manual only: snapshots happen solely through Domain.SnapshotNow
//	 0  a snapshot after every commit
//	 N  N commits are skipped between snapshots
//
// A skipping client is NOT a durability guarantee: a failure rolls the
// domain back to the last snapshot, losing the commits made since. The
// feed archive, not this client, is the durable record.
type SnapshotClient struct {
	BaseClient
	comp    wire.Compression
	skip    int
	skipped int
	last    []byte
}

// NewSnapshotClient creates a snapshot client with the given skip policy
// and snapshot compression.
func NewSnapshotClient(skip int, comp wire.Compression) *SnapshotClient {
	return &SnapshotClient{comp: comp, skip: skip}
}

// Snapshot returns the last taken snapshot, nil before the first. The
// returned bytes are not copied; callers must not modify them.
func (c *SnapshotClient) Snapshot() []byte { return c.last }

// CanRestore reports whether a snapshot exists to rewind to.
func (c *SnapshotClient) CanRestore() bool { return c.last != nil }

// OnTransactionStart takes the initial snapshot the first time a
// transaction ever starts, so even the first transaction can roll back.
func (c *SnapshotClient) OnTransactionStart(d *Domain, _ time.Time) error {
	if c.last != nil {
		return nil
	}
	return c.TakeSnapshot(d)
}

// OnTransactionCommit re-snapshots per the skip policy.
func (c *SnapshotClient) OnTransactionCommit(sc *SuccessContext) error {
	switch {
	case c.skip < 0:
		return nil
	case c.skip > 0:
		if c.skipped < c.skip {
			c.skipped++
			return nil
		}
		c.skipped = 0
	}
	return c.TakeSnapshot(sc.Domain)
}

// OnTransactionFailure rewinds the domain to the last snapshot.
func (c *SnapshotClient) OnTransactionFailure(d *Domain, _ []error) error {
	if c.last == nil {
		return ErrNoSnapshot
	}
	if err := d.Restore(bytes.NewReader(c.last)); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}

// TakeSnapshot serializes the domain into the client's buffer. The caller
// must hold the graph lock; chain hooks and Domain.SnapshotNow both do.
func (c *SnapshotClient) TakeSnapshot(d *Domain) error {
	var buf bytes.Buffer
	if _, err := d.writeSnapshot(&buf, c.comp); err != nil {
		return err
	}
	c.last = buf.Bytes()
	c.skipped = 0
	return nil
}
