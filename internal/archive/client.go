package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/graveldb/gravel/internal/domain"
	"github.com/graveldb/gravel/internal/feed"
	"github.com/graveldb/gravel/internal/wire"
)

// defaultTimeout bounds each database call made from a transaction hook.
// Hooks run with the write lock held, so a wedged database must not stall
// the domain indefinitely.
const defaultTimeout = 5 * time.Second

// Client is the durable member of a domain's client chain. It archives the
// feed document of every committed transaction, archives snapshots per the
// skip policy, and restores the domain from the newest archived snapshot
// when a transaction fails.
//
// The skip policy mirrors the in-memory snapshot provider: negative means
// manual snapshots only, zero snapshots every commit, and a positive count
// skips that many commits between snapshots. Feed documents are archived on
// every commit regardless, so a restore from an older snapshot loses no
// history - the skipped transactions remain replayable.
type Client struct {
	domain.BaseClient

	a       *Archive
	comp    wire.Compression
	skip    int
	skipped int
	timeout time.Duration
	primed  bool
}

// NewClient creates an archive chain member with the given snapshot skip
// policy and body compression. The caller retains ownership of the archive
// and closes it after the domain is disposed.
func NewClient(a *Archive, skip int, comp wire.Compression) *Client {
	return &Client{a: a, comp: comp, skip: skip, timeout: defaultTimeout}
}

// CanRestore reports whether a snapshot has been archived to roll back to.
func (c *Client) CanRestore() bool { return c.primed }

// OnTransactionStart archives the pre-transaction state the first time it
// runs, so even the very first transaction has a rollback target.
func (c *Client) OnTransactionStart(d *domain.Domain, _ time.Time) error {
	if c.primed {
		return nil
	}
	return c.TakeSnapshot(d)
}

// OnTransactionCommit archives the transaction's feed document, then applies
// the skip policy to decide whether to archive a snapshot as well. An error
// from either write is critical: the durable archive no longer reflects the
// in-memory graph.
func (c *Client) OnTransactionCommit(sc *domain.SuccessContext) error {
	doc, err := feed.Encode(uint64(sc.Result.Serial), sc.Result.Events)
	if err != nil {
		return fmt.Errorf("archive commit %d: %w", sc.Result.Serial, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.a.WriteFeedDocument(ctx, sc.Domain.Name(), doc); err != nil {
		return fmt.Errorf("archive commit %d: %w", sc.Result.Serial, err)
	}

	if c.skip < 0 {
		return nil
	}
	if c.skip > 0 && c.skipped < c.skip {
		c.skipped++
		return nil
	}
	c.skipped = 0
	return c.TakeSnapshot(sc.Domain)
}

// OnTransactionFailure restores the domain from the newest archived
// snapshot, then truncates feed documents past the restored serial so the
// archived chain matches the rewound graph.
func (c *Client) OnTransactionFailure(d *domain.Domain, _ []error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snap, err := c.a.ReadLatestSnapshot(ctx, d.Name())
	if err != nil {
		return fmt.Errorf("restore %q: %w", d.Name(), err)
	}
	if err := d.Restore(bytes.NewReader(snap.Body)); err != nil {
		return fmt.Errorf("restore %q: %w", d.Name(), err)
	}
	return c.a.TruncateFeedAbove(ctx, d.Name(), d.Serial())
}

// TakeSnapshot archives the domain's current state on demand. With a
// negative skip policy this is the only way snapshots reach the archive.
func (c *Client) TakeSnapshot(d *domain.Domain) error {
	var buf bytes.Buffer
	if err := d.Save(&buf, c.comp, c.timeout); err != nil {
		return fmt.Errorf("snapshot %q: %w", d.Name(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.a.WriteSnapshot(ctx, d.Name(), d.Serial(), d.LastCommitTime(), c.comp, buf.Bytes()); err != nil {
		return fmt.Errorf("snapshot %q: %w", d.Name(), err)
	}

	c.skipped = 0
	c.primed = true
	return nil
}
