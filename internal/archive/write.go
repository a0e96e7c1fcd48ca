package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/graveldb/gravel/internal/feed"
	"github.com/graveldb/gravel/internal/wire"
)

// WriteSnapshot inserts a full binary domain image.
// Uses ON CONFLICT(domain, serial) DO NOTHING for idempotency - re-archiving
// the same serial is silently ignored, which keeps crash-and-retry safe: the
// snapshot at a given serial is deterministic, so the first write is as good
// as any.
func (a *Archive) WriteSnapshot(ctx context.Context, domain string, serial uint32, commitTime time.Time, comp wire.Compression, body []byte) error {
	// The zero time has no representable UnixNano; store it as 0.
	commitNanos := int64(0)
	if !commitTime.IsZero() {
		commitNanos = commitTime.UnixNano()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO snapshots (domain, serial, commit_time, compression, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, serial) DO NOTHING
	`,
		domain,
		serial,
		commitNanos,
		int(comp),
		body,
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}

// WriteFeedDocument inserts the change document of one committed
// transaction, stored as the document's canonical JSON.
// Uses ON CONFLICT(domain, n) DO NOTHING for idempotency - a transaction
// serial is archived at most once.
func (a *Archive) WriteFeedDocument(ctx context.Context, domain string, doc *feed.Document) error {
	body, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("write feed document: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO feed_documents (domain, n, body)
		VALUES (?, ?, ?)
		ON CONFLICT(domain, n) DO NOTHING
	`,
		domain,
		doc.N,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("write feed document: %w", err)
	}

	return nil
}

// TruncateFeedAbove deletes every feed document of the domain with n greater
// than serial. Called after a rollback: the domain rewound past those
// transactions, so replaying them would diverge from the restored state.
func (a *Archive) TruncateFeedAbove(ctx context.Context, domain string, serial uint32) error {
	_, err := a.db.ExecContext(ctx, `
		DELETE FROM feed_documents WHERE domain = ? AND n > ?
	`, domain, serial)
	if err != nil {
		return fmt.Errorf("truncate feed: %w", err)
	}

	return nil
}

// PruneSnapshots deletes every snapshot of the domain except the newest,
// reclaiming space once the older images are no longer needed for rollback.
func (a *Archive) PruneSnapshots(ctx context.Context, domain string) error {
	_, err := a.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE domain = ?
		  AND serial < (SELECT MAX(serial) FROM snapshots WHERE domain = ?)
	`, domain, domain)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	return nil
}
