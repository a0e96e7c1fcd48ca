package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/graveldb/gravel/internal/feed"
	"github.com/graveldb/gravel/internal/wire"
)

// Snapshot is one archived binary domain image.
type Snapshot struct {
	Domain      string
	Serial      uint32
	CommitTime  time.Time
	Compression wire.Compression
	Body        []byte
}

// ReadLatestSnapshot retrieves the newest snapshot of a domain.
// Returns sql.ErrNoRows if the domain has no archived snapshot.
func (a *Archive) ReadLatestSnapshot(ctx context.Context, domain string) (Snapshot, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT domain, serial, commit_time, compression, body
		FROM snapshots
		WHERE domain = ?
		ORDER BY serial DESC
		LIMIT 1
	`, domain)

	return scanSnapshot(row)
}

// ReadSnapshot retrieves the snapshot of a domain at an exact serial.
// Returns sql.ErrNoRows if not found.
func (a *Archive) ReadSnapshot(ctx context.Context, domain string, serial uint32) (Snapshot, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT domain, serial, commit_time, compression, body
		FROM snapshots
		WHERE domain = ? AND serial = ?
	`, domain, serial)

	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (Snapshot, error) {
	var (
		snap       Snapshot
		commitTime int64
		comp       int
	)
	if err := row.Scan(&snap.Domain, &snap.Serial, &commitTime, &comp, &snap.Body); err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	if commitTime != 0 {
		snap.CommitTime = time.Unix(0, commitTime).UTC()
	}
	snap.Compression = wire.Compression(comp)
	return snap, nil
}

// ReadFeedDocuments returns every feed document of the domain with n greater
// than after, parsed and ordered by n ascending. The ascending order is the
// replay contract: consumers apply documents with strictly consecutive n.
//
// Returns an empty slice (not nil) if no documents qualify.
func (a *Archive) ReadFeedDocuments(ctx context.Context, domain string, after uint32) ([]*feed.Document, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT body
		FROM feed_documents
		WHERE domain = ? AND n > ?
		ORDER BY n ASC
	`, domain, after)
	if err != nil {
		return nil, fmt.Errorf("query feed documents: %w", err)
	}
	defer rows.Close()

	docs := []*feed.Document{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan feed document: %w", err)
		}
		doc, err := feed.Unmarshal([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("parse feed document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed documents: %w", err)
	}

	return docs, nil
}

// ReadFeedDocument retrieves a single document by transaction number.
// Returns sql.ErrNoRows if not found.
func (a *Archive) ReadFeedDocument(ctx context.Context, domain string, n uint32) (*feed.Document, error) {
	var body string
	err := a.db.QueryRowContext(ctx, `
		SELECT body FROM feed_documents WHERE domain = ? AND n = ?
	`, domain, n).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("read feed document: %w", err)
	}
	return feed.Unmarshal([]byte(body))
}

// Domains lists every domain name present in the archive, from either
// table, ordered lexically for deterministic output.
func (a *Archive) Domains(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT domain FROM snapshots
		UNION
		SELECT domain FROM feed_documents
		ORDER BY domain ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}

	return names, nil
}
