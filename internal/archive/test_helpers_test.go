package archive

import (
	"path/filepath"
	"testing"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/feed"
)

// createTestArchive creates an archive backed by a fresh temp database.
func createTestArchive(t *testing.T) *Archive {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// createTestDocument builds the feed document of a minimal transaction:
// document 1 creates object 0 and declares its property, every document
// writes a property value. Documents built this way form a valid chain.
func createTestDocument(t *testing.T, n uint64, value string) *feed.Document {
	t.Helper()
	var events []event.Event
	if n == 1 {
		events = append(events,
			event.Created{ID: 0, Kind: event.KindPlain},
			event.PropertyDeclared{Prop: 0, Name: "Name"},
		)
	}
	events = append(events, event.PropertySet{ID: 0, Prop: 0, Value: event.String(value)})

	doc, err := feed.Encode(n, events)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	return doc
}
