package archive

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/graveldb/gravel/internal/wire"
)

func TestReadLatestSnapshot_PicksHighestSerial(t *testing.T) {
	a := createTestArchive(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order; the serial decides, not insertion order.
	for _, serial := range []uint32{5, 2, 9, 7} {
		if err := a.WriteSnapshot(ctx, "cars", serial, at, wire.CompressionNone, []byte{byte(serial)}); err != nil {
			t.Fatalf("WriteSnapshot(%d) failed: %v", serial, err)
		}
	}

	snap, err := a.ReadLatestSnapshot(ctx, "cars")
	if err != nil {
		t.Fatalf("ReadLatestSnapshot() failed: %v", err)
	}
	if snap.Serial != 9 {
		t.Errorf("serial = %d, expected 9", snap.Serial)
	}
	if snap.Domain != "cars" {
		t.Errorf("domain = %q, expected %q", snap.Domain, "cars")
	}
}

func TestReadLatestSnapshot_EmptyDomain(t *testing.T) {
	a := createTestArchive(t)

	_, err := a.ReadLatestSnapshot(context.Background(), "ghosts")
	if err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestReadFeedDocuments_OrderedAndFiltered(t *testing.T) {
	a := createTestArchive(t)
	ctx := context.Background()

	// Insert out of order; reads must come back by n ascending.
	for _, n := range []uint64{3, 1, 4, 2} {
		if err := a.WriteFeedDocument(ctx, "cars", createTestDocument(t, n, "v")); err != nil {
			t.Fatalf("WriteFeedDocument(%d) failed: %v", n, err)
		}
	}

	docs, err := a.ReadFeedDocuments(ctx, "cars", 1)
	if err != nil {
		t.Fatalf("ReadFeedDocuments() failed: %v", err)
	}

	got := make([]uint64, len(docs))
	for i, doc := range docs {
		got[i] = doc.N
	}
	if expected := []uint64{2, 3, 4}; !reflect.DeepEqual(got, expected) {
		t.Errorf("document numbers = %v, expected %v", got, expected)
	}
}

func TestReadFeedDocuments_EmptyReturnsEmptySlice(t *testing.T) {
	a := createTestArchive(t)

	docs, err := a.ReadFeedDocuments(context.Background(), "ghosts", 0)
	if err != nil {
		t.Fatalf("ReadFeedDocuments() failed: %v", err)
	}
	if docs == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}

func TestReadFeedDocument_NotFound(t *testing.T) {
	a := createTestArchive(t)

	_, err := a.ReadFeedDocument(context.Background(), "cars", 1)
	if err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDomains_UnionOfBothTables(t *testing.T) {
	a := createTestArchive(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := a.WriteSnapshot(ctx, "cars", 1, at, wire.CompressionNone, []byte{1}); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}
	if err := a.WriteFeedDocument(ctx, "boats", createTestDocument(t, 1, "v")); err != nil {
		t.Fatalf("WriteFeedDocument() failed: %v", err)
	}
	// Present in both tables, listed once.
	if err := a.WriteFeedDocument(ctx, "cars", createTestDocument(t, 1, "v")); err != nil {
		t.Fatalf("WriteFeedDocument() failed: %v", err)
	}

	names, err := a.Domains(ctx)
	if err != nil {
		t.Fatalf("Domains() failed: %v", err)
	}
	if expected := []string{"boats", "cars"}; !reflect.DeepEqual(names, expected) {
		t.Errorf("domains = %v, expected %v", names, expected)
	}
}
