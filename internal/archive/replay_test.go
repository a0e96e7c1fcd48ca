package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/feed"
)

func TestReplay_RebuildsGraphFromDocuments(t *testing.T) {
	a := createTestArchive(t)
	ctx := context.Background()

	for n, value := range []string{"first", "second", "third"} {
		if err := a.WriteFeedDocument(ctx, "cars", createTestDocument(t, uint64(n+1), value)); err != nil {
			t.Fatalf("WriteFeedDocument() failed: %v", err)
		}
	}

	m, report, err := a.Replay(ctx, "cars", 0)
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}

	if report.Documents != 3 {
		t.Errorf("documents = %d, expected 3", report.Documents)
	}
	if report.LastApplied != 3 {
		t.Errorf("last applied = %d, expected 3", report.LastApplied)
	}
	if m.LastApplied() != 3 {
		t.Errorf("mirror last applied = %d, expected 3", m.LastApplied())
	}

	obj := m.Object(0)
	if obj == nil {
		t.Fatal("object 0 missing from mirror")
	}
	if got := obj.Props[0]; got != event.String("third") {
		t.Errorf("property = %v, expected %q (last write wins)", got, "third")
	}
}

func TestReplay_DetectsGap(t *testing.T) {
	a := createTestArchive(t)
	ctx := context.Background()

	if err := a.WriteFeedDocument(ctx, "cars", createTestDocument(t, 1, "a")); err != nil {
		t.Fatalf("WriteFeedDocument() failed: %v", err)
	}
	// Document 2 is missing.
	if err := a.WriteFeedDocument(ctx, "cars", createTestDocument(t, 3, "c")); err != nil {
		t.Fatalf("WriteFeedDocument() failed: %v", err)
	}

	_, _, err := a.Replay(ctx, "cars", 0)
	if err == nil {
		t.Fatal("expected a gap error, got nil")
	}
	if !strings.Contains(err.Error(), "document 3") {
		t.Errorf("error should name the offending document: %v", err)
	}
}

func TestReplay_ResumesAfterSerial(t *testing.T) {
	a := createTestArchive(t)
	ctx := context.Background()

	for n := uint64(1); n <= 2; n++ {
		if err := a.WriteFeedDocument(ctx, "cars", createTestDocument(t, n, "v")); err != nil {
			t.Fatalf("WriteFeedDocument() failed: %v", err)
		}
	}
	doc, err := feed.Encode(3, []event.Event{event.Created{ID: 1, Kind: event.KindSet}})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if err := a.WriteFeedDocument(ctx, "cars", doc); err != nil {
		t.Fatalf("WriteFeedDocument() failed: %v", err)
	}

	m, report, err := a.Replay(ctx, "cars", 2)
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if report.Documents != 1 {
		t.Errorf("documents = %d, expected 1", report.Documents)
	}
	if m.Object(1) == nil {
		t.Error("object 1 missing from resumed mirror")
	}
	if m.Object(0) != nil {
		t.Error("object 0 predates the resume point and must not appear")
	}
}

func TestReplay_EmptyDomainYieldsEmptyMirror(t *testing.T) {
	a := createTestArchive(t)

	m, report, err := a.Replay(context.Background(), "ghosts", 0)
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("mirror has %d objects, expected 0", m.Len())
	}
	if report.LastApplied != 0 {
		t.Errorf("last applied = %d, expected 0", report.LastApplied)
	}
}
