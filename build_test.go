package tiersearch

import (
	"context"
	"log/slog"
	"testing"
)

func rowsFromPairs(pairs ...string) []HeapRow {
	rows := make([]HeapRow, len(pairs))
	for i, text := range pairs {
		rows[i] = HeapRow{Doc: DocRefFromUint64(uint64(i + 1)), Text: text}
	}
	return rows
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUILD / SPILL TESTS (§8.3 scenario 2)
// ═══════════════════════════════════════════════════════════════════════════════

func TestBuildIndex_SpillsAtThreshold(t *testing.T) {
	store := openTestStore(t)
	store.AllocateNew() // block 0 for the metapage

	opts := DefaultIndexOptions()
	opts.TextConfig = "english"
	opts.Tunables.MemtableSpillThreshold = 50

	rows := make([]HeapRow, 0, 60)
	for i := 0; i < 60; i++ {
		rows = append(rows, HeapRow{Doc: DocRefFromUint64(uint64(i + 1)), Text: "alpha beta gamma delta epsilon"})
	}
	scanner := NewSliceHeapScanner(rows)

	result, err := BuildIndex(context.Background(), store, opts, scanner, nil, slog.Default())
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if result.HeapRows != 60 || result.IndexRows != 60 {
		t.Errorf("HeapRows/IndexRows = %d/%d, want 60/60", result.HeapRows, result.IndexRows)
	}
	if result.Metapage.TotalDocs != 60 {
		t.Errorf("TotalDocs = %d, want 60", result.Metapage.TotalDocs)
	}
	// 60 docs * 5 postings = 300 total postings, threshold 50 ⇒ multiple
	// spills must have occurred, leaving at least one L0 (or cascaded
	// higher) segment behind.
	total := uint64(0)
	for _, c := range result.Metapage.LevelCounts {
		total += uint64(c)
	}
	if total == 0 {
		t.Error("expected at least one segment to exist after threshold spills")
	}
}

func TestBuildIndex_EmptyCorpusProducesNoSegments(t *testing.T) {
	store := openTestStore(t)
	store.AllocateNew()

	opts := DefaultIndexOptions()
	opts.TextConfig = "english"
	scanner := NewSliceHeapScanner(nil)

	result, err := BuildIndex(context.Background(), store, opts, scanner, nil, slog.Default())
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if result.HeapRows != 0 || result.Metapage.TotalDocs != 0 {
		t.Errorf("expected an empty build, got %+v", result)
	}
}

func TestBuildIndex_SkipsDocumentsThatTokenizeEmpty(t *testing.T) {
	store := openTestStore(t)
	store.AllocateNew()

	opts := DefaultIndexOptions()
	opts.TextConfig = "english"
	scanner := NewSliceHeapScanner(rowsFromPairs("the a an", "quick fox"))

	result, err := BuildIndex(context.Background(), store, opts, scanner, nil, slog.Default())
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if result.HeapRows != 2 {
		t.Errorf("HeapRows = %d, want 2", result.HeapRows)
	}
	if result.IndexRows != 1 {
		t.Errorf("IndexRows = %d, want 1 (stopword-only doc skipped)", result.IndexRows)
	}
}

func TestBuildIndex_CanceledContextStopsBuild(t *testing.T) {
	store := openTestStore(t)
	store.AllocateNew()

	opts := DefaultIndexOptions()
	opts.TextConfig = "english"
	scanner := NewSliceHeapScanner(rowsFromPairs("quick fox"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildIndex(ctx, store, opts, scanner, nil, slog.Default())
	if err == nil {
		t.Fatal("expected an error for an already-canceled context")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindCanceled {
		t.Errorf("expected KindCanceled, got %v (ok=%v)", kind, ok)
	}
}
