package tiersearch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
)

func newTestIndexStore(t *testing.T) (*FilePageStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.idx")
	store, err := OpenFilePageStore(path)
	if err != nil {
		t.Fatalf("OpenFilePageStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

// ═══════════════════════════════════════════════════════════════════════════════
// INDEX LIFECYCLE TESTS (§8.3 scenarios 4, 5, 6)
// ═══════════════════════════════════════════════════════════════════════════════

func TestIndex_UpdateSemantics_OldPostingReachableUntilCompaction(t *testing.T) {
	store, _ := newTestIndexStore(t)
	store.AllocateNew() // metapage block

	opts := DefaultIndexOptions()
	opts.TextConfig = "english"
	registry := NewRegistry()

	scanner := NewSliceHeapScanner(rowsFromPairs("alpha"))
	idx, _, err := CreateIndex(context.Background(), "idx1", store, opts, scanner, registry, nil, slog.Default())
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	doc := DocRefFromUint64(1)
	if err := idx.Insert(doc, "beta"); err != nil {
		t.Fatalf("Insert (update): %v", err)
	}

	results, _, err := idx.Search("alpha")
	if err != nil {
		t.Fatalf("Search(alpha): %v", err)
	}
	foundOld := false
	for _, r := range results {
		if r.Doc == doc {
			foundOld = true
		}
	}
	if !foundOld {
		t.Error("expected the original posting under 'alpha' to still be reachable before compaction")
	}

	results, _, err = idx.Search("beta")
	if err != nil {
		t.Fatalf("Search(beta): %v", err)
	}
	foundNew := false
	for _, r := range results {
		if r.Doc == doc {
			foundNew = true
		}
	}
	if !foundNew {
		t.Error("expected the updated posting under 'beta' to be reachable")
	}
}

func TestIndex_CrashRecovery_PendingReplayThenSearchable(t *testing.T) {
	store, _ := newTestIndexStore(t)
	store.AllocateNew()

	opts := DefaultIndexOptions()
	opts.TextConfig = "english"
	registry := NewRegistry()

	idx, _, err := CreateIndex(context.Background(), "idx1", store, opts, NewSliceHeapScanner(nil), registry, nil, slog.Default())
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	doc := DocRefFromUint64(42)
	if err := idx.Insert(doc, "gamma delta"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Simulate a crash: the docid-log append for doc 42 made it to disk,
	// but the memtable holding its terms did not (it lives only in
	// process memory). Persist the metapage's docid-log anchor — the
	// only state a real host WAL would have durably recorded — then drop
	// the in-memory Index entirely and reopen against the same store.
	if err := idx.state.metapage.Save(store); err != nil {
		t.Fatalf("Save metapage: %v", err)
	}

	registry2 := NewRegistry()
	reopened, err := OpenIndex("idx1", store, opts, registry2, nil, slog.Default())
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}

	pending := reopened.PendingReplayDocuments()
	if len(pending) != 1 || pending[0] != doc {
		t.Fatalf("PendingReplayDocuments() = %v, want [%v]", pending, doc)
	}

	// Before replay, the document's terms are not yet in the reopened
	// memtable.
	results, _, err := reopened.Search("gamma")
	if err != nil {
		t.Fatalf("Search before replay: %v", err)
	}
	for _, r := range results {
		if r.Doc == doc {
			t.Fatal("expected doc not yet searchable before ReplayDocument")
		}
	}

	if err := reopened.ReplayDocument(doc, "gamma delta"); err != nil {
		t.Fatalf("ReplayDocument: %v", err)
	}
	if got := reopened.PendingReplayDocuments(); len(got) != 0 {
		t.Errorf("expected no pending replay docs after ReplayDocument, got %v", got)
	}

	results, _, err = reopened.Search("gamma")
	if err != nil {
		t.Fatalf("Search after replay: %v", err)
	}
	found := false
	for _, r := range results {
		if r.Doc == doc {
			found = true
		}
	}
	if !found {
		t.Error("expected doc searchable after ReplayDocument")
	}
}

func TestIndex_LimitPushdown_TightLimitSkipsMoreBlocks(t *testing.T) {
	store, _ := newTestIndexStore(t)
	store.AllocateNew()

	opts := DefaultIndexOptions()
	opts.TextConfig = "english"
	registry := NewRegistry()

	rows := make([]HeapRow, 0, 400)
	for i := 0; i < 400; i++ {
		rows = append(rows, HeapRow{Doc: DocRefFromUint64(uint64(i + 1)), Text: fmt.Sprintf("common word%d", i)})
	}
	idx, _, err := CreateIndex(context.Background(), "idx1", store, opts, NewSliceHeapScanner(rows), registry, nil, slog.Default())
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	idx.SetLimit(1)
	_, tightStats, err := idx.Search("common")
	if err != nil {
		t.Fatalf("Search (tight limit): %v", err)
	}

	idx.SetLimit(400)
	_, wideStats, err := idx.Search("common")
	if err != nil {
		t.Fatalf("Search (wide limit): %v", err)
	}

	if tightStats.BlocksSkipped <= wideStats.BlocksSkipped {
		t.Errorf("expected tight limit to skip more blocks than wide limit: tight=%d wide=%d",
			tightStats.BlocksSkipped, wideStats.BlocksSkipped)
	}
	if tightStats.DocsScored > wideStats.DocsScored {
		t.Errorf("expected tight limit to score no more docs than wide limit: tight=%d wide=%d",
			tightStats.DocsScored, wideStats.DocsScored)
	}
}
