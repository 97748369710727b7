package tiersearch

import (
	"log/slog"
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COMPACTION CASCADE TESTS (§8.3 scenario 3, §8.1 invariant 5)
// ═══════════════════════════════════════════════════════════════════════════════

func spillOneDoc(t *testing.T, store PageStore, mp *Metapage, term string, doc DocRef) {
	t.Helper()
	mt := NewMemtable(NewArena(false), false)
	mt.AddDocument(doc, []TermFreq{{Term: term, TF: 1}}, 1)

	writer := NewSegmentWriter(store)
	root, err := writer.Write(mt, 0, mp.LevelHeads[0], int64(doc.Uint64()))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	mp.LevelHeads[0] = root
	mp.LevelCounts[0]++
}

func TestCompactor_CascadeWithFanoutTwo(t *testing.T) {
	store := openTestStore(t)
	store.AllocateNew() // reserve block 0 for the metapage, like a real index

	mp := NewMetapage(0, 1.2, 0.75)
	compactor := NewCompactor(store, 2, slog.Default())

	terms := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, term := range terms {
		spillOneDoc(t, store, mp, term, DocRefFromUint64(uint64(i+1)))
		if _, err := compactor.MaybeCompact(mp, 0); err != nil {
			t.Fatalf("MaybeCompact after spill %d: %v", i, err)
		}

		for lvl := 0; lvl < Lmax; lvl++ {
			ok, err := verifyChainIntegrity(store, mp.LevelHeads[lvl], int(mp.LevelCounts[lvl]))
			if err != nil {
				t.Fatalf("verifyChainIntegrity level %d after spill %d: %v", lvl, i, err)
			}
			if !ok {
				t.Errorf("chain integrity broken at level %d after spill %d", lvl, i)
			}
		}
	}

	if mp.LevelHeads[0] != NullBlock || mp.LevelCounts[0] != 0 {
		t.Errorf("expected L0 empty after cascade, got head=%v count=%d", mp.LevelHeads[0], mp.LevelCounts[0])
	}
	if mp.LevelHeads[1] != NullBlock || mp.LevelCounts[1] != 0 {
		t.Errorf("expected L1 empty after cascade, got head=%v count=%d", mp.LevelHeads[1], mp.LevelCounts[1])
	}
	if mp.LevelCounts[2] != 1 {
		t.Errorf("expected 1 segment at L2, got %d", mp.LevelCounts[2])
	}
	if mp.LevelCounts[3] != 1 {
		t.Errorf("expected 1 segment at L3, got %d", mp.LevelCounts[3])
	}

	l2, err := OpenSegment(store, mp.LevelHeads[2])
	if err != nil {
		t.Fatalf("OpenSegment L2: %v", err)
	}
	if l2.NumDocs() != 4 {
		t.Errorf("L2 segment has %d docs, want 4", l2.NumDocs())
	}
	l3, err := OpenSegment(store, mp.LevelHeads[3])
	if err != nil {
		t.Fatalf("OpenSegment L3: %v", err)
	}
	if l3.NumDocs() != 4 {
		t.Errorf("L3 segment has %d docs, want 4", l3.NumDocs())
	}
}

func TestCompactor_MergePreservesAllTerms(t *testing.T) {
	store := openTestStore(t)
	store.AllocateNew()
	mp := NewMetapage(0, 1.2, 0.75)
	compactor := NewCompactor(store, 2, slog.Default())

	// Terms whose FNV-1a hash order differs from their string order (the
	// same fixture segment_test.go uses to catch the dictionary-ordering
	// bug), spread across two source segments so the merged dictionary
	// must also come out hash-sorted.
	spillOneDoc(t, store, mp, "quick", DocRefFromUint64(1))
	spillOneDoc(t, store, mp, "brown", DocRefFromUint64(2))
	if _, err := compactor.MaybeCompact(mp, 0); err != nil {
		t.Fatalf("MaybeCompact: %v", err)
	}

	if mp.LevelCounts[1] != 1 {
		t.Fatalf("expected merge to L1, got L1 count=%d", mp.LevelCounts[1])
	}
	sr, err := OpenSegment(store, mp.LevelHeads[1])
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	if sr.GetPostings("quick") == nil || sr.GetPostings("brown") == nil {
		t.Error("expected merged segment to contain both source terms")
	}
}
