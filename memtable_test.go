package tiersearch

import "testing"

// ═══════════════════════════════════════════════════════════════════════════════
// MEMTABLE ADD_DOCUMENT CONTRACT TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestMemtable_AddDocument_AccumulatesPostings(t *testing.T) {
	mt := NewMemtable(NewArena(false), false)

	mt.AddDocument(DocRefFromUint64(1), []TermFreq{{Term: "quick", TF: 1}, {Term: "fox", TF: 1}}, 2)
	mt.AddDocument(DocRefFromUint64(2), []TermFreq{{Term: "quick", TF: 3}}, 3)

	pl := mt.TermPostings("quick")
	if pl == nil {
		t.Fatal("expected posting list for 'quick'")
	}
	if pl.DocFreq() != 2 {
		t.Errorf("docFreq = %d, want 2", pl.DocFreq())
	}

	if mt.TermPostings("fox").DocFreq() != 1 {
		t.Errorf("expected docFreq 1 for 'fox'")
	}
	if mt.TermPostings("absent") != nil {
		t.Error("expected nil posting list for unindexed term")
	}
}

func TestMemtable_AddDocument_SumsRepeatedTFForSameDoc(t *testing.T) {
	mt := NewMemtable(NewArena(false), false)
	doc := DocRefFromUint64(1)

	mt.AddDocument(doc, []TermFreq{{Term: "quick", TF: 2}}, 2)
	mt.AddDocument(doc, []TermFreq{{Term: "quick", TF: 1}}, 2)

	pl := mt.TermPostings("quick")
	entries := pl.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after repeated insert of same doc, got %d", len(entries))
	}
	if entries[0].TF != 3 {
		t.Errorf("tf = %d, want 3 (summed)", entries[0].TF)
	}
}

func TestMemtable_Totals(t *testing.T) {
	mt := NewMemtable(NewArena(false), false)
	mt.AddDocument(DocRefFromUint64(1), []TermFreq{{Term: "a", TF: 1}, {Term: "b", TF: 1}}, 2)
	mt.AddDocument(DocRefFromUint64(2), []TermFreq{{Term: "a", TF: 1}}, 1)

	if mt.DocCount() != 2 {
		t.Errorf("DocCount = %d, want 2", mt.DocCount())
	}
	if mt.LengthSum() != 3 {
		t.Errorf("LengthSum = %d, want 3", mt.LengthSum())
	}
	if mt.TotalPostings() != 3 {
		t.Errorf("TotalPostings = %d, want 3", mt.TotalPostings())
	}
}

func TestMemtable_Clear_BuildModeDestroysArena(t *testing.T) {
	arena := NewArena(true)
	mt := NewMemtable(arena, true)
	mt.AddDocument(DocRefFromUint64(1), []TermFreq{{Term: "a", TF: 1}}, 1)

	genBefore := arena.Generation()
	mt.Clear()

	if arena.Generation() == genBefore {
		t.Error("expected arena generation to bump on build-mode clear")
	}
	if !mt.IsEmpty() {
		t.Error("expected memtable empty after Clear")
	}
	if mt.TermPostings("a") != nil {
		t.Error("expected no postings after Clear")
	}
}

func TestMemtable_Terms_SortedOrder(t *testing.T) {
	mt := NewMemtable(NewArena(false), false)
	mt.AddDocument(DocRefFromUint64(1), []TermFreq{{Term: "zebra", TF: 1}, {Term: "apple", TF: 1}, {Term: "mango", TF: 1}}, 3)

	terms := mt.Terms()
	want := []string{"apple", "mango", "zebra"}
	if len(terms) != len(want) {
		t.Fatalf("got %v, want %v", terms, want)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("terms[%d] = %q, want %q", i, terms[i], want[i])
		}
	}
}
