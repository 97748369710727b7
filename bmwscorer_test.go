package tiersearch

import (
	"math"
	"testing"
)

func threeDocMemtable() *Memtable {
	mt := NewMemtable(NewArena(false), false)
	mt.AddDocument(DocRefFromUint64(1), []TermFreq{{Term: "cat", TF: 1}, {Term: "mat", TF: 1}}, 2)
	mt.AddDocument(DocRefFromUint64(2), []TermFreq{{Term: "cat", TF: 2}, {Term: "dog", TF: 1}}, 3)
	mt.AddDocument(DocRefFromUint64(3), []TermFreq{{Term: "dog", TF: 1}, {Term: "mat", TF: 1}}, 2)
	return mt
}

// ═══════════════════════════════════════════════════════════════════════════════
// BMW SCORER TESTS (§8.1 invariants 1–2, §8.2 boundaries, §8.3 scenario 1)
// ═══════════════════════════════════════════════════════════════════════════════

func TestBMWScorer_RanksByBM25Descending(t *testing.T) {
	mt := threeDocMemtable()
	sources := []DataSource{newMemtableSource(mt)}
	scorer := NewBMWScorer(1.2, 0.75)

	avgDL := float64(mt.LengthSum()) / float64(mt.DocCount())
	results, stats := scorer.Score(sources, []TermFreq{{Term: "cat", TF: 1}}, 10, 3, avgDL)
	if len(results) != 2 {
		t.Fatalf("expected 2 docs containing 'cat', got %d", len(results))
	}
	// "cat" is in 2 of 3 docs, so idf = ln(1.5/2.5) is negative: doc 2's
	// higher tf (2 vs 1) makes its score more negative, and doc 1 ranks first.
	if results[0].Doc != DocRefFromUint64(1) {
		t.Errorf("expected doc 1 to rank first, got %v", results[0].Doc)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not descending: %v", results)
	}
	if stats.DocsInResults != 2 {
		t.Errorf("DocsInResults = %d, want 2", stats.DocsInResults)
	}
}

func TestBMWScorer_TieBreakLowerDocRefWins(t *testing.T) {
	mt := NewMemtable(NewArena(false), false)
	mt.AddDocument(DocRefFromUint64(5), []TermFreq{{Term: "x", TF: 1}}, 1)
	mt.AddDocument(DocRefFromUint64(3), []TermFreq{{Term: "x", TF: 1}}, 1)
	sources := []DataSource{newMemtableSource(mt)}
	scorer := NewBMWScorer(1.2, 0.75)

	results, _ := scorer.Score(sources, []TermFreq{{Term: "x", TF: 1}}, 10, 2, 1)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score != results[1].Score {
		t.Fatalf("expected equal scores for this fixture, got %v", results)
	}
	if results[0].Doc.Compare(results[1].Doc) >= 0 {
		t.Errorf("expected lower doc_ref first on tie, got %v then %v", results[0].Doc, results[1].Doc)
	}
}

func TestBMWScorer_TermAbsentFromCorpusYieldsNoResults(t *testing.T) {
	mt := threeDocMemtable()
	sources := []DataSource{newMemtableSource(mt)}
	scorer := NewBMWScorer(1.2, 0.75)

	results, stats := scorer.Score(sources, []TermFreq{{Term: "nonexistent", TF: 1}}, 10, 3, 2)
	if len(results) != 0 {
		t.Errorf("expected no results for an absent term, got %v", results)
	}
	if stats.DocsScored != 0 {
		t.Errorf("expected 0 docs scored, got %d", stats.DocsScored)
	}
}

func TestBMWScorer_LimitLargerThanCorpusReturnsAll(t *testing.T) {
	mt := threeDocMemtable()
	sources := []DataSource{newMemtableSource(mt)}
	scorer := NewBMWScorer(1.2, 0.75)

	results, _ := scorer.Score(sources, []TermFreq{{Term: "dog", TF: 1}}, 1_000_000, 3, 2)
	if len(results) != 2 {
		t.Errorf("expected both docs containing 'dog', got %d", len(results))
	}
}

func TestBMWScorer_ZeroLimitReturnsNothing(t *testing.T) {
	mt := threeDocMemtable()
	sources := []DataSource{newMemtableSource(mt)}
	scorer := NewBMWScorer(1.2, 0.75)

	results, stats := scorer.Score(sources, []TermFreq{{Term: "cat", TF: 1}}, 0, 3, 2)
	if results != nil {
		t.Errorf("expected nil results for k=0, got %v", results)
	}
	if stats.DocsScored != 0 {
		t.Errorf("expected no work done for k=0")
	}
}

func TestIDF_NegativeForVeryCommonTerm(t *testing.T) {
	// A term present in every document of a large corpus has df ≈ N, so
	// idf should go negative per the GLOSSARY formula (no +1 smoothing term).
	v := IDF(1000, 999)
	if v >= 0 {
		t.Errorf("IDF(1000, 999) = %f, expected negative", v)
	}
}

func TestIDF_SingleDocumentCorpus(t *testing.T) {
	v := IDF(1, 1)
	want := math.Log(0.5 / 1.5)
	if math.Abs(v-want) > 1e-9 {
		t.Errorf("IDF(1,1) = %f, want %f", v, want)
	}
}

func TestUpperBound_MonotoneUnderMaxTF(t *testing.T) {
	lo := upperBound(1.0, 1, 5, 1.2, 0.75, 10)
	hi := upperBound(1.0, 10, 5, 1.2, 0.75, 10)
	if hi < lo {
		t.Errorf("expected upper bound to grow with block max tf: lo=%f hi=%f", lo, hi)
	}
}

func TestUpperBound_DominatesAnyActualScoreInBlock(t *testing.T) {
	// §8.1 invariant 2: upper bound for a block must never be smaller than
	// the actual score of any doc within it.
	idf := 1.3
	k1, b, avgDL := 1.2, 0.75, 10.0
	maxTF, minNorm := int32(5), 3.0
	ub := upperBound(idf, maxTF, minNorm, k1, b, avgDL)

	for _, tf := range []int32{1, 2, 3, 4, 5} {
		for _, dl := range []float64{3, 4, 6, 10} {
			actual := scoreTermAt(idf, tf, 1, dl, avgDL, k1, b)
			if actual > ub+1e-9 {
				t.Errorf("actual score %f exceeds upper bound %f (tf=%d dl=%f)", actual, ub, tf, dl)
			}
		}
	}
}
