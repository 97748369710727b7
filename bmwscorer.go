package tiersearch

import (
	"container/heap"
	"math"
	"sort"
)

// BMWStats is the scorer's observable counters (§4.8, original's
// TpBMWStats in segment/bmw.c), kept as the shape that feeds both a
// returned Go struct for unit tests and the mirrored Prometheus counters
// (SPEC_FULL §4 "Metrics surface").
type BMWStats struct {
	DocsScored    int64
	BlocksSkipped int64
	BlocksScanned int64
	DocsInResults int64
}

// ScoredDoc is one ranked result: a document and its BM25 sum across query
// terms. Score is always non-negative-oriented positive BM25 (Open
// Question 1's resolution) — sign flip for an ascending ORDER BY happens
// only at the scan driver boundary (scan.go), never here.
type ScoredDoc struct {
	Doc   DocRef
	Score float64
}

// termBlock is a synthetic BMW block built by merging one term's postings
// across every active data source into doc_ref order, then re-chunking
// into fixed-size groups (postingBlockSize). Reusing on-disk skip entries
// directly isn't possible once memtable and multiple segments are merged
// for one term, since their per-source block boundaries don't align; a
// fresh upper bound is recomputed per merged chunk instead, keeping the
// same monotone-upper-bound guarantee (§8.1 invariant 2) the spec requires.
type termBlock struct {
	startIdx, endIdx int // [start, end) into termCursor.postings
	maxTF            int32
	minNorm          float64
}

type termCursor struct {
	term     string
	idf      float64
	qtf      int32
	postings []Posting
	lengths  []float64 // parallel to postings; doc length of each entry
	blocks   []termBlock
	pos      int
	blockIdx int
}

func (tc *termCursor) exhausted() bool { return tc.pos >= len(tc.postings) }

func (tc *termCursor) currentDoc() (DocRef, bool) {
	if tc.exhausted() {
		return DocRef{}, false
	}
	return tc.postings[tc.pos].DocRef, true
}

// currentBlock returns the block covering tc.pos, advancing blockIdx if
// needed.
func (tc *termCursor) currentBlock() *termBlock {
	for tc.blockIdx < len(tc.blocks) && tc.pos >= tc.blocks[tc.blockIdx].endIdx {
		tc.blockIdx++
	}
	if tc.blockIdx >= len(tc.blocks) {
		return nil
	}
	return &tc.blocks[tc.blockIdx]
}

// upperBound computes bm25_upper(t, block) from §4.8: idf(t) ·
// (tf_max·(k1+1)) / (tf_max + k1·(1−b + b·(dl_min/avg_dl))).
func upperBound(idf float64, maxTF int32, minNorm, k1, b, avgDL float64) float64 {
	if avgDL <= 0 {
		avgDL = 1
	}
	denom := float64(maxTF) + k1*(1-b+b*(minNorm/avgDL))
	if denom <= 0 {
		return 0
	}
	return idf * (float64(maxTF) * (k1 + 1)) / denom
}

// scoreTermAt computes idf(t)·((k1+1)·tf)/(tf+k1·(1−b+b·dl/avg_dl))·qtf(t),
// the per-term summand of §4.8's score(d).
func scoreTermAt(idf float64, tf int32, qtf int32, dl, avgDL, k1, b float64) float64 {
	if avgDL <= 0 {
		avgDL = 1
	}
	denom := float64(tf) + k1*(1-b+b*(dl/avgDL))
	if denom <= 0 {
		return 0
	}
	return idf * (float64(tf) * (k1 + 1)) / denom * float64(qtf)
}

// IDF computes ln((N−df+0.5)/(df+0.5)) (GLOSSARY), which may be negative
// for very common terms.
func IDF(n, df int) float64 {
	return math.Log((float64(n) - float64(df) + 0.5) / (float64(df) + 0.5))
}

// topKHeap is the bounded min-heap of §4.8, keyed by (score, -doc_ref) so
// that on equal scores the entry with the *larger* doc_ref sits nearer the
// top (evicted first), giving the required "lower doc_ref wins" tie-break
// in the final descending output. Grounded on the original's
// TpTopKHeap (segment/bmw.c): heap_swap/heap_less/sift_up/sift_down,
// reimplemented against container/heap instead of hand-rolled sift
// functions, the idiomatic Go way to express a bounded priority queue.
type topKHeap struct {
	items []ScoredDoc
	k     int
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{k: k}
}

func (h topKHeap) Len() int { return len(h.items) }
func (h topKHeap) Less(i, j int) bool {
	if h.items[i].Score != h.items[j].Score {
		return h.items[i].Score < h.items[j].Score
	}
	return h.items[i].Doc.Compare(h.items[j].Doc) > 0
}
func (h topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x interface{}) {
	h.items = append(h.items, x.(ScoredDoc))
}
func (h *topKHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// threshold returns θ: the current heap minimum if the heap is full,
// else -∞ (no pruning possible yet).
func (h *topKHeap) threshold() float64 {
	if len(h.items) < h.k {
		return math.Inf(-1)
	}
	return h.items[0].Score
}

// offer implements tp_topk_add: push while under capacity; once full,
// replace the current minimum only if the candidate strictly beats it, or
// ties it with a smaller doc_ref (lower doc_ref wins).
func (h *topKHeap) offer(cand ScoredDoc) {
	if len(h.items) < h.k {
		heap.Push(h, cand)
		return
	}
	top := h.items[0]
	better := cand.Score > top.Score || (cand.Score == top.Score && cand.Doc.Compare(top.Doc) < 0)
	if better {
		h.items[0] = cand
		heap.Fix(h, 0)
	}
}

// extract implements tp_topk_extract: drains the heap into descending
// score order with the deterministic tie-break (§8.1 invariant 1).
func (h *topKHeap) extract() []ScoredDoc {
	out := make([]ScoredDoc, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Doc.Compare(out[j].Doc) < 0
	})
	return out
}

// BMWScorer evaluates top-K BM25 queries over a vector of data sources
// using Block-Max WAND pruning (§4.8). Grounded on original_source's
// segment/bmw.c (single-term BMW driver) generalized, per SPEC_FULL §4's
// resolved Open Question, into a genuine multi-term pivot across cursors.
type BMWScorer struct {
	K1, B float64
}

// NewBMWScorer creates a scorer with the given BM25 parameters.
func NewBMWScorer(k1, b float64) *BMWScorer {
	return &BMWScorer{K1: k1, B: b}
}

// Score runs the BMW top-K evaluation for queryTerms (already tokenized
// into (term, qtf) pairs) across sources, returning the ranked results and
// the scorer's observable counters.
func (s *BMWScorer) Score(sources []DataSource, queryTerms []TermFreq, k int, totalDocs int, avgDL float64) ([]ScoredDoc, BMWStats) {
	var stats BMWStats
	if k <= 0 || len(queryTerms) == 0 {
		return nil, stats
	}

	cursors := make([]*termCursor, 0, len(queryTerms))
	for _, qt := range queryTerms {
		tc := s.buildCursor(sources, qt.Term, qt.TF, totalDocs)
		if tc != nil {
			cursors = append(cursors, tc)
		}
	}
	if len(cursors) == 0 {
		return nil, stats
	}

	heapK := newTopKHeap(k)
	scanned := make(map[*termBlock]bool)

	for {
		pivot, pivotDoc, any := pickPivot(cursors)
		if !any {
			break
		}

		block := pivot.currentBlock()
		var upper float64
		if block != nil {
			upper = upperBound(pivot.idf, block.maxTF, block.minNorm, s.K1, s.B, avgDL)
		}
		// Sum in the other cursors' current upper bound too, per §4.8's
		// "sum of all term upper-bounds for a candidate doc."
		for _, tc := range cursors {
			if tc == pivot {
				continue
			}
			if b := tc.currentBlock(); b != nil {
				upper += upperBound(tc.idf, b.maxTF, b.minNorm, s.K1, s.B, avgDL)
			}
		}

		theta := heapK.threshold()
		if block != nil && upper <= theta && !math.IsInf(theta, -1) {
			stats.BlocksSkipped++
			pivot.pos = block.endIdx
			continue
		}
		if block != nil && !scanned[block] {
			scanned[block] = true
			stats.BlocksScanned++
		}

		var total float64
		for _, tc := range cursors {
			doc, ok := tc.currentDoc()
			if !ok || doc != pivotDoc {
				continue
			}
			total += scoreTermAt(tc.idf, tc.postings[tc.pos].TF, tc.qtf, tc.lengths[tc.pos], avgDL, s.K1, s.B)
			tc.pos++
		}
		stats.DocsScored++
		heapK.offer(ScoredDoc{Doc: pivotDoc, Score: total})
	}

	results := heapK.extract()
	stats.DocsInResults = int64(len(results))
	return results, stats
}

// pickPivot returns the non-exhausted cursor with the smallest current
// doc_id (§4.8 "Advance the cursor with the current smallest doc_id among
// all cursors").
func pickPivot(cursors []*termCursor) (*termCursor, DocRef, bool) {
	var pivot *termCursor
	var pivotDoc DocRef
	found := false
	for _, tc := range cursors {
		doc, ok := tc.currentDoc()
		if !ok {
			continue
		}
		if !found || doc.Less(pivotDoc) {
			pivot = tc
			pivotDoc = doc
			found = true
		}
	}
	return pivot, pivotDoc, found
}

// buildCursor merges term's postings across every source into one
// doc_ref-ascending cursor with re-chunked BMW blocks, and computes the
// term's corpus-wide idf from the combined document frequency.
func (s *BMWScorer) buildCursor(sources []DataSource, term string, qtf int32, totalDocs int) *termCursor {
	var merged []Posting
	lengthOf := func(doc DocRef) float64 {
		for _, src := range sources {
			if l, ok := src.DocLength(doc); ok {
				return l
			}
		}
		return 0
	}

	df := 0
	for _, src := range sources {
		postings := src.Postings(term)
		if len(postings) == 0 {
			continue
		}
		df += len(postings)
		merged = append(merged, postings...)
	}
	if len(merged) == 0 {
		return nil
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].DocRef.Less(merged[j].DocRef) })

	lengths := make([]float64, len(merged))
	for i, p := range merged {
		lengths[i] = lengthOf(p.DocRef)
	}

	var blocks []termBlock
	for start := 0; start < len(merged); start += postingBlockSize {
		end := start + postingBlockSize
		if end > len(merged) {
			end = len(merged)
		}
		var maxTF int32
		minNorm := math.Inf(1)
		for i := start; i < end; i++ {
			if merged[i].TF > maxTF {
				maxTF = merged[i].TF
			}
			if lengths[i] < minNorm {
				minNorm = lengths[i]
			}
		}
		blocks = append(blocks, termBlock{startIdx: start, endIdx: end, maxTF: maxTF, minNorm: minNorm})
	}

	return &termCursor{
		term:     term,
		idf:      IDF(totalDocs, df),
		qtf:      qtf,
		postings: merged,
		lengths:  lengths,
		blocks:   blocks,
	}
}
