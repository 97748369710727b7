package tiersearch

import (
	"log/slog"
)

// LimitMap is the backend-local `index_id → K` map §4.10 step 1 looks up
// (populated at plan time in a real host, populated directly by callers
// here — §2 "Query LIMIT pushdown").
type LimitMap struct {
	limits map[string]int
}

// NewLimitMap creates an empty pushdown map.
func NewLimitMap() *LimitMap {
	return &LimitMap{limits: make(map[string]int)}
}

// Set records the planned LIMIT for indexID.
func (m *LimitMap) Set(indexID string, k int) {
	m.limits[indexID] = k
}

// Get returns the planned LIMIT for indexID, or DefaultQueryLimit if none
// was pushed down, clamped to MaxQueryLimit (§6.8).
func (m *LimitMap) Get(indexID string) int {
	k, ok := m.limits[indexID]
	if !ok || k <= 0 {
		k = DefaultQueryLimit
	}
	if k > MaxQueryLimit {
		k = MaxQueryLimit
	}
	return k
}

// ScanState is the per-query state of §4.10: candidate arrays, cursor, EOF
// flag, and the cached score slot the ORDER BY expression's late-binding
// function would read in a real host (§9 design note "Late-binding scoring
// value").
type ScanState struct {
	indexID    string
	candidates []ScoredDoc
	cursor     int
	eof        bool

	lastScore float64
}

// BeginScan implements §4.10 steps 1-2: look up the pushed-down LIMIT,
// acquire the shared lock via a TxnGuard, assemble data sources (memtable
// snapshot + every active segment chain), invoke the BMW scorer, and cache
// the resulting cursor. The lock is released before BeginScan returns
// (guard.Close), matching "release the lock" after assembling results.
func BeginScan(state *SharedIndexState, limits *LimitMap, scorer *BMWScorer, query string, tokenizer TokenizerConfig, metrics *Metrics, log *slog.Logger) (*ScanState, BMWStats, error) {
	if log == nil {
		log = slog.Default()
	}
	guard := BeginTxn(state, false, log)
	defer guard.Close()

	k := limits.Get(state.IndexID)

	sources, avgDL, totalDocs, err := assembleSources(state)
	if err != nil {
		return nil, BMWStats{}, err
	}

	queryTerms := TokenizeCounted(query, tokenizer)
	results, stats := scorer.Score(sources, queryTerms, k, totalDocs, avgDL)

	if metrics != nil {
		metrics.Observe(stats)
	}

	return &ScanState{indexID: state.IndexID, candidates: results}, stats, nil
}

// assembleSources builds the memtable-plus-every-segment vector §4.7/§4.10
// require, and the corpus-wide N / avg_dl the scorer needs.
func assembleSources(state *SharedIndexState) ([]DataSource, float64, int, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	var sources []DataSource
	totalDocs := 0
	totalLen := float64(0)

	if state.memtable != nil && !state.memtable.IsEmpty() {
		src := newMemtableSource(state.memtable)
		sources = append(sources, src)
		totalDocs += src.TotalDocs()
		totalLen += src.TotalLen()
	}

	for level := 0; level < Lmax; level++ {
		blk := state.metapage.LevelHeads[level]
		for blk != NullBlock {
			sr, err := OpenSegment(state.store, blk)
			if err != nil {
				return nil, 0, 0, err
			}
			src := newSegmentSource(sr)
			sources = append(sources, src)
			totalDocs += src.TotalDocs()
			totalLen += src.TotalLen()
			blk = sr.NextSegment()
		}
	}

	avgDL := float64(0)
	if totalDocs > 0 {
		avgDL = totalLen / float64(totalDocs)
	}
	return sources, avgDL, totalDocs, nil
}

// GetTuple implements §4.10 step 3: returns the next candidate and
// publishes its score into the cached slot, or reports EOF.
func (s *ScanState) GetTuple() (ScoredDoc, bool) {
	if s.cursor >= len(s.candidates) {
		s.eof = true
		return ScoredDoc{}, false
	}
	doc := s.candidates[s.cursor]
	s.cursor++
	s.lastScore = doc.Score
	return doc, true
}

// OrderByValue returns the current row's score, negated for an ascending
// SQL `ORDER BY text <@> query` (the single documented sign-flip point,
// SPEC_FULL §4 "Sign convention"). The scorer itself never negates.
func (s *ScanState) OrderByValue() float64 {
	return -s.lastScore
}

// EOF reports whether the scan has been exhausted.
func (s *ScanState) EOF() bool {
	return s.eof
}

// EndScan disposes the scan state (§4.10 step 4). There is no scan-scoped
// arena to tear down in this Go port; candidates are simply dropped.
func (s *ScanState) EndScan() {
	s.candidates = nil
}
