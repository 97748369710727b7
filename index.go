package tiersearch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Index is the top-level handle a caller opens or creates (§3 "Index").
// It wires together the registry, shared state, metapage, memtable, and
// docid log into the lifecycle §4.9/§4.10 describe: CreateIndex runs a
// build; OpenIndex attaches to an existing one; Insert feeds the memtable
// outside of a full build; BeginScan runs a query; Drop tears it down.
type Index struct {
	id      string
	store   PageStore
	state   *SharedIndexState
	opts    IndexOptions
	limits  *LimitMap
	scorer  *BMWScorer
	metrics *Metrics
	log     *slog.Logger
}

// CreateIndex builds a brand-new index at store's path, driving
// BuildIndex over scanner (§4.9), then leaves the index open for queries.
func CreateIndex(ctx context.Context, indexID string, store PageStore, opts IndexOptions, scanner HeapScanner, registry *Registry, reg prometheus.Registerer, log *slog.Logger) (*Index, *BuildResult, error) {
	if log == nil {
		log = slog.Default()
	}
	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}

	result, err := BuildIndex(ctx, store, opts, scanner, metrics, log)
	if err != nil {
		return nil, nil, err
	}

	arena := NewArena(false)
	mt := NewMemtable(arena, false)
	state, err := registry.Attach(indexID, func() (*SharedIndexState, error) {
		return &SharedIndexState{
			IndexID:  indexID,
			memtable: mt,
			metapage: result.Metapage,
			store:    store,
			docidLog: NewDocidLog(store),
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	idx := &Index{
		id:      indexID,
		store:   store,
		state:   state,
		opts:    opts,
		limits:  NewLimitMap(),
		scorer:  NewBMWScorer(float64(opts.K1), float64(opts.B)),
		metrics: metrics,
		log:     log,
	}
	return idx, result, nil
}

// OpenIndex attaches to an existing index previously built at store's
// path, loading its metapage and replaying the docid log into the list of
// pending doc_refs (§8.3 scenario 5, crash recovery; also the ordinary
// "open after a prior successful commit" path). The runtime memtable starts
// empty; the pending documents' terms enter it only through ReplayDocument.
func OpenIndex(indexID string, store PageStore, opts IndexOptions, registry *Registry, reg prometheus.Registerer, log *slog.Logger) (*Index, error) {
	if log == nil {
		log = slog.Default()
	}
	mp, err := LoadMetapage(store)
	if err != nil {
		return nil, err
	}

	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}

	state, err := registry.Attach(indexID, func() (*SharedIndexState, error) {
		arena := NewArena(false)
		mt := NewMemtable(arena, false)
		docidLog := NewDocidLog(store)

		var pending []DocRef
		if mp.FirstDocidPage != NullBlock {
			// The docid log records identity only (§6.6): doc_ref, no term
			// payload. Every ref it holds already survived into an on-disk
			// segment UNLESS the process crashed between the Insert that
			// appended to the log and the spill that would have written a
			// segment for it. We cannot tell which case applies from the
			// log alone, so we replay every ref into pendingReplay and let
			// ReplayDocument re-add it; re-adding a doc_ref whose terms are
			// already durable is a harmless duplicate post (PostingList.Add
			// sums frequencies, and a stale posting is pruned at the next
			// compaction like any other, per §8.3 scenario 4).
			replayErr := docidLog.Replay(mp.FirstDocidPage, func(doc DocRef) {
				pending = append(pending, doc)
			})
			if replayErr != nil {
				return nil, replayErr
			}
		}

		return &SharedIndexState{
			IndexID:       indexID,
			memtable:      mt,
			metapage:      mp,
			store:         store,
			docidLog:      docidLog,
			pendingReplay: pending,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return &Index{
		id:      indexID,
		store:   store,
		state:   state,
		opts:    opts,
		limits:  NewLimitMap(),
		scorer:  NewBMWScorer(float64(mp.K1), float64(mp.B)),
		metrics: metrics,
		log:     log,
	}, nil
}

// Insert adds one document to the live memtable outside of a full build,
// under an exclusive TxnGuard (§4.2's add_document contract, §5's
// once-per-transaction lock acquisition).
func (idx *Index) Insert(doc DocRef, text string) error {
	guard := BeginTxn(idx.state, true, idx.log)
	defer guard.Close()

	terms := TokenizeCounted(text, idx.opts.Tokenizer)
	var length int32
	for _, t := range terms {
		length += t.TF
	}

	idx.state.mu.Lock()
	idx.state.memtable.AddDocument(doc, terms, length)
	newHead, err := idx.state.docidLog.Append(idx.state.metapage.FirstDocidPage, doc)
	idx.state.mu.Unlock()
	if err != nil {
		return err
	}
	idx.state.metapage.FirstDocidPage = newHead
	guard.RecordTermsAdded(len(terms))

	if guard.ShouldBulkSpill(int64(idx.opts.Tunables.BulkLoadThreshold)) {
		return idx.spill()
	}
	if idx.state.memtable.TotalPostings() >= int64(idx.opts.Tunables.MemtableSpillThreshold) {
		return idx.spill()
	}
	return nil
}

// PendingReplayDocuments returns the doc_refs recovered from the docid log
// at open time that the caller must re-submit via ReplayDocument before
// they are guaranteed searchable (§8.3 scenario 5). Empty on a clean open.
func (idx *Index) PendingReplayDocuments() []DocRef {
	idx.state.mu.Lock()
	defer idx.state.mu.Unlock()
	out := make([]DocRef, len(idx.state.pendingReplay))
	copy(out, idx.state.pendingReplay)
	return out
}

// ReplayDocument re-indexes doc's original text after crash recovery,
// without appending another entry to the docid log (it is already there
// from before the crash). Callers drive this for every doc_ref returned by
// PendingReplayDocuments, typically from their own durable document store.
func (idx *Index) ReplayDocument(doc DocRef, text string) error {
	guard := BeginTxn(idx.state, true, idx.log)
	defer guard.Close()

	terms := TokenizeCounted(text, idx.opts.Tokenizer)
	var length int32
	for _, t := range terms {
		length += t.TF
	}

	idx.state.mu.Lock()
	idx.state.memtable.AddDocument(doc, terms, length)
	for i, ref := range idx.state.pendingReplay {
		if ref == doc {
			idx.state.pendingReplay = append(idx.state.pendingReplay[:i], idx.state.pendingReplay[i+1:]...)
			break
		}
	}
	idx.state.mu.Unlock()
	guard.RecordTermsAdded(len(terms))
	return nil
}

func (idx *Index) spill() error {
	idx.state.mu.Lock()
	defer idx.state.mu.Unlock()
	compactor := NewCompactor(idx.store, idx.opts.Tunables.SegmentsPerLevel, idx.log)
	return spillMemtable(idx.store, idx.state.memtable, idx.state.metapage, idx.state.docidLog, compactor, idx.metrics, idx.log)
}

// Search runs a BM25 top-K query (§4.10), with LIMIT optionally pushed
// down in advance via SetLimit.
func (idx *Index) Search(query string) ([]ScoredDoc, BMWStats, error) {
	scan, stats, err := BeginScan(idx.state, idx.limits, idx.scorer, query, idx.opts.Tokenizer, idx.metrics, idx.log)
	if err != nil {
		return nil, stats, err
	}
	return scan.candidates, stats, nil
}

// SetLimit pushes down the planned LIMIT for this index's subsequent
// queries (§2 "Query LIMIT pushdown").
func (idx *Index) SetLimit(k int) {
	idx.limits.Set(idx.id, k)
}

// Metapage exposes the current metapage for callers (the CLI's `stats`
// subcommand).
func (idx *Index) Metapage() *Metapage {
	return idx.state.metapage
}

// Drop detaches the index from its registry and closes its page store.
// Matches §3 invariant 7's reference-counting discipline in miniature:
// this port has one index per store, so Drop's unregister is unconditional
// rather than ref-counted.
func (idx *Index) Drop(registry *Registry) error {
	registry.Remove(idx.id)
	if err := idx.store.Close(); err != nil {
		return fmt.Errorf("close page store: %w", err)
	}
	return nil
}
