package tiersearch

import (
	"context"
	"log/slog"
	"time"
)

// HeapRow is one row the build scan produces: an external document
// reference and its raw text, standing in for "read page P of relation R"
// + the host's tuple deformation (§1, out of scope) reduced to the one
// shape the core actually consumes.
type HeapRow struct {
	Doc  DocRef
	Text string
}

// HeapScanner is the external collaborator §1 calls the host's access
// method dispatch: something that can be scanned once, top to bottom, to
// drive a full-index build (§4.9 "Scan the heap").
type HeapScanner interface {
	Next() (HeapRow, bool, error)
}

// SliceHeapScanner adapts an in-memory slice to HeapScanner, the shape the
// CLI and tests use in place of a real heap.
type SliceHeapScanner struct {
	rows []HeapRow
	pos  int
}

// NewSliceHeapScanner wraps rows for scanning.
func NewSliceHeapScanner(rows []HeapRow) *SliceHeapScanner {
	return &SliceHeapScanner{rows: rows}
}

func (s *SliceHeapScanner) Next() (HeapRow, bool, error) {
	if s.pos >= len(s.rows) {
		return HeapRow{}, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

// BuildResult is the (heap_rows, index_rows) pair §4.9 returns, plus the
// final metapage for callers that want to inspect or persist it further.
type BuildResult struct {
	HeapRows  int
	IndexRows int
	Metapage  *Metapage
}

// BuildIndex drives a full build per §4.9: validate options, initialize the
// metapage, scan the heap, tokenize and add_document, auto-spill on
// threshold, final spill, then report progress the way §7's "User-visible
// behavior" requires (slog progress line every N docs, teacher's
// `slog.Info("indexing document", ...)` idiom, final summary line).
//
// progressEvery mirrors §5's "check for interrupt at least once per 1 000
// documents"; ctx cancellation is checked at that cadence.
func BuildIndex(ctx context.Context, store PageStore, opts IndexOptions, scanner HeapScanner, metrics *Metrics, log *slog.Logger) (*BuildResult, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	mp := NewMetapage(0, opts.K1, opts.B)
	arena := NewArena(true)
	mt := NewMemtable(arena, true)
	docidLog := NewDocidLog(store)
	compactor := NewCompactor(store, opts.Tunables.SegmentsPerLevel, log)

	var heapRows, indexRows int
	const progressEvery = 1000

	for {
		if heapRows%progressEvery == 0 {
			select {
			case <-ctx.Done():
				return nil, NewError(KindCanceled, ctx.Err())
			default:
			}
		}

		row, ok, err := scanner.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		heapRows++

		terms := TokenizeCounted(row.Text, opts.Tokenizer)
		if len(terms) == 0 {
			continue
		}
		var length int32
		for _, t := range terms {
			length += t.TF
		}

		mt.AddDocument(row.Doc, terms, length)
		newHead, err := docidLog.Append(mp.FirstDocidPage, row.Doc)
		if err != nil {
			return nil, err
		}
		mp.FirstDocidPage = newHead
		indexRows++

		if heapRows%progressEvery == 0 {
			log.Info("indexing document", "heap_rows", heapRows, "index_rows", indexRows)
		}

		if mt.TotalPostings() >= int64(opts.Tunables.MemtableSpillThreshold) {
			if err := spillMemtable(store, mt, mp, docidLog, compactor, metrics, log); err != nil {
				return nil, err
			}
		}
	}

	if !mt.IsEmpty() {
		if err := spillMemtable(store, mt, mp, docidLog, compactor, metrics, log); err != nil {
			return nil, err
		}
	}

	if err := mp.Save(store); err != nil {
		return nil, err
	}

	log.Info("build complete",
		"total_docs", mp.TotalDocs,
		"avg_length", mp.AvgDocLength(),
		"k1", mp.K1,
		"b", mp.B,
		"tokenizer_config_id", mp.TokenizerConfigID,
	)

	return &BuildResult{HeapRows: heapRows, IndexRows: indexRows, Metapage: mp}, nil
}

// spillMemtable implements the spill step of §4.9/§4.4/§4.6: write a new L0
// segment, update corpus totals, and clear the memtable and docid log, all
// before the metapage write that makes the spill visible to readers (§5 "A
// spill is atomic from the readers' viewpoint"); the compaction cascade runs
// after that write and saves the metapage again for each merge.
func spillMemtable(store PageStore, mt *Memtable, mp *Metapage, docidLog *DocidLog, compactor *Compactor, metrics *Metrics, log *slog.Logger) error {
	terms := mt.Terms()

	writer := NewSegmentWriter(store)
	root, err := writer.Write(mt, 0, mp.LevelHeads[0], time.Now().UnixNano())
	if err != nil {
		return err
	}

	mp.TotalDocs += uint64(mt.DocCount())
	mp.TotalLen += uint64(mt.LengthSum())
	// total_terms is best-effort (Open Question 4, spec.md §9): this adds
	// the spilled memtable's distinct term count without deduplicating
	// against terms already present in existing segments.
	mp.TotalTerms += uint64(len(terms))
	mp.LevelHeads[0] = root
	mp.LevelCounts[0]++

	mt.Clear()
	docidLog.ClearAfterSpill()
	mp.FirstDocidPage = NullBlock

	if err := mp.Save(store); err != nil {
		return err
	}
	if metrics != nil {
		metrics.SpillsTotal.Inc()
	}
	log.Info("spilled memtable to L0 segment", "root_block", root)

	merges, err := compactor.MaybeCompact(mp, 0)
	if err != nil {
		return err
	}
	if metrics != nil {
		for i := 0; i < merges; i++ {
			metrics.CompactionsTotal.Inc()
		}
	}
	return nil
}
