package tiersearch

// DataSource is the uniform interface over the memtable and each active
// segment (§4.7) that the BMW scorer iterates over without caring which
// storage layer it's talking to.
type DataSource interface {
	// Postings returns the term's postings as (doc_ref, tf) pairs, or nil
	// if the term is absent from this source ("not found", never an
	// error).
	Postings(term string) []Posting
	// Skips returns this source's block-level skip metadata for term, in
	// doc-id order, translated to external doc_refs where needed by the
	// caller. A memtable-backed source (no skip index) returns nil. The
	// BMW scorer does not call Skips; it derives its block bounds from
	// Postings for every source.
	Skips(term string) []docRefSkip
	// DocLength returns doc's length and true, or false if doc is absent
	// from this source (the length is then 0 for a memtable source and -1
	// for a segment source).
	DocLength(doc DocRef) (float64, bool)
	// TotalDocs and TotalLen are this source's contribution to corpus
	// statistics N and L_sum.
	TotalDocs() int
	TotalLen() float64
}

// docRefSkip mirrors skipEntry but with doc_refs resolved, so the scorer
// never has to know about segment-local doc_ids.
type docRefSkip struct {
	FirstDoc     DocRef
	LastDoc      DocRef
	DocCount     int
	BlockMaxTF   uint16
	BlockMinNorm float64
	entries      []Posting // resolved postings for this block, in doc_ref order
}

// memtableSource adapts *Memtable to DataSource.
type memtableSource struct {
	mt *Memtable
}

func newMemtableSource(mt *Memtable) DataSource {
	return &memtableSource{mt: mt}
}

func (s *memtableSource) Postings(term string) []Posting {
	pl := s.mt.TermPostings(term)
	if pl == nil {
		return nil
	}
	return pl.Entries()
}

func (s *memtableSource) Skips(term string) []docRefSkip { return nil }

func (s *memtableSource) DocLength(doc DocRef) (float64, bool) {
	l, ok := s.mt.DocLength(doc)
	return float64(l), ok
}

func (s *memtableSource) TotalDocs() int    { return int(s.mt.DocCount()) }
func (s *memtableSource) TotalLen() float64 { return float64(s.mt.LengthSum()) }

// segmentSource adapts *SegmentReader to DataSource.
type segmentSource struct {
	sr *SegmentReader
}

func newSegmentSource(sr *SegmentReader) DataSource {
	return &segmentSource{sr: sr}
}

func (s *segmentSource) Postings(term string) []Posting {
	res := s.sr.GetPostings(term)
	if res == nil {
		return nil
	}
	out := make([]Posting, len(res.DocIDs))
	for i := range res.DocIDs {
		out[i] = Posting{DocRef: s.sr.DocRefAt(res.DocIDs[i]), TF: int32(res.Freqs[i])}
	}
	return out
}

func (s *segmentSource) Skips(term string) []docRefSkip {
	res := s.sr.GetPostings(term)
	if res == nil {
		return nil
	}
	out := make([]docRefSkip, 0, len(res.Skips))
	offset := 0
	for _, se := range res.Skips {
		entries := make([]Posting, se.DocCount)
		for i := 0; i < int(se.DocCount); i++ {
			docID := res.DocIDs[offset+i]
			entries[i] = Posting{DocRef: s.sr.DocRefAt(docID), TF: int32(res.Freqs[offset+i])}
		}
		out = append(out, docRefSkip{
			FirstDoc:     s.sr.DocRefAt(se.FirstDocID),
			LastDoc:      s.sr.DocRefAt(se.LastDocID),
			DocCount:     int(se.DocCount),
			BlockMaxTF:   se.BlockMaxTF,
			BlockMinNorm: dequantizeNorm(se.BlockMinNorm),
			entries:      entries,
		})
		offset += int(se.DocCount)
	}
	return out
}

func (s *segmentSource) DocLength(doc DocRef) (float64, bool) {
	return s.sr.GetDocLength(doc)
}

func (s *segmentSource) TotalDocs() int    { return s.sr.NumDocs() }
func (s *segmentSource) TotalLen() float64 { return s.sr.TotalDocLength() }
