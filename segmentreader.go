package tiersearch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// SegmentReader opens one immutable segment for querying (§4.5). Grounded
// on the teacher's serialization.go Decode path and index.go's dictionary
// concept, replacing the teacher's in-memory-only index with the spec's
// paged, binary-searchable on-disk dictionary.
type SegmentReader struct {
	store  PageStore
	root   BlockNumber
	header segmentHeader
	pageMap []BlockNumber

	dict     []dictionaryEntry // sorted by term_hash ascending (byte-string tiebreak), cached at open
	strings  []byte
	skips    []byte
	postings []byte
	norms    []byte
	docRefs  []DocRef
}

// OpenSegment reads root, validates magic/version, and caches everything a
// query needs (§4.5 "Open: read root page, validate magic and version,
// cache the header including the page-map").
func OpenSegment(store PageStore, root BlockNumber) (*SegmentReader, error) {
	rootBuf := make([]byte, PageSize)
	if err := store.Read(root, rootBuf); err != nil {
		return nil, err
	}
	header, err := decodeSegmentHeader(rootBuf, root)
	if err != nil {
		return nil, err
	}

	headerLen := len(header.encode())
	inlineCap := (PageSize - headerLen) / 4
	inlineCount := int(header.PageMapCount)
	overflowCount := 0
	if inlineCount > inlineCap {
		overflowCount = inlineCount - inlineCap
		inlineCount = inlineCap
	}

	pageMap := make([]BlockNumber, 0, header.PageMapCount)
	off := headerLen
	for i := 0; i < inlineCount; i++ {
		pageMap = append(pageMap, BlockNumber(binary.LittleEndian.Uint32(rootBuf[off:off+4])))
		off += 4
	}

	if overflowCount > 0 {
		overflowHead := BlockNumber(binary.LittleEndian.Uint32(rootBuf[PageSize-4 : PageSize]))
		rest, err := readPageMapOverflow(store, overflowHead, overflowCount)
		if err != nil {
			return nil, err
		}
		pageMap = append(pageMap, rest...)
	}

	r := &SegmentReader{store: store, root: root, header: header, pageMap: pageMap}

	body, err := r.readLogical(0, r.totalLogicalSize())
	if err != nil {
		return nil, err
	}
	r.strings = body[header.StringOffset : header.StringOffset+header.StringSize]
	r.skips = body[header.SkipOffset : header.SkipOffset+header.SkipSize]
	r.postings = body[header.PostOffset : header.PostOffset+header.PostSize]
	r.norms = body[header.NormOffset : header.NormOffset+header.NormSize]

	docRefBytes := body[header.DocRefOffset : header.DocRefOffset+header.DocRefSize]
	r.docRefs = make([]DocRef, len(docRefBytes)/6)
	for i := range r.docRefs {
		copy(r.docRefs[i][:], docRefBytes[i*6:i*6+6])
	}

	dictBytes := body[header.DictOffset : header.DictOffset+header.DictSize]
	r.dict = make([]dictionaryEntry, header.NumTerms)
	for i := range r.dict {
		r.dict[i] = decodeDictionaryEntry(dictBytes[i*dictEntrySize : (i+1)*dictEntrySize])
	}

	return r, nil
}

func (r *SegmentReader) totalLogicalSize() uint64 {
	return r.header.DocRefOffset + r.header.DocRefSize
}

// readLogical decomposes [offset, offset+length) into page-bounded copies
// via the page-map (§4.5 "all subsequent reads go through
// read(logical_offset, dest, len)").
func (r *SegmentReader) readLogical(offset, length uint64) ([]byte, error) {
	out := make([]byte, length)
	remaining := length
	pos := offset
	written := uint64(0)
	for remaining > 0 {
		pageIdx := pos / PageSize
		pageOff := pos % PageSize
		if int(pageIdx) >= len(r.pageMap) {
			return nil, NewCorruptError(uint32(r.root), fmt.Errorf("logical offset %d beyond page map (%d pages)", pos, len(r.pageMap)))
		}
		blk := r.pageMap[pageIdx]
		buf := make([]byte, PageSize)
		if err := r.store.Read(blk, buf); err != nil {
			return nil, err
		}
		n := PageSize - pageOff
		if n > remaining {
			n = remaining
		}
		copy(out[written:written+n], buf[pageOff:pageOff+n])
		written += n
		pos += n
		remaining -= n
	}
	return out, nil
}

func readPageMapOverflow(store PageStore, head BlockNumber, count int) ([]BlockNumber, error) {
	var out []BlockNumber
	blk := head
	for blk != NullBlock && len(out) < count {
		buf := make([]byte, PageSize)
		if err := store.Read(blk, buf); err != nil {
			return nil, err
		}
		n := count - len(out)
		if n > pageMapOverflowCapacity {
			n = pageMapOverflowCapacity
		}
		for i := 0; i < n; i++ {
			out = append(out, BlockNumber(binary.LittleEndian.Uint32(buf[i*4:i*4+4])))
		}
		blk = BlockNumber(binary.LittleEndian.Uint32(buf[PageSize-4 : PageSize]))
	}
	return out, nil
}

// PostingsResult is the columnar buffer §4.7/§4.5 return for a matched
// term: parallel doc-id and frequency arrays plus the term's segment-wide
// document frequency.
type PostingsResult struct {
	DocIDs  []uint32
	Freqs   []uint16
	DocFreq int
	Skips   []skipEntry
}

// GetPostings binary-searches the dictionary by term hash (tie-broken by
// byte comparison, §4.5), returning nil if term has no entry in this
// segment ("not found", never an error — §7).
func (r *SegmentReader) GetPostings(term string) *PostingsResult {
	hash := fnvHash(term)
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].TermHash >= hash
	})
	for idx < len(r.dict) && r.dict[idx].TermHash == hash {
		e := r.dict[idx]
		candidate := string(r.strings[e.StringOffset : e.StringOffset+e.StringLen])
		if candidate == term {
			return r.expandPostings(e)
		}
		idx++
	}
	return nil
}

func (r *SegmentReader) expandPostings(e dictionaryEntry) *PostingsResult {
	res := &PostingsResult{DocFreq: int(e.DocFreq)}
	skipBytes := r.skips[e.SkipIndexOffset:]
	for b := 0; b < int(e.BlockCount); b++ {
		se := decodeSkipEntry(skipBytes[b*skipEntrySize : (b+1)*skipEntrySize])
		res.Skips = append(res.Skips, se)
		postBytes := r.postings[se.PostingOffset : se.PostingOffset+uint32(se.DocCount)*postEntrySize]
		for i := 0; i < int(se.DocCount); i++ {
			pe := decodePostingEntry(postBytes[i*postEntrySize : (i+1)*postEntrySize])
			res.DocIDs = append(res.DocIDs, pe.DocID)
			res.Freqs = append(res.Freqs, pe.Frequency)
		}
	}
	return res
}

// GetDocLength resolves doc_ref's segment-local doc_id by binary search over
// the cached, sorted doc-ref table, then dequantizes its field-norm byte. Returns
// (-1, false) if doc_ref is not present in this segment.
func (r *SegmentReader) GetDocLength(doc DocRef) (float64, bool) {
	idx := sort.Search(len(r.docRefs), func(i int) bool {
		return !r.docRefs[i].Less(doc)
	})
	if idx >= len(r.docRefs) || !bytes.Equal(r.docRefs[idx][:], doc[:]) {
		return -1, false
	}
	return dequantizeNorm(r.norms[idx]), true
}

// DocRefAt resolves a segment-local doc_id back to its external doc_ref.
func (r *SegmentReader) DocRefAt(docID uint32) DocRef {
	return r.docRefs[docID]
}

// NumDocs and TotalDocLength expose the corpus-statistics contribution of
// this segment (§4.7 "total_docs, total_len").
func (r *SegmentReader) NumDocs() int            { return int(r.header.NumDocs) }
func (r *SegmentReader) TotalDocLength() float64 { return float64(r.header.TotalDocLength) }
func (r *SegmentReader) Level() uint32           { return r.header.Level }
func (r *SegmentReader) NextSegment() BlockNumber { return r.header.NextSegment }
func (r *SegmentReader) Root() BlockNumber        { return r.root }

// Close is a no-op placeholder matching §4.7's close operation; the
// PageStore owns the actual file handle lifetime.
func (r *SegmentReader) Close() error { return nil }
