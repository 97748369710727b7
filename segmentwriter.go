package tiersearch

import (
	"encoding/binary"
	"hash/fnv"
	"sort"
)

// pageMapOverflowCapacity is how many BlockNumber entries fit in one
// overflow page, reserving the trailing 4 bytes for the next-page link.
var pageMapOverflowCapacity = (PageSize - 4) / 4

// SegmentWriter serializes a memtable snapshot into one immutable segment
// (§4.4). Grounded on the teacher's serialization.go (Encode/Decode), which
// this replaces: the teacher walked SkipList position nodes; this walks
// sorted PostingList entries into fixed-size BMW blocks instead, since the
// spec's wire format (§6.5) carries no position field.
type SegmentWriter struct {
	store PageStore
}

// NewSegmentWriter wraps store.
func NewSegmentWriter(store PageStore) *SegmentWriter {
	return &SegmentWriter{store: store}
}

// Write spills mt into a new segment at the given level, returning the
// segment's root block. next is the existing level_head this segment will
// be chained in front of (NullBlock if the level was empty).
//
// Per §4.4 step 5, pages are flushed and only then is the root block
// returned; the memtable is not cleared here — the build orchestrator owns
// that, only after this call succeeds.
func (w *SegmentWriter) Write(mt *Memtable, level uint32, next BlockNumber, now int64) (BlockNumber, error) {
	terms := mt.Terms()

	var stringPool []byte
	var dictPairs []dictPair
	var skipBlob []byte
	var postBlob []byte

	// doc_ref -> segment-local dense doc_id, assigned in doc_ref sort order
	// so the doc-ref table and field-norm table are indexed consistently.
	docRefs := sortedDocRefs(mt)
	docID := make(map[DocRef]uint32, len(docRefs))
	for i, ref := range docRefs {
		docID[ref] = uint32(i)
	}

	for _, term := range terms {
		pl := mt.TermPostings(term)
		entries := append([]Posting(nil), pl.Entries()...)
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].DocRef.Less(entries[j].DocRef)
		})

		stringOffset := uint32(len(stringPool))
		stringPool = append(stringPool, []byte(term)...)

		skipOffset := uint32(len(skipBlob))
		blockCount := 0

		for start := 0; start < len(entries); start += postingBlockSize {
			end := start + postingBlockSize
			if end > len(entries) {
				end = len(entries)
			}
			block := entries[start:end]

			postOffset := uint32(len(postBlob))
			var maxTF uint16
			minNorm := uint8(255)
			for _, e := range block {
				id := docID[e.DocRef]
				tf := clampU16(e.TF)
				if tf > maxTF {
					maxTF = tf
				}
				length, _ := mt.DocLength(e.DocRef)
				norm := quantizeNorm(length)
				if norm < minNorm {
					minNorm = norm
				}
				postBlob = append(postBlob, postingEntry{DocID: id, Frequency: tf}.encode()...)
			}
			se := skipEntry{
				FirstDocID:    docID[block[0].DocRef],
				LastDocID:     docID[block[len(block)-1].DocRef],
				DocCount:      uint16(len(block)),
				BlockMaxTF:    maxTF,
				BlockMinNorm:  minNorm,
				PostingOffset: postOffset,
			}
			skipBlob = append(skipBlob, se.encode()...)
			blockCount++
		}

		dictPairs = append(dictPairs, dictPair{
			term: term,
			entry: dictionaryEntry{
				TermHash:        fnvHash(term),
				StringOffset:    stringOffset,
				StringLen:       uint32(len(term)),
				PostingOffset:   0, // postings addressed via each block's skip entry
				SkipIndexOffset: skipOffset,
				BlockCount:      uint16(blockCount),
				DocFreq:         uint32(pl.DocFreq()),
			},
		})
	}

	// The dictionary is read back with a binary search keyed on term_hash
	// (segmentreader.go's GetPostings), so it must be stored in
	// hash-ascending order regardless of the insertion order above — term
	// string order and FNV-1a hash order are unrelated. Matches the
	// original's tp_segment_compare_terms (segment.c), hash-primary with a
	// byte-string tiebreak for hash collisions.
	sort.Slice(dictPairs, func(i, j int) bool {
		a, b := dictPairs[i], dictPairs[j]
		if a.entry.TermHash != b.entry.TermHash {
			return a.entry.TermHash < b.entry.TermHash
		}
		return a.term < b.term
	})

	var dictBlob []byte
	for _, p := range dictPairs {
		dictBlob = append(dictBlob, p.entry.encode()...)
	}

	var normBlob []byte
	var totalLen uint64
	for _, ref := range docRefs {
		length, _ := mt.DocLength(ref)
		normBlob = append(normBlob, quantizeNorm(length))
		totalLen += uint64(length)
	}

	var docRefBlob []byte
	for _, ref := range docRefs {
		docRefBlob = append(docRefBlob, ref[:]...)
	}

	// Concatenate the sections: dictionary, string pool, skip index,
	// postings, field norms, doc-ref table. The header records each offset.
	var body []byte
	dictOff := uint64(len(body))
	body = append(body, dictBlob...)
	stringOff := uint64(len(body))
	body = append(body, stringPool...)
	skipOff := uint64(len(body))
	body = append(body, skipBlob...)
	postOff := uint64(len(body))
	body = append(body, postBlob...)
	normOff := uint64(len(body))
	body = append(body, normBlob...)
	docRefOff := uint64(len(body))
	body = append(body, docRefBlob...)

	pageMap, err := writePagedBody(w.store, body)
	if err != nil {
		return NullBlock, err
	}

	header := segmentHeader{
		Magic:          segmentRootMagic,
		Version:        segmentRootVersion,
		Level:          level,
		NextSegment:    next,
		NumTerms:       uint32(len(terms)),
		NumDocs:        uint32(len(docRefs)),
		TotalDocLength: totalLen,
		CreatedAt:      now,
		DictOffset:     dictOff,
		DictSize:       uint64(len(dictBlob)),
		StringOffset:   stringOff,
		StringSize:     uint64(len(stringPool)),
		SkipOffset:     skipOff,
		SkipSize:       uint64(len(skipBlob)),
		PostOffset:     postOff,
		PostSize:       uint64(len(postBlob)),
		NormOffset:     normOff,
		NormSize:       uint64(len(normBlob)),
		DocRefOffset:   docRefOff,
		DocRefSize:     uint64(len(docRefBlob)),
		PageMapCount:   uint32(len(pageMap)),
	}

	rootBlk, err := w.store.AllocateNew()
	if err != nil {
		return NullBlock, err
	}

	rootBuf := make([]byte, PageSize)
	headerBytes := header.encode()
	copy(rootBuf, headerBytes)

	inlineCap := (PageSize - len(headerBytes)) / 4
	inlineCount := len(pageMap)
	var overflow []BlockNumber
	if inlineCount > inlineCap {
		overflow = pageMap[inlineCap:]
		pageMap = pageMap[:inlineCap]
		inlineCount = inlineCap
	}

	off := len(headerBytes)
	for _, blk := range pageMap {
		binary.LittleEndian.PutUint32(rootBuf[off:off+4], uint32(blk))
		off += 4
	}
	header.PageMapOffset = uint64(len(headerBytes))

	if len(overflow) > 0 {
		overflowHead, err := writePageMapOverflow(w.store, overflow)
		if err != nil {
			return NullBlock, err
		}
		// Encode overflowHead right after the inline page map region ends,
		// reusing the reserved tail of the root page.
		binary.LittleEndian.PutUint32(rootBuf[PageSize-4:PageSize], uint32(overflowHead))
	} else {
		binary.LittleEndian.PutUint32(rootBuf[PageSize-4:PageSize], uint32(NullBlock))
	}

	// Re-encode header now that PageMapOffset is set (the copy above was
	// encoded with PageMapOffset 0).
	copy(rootBuf, header.encode())

	if err := w.store.Write(rootBlk, rootBuf); err != nil {
		return NullBlock, err
	}
	if err := w.store.Flush(rootBlk); err != nil {
		return NullBlock, err
	}
	return rootBlk, nil
}

// dictPair keeps a dictionary row alongside its term text just long enough
// to break ties when sorting by term_hash before the dictionary is encoded.
type dictPair struct {
	term  string
	entry dictionaryEntry
}

func sortedDocRefs(mt *Memtable) []DocRef {
	seen := make(map[DocRef]bool)
	mt.mu.RLock()
	for ref := range mt.docLengths {
		seen[ref] = true
	}
	mt.mu.RUnlock()
	refs := make([]DocRef, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}

func clampU16(v int32) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	if v < 0 {
		return 0
	}
	return uint16(v)
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// writePagedBody splits body into PageSize-sized physical pages, returning
// the logical-page → physical-block page-map (§4.4 step 4).
func writePagedBody(store PageStore, body []byte) ([]BlockNumber, error) {
	numPages := (len(body) + PageSize - 1) / PageSize
	pageMap := make([]BlockNumber, 0, numPages)
	for i := 0; i < numPages; i++ {
		start := i * PageSize
		end := start + PageSize
		if end > len(body) {
			end = len(body)
		}
		buf := make([]byte, PageSize)
		copy(buf, body[start:end])

		blk, err := store.AllocateNew()
		if err != nil {
			return nil, err
		}
		if err := store.Write(blk, buf); err != nil {
			return nil, err
		}
		pageMap = append(pageMap, blk)
	}
	return pageMap, nil
}

// writePageMapOverflow chains the tail of a page map that didn't fit inline
// in the root page, matching §6.2's "overflow pages chain if needed."
// Returns the head of the overflow chain.
func writePageMapOverflow(store PageStore, entries []BlockNumber) (BlockNumber, error) {
	var next BlockNumber = NullBlock
	// Build pages back-to-front so each knows its successor.
	numPages := (len(entries) + pageMapOverflowCapacity - 1) / pageMapOverflowCapacity
	blocks := make([]BlockNumber, numPages)
	for i := numPages - 1; i >= 0; i-- {
		start := i * pageMapOverflowCapacity
		end := start + pageMapOverflowCapacity
		if end > len(entries) {
			end = len(entries)
		}
		buf := make([]byte, PageSize)
		off := 0
		for _, blk := range entries[start:end] {
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(blk))
			off += 4
		}
		binary.LittleEndian.PutUint32(buf[PageSize-4:PageSize], uint32(next))
		blk, err := store.AllocateNew()
		if err != nil {
			return NullBlock, err
		}
		if err := store.Write(blk, buf); err != nil {
			return NullBlock, err
		}
		blocks[i] = blk
		next = blk
	}
	if numPages == 0 {
		return NullBlock, nil
	}
	return blocks[0], nil
}
