package tiersearch

import (
	"encoding/binary"
	"fmt"
)

const (
	docidPageMagic   uint32 = 0x54504944 // "TPID"
	docidPageVersion uint32 = 1
	docidPageHeader         = 16 // magic, version, num_docs, next_page: 4 u32s
	docidEntrySize          = 6  // one DocRef
)

var docidPageCapacity = (PageSize - docidPageHeader) / docidEntrySize

// docidPage is the in-memory image of one docid recovery log page (§6.6).
type docidPage struct {
	numDocs  uint32
	nextPage BlockNumber
	refs     []DocRef
}

func (p *docidPage) encode() []byte {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], docidPageMagic)
	binary.LittleEndian.PutUint32(buf[4:8], docidPageVersion)
	binary.LittleEndian.PutUint32(buf[8:12], p.numDocs)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(p.nextPage))
	off := docidPageHeader
	for _, ref := range p.refs {
		copy(buf[off:off+docidEntrySize], ref[:])
		off += docidEntrySize
	}
	return buf
}

func decodeDocidPage(buf []byte, blk BlockNumber) (*docidPage, error) {
	if len(buf) != PageSize {
		return nil, NewCorruptError(uint32(blk), fmt.Errorf("short docid page"))
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != docidPageMagic {
		return nil, NewCorruptError(uint32(blk), fmt.Errorf("bad docid page magic %#x", magic))
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != docidPageVersion {
		return nil, NewCorruptError(uint32(blk), fmt.Errorf("unsupported docid page version %d", version))
	}
	numDocs := binary.LittleEndian.Uint32(buf[8:12])
	next := BlockNumber(binary.LittleEndian.Uint32(buf[12:16]))
	if int(numDocs) > docidPageCapacity {
		return nil, NewCorruptError(uint32(blk), fmt.Errorf("docid page claims %d docs, capacity is %d", numDocs, docidPageCapacity))
	}
	refs := make([]DocRef, numDocs)
	off := docidPageHeader
	for i := range refs {
		copy(refs[i][:], buf[off:off+docidEntrySize])
		off += docidEntrySize
	}
	return &docidPage{numDocs: numDocs, nextPage: next, refs: refs}, nil
}

// docidTailCache is the backend-local cache §4.3 describes: {index_id,
// tail_page, tail_count, valid}, avoiding an O(n) chain walk on every
// append.
type docidTailCache struct {
	valid     bool
	tailBlock BlockNumber
	tailCount int
}

// DocidLog is the append-only crash-recovery chain anchored in the
// metapage (§4.3, §6.6). Grounded on the original's memtable/source.c
// replay contract and on the teacher's absence of any such log — this is
// pure new surface required by the spec, built in the page/PageStore idiom
// established by pageio.go.
type DocidLog struct {
	store PageStore
	cache docidTailCache
}

// NewDocidLog wraps store. The chain head (the metapage's
// first_docid_page, NullBlock if empty) is passed to each Append/Replay call.
func NewDocidLog(store PageStore) *DocidLog {
	return &DocidLog{store: store}
}

// Append adds doc to the tail page of the chain rooted at head, allocating
// a new tail page if the current one is full. Returns the (possibly
// unchanged) chain head — callers persist it into the metapage.
func (l *DocidLog) Append(head BlockNumber, doc DocRef) (BlockNumber, error) {
	if !l.cache.valid {
		if err := l.rebuildCache(head); err != nil {
			return head, err
		}
	}

	if l.cache.tailBlock == NullBlock {
		blk, err := l.store.AllocateNew()
		if err != nil {
			return head, err
		}
		page := &docidPage{nextPage: NullBlock}
		page.refs = append(page.refs, doc)
		page.numDocs = 1
		if err := l.writePage(blk, page); err != nil {
			return head, err
		}
		l.cache.tailBlock = blk
		l.cache.tailCount = 1
		return blk, nil
	}

	buf := make([]byte, PageSize)
	if err := l.store.Read(l.cache.tailBlock, buf); err != nil {
		return head, err
	}
	page, err := decodeDocidPage(buf, l.cache.tailBlock)
	if err != nil {
		return head, err
	}

	if int(page.numDocs) < docidPageCapacity {
		page.refs = append(page.refs, doc)
		page.numDocs++
		if err := l.writePage(l.cache.tailBlock, page); err != nil {
			return head, err
		}
		l.cache.tailCount = int(page.numDocs)
		return head, nil
	}

	newBlk, err := l.store.AllocateNew()
	if err != nil {
		return head, err
	}
	newPage := &docidPage{nextPage: l.cache.tailBlock, numDocs: 1, refs: []DocRef{doc}}
	if err := l.writePage(newBlk, newPage); err != nil {
		return head, err
	}
	l.cache.tailBlock = newBlk
	l.cache.tailCount = 1
	return newBlk, nil
}

func (l *DocidLog) writePage(blk BlockNumber, page *docidPage) error {
	if err := l.store.Write(blk, page.encode()); err != nil {
		return err
	}
	return l.store.Flush(blk)
}

// rebuildCache reloads the tail cache from head. The chain is built by
// prepending, so head is the newest page and also the append point; only
// that one page is read, with no walk down the chain.
func (l *DocidLog) rebuildCache(head BlockNumber) error {
	if head == NullBlock {
		l.cache = docidTailCache{valid: true, tailBlock: NullBlock, tailCount: 0}
		return nil
	}
	// The chain grows by linking new pages in front of the old tail, so the
	// true append point is the *oldest* reachable page only if it still has
	// capacity; in this implementation head is always the most recently
	// allocated page, which is also the only one Append ever extends in
	// place, so head is exactly the tail.
	buf := make([]byte, PageSize)
	if err := l.store.Read(head, buf); err != nil {
		return err
	}
	page, err := decodeDocidPage(buf, head)
	if err != nil {
		return err
	}
	l.cache = docidTailCache{valid: true, tailBlock: head, tailCount: int(page.numDocs)}
	return nil
}

// Invalidate drops the cached tail pointer (§4.3 "invalidated at build
// start and whenever the log is cleared").
func (l *DocidLog) Invalidate() {
	l.cache = docidTailCache{}
}

// ClearAfterSpill implements §4.3's clear_after_spill: the metapage anchor
// reset to null is the caller's responsibility (the log itself has no
// metapage handle); this just invalidates the local cache and pages become
// garbage, never physically deleted.
func (l *DocidLog) ClearAfterSpill() {
	l.Invalidate()
}

// Replay walks the chain from head, validating each page's magic, invoking
// fn for every doc_ref encountered in oldest-to-newest order within the
// chain as discovered (§4.3's replay contract; §8.3 scenario 5).
func (l *DocidLog) Replay(head BlockNumber, fn func(DocRef)) error {
	var chain []*docidPage
	blk := head
	seen := make(map[BlockNumber]bool)
	for blk != NullBlock {
		if seen[blk] {
			return NewCorruptError(uint32(blk), fmt.Errorf("cycle detected in docid log chain"))
		}
		seen[blk] = true
		buf := make([]byte, PageSize)
		if err := l.store.Read(blk, buf); err != nil {
			return err
		}
		page, err := decodeDocidPage(buf, blk)
		if err != nil {
			return err
		}
		chain = append(chain, page)
		blk = page.nextPage
	}
	// chain[0] is the newest page (head); replay oldest-first so a rebuilt
	// memtable's posting-list append order matches the original ingest order.
	for i := len(chain) - 1; i >= 0; i-- {
		for _, ref := range chain[i].refs {
			fn(ref)
		}
	}
	return nil
}
