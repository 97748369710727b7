package tiersearch

import (
	"sort"
	"sync"
)

// Memtable is the in-memory write buffer (§2, §3, §4.2): an interned
// term → posting list table plus a parallel doc_ref → length map and the
// running totals the metapage mirrors on spill.
//
// Grounded on the teacher's InvertedIndex (index.go), generalized from a
// flat map[string]*roaring.Bitmap + map[string]SkipList pair to the
// spec's term→posting-list / doc_ref→length shape, and from the teacher's
// sync.Mutex to the exclusive/shared discipline §5 specifies (callers
// acquire the per-index lock; Memtable's own RWMutex guards only its
// internal bookkeeping).
type Memtable struct {
	arena   *Arena
	strings *StringTable

	mu              sync.RWMutex
	docLengths      map[DocRef]int32
	totalPostings   int64
	docCount        int64
	lengthSum       int64
	buildMode       bool
}

// NewMemtable creates an empty memtable backed by arena. buildMode selects
// the private-arena clear semantics of §4.2 vs. the runtime clear semantics.
func NewMemtable(arena *Arena, buildMode bool) *Memtable {
	return &Memtable{
		arena:      arena,
		strings:    NewStringTable(arena),
		docLengths: make(map[DocRef]int32),
		buildMode:  buildMode,
	}
}

// AddDocument implements §4.2's add_document contract: requires the
// per-index exclusive lock (enforced by the caller, not here — Memtable has
// no opinion on host locking, only on its own internal bookkeeping mutex).
func (m *Memtable) AddDocument(doc DocRef, terms []TermFreq, docLength int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tf := range terms {
		term := m.strings.InsertOrGet([]byte(tf.Term))
		term.Postings.Add(doc, tf.TF)
	}

	m.docLengths[doc] = docLength
	m.docCount++
	m.lengthSum += int64(docLength)
	m.totalPostings += int64(len(terms))
}

// SearchTerm implements §4.2's search_term: returns the posting list for
// term, or (nil, false) if the term was never interned in this memtable.
func (m *Memtable) SearchTerm(term string) (*PostingList, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.strings.Lookup([]byte(term))
	if !ok {
		return nil, false
	}
	return t.Postings, true
}

// DocLength returns the recorded length of doc, or (0, false) if it has no
// entry in this memtable's doc-length map.
func (m *Memtable) DocLength(doc DocRef) (int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.docLengths[doc]
	return l, ok
}

// DocCount returns N for this memtable alone: the number of AddDocument
// calls since the last Clear.
func (m *Memtable) DocCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

// LengthSum returns L_sum for this memtable alone.
func (m *Memtable) LengthSum() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lengthSum
}

// TotalPostings returns the running posting-entry count used by the build
// orchestrator to decide when to spill (§4.9, memtable_spill_threshold).
func (m *Memtable) TotalPostings() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalPostings
}

// IsEmpty reports whether this memtable has accumulated any documents.
func (m *Memtable) IsEmpty() bool {
	return m.DocCount() == 0
}

// Terms returns every interned term's text in sorted order, the shape the
// segment writer needs for §4.4 step 1 ("Enumerate terms in sorted order").
func (m *Memtable) Terms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, m.strings.Len())
	m.strings.Each(func(t *Term) {
		out = append(out, t.Text)
	})
	sort.Strings(out)
	return out
}

// TermPostings returns the posting list interned for term, or nil.
func (m *Memtable) TermPostings(term string) *PostingList {
	t, ok := m.strings.Lookup([]byte(term))
	if !ok {
		return nil
	}
	return t.Postings
}

// Clear empties the memtable following §4.2's two variants: in build mode
// it first Destroys the arena (bumping its generation, so the GC reclaims
// everything rooted in the old one); in both modes it then resets the
// internal maps and totals in place on the same Memtable value, trimming
// but not necessarily returning memory to the OS.
func (m *Memtable) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buildMode {
		m.arena.Destroy()
	}
	m.strings.Clear()
	m.docLengths = make(map[DocRef]int32)
	m.totalPostings = 0
	m.docCount = 0
	m.lengthSum = 0
}

// BuildMode reports whether this memtable clears via the private-arena
// discipline.
func (m *Memtable) BuildMode() bool {
	return m.buildMode
}
