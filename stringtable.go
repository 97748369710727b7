package tiersearch

import (
	"hash/fnv"
	"sync"
)

// shardCount is the number of partitions in the interning table, each with
// its own mutex (§4.1 "holds a partition lock only briefly per entry").
const shardCount = 32

// Term is the interned entry the string table hands back: { key_ref,
// posting_list_ref, posting_len } from §4.1, expressed as a Go pointer plus
// the posting list it owns rather than raw arena offsets.
type Term struct {
	Text     string
	Postings *PostingList
}

type internShard struct {
	mu      sync.RWMutex
	entries map[string]*Term
}

// StringTable is the concurrent term → Term map over the arena (§4.1). The
// "zero-allocation probe" requirement in the source comes from comparing
// caller-owned bytes against arena-resident keys without copying; in Go the
// equivalent is relying on the compiler's specialized map-lookup-by-[]byte
// path (m[string(b)] as a lookup, never as an assignment key, does not
// allocate), so Lookup never allocates for the probe.
type StringTable struct {
	arena  *Arena
	shards [shardCount]*internShard
}

// NewStringTable creates an empty interning table backed by arena.
func NewStringTable(arena *Arena) *StringTable {
	st := &StringTable{arena: arena}
	for i := range st.shards {
		st.shards[i] = &internShard{entries: make(map[string]*Term)}
	}
	return st
}

func (st *StringTable) shardFor(key []byte) *internShard {
	h := fnv.New32a()
	h.Write(key)
	return st.shards[h.Sum32()%shardCount]
}

// Lookup probes for key without copying it into the arena. Returns (nil,
// false) on a miss, matching §4.1's plain "lookup" operation.
func (st *StringTable) Lookup(key []byte) (*Term, bool) {
	shard := st.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	t, ok := shard.entries[string(key)]
	return t, ok
}

// InsertOrGet returns the existing Term for key, or interns a fresh one.
// On first insertion the bytes are copied into the arena-tracked string
// (string(key) here, since Go strings are immutable and already own their
// bytes once converted); subsequent probes hit the fast RLock path.
func (st *StringTable) InsertOrGet(key []byte) *Term {
	shard := st.shardFor(key)

	shard.mu.RLock()
	if t, ok := shard.entries[string(key)]; ok {
		shard.mu.RUnlock()
		return t
	}
	shard.mu.RUnlock()

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if t, ok := shard.entries[string(key)]; ok {
		return t
	}
	text := string(key)
	t := &Term{Text: text, Postings: NewPostingList()}
	shard.entries[text] = t
	st.arena.Alloc(len(text))
	return t
}

// Delete removes key's interned entry, if any, together with its posting
// list. The arena's allocation counters are not adjusted.
func (st *StringTable) Delete(key []byte) {
	shard := st.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, string(key))
}

// Clear empties every shard. Matches §4.1's clear operation; Memtable.Clear
// calls it in both modes, after Arena.Destroy in build mode.
func (st *StringTable) Clear() {
	for _, shard := range st.shards {
		shard.mu.Lock()
		shard.entries = make(map[string]*Term)
		shard.mu.Unlock()
	}
}

// Each iterates every interned term under a brief per-shard read lock
// (§4.1 "Iteration is sequential ... and holds a partition lock only
// briefly per entry"). Iteration order is unspecified.
func (st *StringTable) Each(fn func(*Term)) {
	for _, shard := range st.shards {
		shard.mu.RLock()
		terms := make([]*Term, 0, len(shard.entries))
		for _, t := range shard.entries {
			terms = append(terms, t)
		}
		shard.mu.RUnlock()
		for _, t := range terms {
			fn(t)
		}
	}
}

// Len reports the total number of interned terms across all shards.
func (st *StringTable) Len() int {
	n := 0
	for _, shard := range st.shards {
		shard.mu.RLock()
		n += len(shard.entries)
		shard.mu.RUnlock()
	}
	return n
}
