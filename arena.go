package tiersearch

import "sync/atomic"

// Arena stands in for the source's dynamic shared memory arena (§9,
// "Shared arena backing shared memory"). Go has no manual allocator to
// dereference into, so Arena does not hand out raw pointers; instead it is
// a generation-tagged allocation budget that the memtable and string table
// allocate "from" and that build mode can destroy and recreate wholesale,
// giving the same "full memory return on spill" semantics as the source's
// private build-mode arena, just expressed as "drop the generation, let the
// GC reclaim everything reachable only through it."
type Arena struct {
	generation uint64
	bytesUsed  int64
	allocCount int64
	private    bool // build-mode arenas are private to one backend
}

// NewArena creates a fresh arena. private is true for build-mode local
// state (§3 "Local index state", build_mode flag); false for the
// database-wide runtime arena attached by ordinary backends.
func NewArena(private bool) *Arena {
	return &Arena{generation: 1, private: private}
}

// Alloc records a logical allocation of size bytes. There is no pointer to
// return: callers hold their own Go values and use Alloc purely for the
// accounting §2's "Shared arena & registry" component is responsible for
// (bytesUsed is exposed for tests asserting OOM-adjacent behavior).
func (a *Arena) Alloc(size int) {
	atomic.AddInt64(&a.bytesUsed, int64(size))
	atomic.AddInt64(&a.allocCount, 1)
}

// Generation returns the arena's current generation counter. Destroy bumps
// it; any arena_ref-like handle that cached a stale generation can detect
// use-after-destroy by comparing against Generation().
func (a *Arena) Generation() uint64 {
	return atomic.LoadUint64(&a.generation)
}

// BytesUsed reports the running allocation total since the last Destroy.
func (a *Arena) BytesUsed() int64 {
	return atomic.LoadInt64(&a.bytesUsed)
}

// Destroy invalidates the current generation and zeros the usage counters.
// Matches §4.2's build-mode clear: "detaches the private arena (returns all
// memory to OS)" — here, the caller drops every Go value rooted in this
// generation, and the GC does the reclaiming.
func (a *Arena) Destroy() {
	atomic.AddUint64(&a.generation, 1)
	atomic.StoreInt64(&a.bytesUsed, 0)
	atomic.StoreInt64(&a.allocCount, 0)
}

// Private reports whether this is a build-mode private arena (destroyed and
// recreated per spill) as opposed to the shared runtime arena.
func (a *Arena) Private() bool {
	return a.private
}
