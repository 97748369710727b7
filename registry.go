package tiersearch

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// SharedIndexState is the per-index coordination structure attached in the
// shared arena (§3 "Shared index state"): corpus totals, the memtable
// handle, and the reader/writer lock every backend serializes through.
type SharedIndexState struct {
	IndexID string
	Lock    sync.RWMutex

	mu        sync.Mutex
	memtable  *Memtable
	metapage  *Metapage
	store     PageStore
	docidLog  *DocidLog

	// pendingReplay holds doc_refs recovered from the docid log on open
	// whose term postings never made it into a segment before the last
	// shutdown. The log records identity only (§6.6 has no payload beyond
	// doc_ref), so the caller must resubmit the original text for each of
	// these via Index.ReplayDocument before the index can answer queries
	// that depend on them.
	pendingReplay []DocRef
}

// Registry is the database-wide `index_id → shared_index_state` table
// (§2 "Shared arena & registry", §5). Grounded on the teacher's absence of
// any multi-index coordination (blaze is a single in-process index);
// singleflight is adopted from the ambient-stack table to collapse
// concurrent first-attaches to the same index_id into one shared-state
// creation, matching §3 invariant 7 ("created lazily by the first backend").
type Registry struct {
	mu    sync.RWMutex
	group singleflight.Group
	states map[string]*SharedIndexState
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{states: make(map[string]*SharedIndexState)}
}

// Attach returns the shared state for indexID, creating it via create if
// this is the first attach. Concurrent Attach calls for the same indexID
// collapse into a single create invocation.
func (r *Registry) Attach(indexID string, create func() (*SharedIndexState, error)) (*SharedIndexState, error) {
	r.mu.RLock()
	if s, ok := r.states[indexID]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(indexID, func() (interface{}, error) {
		r.mu.RLock()
		if s, ok := r.states[indexID]; ok {
			r.mu.RUnlock()
			return s, nil
		}
		r.mu.RUnlock()

		s, err := create()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.states[indexID] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SharedIndexState), nil
}

// Lookup returns the shared state for indexID without creating it.
func (r *Registry) Lookup(indexID string) (*SharedIndexState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[indexID]
	return s, ok
}

// Remove detaches indexID from the registry (§3's "destroyed with the
// database" in miniature: a Drop call removes one index's entry).
func (r *Registry) Remove(indexID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, indexID)
}
