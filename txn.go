package tiersearch

import (
	"log/slog"

	"github.com/google/uuid"
)

// TxnGuard is the ownership-model stand-in for the source's registered
// transaction callback (§5 "Transaction callback", §9 design note
// "Per-transaction lock handoff via callback"): a scoped guard returned by
// BeginTxn whose Close runs the commit/abort cleanup (lock release and
// bulk-load counter reset). The pre-commit bulk-load check is ShouldBulkSpill,
// which the writer calls before Close.
type TxnGuard struct {
	id       uuid.UUID
	state    *SharedIndexState
	exclusive bool
	log      *slog.Logger

	termsAdded int64
	closed     bool
}

// BeginTxn acquires the per-index lock (exclusive for writers, shared for
// readers) and returns a TxnGuard; callers must defer guard.Close().
// Matches §5's "acquired once per transaction, not per operation."
func BeginTxn(state *SharedIndexState, exclusive bool, log *slog.Logger) *TxnGuard {
	if log == nil {
		log = slog.Default()
	}
	if exclusive {
		state.Lock.Lock()
	} else {
		state.Lock.RLock()
	}
	id := uuid.New()
	log.Debug("txn begin", "txn_id", id, "index_id", state.IndexID, "exclusive", exclusive)
	return &TxnGuard{id: id, state: state, exclusive: exclusive, log: log}
}

// ID returns this transaction's correlation id, for log correlation
// standing in for the host's transaction identity.
func (g *TxnGuard) ID() uuid.UUID {
	return g.id
}

// RecordTermsAdded increments the bulk-load counter that pre-commit checks
// against bulk_load_threshold (§5, §6.8).
func (g *TxnGuard) RecordTermsAdded(n int) {
	g.termsAdded += int64(n)
}

// ShouldBulkSpill reports whether this transaction's terms_added_this_xact
// has crossed threshold, triggering the pre-commit bulk-load spill check
// (§5 "run bulk-load spill check").
func (g *TxnGuard) ShouldBulkSpill(threshold int64) bool {
	return g.termsAdded >= threshold
}

// Close runs commit/abort cleanup: release the held per-index lock and
// reset bulk-load counters (§5 "commit/abort: release all held per-index
// locks, reset bulk-load counters").
func (g *TxnGuard) Close() {
	if g.closed {
		return
	}
	g.closed = true
	if g.exclusive {
		g.state.Lock.Unlock()
	} else {
		g.state.Lock.RUnlock()
	}
	g.log.Debug("txn end", "txn_id", g.id, "index_id", g.state.IndexID, "terms_added", g.termsAdded)
	g.termsAdded = 0
}
