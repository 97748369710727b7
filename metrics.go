package tiersearch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors BMWStats (and a few build/compaction counters) into
// Prometheus, per SPEC_FULL §2/§4's "Metrics surface": the returned
// BMWStats struct serves unit tests, these counters serve §8.3 scenario 6
// ("assert a counter exposed by the scorer") from outside the process.
type Metrics struct {
	DocsScored    prometheus.Counter
	BlocksSkipped prometheus.Counter
	BlocksScanned prometheus.Counter
	SpillsTotal   prometheus.Counter
	CompactionsTotal prometheus.Counter
}

// NewMetrics registers the BMW/build/compaction counters against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiersearch_docs_scored_total",
			Help: "Documents fully BM25-scored by the BMW scorer.",
		}),
		BlocksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiersearch_blocks_skipped_total",
			Help: "Posting blocks skipped by block-max upper-bound pruning.",
		}),
		BlocksScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiersearch_blocks_scanned_total",
			Help: "Posting blocks that were not skipped.",
		}),
		SpillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiersearch_spills_total",
			Help: "Memtable spills to a new L0 segment.",
		}),
		CompactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiersearch_compactions_total",
			Help: "Level merges performed by the compactor.",
		}),
	}
	reg.MustRegister(m.DocsScored, m.BlocksSkipped, m.BlocksScanned, m.SpillsTotal, m.CompactionsTotal)
	return m
}

// Observe folds one BMWStats sample into the counters.
func (m *Metrics) Observe(stats BMWStats) {
	m.DocsScored.Add(float64(stats.DocsScored))
	m.BlocksSkipped.Add(float64(stats.BlocksSkipped))
	m.BlocksScanned.Add(float64(stats.BlocksScanned))
}
