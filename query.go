package tiersearch

import (
	"github.com/RoaringBitmap/roaring"
)

// QueryBuilder composes boolean term sets across a vector of data sources
// before BM25 ranking (SPEC_FULL §9, "Boolean query composition"). Kept
// from the teacher's query.go, adapted from a single *InvertedIndex to the
// abstract []DataSource vector (memtable + every active segment) the rest
// of this package uses, and from int doc-ids to DocRef.
//
// Since DocRef is a 48-bit external key rather than roaring's native
// uint32 domain, each builder keeps its own dense DocRef↔uint32 mapping
// for the lifetime of one query.
type QueryBuilder struct {
	sources []DataSource
	stack   []*roaring.Bitmap
	negate  bool
	terms   []string

	ids   map[DocRef]uint32
	refs  []DocRef
	nextID uint32
}

// NewQueryBuilder starts a fluent boolean query over sources.
func NewQueryBuilder(sources []DataSource) *QueryBuilder {
	return &QueryBuilder{
		sources: sources,
		ids:     make(map[DocRef]uint32),
	}
}

func (q *QueryBuilder) idFor(ref DocRef) uint32 {
	if id, ok := q.ids[ref]; ok {
		return id
	}
	id := q.nextID
	q.nextID++
	q.ids[ref] = id
	q.refs = append(q.refs, ref)
	return id
}

func (q *QueryBuilder) termBitmap(term string) *roaring.Bitmap {
	bm := roaring.New()
	for _, src := range q.sources {
		for _, p := range src.Postings(term) {
			bm.Add(q.idFor(p.DocRef))
		}
	}
	return bm
}

// Term pushes the bitmap of documents containing term.
func (q *QueryBuilder) Term(term string) *QueryBuilder {
	bm := q.termBitmap(term)
	if q.negate {
		bm = q.negateBitmap(bm)
		q.negate = false
	}
	q.terms = append(q.terms, term)
	q.stack = append(q.stack, bm)
	return q
}

// And intersects the top two bitmaps on the stack.
func (q *QueryBuilder) And() *QueryBuilder {
	if len(q.stack) < 2 {
		return q
	}
	n := len(q.stack)
	a, b := q.stack[n-2], q.stack[n-1]
	q.stack = q.stack[:n-2]
	q.stack = append(q.stack, roaring.And(a, b))
	return q
}

// Or unions the top two bitmaps on the stack.
func (q *QueryBuilder) Or() *QueryBuilder {
	if len(q.stack) < 2 {
		return q
	}
	n := len(q.stack)
	a, b := q.stack[n-2], q.stack[n-1]
	q.stack = q.stack[:n-2]
	q.stack = append(q.stack, roaring.Or(a, b))
	return q
}

// Not negates the next Term call. The complement is taken over the
// documents this builder has assigned ids to so far; And and Or ignore it.
func (q *QueryBuilder) Not() *QueryBuilder {
	q.negate = true
	return q
}

func (q *QueryBuilder) negateBitmap(bm *roaring.Bitmap) *roaring.Bitmap {
	universe := roaring.New()
	for id := uint32(0); id < q.nextID; id++ {
		universe.Add(id)
	}
	return roaring.AndNot(universe, bm)
}

// Execute returns the DocRefs satisfying the composed boolean expression.
func (q *QueryBuilder) Execute() []DocRef {
	if len(q.stack) == 0 {
		return nil
	}
	result := q.stack[len(q.stack)-1]
	out := make([]DocRef, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		out = append(out, q.refs[it.Next()])
	}
	return out
}

// Terms returns every term referenced by Term() calls so far, in call
// order — the set the scorer needs query term frequencies for.
func (q *QueryBuilder) Terms() []string {
	return q.terms
}

// AllOf is a convenience wrapper for an AND-of-terms query (teacher's
// query.go helper, adapted to DataSource).
func AllOf(sources []DataSource, terms ...string) []DocRef {
	qb := NewQueryBuilder(sources)
	for i, t := range terms {
		qb.Term(t)
		if i > 0 {
			qb.And()
		}
	}
	return qb.Execute()
}

// AnyOf is a convenience wrapper for an OR-of-terms query.
func AnyOf(sources []DataSource, terms ...string) []DocRef {
	qb := NewQueryBuilder(sources)
	for i, t := range terms {
		qb.Term(t)
		if i > 0 {
			qb.Or()
		}
	}
	return qb.Execute()
}
