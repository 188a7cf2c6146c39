// Package brute implements a flat-scan reference index used to measure HNSW
// recall in tests: exact nearest neighbors at the cost of O(n) per search.
package brute

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/distance"
	"github.com/aifocal/akidb/internal/index"
)

type entry struct {
	doc     index.Document
	deleted bool
}

// Index is a brute-force, exact vector index.
type Index struct {
	mu     sync.RWMutex
	dim    int
	metric distance.Metric
	nodes  map[uuid.UUID]*entry
}

// New returns an empty brute-force index fixed to dim and metric.
func New(dim int, metric distance.Metric) *Index {
	return &Index{dim: dim, metric: metric, nodes: make(map[uuid.UUID]*entry)}
}

func (idx *Index) Dimension() int            { return idx.dim }
func (idx *Index) Metric() distance.Metric   { return idx.metric }

func (idx *Index) Insert(doc index.Document) error {
	vec := doc.Vector
	if err := distance.Validate(vec, idx.dim, idx.metric); err != nil {
		return err
	}
	if idx.metric == distance.Cosine {
		vec = distance.Normalize(vec)
	}
	stored := doc
	stored.Vector = vec

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.nodes[doc.DocID] = &entry{doc: stored}
	return nil
}

func (idx *Index) Delete(docID uuid.UUID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.nodes[docID]
	if !ok || e.deleted {
		return akidberr.New(akidberr.NotFound, "brute: doc_id %s not found", docID)
	}
	e.deleted = true
	return nil
}

func (idx *Index) Get(docID uuid.UUID) (index.Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.nodes[docID]
	if !ok || e.deleted {
		return index.Document{}, false
	}
	return e.doc, true
}

func (idx *Index) Search(query []float32, k, _ int) ([]index.Result, error) {
	if err := distance.Validate(query, idx.dim, idx.metric); err != nil {
		return nil, err
	}
	q := query
	if idx.metric == distance.Cosine {
		q = distance.Normalize(q)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]index.Result, 0, len(idx.nodes))
	for _, e := range idx.nodes {
		if e.deleted {
			continue
		}
		d := distance.Distance(idx.metric, q, e.doc.Vector)
		results = append(results, index.Result{
			DocID:      e.doc.DocID,
			Score:      distance.Score(idx.metric, d),
			ExternalID: e.doc.ExternalID,
			Metadata:   e.doc.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return resultDistanceFromScore(idx.metric, results[i].Score) < resultDistanceFromScore(idx.metric, results[j].Score)
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// resultDistanceFromScore inverts Score back to an orderable distance so the
// same comparator works across all three score formulas.
func resultDistanceFromScore(metric distance.Metric, score float64) float64 {
	switch metric {
	case distance.Euclidean:
		return 1/score - 1
	case distance.Cosine:
		return 1 - score
	case distance.DotProduct:
		return -score
	default:
		panic("brute: unrecognized metric " + metric.String())
	}
}

func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, e := range idx.nodes {
		if !e.deleted {
			n++
		}
	}
	return n
}

func (idx *Index) All() []index.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]index.Document, 0, len(idx.nodes))
	for _, e := range idx.nodes {
		if !e.deleted {
			out = append(out, e.doc)
		}
	}
	return out
}

var _ index.Index = (*Index)(nil)
