// Package hnsw implements an in-memory Hierarchical Navigable Small World
// graph: approximate nearest-neighbor search with soft-delete tombstones,
// used as the default vector index for live collections.
package hnsw

import (
	"container/heap"
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/distance"
	"github.com/aifocal/akidb/internal/index"
)

// nodeID names a graph node by its document identity.
type nodeID = uuid.UUID

// node is one vector and its per-level neighbor lists. A node's entry
// persists after delete (deleted=true) so graph connectivity for other
// nodes' traversal is preserved; it is physically removed only by compaction
// rebuilding the index from the live document set.
type node struct {
	docID      nodeID
	vector     []float32
	level      int
	neighbors  [][]nodeID // neighbors[l] is this node's connections at level l, l in [0, level]
	externalID string
	metadata   map[string]any
	deleted    bool
}

// Config tunes graph construction and search.
type Config struct {
	M                    int   // max neighbors per node per level (2M at level 0)
	EfConstruction       int   // beam width used while connecting a newly inserted node
	MaxConcurrentSearches int64 // cap on concurrent distance-scoring goroutines shared by all calls on this index
	ScoreFanoutThreshold int   // neighbor-batch size at or above which distance scoring runs concurrently
}

func (c *Config) applyDefaults() {
	if c.M <= 0 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.MaxConcurrentSearches <= 0 {
		c.MaxConcurrentSearches = 8
	}
	if c.ScoreFanoutThreshold <= 0 {
		c.ScoreFanoutThreshold = 32
	}
}

// Index is an HNSW approximate nearest-neighbor graph for a single
// collection. Reads (Search, Get) and writes (Insert, Delete) share one
// sync.RWMutex guarding the node table and neighbor lists; writes are
// serialized with respect to each other, reads may run concurrently with
// each other but block behind an in-flight write, per the single successful
// insert's node-visible-to-subsequent-search invariant.
type Index struct {
	mu     sync.RWMutex
	dim    int
	metric distance.Metric
	cfg    Config

	nodes      map[nodeID]*node
	entryPoint nodeID
	maxLevel   int
	liveCount  int

	levelMult float64
	searchSem *semaphore.Weighted
}

// New returns an empty HNSW index fixed to dim and metric.
func New(dim int, metric distance.Metric, cfg Config) *Index {
	cfg.applyDefaults()
	return &Index{
		dim:       dim,
		metric:    metric,
		cfg:       cfg,
		nodes:     make(map[nodeID]*node),
		levelMult: 1 / math.Log(float64(cfg.M)),
		searchSem: semaphore.NewWeighted(cfg.MaxConcurrentSearches),
	}
}

func (idx *Index) Dimension() int          { return idx.dim }
func (idx *Index) Metric() distance.Metric { return idx.metric }

// randomLevel draws a level from a geometric distribution parameterized by
// 1/ln(M), per the standard HNSW construction.
func (idx *Index) randomLevel() int {
	r := rand.Float64()
	for r == 0 { // exclude exactly zero: log(0) is -Inf
		r = rand.Float64()
	}
	return int(math.Floor(-math.Log(r) * idx.levelMult))
}

func (idx *Index) dist(a, b []float32) float64 {
	return distance.Distance(idx.metric, a, b)
}

// Insert validates doc and either updates an existing live node in place
// (a vector update does not reconnect the graph — an accepted approximation,
// since full reinsertion on every update would be prohibitively expensive)
// or performs the full HNSW insertion algorithm for a new document.
func (idx *Index) Insert(doc index.Document) error {
	if err := distance.Validate(doc.Vector, idx.dim, idx.metric); err != nil {
		return err
	}
	vec := doc.Vector
	if idx.metric == distance.Cosine {
		vec = distance.Normalize(vec)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.nodes[doc.DocID]; ok && !existing.deleted {
		existing.vector = vec
		existing.externalID = doc.ExternalID
		existing.metadata = doc.Metadata
		return nil
	}

	level := idx.randomLevel()
	n := &node{
		docID:      doc.DocID,
		vector:     vec,
		level:      level,
		neighbors:  make([][]nodeID, level+1),
		externalID: doc.ExternalID,
		metadata:   doc.Metadata,
	}

	wasEmpty := len(idx.nodes) == 0
	idx.nodes[doc.DocID] = n
	idx.liveCount++

	if wasEmpty {
		idx.entryPoint = doc.DocID
		idx.maxLevel = level
		return nil
	}

	current := idx.entryPoint
	for lev := idx.maxLevel; lev > level; lev-- {
		current = idx.greedyClosest(vec, current, lev)
	}

	top := level
	if idx.maxLevel < top {
		top = idx.maxLevel
	}
	for lev := top; lev >= 0; lev-- {
		entryDist := idx.dist(vec, idx.nodes[current].vector)
		found := idx.searchLayer(vec, []candidate{{current, entryDist}}, idx.cfg.EfConstruction, lev)

		m := idx.cfg.M
		if lev == 0 {
			m = 2 * idx.cfg.M
		}
		selected := idx.selectNeighborsHeuristic(vec, found, m)
		n.neighbors[lev] = toIDs(selected)
		idx.connect(doc.DocID, lev, selected, m)

		if len(found) > 0 {
			current = found[0].docID
		}
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entryPoint = doc.DocID
	}
	return nil
}

// connect wires n bidirectionally to each selected neighbor at lev, pruning
// the neighbor's own list back down to maxPerLevel via the same diversity
// heuristic when the new edge pushes it over the limit.
func (idx *Index) connect(n nodeID, lev int, selected []candidate, maxPerLevel int) {
	for _, s := range selected {
		nb := idx.nodes[s.docID]
		if nb == nil || lev > nb.level {
			continue
		}
		nb.neighbors[lev] = append(nb.neighbors[lev], n)
		if len(nb.neighbors[lev]) <= maxPerLevel {
			continue
		}
		cands := make([]candidate, 0, len(nb.neighbors[lev]))
		for _, otherID := range nb.neighbors[lev] {
			other := idx.nodes[otherID]
			if other == nil {
				continue
			}
			cands = append(cands, candidate{otherID, idx.dist(nb.vector, other.vector)})
		}
		pruned := idx.selectNeighborsHeuristic(nb.vector, cands, maxPerLevel)
		nb.neighbors[lev] = toIDs(pruned)
	}
}

func toIDs(cands []candidate) []nodeID {
	ids := make([]nodeID, len(cands))
	for i, c := range cands {
		ids[i] = c.docID
	}
	return ids
}

// selectNeighborsHeuristic implements HNSW's diversity-aware neighbor
// selection: candidates are considered nearest-first, and a candidate is
// kept only if it is closer to the reference vector than to every neighbor
// already selected — this rejects neighbors whose inclusion would make an
// already-closer neighbor redundant.
func (idx *Index) selectNeighborsHeuristic(ref []float32, cands []candidate, m int) []candidate {
	sorted := make([]candidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	selected := make([]candidate, 0, m)
	for _, c := range sorted {
		if len(selected) >= m {
			break
		}
		node := idx.nodes[c.docID]
		if node == nil {
			continue
		}
		keep := true
		for _, s := range selected {
			sNode := idx.nodes[s.docID]
			if sNode == nil {
				continue
			}
			if idx.dist(node.vector, sNode.vector) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		}
	}
	// Diversity filtering can leave us short of m; backfill with the nearest
	// remaining candidates so connectivity never starves under a pathological
	// distribution of points.
	if len(selected) < m {
		have := make(map[nodeID]bool, len(selected))
		for _, s := range selected {
			have[s.docID] = true
		}
		for _, c := range sorted {
			if len(selected) >= m {
				break
			}
			if !have[c.docID] {
				selected = append(selected, c)
			}
		}
	}
	return selected
}

// greedyClosest descends from entry within a single level, repeatedly
// stepping to the closest unexplored neighbor until no neighbor improves on
// the current node. Used for the single-best descent through upper levels.
func (idx *Index) greedyClosest(query []float32, entry nodeID, lev int) nodeID {
	current := entry
	currentDist := idx.dist(query, idx.nodes[current].vector)
	for {
		improved := false
		n := idx.nodes[current]
		if lev > n.level {
			break
		}
		for _, nbID := range n.neighbors[lev] {
			nb := idx.nodes[nbID]
			if nb == nil {
				continue
			}
			d := idx.dist(query, nb.vector)
			if d < currentDist {
				current = nbID
				currentDist = d
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return current
}

// searchLayer runs beam search at lev starting from entryPoints, returning up
// to ef candidates sorted nearest-first. Traversal walks through tombstoned
// nodes (graph connectivity must survive delete); filtering deleted nodes out
// of the final answer is the caller's job (Search does this; construction
// callers don't care since they reconnect around stale edges naturally).
func (idx *Index) searchLayer(query []float32, entryPoints []candidate, ef, lev int) []candidate {
	visited := make(map[nodeID]bool, ef*2)
	candidates := make(minHeap, 0, ef)
	results := make(maxHeap, 0, ef)

	for _, e := range entryPoints {
		visited[e.docID] = true
		candidates = append(candidates, e)
		results = append(results, e)
	}
	heap.Init(&candidates)
	heap.Init(&results)

	for candidates.Len() > 0 {
		c := heap.Pop(&candidates).(candidate)
		if results.Len() >= ef && c.dist > results[0].dist {
			break
		}

		n := idx.nodes[c.docID]
		if n == nil || lev > n.level {
			continue
		}

		var toScore []nodeID
		for _, nbID := range n.neighbors[lev] {
			if !visited[nbID] {
				visited[nbID] = true
				toScore = append(toScore, nbID)
			}
		}

		for _, scored := range idx.scoreCandidates(query, toScore) {
			if results.Len() < ef || scored.dist < results[0].dist {
				heap.Push(&candidates, scored)
				heap.Push(&results, scored)
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, results)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// scoreCandidates computes query distance for each id. Batches at or above
// ScoreFanoutThreshold are scored concurrently, capped by the index's
// search semaphore, since distance computation is pure CPU work with no
// shared mutable state beyond the (already RLock/Lock-held) node table.
func (idx *Index) scoreCandidates(query []float32, ids []nodeID) []candidate {
	out := make([]candidate, len(ids))
	score := func(i int) {
		n := idx.nodes[ids[i]]
		out[i] = candidate{ids[i], idx.dist(query, n.vector)}
	}

	if len(ids) < idx.cfg.ScoreFanoutThreshold {
		for i := range ids {
			score(i)
		}
		return out
	}

	var wg sync.WaitGroup
	ctx := context.Background()
	for i := range ids {
		if err := idx.searchSem.Acquire(ctx, 1); err != nil {
			score(i) // fall back to inline scoring rather than fail the search
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer idx.searchSem.Release(1)
			score(i)
		}(i)
	}
	wg.Wait()
	return out
}

// Delete soft-deletes docID: its entry remains in the graph for traversal,
// but is excluded from Search results, Get, Count, and All.
func (idx *Index) Delete(docID nodeID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n, ok := idx.nodes[docID]
	if !ok || n.deleted {
		return akidberr.New(akidberr.NotFound, "hnsw: doc_id %s not found", docID)
	}
	n.deleted = true
	idx.liveCount--
	return nil
}

func (idx *Index) Get(docID nodeID) (index.Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.nodes[docID]
	if !ok || n.deleted {
		return index.Document{}, false
	}
	return idx.toDocument(n), true
}

func (idx *Index) toDocument(n *node) index.Document {
	return index.Document{
		DocID:      n.docID,
		Vector:     n.vector,
		ExternalID: n.externalID,
		Metadata:   n.metadata,
	}
}

// Search validates query, normalizes it for Cosine, and returns up to k
// closest live documents ordered nearest-first.
func (idx *Index) Search(query []float32, k, ef int) ([]index.Result, error) {
	if err := distance.Validate(query, idx.dim, idx.metric); err != nil {
		return nil, err
	}
	if ef < k {
		ef = k
	}
	q := query
	if idx.metric == distance.Cosine {
		q = distance.Normalize(q)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return nil, nil
	}

	current := idx.entryPoint
	for lev := idx.maxLevel; lev > 0; lev-- {
		current = idx.greedyClosest(q, current, lev)
	}

	entryDist := idx.dist(q, idx.nodes[current].vector)
	found := idx.searchLayer(q, []candidate{{current, entryDist}}, ef, 0)

	results := make([]index.Result, 0, k)
	for _, c := range found {
		if len(results) >= k {
			break
		}
		n := idx.nodes[c.docID]
		if n == nil || n.deleted {
			continue
		}
		results = append(results, index.Result{
			DocID:      n.docID,
			Score:      distance.Score(idx.metric, c.dist),
			ExternalID: n.externalID,
			Metadata:   n.metadata,
		})
	}
	return results, nil
}

func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.liveCount
}

func (idx *Index) All() []index.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]index.Document, 0, idx.liveCount)
	for _, n := range idx.nodes {
		if !n.deleted {
			out = append(out, idx.toDocument(n))
		}
	}
	return out
}

var _ index.Index = (*Index)(nil)
