package hnsw

import "container/heap"

// candidate pairs a node with its distance to the query/reference vector
// currently being searched or connected.
type candidate struct {
	docID nodeID
	dist  float64
}

// minHeap pops the closest (smallest distance) candidate first; used as the
// exploration frontier during beam search.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap pops the farthest (largest distance) candidate first; used to keep
// the best ef results seen so far, evicting the worst when the set overflows.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var (
	_ heap.Interface = (*minHeap)(nil)
	_ heap.Interface = (*maxHeap)(nil)
)
