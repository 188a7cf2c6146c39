package storagebackend

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/index"
)

// boundedCache is a fixed-capacity, single-segment LRU used by an S3Only
// backend to avoid round-tripping to the object store on every read of a
// recently-seen document. Eviction always drops the least-recently-used
// entry from the tail of the list.
type boundedCache struct {
	mu       sync.Mutex
	capacity int
	items    map[uuid.UUID]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	docID uuid.UUID
	doc   index.Document
}

func newBoundedCache(capacity int) *boundedCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &boundedCache{
		capacity: capacity,
		items:    make(map[uuid.UUID]*list.Element),
		order:    list.New(),
	}
}

func (c *boundedCache) get(docID uuid.UUID) (index.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[docID]
	if !ok {
		return index.Document{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).doc, true
}

func (c *boundedCache) put(doc index.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[doc.DocID]; ok {
		elem.Value.(*cacheEntry).doc = doc
		c.order.MoveToFront(elem)
		return
	}
	elem := c.order.PushFront(&cacheEntry{docID: doc.DocID, doc: doc})
	c.items[doc.DocID] = elem
	if c.order.Len() > c.capacity {
		tail := c.order.Back()
		if tail != nil {
			c.order.Remove(tail)
			delete(c.items, tail.Value.(*cacheEntry).docID)
		}
	}
}

func (c *boundedCache) remove(docID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[docID]; ok {
		c.order.Remove(elem)
		delete(c.items, docID)
	}
}
