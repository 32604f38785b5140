package catalog

// DefaultCacheCapacity is the LRU capacity used when the configuration
// does not override it.
const DefaultCacheCapacity = 16

// lruNode is a doubly linked list element of the read cache.
type lruNode struct {
	prev, next *lruNode
	key        string
	meta       *FileMetadata
}

// lruCache is a fixed-capacity LRU over catalog rows. It holds references
// only: eviction never frees the underlying metadata, and every cached
// key must also be present in the hash index. Not safe for concurrent
// use; the catalog mutex guards it.
type lruCache struct {
	capacity int
	nodes    map[string]*lruNode
	head     *lruNode // sentinel, head.next is most recently used
	tail     *lruNode // sentinel, tail.prev is least recently used
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	head := &lruNode{}
	tail := &lruNode{}
	head.next = tail
	tail.prev = head
	return &lruCache{
		capacity: capacity,
		nodes:    make(map[string]*lruNode, capacity),
		head:     head,
		tail:     tail,
	}
}

func (c *lruCache) unlink(n *lruNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *lruCache) pushFront(n *lruNode) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

// get returns the cached row and promotes it to the head.
func (c *lruCache) get(key string) (*FileMetadata, bool) {
	n, ok := c.nodes[key]
	if !ok {
		return nil, false
	}
	c.unlink(n)
	c.pushFront(n)
	return n.meta, true
}

// put inserts or refreshes a row at the head, evicting the tail when the
// cache is full.
func (c *lruCache) put(key string, meta *FileMetadata) {
	if n, ok := c.nodes[key]; ok {
		n.meta = meta
		c.unlink(n)
		c.pushFront(n)
		return
	}
	if len(c.nodes) >= c.capacity {
		lru := c.tail.prev
		c.unlink(lru)
		delete(c.nodes, lru.key)
	}
	n := &lruNode{key: key, meta: meta}
	c.nodes[key] = n
	c.pushFront(n)
}

// remove drops a key, if cached. Used when a catalog row is deleted so
// the cache never outlives the primary list.
func (c *lruCache) remove(key string) {
	if n, ok := c.nodes[key]; ok {
		c.unlink(n)
		delete(c.nodes, key)
	}
}

// len returns the number of cached rows.
func (c *lruCache) len() int {
	return len(c.nodes)
}

// keys returns cached keys from most to least recently used.
func (c *lruCache) keys() []string {
	out := make([]string, 0, len(c.nodes))
	for n := c.head.next; n != c.tail; n = n.next {
		out = append(out, n.key)
	}
	return out
}
