package catalog

// NumBuckets is the fixed size of the filename hash index.
const NumBuckets = 1024

// djb2 hashes a filename. The constant 5381 and the shift-add form are
// the classic djb2 recurrence.
func djb2(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) + uint32(s[i])
	}
	return h
}

// indexNode is one chain link in a hash bucket.
type indexNode struct {
	key  string
	meta *FileMetadata
	next *indexNode
}

// hashIndex is a chained hash table keyed by filename. It must be kept in
// lockstep with the primary catalog sequence: a key is present here if
// and only if a matching row is reachable in the primary list. The index
// is not safe for concurrent use; the catalog mutex guards it.
type hashIndex struct {
	buckets [NumBuckets]*indexNode
	size    int
}

func newHashIndex() *hashIndex {
	return &hashIndex{}
}

func (ix *hashIndex) bucket(key string) uint32 {
	return djb2(key) % NumBuckets
}

// get returns the row for key, or nil.
func (ix *hashIndex) get(key string) *FileMetadata {
	for n := ix.buckets[ix.bucket(key)]; n != nil; n = n.next {
		if n.key == key {
			return n.meta
		}
	}
	return nil
}

// put inserts or replaces the row for key.
func (ix *hashIndex) put(key string, meta *FileMetadata) {
	b := ix.bucket(key)
	for n := ix.buckets[b]; n != nil; n = n.next {
		if n.key == key {
			n.meta = meta
			return
		}
	}
	ix.buckets[b] = &indexNode{key: key, meta: meta, next: ix.buckets[b]}
	ix.size++
}

// remove deletes the row for key. Returns true if a row was removed.
func (ix *hashIndex) remove(key string) bool {
	b := ix.bucket(key)
	var prev *indexNode
	for n := ix.buckets[b]; n != nil; n = n.next {
		if n.key == key {
			if prev == nil {
				ix.buckets[b] = n.next
			} else {
				prev.next = n.next
			}
			ix.size--
			return true
		}
		prev = n
	}
	return false
}

// len returns the number of indexed rows.
func (ix *hashIndex) len() int {
	return ix.size
}
