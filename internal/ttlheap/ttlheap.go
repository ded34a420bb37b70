// Package ttlheap implements the binary min-heap of pending expirations
// used by each shard to discover expired keys in batches.
//
// The heap is not keyed: overwriting or deleting an entry does not remove
// its old heap record. Removing eagerly would need a per-key index and a
// decrease-key operation; instead records are tolerated as stale and
// resolved at pop time by the shard, which compares the popped expiresAt
// against the live entry's current expiresAt.
//
// © 2025 kvshard authors. MIT License.
package ttlheap

import "container/heap"

// Record is a single pending expiration: key k expires at ExpiresAt
// (milliseconds, same epoch as the entry model uses).
type Record struct {
	Key       string
	ExpiresAt int64
}

// innerHeap implements container/heap.Interface ordered by ExpiresAt
// ascending; ties are broken arbitrarily.
type innerHeap []Record

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return h[i].ExpiresAt < h[j].ExpiresAt }
func (h innerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x any)         { *h = append(*h, x.(Record)) }
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	rec := old[n-1]
	*h = old[:n-1]
	return rec
}

// Heap is the min-heap of expirations owned by one shard. It is not
// safe for concurrent use; callers must hold whatever lock the owning
// shard already uses to serialize mutations.
type Heap struct {
	h innerHeap
}

// New constructs an empty Heap.
func New() *Heap {
	hp := &Heap{}
	heap.Init(&hp.h)
	return hp
}

// Push records that key will expire at expiresAt. Does not deduplicate or
// remove any prior record for the same key (see package doc).
func (t *Heap) Push(key string, expiresAt int64) {
	heap.Push(&t.h, Record{Key: key, ExpiresAt: expiresAt})
}

// Peek returns the record with the smallest ExpiresAt without removing it.
func (t *Heap) Peek() (Record, bool) {
	if len(t.h) == 0 {
		return Record{}, false
	}
	return t.h[0], true
}

// Pop removes and returns the record with the smallest ExpiresAt.
func (t *Heap) Pop() (Record, bool) {
	if len(t.h) == 0 {
		return Record{}, false
	}
	return heap.Pop(&t.h).(Record), true
}

// Len reports the number of pending (possibly stale) records.
func (t *Heap) Len() int { return len(t.h) }

// PopExpired repeatedly pops while the root's ExpiresAt <= now, up to max
// records (max <= 0 means unbounded). It is the caller's responsibility to
// verify each returned record against the live entry before acting on it;
// this function only knows about the heap, not the entry index.
func (t *Heap) PopExpired(now int64, max int) []Record {
	var out []Record
	for len(t.h) > 0 && t.h[0].ExpiresAt <= now {
		if max > 0 && len(out) >= max {
			break
		}
		out = append(out, heap.Pop(&t.h).(Record))
	}
	return out
}
