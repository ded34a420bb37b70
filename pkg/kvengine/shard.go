// shard.go contains one partition of the keyspace: the entry index, the
// LRU, the TTL heap, a bounded mailbox of pending mutations, and the
// periodic expiry sweeper. Distinct shards run fully independently; within
// a shard, all mutations execute on a single dispatcher goroutine in
// mailbox arrival order. Reads bypass the mailbox: they look the key up
// under the shared side of the shard's RWMutex and take the write side
// only briefly to promote the key in the LRU. A read that finds an expired
// entry is the exception: it enqueues the entry's removal in the mailbox.
//
// A shard is *not* exposed from the public API: all exported types live in
// store.go. Shards are created and managed by the top-level Store object.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import (
	"context"
	"sync"
	"time"

	"github.com/Voskan/kvshard/internal/lru"
	"github.com/Voskan/kvshard/internal/ttlheap"
	"github.com/Voskan/kvshard/pkg/kvvalue"
)

type shardState int32

const (
	shardRunning shardState = iota
	shardDraining
	shardStopped
)

// shard owns one partition of the keyspace. mu guards entries and lru for
// the concurrent read fast path. The dispatcher goroutine (running
// mailbox.run) takes the write side of mu to mutate entries; the read path
// takes it only to promote a key in the LRU.
type shard struct {
	id int

	mu      sync.RWMutex
	entries map[string]*entry
	lru     *lru.LRU

	// ttlMu guards ttl: the dispatcher pushes records while the sweeper
	// goroutine pops expired ones, and the heap itself holds no lock.
	ttlMu sync.Mutex
	ttl   *ttlheap.Heap

	box     *mailbox
	metrics metricsSink

	state      shardState
	stopSweep  chan struct{}
	sweepDone  chan struct{} // nil until startSweeper runs
	dispatchWG sync.WaitGroup
}

func newShard(id int, maxBytes int64, mailboxCap int, metrics metricsSink) *shard {
	s := &shard{
		id:        id,
		entries:   make(map[string]*entry),
		lru:       lru.New(-1, maxBytes),
		ttl:       ttlheap.New(),
		box:       newMailbox(mailboxCap),
		metrics:   metrics,
		state:     shardRunning,
		stopSweep: make(chan struct{}),
	}
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		s.box.run(s)
	}()
	return s
}

// startSweeper launches the periodic expiry sweep on its own goroutine.
// Call at most once per shard.
func (s *shard) startSweeper(ctx context.Context, interval time.Duration, batch int) {
	s.sweepDone = make(chan struct{})
	go func() {
		defer close(s.sweepDone)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopSweep:
				return
			case <-t.C:
				s.sweepOnce(batch)
			}
		}
	}()
}

// sweepOnce pops due records and enqueues an internal expire mutation for
// each. It never mutates shard state directly; the batch bound keeps the
// sweeper from monopolizing the mailbox on a tick with many expirations.
func (s *shard) sweepOnce(batch int) {
	s.ttlMu.Lock()
	due := s.ttl.PopExpired(nowMS(), batch)
	s.ttlMu.Unlock()
	if len(due) == 0 {
		return
	}
	ctx := context.Background()
	for _, rec := range due {
		rec := rec
		_, _ = s.box.submit(ctx, func(sh *shard) (any, error) {
			sh.expireMutation(rec.Key, rec.ExpiresAt)
			return nil, nil
		})
	}
}

// ---- read fast path ----

// get implements the lock-guarded, mailbox-free read path: index lookup,
// lazy-expiry check, LRU promotion, hit/miss counters.
func (s *shard) get(key string) (Snapshot, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.RUnlock()
		s.metrics.incMiss(s.id)
		return Snapshot{}, false
	}
	if e.expired(nowMS()) {
		s.mu.RUnlock()
		// expireMutation does the expiration count, exactly once and only
		// if the entry is still there when the mailbox gets to it.
		s.lazyExpire(key, e.expiresAt)
		s.metrics.incMiss(s.id)
		return Snapshot{}, false
	}
	snap := snapshotOf(e)
	s.mu.RUnlock()

	s.mu.Lock()
	if cur, ok := s.entries[key]; ok && cur == e {
		s.lru.Get(key)
	}
	s.mu.Unlock()

	s.metrics.incHit(s.id)
	return snap, true
}

// lazyExpire routes the stale-read cleanup through the mailbox so it
// never races the dispatcher. Errors are not actionable from a read path
// and are discarded.
func (s *shard) lazyExpire(key string, observedExpiresAt int64) {
	ctx := context.Background()
	_, _ = s.box.submit(ctx, func(sh *shard) (any, error) {
		sh.expireMutation(key, observedExpiresAt)
		return nil, nil
	})
}

// ---- mutation handlers (dispatcher-only; called from within mailbox.run) ----

type setResult struct {
	Version   string
	ExpiresAt int64
	Created   bool
}

// setMutation applies a conditional or unconditional write. An expired
// entry counts as absent for CAS purposes.
func (s *shard) setMutation(key string, val kvvalue.Value, ttl time.Duration, ifMatch, ifNoneMatch string, maxItemBytes int64) (setResult, *Error) {
	now := nowMS()

	s.mu.RLock()
	existing, present := s.entries[key]
	s.mu.RUnlock()

	effectivelyPresent := present && !existing.expired(now)

	if ifNoneMatch != "" && effectivelyPresent {
		return setResult{}, ErrConflict(key, "", existing.version)
	}
	if ifMatch != "" {
		if !effectivelyPresent {
			return setResult{}, ErrConflict(key, ifMatch, "")
		}
		if existing.version != ifMatch {
			return setResult{}, ErrConflict(key, ifMatch, existing.version)
		}
	}

	size := val.SizeBytes()
	if size > maxItemBytes {
		return setResult{}, ErrPayloadTooLarge("value of %d bytes exceeds max_item_bytes %d", size, maxItemBytes)
	}

	createdAt := now
	if effectivelyPresent {
		createdAt = existing.createdAt
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now + ttl.Milliseconds()
	}

	e := &entry{
		key:       key,
		value:     val,
		version:   kvvalue.NewVersion(),
		createdAt: createdAt,
		updatedAt: now,
		expiresAt: expiresAt,
		sizeBytes: size,
	}

	s.mu.Lock()
	s.entries[key] = e
	evicted := s.lru.Put(key, size)
	for _, victim := range evicted {
		delete(s.entries, victim)
	}
	s.mu.Unlock()

	for range evicted {
		s.metrics.incEvict(s.id)
	}
	if expiresAt != 0 {
		s.ttlMu.Lock()
		s.ttl.Push(key, expiresAt)
		s.ttlMu.Unlock()
	}
	s.metrics.incSet(s.id)
	s.metrics.observePayloadBytes(float64(size))

	return setResult{Version: e.version, ExpiresAt: expiresAt, Created: !effectivelyPresent}, nil
}

// deleteMutation removes key, honoring an optional If-Match precondition.
// Returns false when the key is absent or already expired.
func (s *shard) deleteMutation(key string, ifMatch string) (bool, *Error) {
	now := nowMS()

	s.mu.RLock()
	existing, present := s.entries[key]
	s.mu.RUnlock()

	if !present || existing.expired(now) {
		return false, nil
	}
	if ifMatch != "" && existing.version != ifMatch {
		return false, ErrConflict(key, ifMatch, existing.version)
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.lru.Delete(key)
	s.mu.Unlock()

	s.metrics.incDelete(s.id)
	return true, nil
}

type incrResult struct {
	Value   float64
	Version string
}

// incrMutation adds delta to the numeric value at key, starting from 0
// when the key is absent or expired. A present non-number entry is a
// BadRequest. The new entry is always charged 8 bytes, whatever the size
// of the value it replaces.
func (s *shard) incrMutation(key string, delta int32, maxItemBytes int64) (incrResult, *Error) {
	now := nowMS()

	s.mu.RLock()
	existing, present := s.entries[key]
	s.mu.RUnlock()

	effectivelyPresent := present && !existing.expired(now)

	var base float64
	var createdAt int64 = now
	if effectivelyPresent {
		n, ok := existing.value.Number()
		if !ok {
			return incrResult{}, ErrBadRequest("key %q does not hold a number", key)
		}
		base = n
		createdAt = existing.createdAt
	}

	val, err := kvvalue.FromNumber(base + float64(delta))
	if err != nil {
		return incrResult{}, ErrBadRequest("%v", err)
	}
	size := val.SizeBytes()
	if size > maxItemBytes {
		return incrResult{}, ErrPayloadTooLarge("value of %d bytes exceeds max_item_bytes %d", size, maxItemBytes)
	}

	e := &entry{
		key:       key,
		value:     val,
		version:   kvvalue.NewVersion(),
		createdAt: createdAt,
		updatedAt: now,
		sizeBytes: size,
	}

	s.mu.Lock()
	s.entries[key] = e
	evicted := s.lru.Put(key, size)
	for _, victim := range evicted {
		delete(s.entries, victim)
	}
	s.mu.Unlock()

	for range evicted {
		s.metrics.incEvict(s.id)
	}
	s.metrics.incSet(s.id)

	n, _ := val.Number()
	return incrResult{Value: n, Version: e.version}, nil
}

// expireMutation removes key if it is still present and still expired,
// and its current expiresAt still matches observedExpiresAt (guarding
// against TTL extension via an intervening set).
func (s *shard) expireMutation(key string, observedExpiresAt int64) {
	now := nowMS()

	s.mu.RLock()
	existing, present := s.entries[key]
	s.mu.RUnlock()

	if !present || !existing.expired(now) || existing.expiresAt != observedExpiresAt {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.lru.Delete(key)
	s.mu.Unlock()

	s.metrics.incExpire(s.id)
}

// ---- lifecycle ----

func (s *shard) entryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *shard) mailboxDepth() int { return s.box.depth() }

// drainAndStop transitions Running -> Draining -> Stopped: stops the
// sweeper, then closes the mailbox so in-flight and already queued
// mutations finish before the dispatcher goroutine exits.
func (s *shard) drainAndStop() {
	s.mu.Lock()
	s.state = shardDraining
	s.mu.Unlock()

	close(s.stopSweep)
	if s.sweepDone != nil {
		<-s.sweepDone
	}
	s.box.close()
	s.dispatchWG.Wait()

	s.mu.Lock()
	s.state = shardStopped
	s.mu.Unlock()
}
