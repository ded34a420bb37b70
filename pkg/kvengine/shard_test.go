package kvengine

import (
	"context"
	"testing"
	"time"

	"github.com/Voskan/kvshard/pkg/kvvalue"
)

func newTestShard(mailboxCap int) *shard {
	return newShard(0, -1, mailboxCap, noopMetrics{})
}

// submitSet and submitIncr adapt the (T, *Error)-returning mutation
// methods to mailbox.submit's (any, error) signature without the
// typed-nil-interface trap: returning a nil *Error positionally as an
// `error` would produce a non-nil interface wrapping a nil pointer.
func submitSet(ctx context.Context, s *shard, key string, val kvvalue.Value, ttl time.Duration) (setResult, error) {
	res, err := s.box.submit(ctx, func(sh *shard) (any, error) {
		r, serr := sh.setMutation(key, val, ttl, "", "", 1<<20)
		if serr != nil {
			return nil, serr
		}
		return r, nil
	})
	if err != nil {
		return setResult{}, err
	}
	return res.(setResult), nil
}

func submitIncr(ctx context.Context, s *shard, key string, delta int32) (incrResult, error) {
	res, err := s.box.submit(ctx, func(sh *shard) (any, error) {
		r, serr := sh.incrMutation(key, delta, 1<<20)
		if serr != nil {
			return nil, serr
		}
		return r, nil
	})
	if err != nil {
		return incrResult{}, err
	}
	return res.(incrResult), nil
}

func TestShardByteInvariantHoldsAcrossMutations(t *testing.T) {
	s := newTestShard(16)
	defer s.drainAndStop()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		val := kvvalue.FromText(string(rune('a' + i)))
		if _, err := submitSet(ctx, s, string(rune('a'+i)), val, 0); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}

	s.mu.RLock()
	var sum int64
	for _, e := range s.entries {
		sum += e.sizeBytes
	}
	n := len(s.entries)
	s.mu.RUnlock()

	if sum != s.lru.Bytes() {
		t.Fatalf("sum(entry.sizeBytes)=%d != lru.Bytes()=%d", sum, s.lru.Bytes())
	}
	if n != s.lru.Len() {
		t.Fatalf("len(entries)=%d != lru.Len()=%d", n, s.lru.Len())
	}
}

func TestShardIncrementPreservesCreatedAt(t *testing.T) {
	s := newTestShard(16)
	defer s.drainAndStop()
	ctx := context.Background()

	if _, err := submitIncr(ctx, s, "c", 5); err != nil {
		t.Fatalf("incr 1: %v", err)
	}

	s.mu.RLock()
	createdAt1 := s.entries["c"].createdAt
	s.mu.RUnlock()

	time.Sleep(2 * time.Millisecond)

	if _, err := submitIncr(ctx, s, "c", 1); err != nil {
		t.Fatalf("incr 2: %v", err)
	}

	s.mu.RLock()
	e := s.entries["c"]
	s.mu.RUnlock()

	if e.createdAt != createdAt1 {
		t.Fatalf("createdAt changed across increments: %d != %d", e.createdAt, createdAt1)
	}
	if e.updatedAt < createdAt1 {
		t.Fatalf("updatedAt went backwards")
	}
}

func TestShardMailboxFullReturnsOverloaded(t *testing.T) {
	s := newTestShard(1)

	block := make(chan struct{})
	ctx := context.Background()
	dispatcherBusy := make(chan struct{})

	// Message 1 occupies the single dispatcher goroutine, leaving the
	// one-slot mailbox buffer empty behind it.
	go func() {
		_, _ = s.box.submit(ctx, func(sh *shard) (any, error) {
			close(dispatcherBusy)
			<-block
			return nil, nil
		})
	}()
	<-dispatcherBusy

	// Message 2 fills the one-slot buffer; it will not be picked up until
	// message 1 completes, so await its reply on its own goroutine.
	msg2Done := make(chan error, 1)
	go func() {
		_, err := s.box.submit(ctx, func(sh *shard) (any, error) { return nil, nil })
		msg2Done <- err
	}()
	// Give message 2 a moment to land in the buffer before message 3 probes it.
	time.Sleep(20 * time.Millisecond)

	// Message 3 finds the mailbox (buffer + busy dispatcher) full and must
	// be rejected immediately, without blocking.
	_, err3 := s.box.submit(ctx, func(sh *shard) (any, error) { return nil, nil })
	if KindOf(err3) != KindOverloaded {
		t.Fatalf("submit on a full mailbox: err=%v, want Overloaded", err3)
	}

	close(block)
	if err := <-msg2Done; err != nil {
		t.Fatalf("message 2 (queued behind the busy dispatcher): %v", err)
	}
	s.drainAndStop()
}

func TestSweepOnceDiscardsStaleRecordAfterOverwrite(t *testing.T) {
	orig := timeNowUnixMilli
	var now int64 = 1000
	timeNowUnixMilli = func() int64 { return now }
	defer func() { timeNowUnixMilli = orig }()

	s := newTestShard(16)
	defer s.drainAndStop()
	ctx := context.Background()

	if _, err := submitSet(ctx, s, "k", kvvalue.FromText("v1"), time.Millisecond); err != nil {
		t.Fatalf("set with ttl: %v", err)
	}

	// Overwrite with a longer TTL before the original record's expiry is
	// swept; the stale heap record must not delete the fresh entry.
	if _, err := submitSet(ctx, s, "k", kvvalue.FromText("v2"), time.Hour); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	now += 10 // past the original (already-overwritten) expiry
	s.sweepOnce(100)
	time.Sleep(10 * time.Millisecond) // let the enqueued expire mutation (if any) run

	s.mu.RLock()
	_, present := s.entries["k"]
	s.mu.RUnlock()
	if !present {
		t.Fatalf("fresh entry was incorrectly removed by a stale heap record")
	}
}
