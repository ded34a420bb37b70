package kvengine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Voskan/kvshard/pkg/kvvalue"
)

func withFrozenClock(t *testing.T, start int64) func(deltaMS int64) {
	t.Helper()
	now := start
	orig := timeNowUnixMilli
	timeNowUnixMilli = func() int64 { return now }
	t.Cleanup(func() { timeNowUnixMilli = orig })
	return func(deltaMS int64) { now += deltaMS }
}

func TestCreateOnlyWinsOnce(t *testing.T) {
	st := New(WithShards(1))
	defer st.Close()
	ctx := context.Background()

	res, err := st.Set(ctx, SetInput{Key: "x", Value: kvvalue.FromText("a"), IfNoneMatch: true})
	if err != nil {
		t.Fatalf("first create-only set: %v", err)
	}
	v1 := res.Version

	_, err = st.Set(ctx, SetInput{Key: "x", Value: kvvalue.FromText("a2"), IfNoneMatch: true})
	if err == nil || err.Kind != KindConflict {
		t.Fatalf("second create-only set: err=%v, want Conflict", err)
	}

	snap, gerr := st.Get(ctx, "x")
	if gerr != nil {
		t.Fatalf("get: %v", gerr)
	}
	if snap.Version != v1 {
		t.Fatalf("version changed after rejected create-only write")
	}
}

func TestConditionalUpdateThenStaleConflict(t *testing.T) {
	st := New(WithShards(1))
	defer st.Close()
	ctx := context.Background()

	res1, err := st.Set(ctx, SetInput{Key: "x", Value: kvvalue.FromText("a"), IfNoneMatch: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res2, err := st.Set(ctx, SetInput{Key: "x", Value: kvvalue.FromText("b"), IfMatch: res1.Version})
	if err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	if res2.Version == res1.Version {
		t.Fatalf("version did not change on update")
	}

	_, err = st.Set(ctx, SetInput{Key: "x", Value: kvvalue.FromText("c"), IfMatch: res1.Version})
	if err == nil || err.Kind != KindConflict {
		t.Fatalf("stale if-match: err=%v, want Conflict", err)
	}
	if err.Details["expected"] != res1.Version || err.Details["actual"] != res2.Version {
		t.Fatalf("conflict details = %v, want expected=%s actual=%s", err.Details, res1.Version, res2.Version)
	}

	snap, _ := st.Get(ctx, "x")
	s, _ := snap.Value.Text()
	if s != "b" {
		t.Fatalf("Get() = %q, want b", s)
	}
}

func TestIncrementLifecycle(t *testing.T) {
	st := New(WithShards(1))
	defer st.Close()
	ctx := context.Background()

	r1, err := st.Increment(ctx, "c", 5)
	if err != nil || r1.Value != 5 {
		t.Fatalf("incr fresh key: %v, %+v", err, r1)
	}

	r2, err := st.Increment(ctx, "c", -2)
	if err != nil || r2.Value != 3 {
		t.Fatalf("incr existing key: %v, %+v", err, r2)
	}

	if _, err := st.Set(ctx, SetInput{Key: "c", Value: kvvalue.FromText("s")}); err != nil {
		t.Fatalf("overwrite with string: %v", err)
	}

	if _, err := st.Increment(ctx, "c", 1); err == nil || err.Kind != KindBadRequest {
		t.Fatalf("incr on non-number: err=%v, want BadRequest", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := New(WithShards(1))
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Set(ctx, SetInput{Key: "x", Value: kvvalue.FromText("a")}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.Delete(ctx, "x", ""); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := st.Delete(ctx, "x", ""); err == nil || err.Kind != KindNotFound {
		t.Fatalf("second delete: err=%v, want NotFound", err)
	}
}

func TestLazyExpiryOnRead(t *testing.T) {
	advance := withFrozenClock(t, 1_000_000)
	st := New(WithShards(1), WithSweepInterval(time.Hour))
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Set(ctx, SetInput{Key: "t", Value: kvvalue.FromText("x"), TTL: time.Millisecond}); err != nil {
		t.Fatalf("set with ttl: %v", err)
	}

	advance(2) // past expiry, sweeper has not run (interval is 1h)

	if _, err := st.Get(ctx, "t"); err == nil || err.Kind != KindNotFound {
		t.Fatalf("get after ttl expiry: err=%v, want NotFound", err)
	}
}

func TestLazyExpiryCountsExpirationOnce(t *testing.T) {
	advance := withFrozenClock(t, 1_000_000)
	reg := prometheus.NewRegistry()
	st := New(WithShards(1), WithSweepInterval(time.Hour), WithMetricsRegistry(reg))
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Set(ctx, SetInput{Key: "t", Value: kvvalue.FromText("x"), TTL: time.Millisecond}); err != nil {
		t.Fatalf("set with ttl: %v", err)
	}
	advance(2)

	if _, err := st.Get(ctx, "t"); err == nil || err.Kind != KindNotFound {
		t.Fatalf("get after ttl expiry: err=%v, want NotFound", err)
	}
	time.Sleep(50 * time.Millisecond) // let the enqueued expire mutation run

	pm := st.metrics.(*promMetrics)
	if got := testutil.ToFloat64(pm.expirations.WithLabelValues("0")); got != 1 {
		t.Fatalf("cache_expirations_total = %v after one lazily expired read, want 1", got)
	}
}

func TestSubmitErrCountsMailboxBackpressure(t *testing.T) {
	reg := prometheus.NewRegistry()
	st := New(WithShards(1), WithMetricsRegistry(reg))
	defer st.Close()

	e := st.submitErr(ErrOverloaded("shard_mailbox_full"))
	if e == nil || e.Kind != KindOverloaded {
		t.Fatalf("submitErr = %v, want Overloaded passed through", e)
	}

	pm := st.metrics.(*promMetrics)
	if got := testutil.ToFloat64(pm.overloads.WithLabelValues("shard_mailbox_full")); got != 1 {
		t.Fatalf("cache_backpressure_total{reason=shard_mailbox_full} = %v, want 1", got)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	st := New(WithShards(1), WithMaxItemBytes(4))
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Set(ctx, SetInput{Key: "x", Value: kvvalue.FromText("abcd")}); err != nil {
		t.Fatalf("exactly at max_item_bytes should be accepted: %v", err)
	}
	if _, err := st.Set(ctx, SetInput{Key: "y", Value: kvvalue.FromText("abcde")}); err == nil || err.Kind != KindPayloadTooLarge {
		t.Fatalf("over max_item_bytes: err=%v, want PayloadTooLarge", err)
	}
}

func TestByteBudgetEvictionRetainsMRUSuffix(t *testing.T) {
	st := New(WithShards(1), WithMemoryBudgetBytes(1000))
	defer st.Close()
	ctx := context.Background()

	// 100 bytes each (ASCII string), 20 inserts against a 1000-byte budget.
	for i := 0; i < 20; i++ {
		val := kvvalue.FromText(string(make([]byte, 100)))
		if _, err := st.Set(ctx, SetInput{Key: keyN(i), Value: val}); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}

	stats := st.Stats()
	if stats.TotalEntries > 10 {
		t.Fatalf("TotalEntries = %d, want <= 10 under a 1000-byte budget with 100-byte entries", stats.TotalEntries)
	}

	// Earliest keys should have been evicted; most recent should remain.
	if _, err := st.Get(ctx, keyN(0)); err == nil {
		t.Fatalf("key 0 should have been evicted")
	}
	if _, err := st.Get(ctx, keyN(19)); err != nil {
		t.Fatalf("most recently set key should still be present: %v", err)
	}
}

func keyN(i int) string {
	return "k" + string(rune('a'+i))
}

func TestBatchSetPreservesInputOrderAndStatus(t *testing.T) {
	st := New(WithShards(4))
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Set(ctx, SetInput{Key: "existing", Value: kvvalue.FromText("old")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items := []SetInput{
		{Key: "new1", Value: kvvalue.FromText("a")},
		{Key: "existing", Value: kvvalue.FromText("b")},
		{Key: "new2", Value: kvvalue.FromText("c")},
	}
	results, err := st.BatchSet(ctx, items)
	if err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Key != items[i].Key {
			t.Fatalf("results[%d].Key = %q, want %q (order not preserved)", i, r.Key, items[i].Key)
		}
	}
	if results[0].Status != "created" {
		t.Fatalf("results[0].Status = %q, want created", results[0].Status)
	}
	if results[1].Status != "updated" {
		t.Fatalf("results[1].Status = %q, want updated", results[1].Status)
	}
}

func TestBatchGetSeparatesHitsAndMisses(t *testing.T) {
	st := New(WithShards(4))
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Set(ctx, SetInput{Key: "present", Value: kvvalue.FromText("v")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := st.BatchGet(ctx, []string{"present", "absent"})
	if err != nil {
		t.Fatalf("batch get: %v", err)
	}
	if len(res.Hits) != 1 || len(res.Misses) != 1 {
		t.Fatalf("BatchGet = %d hits, %d misses, want 1, 1", len(res.Hits), len(res.Misses))
	}
	if res.Misses[0] != "absent" {
		t.Fatalf("miss = %q, want absent", res.Misses[0])
	}
}

func TestBatchDeleteIsOrderPreservingWithStatuses(t *testing.T) {
	st := New(WithShards(4))
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Set(ctx, SetInput{Key: "a", Value: kvvalue.FromText("1")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	results, err := st.BatchDelete(ctx, []string{"a", "missing"})
	if err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	if results[0].Key != "a" || results[0].Status != "deleted" {
		t.Fatalf("results[0] = %+v, want a/deleted", results[0])
	}
	if results[1].Key != "missing" || results[1].Status != "missing" {
		t.Fatalf("results[1] = %+v, want missing/missing", results[1])
	}
}

func TestAdmissionOverload(t *testing.T) {
	st := New(WithShards(1), WithMaxInflight(1))
	defer st.Close()

	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		t.Fatalf("first admit: %v", aerr)
	}
	defer release()

	if _, err := st.admit.tryAdmit(); err == nil || err.Kind != KindOverloaded {
		t.Fatalf("second admit under cap=1: err=%v, want Overloaded", err)
	}
}

func TestStatsImbalanceZeroWhenEmpty(t *testing.T) {
	st := New(WithShards(4))
	defer st.Close()
	stats := st.Stats()
	if stats.ImbalanceCV != 0 {
		t.Fatalf("ImbalanceCV on empty store = %v, want 0", stats.ImbalanceCV)
	}
}
