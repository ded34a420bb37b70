// store.go holds the public surface of the engine: key routing, in-flight
// admission, batch fan-out, stats aggregation, and shard lifecycle. A
// Store is split into N independent shards to minimise lock contention;
// each public call hashes its key to exactly one shard.
//
// Batch calls fan out concurrently via errgroup and collect per-item
// results without short-circuiting: a batch has per-item linearizability
// but no atomic boundary, so one item's failure never aborts its siblings.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Voskan/kvshard/internal/keyhash"
	"github.com/Voskan/kvshard/pkg/kvvalue"
)

// Store is the top-level, concurrency-safe entry point into the cache.
// Construct with New; release resources with Close.
type Store struct {
	cfg     *config
	shards  []*shard
	hasher  keyhash.Hasher
	admit   *admitter
	metrics metricsSink
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Store with the given options and starts every shard's
// dispatcher and sweeper goroutines.
func New(opts ...Option) *Store {
	cfg := applyOptions(opts)
	metrics := newMetricsSink(cfg.registry)
	ctx, cancel := context.WithCancel(context.Background())

	st := &Store{
		cfg:     cfg,
		hasher:  keyhash.New(),
		admit:   newAdmitter(cfg.maxInflight, metrics),
		metrics: metrics,
		logger:  cfg.logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	perShardBytes := cfg.perShardMaxBytes()
	st.shards = make([]*shard, cfg.shards)
	for i := range st.shards {
		sh := newShard(i, perShardBytes, cfg.maxShardMailbox, metrics)
		sh.startSweeper(ctx, cfg.sweepInterval, cfg.sweepBatch)
		st.shards[i] = sh
	}
	return st
}

func (st *Store) shardFor(key string) *shard {
	return st.shards[st.hasher.ShardOf(key, len(st.shards))]
}

// Get performs a point read. Reads pass through store-wide admission; a
// read of a live key does not consume a mailbox slot, while a read that
// finds an expired entry enqueues its removal in the shard's mailbox.
func (st *Store) Get(ctx context.Context, key string) (Snapshot, *Error) {
	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		return Snapshot{}, aerr
	}
	defer release()

	snap, ok := st.shardFor(key).get(key)
	if !ok {
		return Snapshot{}, ErrNotFound(key)
	}
	return snap, nil
}

// SetInput bundles the parameters of a single set call.
type SetInput struct {
	Key         string
	Value       kvvalue.Value
	TTL         time.Duration // 0 means no expiry
	IfMatch     string        // empty means no precondition
	IfNoneMatch bool          // true means create-only ("If-None-Match: *")
}

// SetResult is the outcome of a successful Set.
type SetResult struct {
	Version   string
	ExpiresAt int64 // unix ms, 0 means no TTL
	Created   bool
}

// Set applies a conditional or unconditional write.
func (st *Store) Set(ctx context.Context, in SetInput) (SetResult, *Error) {
	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		return SetResult{}, aerr
	}
	defer release()

	if in.Value.SizeBytes() > st.cfg.maxItemBytes {
		return SetResult{}, ErrPayloadTooLarge("value of %d bytes exceeds max_item_bytes %d", in.Value.SizeBytes(), st.cfg.maxItemBytes)
	}

	ifNoneMatch := ""
	if in.IfNoneMatch {
		ifNoneMatch = "*"
	}

	sh := st.shardFor(in.Key)
	res, err := sh.box.submit(ctx, func(s *shard) (any, error) {
		r, serr := s.setMutation(in.Key, in.Value, in.TTL, in.IfMatch, ifNoneMatch, st.cfg.maxItemBytes)
		if serr != nil {
			if serr.Kind == KindConflict {
				st.metrics.incCASConflict()
			}
			return nil, serr
		}
		return r, nil
	})
	if err != nil {
		return SetResult{}, st.submitErr(err)
	}
	sr := res.(setResult)
	return SetResult{Version: sr.Version, ExpiresAt: sr.ExpiresAt, Created: sr.Created}, nil
}

// Delete removes a key, optionally conditioned on its current version.
func (st *Store) Delete(ctx context.Context, key string, ifMatch string) *Error {
	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		return aerr
	}
	defer release()

	sh := st.shardFor(key)
	res, err := sh.box.submit(ctx, func(s *shard) (any, error) {
		deleted, serr := s.deleteMutation(key, ifMatch)
		if serr != nil {
			st.metrics.incCASConflict()
			return nil, serr
		}
		return deleted, nil
	})
	if err != nil {
		return st.submitErr(err)
	}
	if !res.(bool) {
		return ErrNotFound(key)
	}
	return nil
}

// IncrResult is the outcome of a successful Increment.
type IncrResult struct {
	Value   float64
	Version string
}

// Increment atomically adds delta to the numeric value at key, creating it
// (starting from 0) if absent.
func (st *Store) Increment(ctx context.Context, key string, delta int32) (IncrResult, *Error) {
	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		return IncrResult{}, aerr
	}
	defer release()

	sh := st.shardFor(key)
	res, err := sh.box.submit(ctx, func(s *shard) (any, error) {
		r, serr := s.incrMutation(key, delta, st.cfg.maxItemBytes)
		if serr != nil {
			return nil, serr
		}
		return r, nil
	})
	if err != nil {
		return IncrResult{}, st.submitErr(err)
	}
	ir := res.(incrResult)
	return IncrResult{Value: ir.Value, Version: ir.Version}, nil
}

// BatchGetResult separates found snapshots from missed keys. Order within
// each slice is not guaranteed.
type BatchGetResult struct {
	Hits   []Snapshot
	Misses []string
}

// BatchGet groups keys by owning shard and reads each via the shard's fast
// path, counting as a single in-flight admission regardless of fan-out.
func (st *Store) BatchGet(ctx context.Context, keys []string) (BatchGetResult, *Error) {
	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		return BatchGetResult{}, aerr
	}
	defer release()

	var mu sync.Mutex
	var out BatchGetResult

	byShard := make(map[*shard][]string)
	for _, key := range keys {
		sh := st.shardFor(key)
		byShard[sh] = append(byShard[sh], key)
	}

	g, _ := errgroup.WithContext(ctx)
	for sh, shardKeys := range byShard {
		sh, shardKeys := sh, shardKeys
		g.Go(func() error {
			for _, key := range shardKeys {
				snap, ok := sh.get(key)
				mu.Lock()
				if ok {
					out.Hits = append(out.Hits, snap)
				} else {
					out.Misses = append(out.Misses, key)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// BatchSetItemResult is one item's outcome within a BatchSet call.
type BatchSetItemResult struct {
	Key     string
	Status  string // "created", "updated", or "error"
	Version string
	Error   *Error
}

// BatchSet fans out independent set calls across shards; the result slice
// matches the input order index for index.
func (st *Store) BatchSet(ctx context.Context, items []SetInput) ([]BatchSetItemResult, *Error) {
	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		return nil, aerr
	}
	defer release()

	results := make([]BatchSetItemResult, len(items))
	g, _ := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = st.setOneForBatch(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (st *Store) setOneForBatch(ctx context.Context, item SetInput) BatchSetItemResult {
	if item.Value.SizeBytes() > st.cfg.maxItemBytes {
		return BatchSetItemResult{Key: item.Key, Status: "error", Error: ErrPayloadTooLarge("value of %d bytes exceeds max_item_bytes %d", item.Value.SizeBytes(), st.cfg.maxItemBytes)}
	}
	ifNoneMatch := ""
	if item.IfNoneMatch {
		ifNoneMatch = "*"
	}
	sh := st.shardFor(item.Key)
	res, err := sh.box.submit(ctx, func(s *shard) (any, error) {
		r, serr := s.setMutation(item.Key, item.Value, item.TTL, item.IfMatch, ifNoneMatch, st.cfg.maxItemBytes)
		if serr != nil {
			return nil, serr
		}
		return r, nil
	})
	if err != nil {
		eerr := st.submitErr(err)
		if eerr.Kind == KindConflict {
			st.metrics.incCASConflict()
		}
		return BatchSetItemResult{Key: item.Key, Status: "error", Error: eerr}
	}
	sr := res.(setResult)
	status := "updated"
	if sr.Created {
		status = "created"
	}
	return BatchSetItemResult{Key: item.Key, Status: status, Version: sr.Version}
}

// BatchDeleteItemResult is one item's outcome within a BatchDelete call.
type BatchDeleteItemResult struct {
	Key    string
	Status string // "deleted", "missing", or "error"
	Error  *Error
}

// BatchDelete fans out independent delete calls across shards, preserving
// input order in the result slice.
func (st *Store) BatchDelete(ctx context.Context, keys []string) ([]BatchDeleteItemResult, *Error) {
	release, aerr := st.admit.tryAdmit()
	if aerr != nil {
		return nil, aerr
	}
	defer release()

	results := make([]BatchDeleteItemResult, len(keys))
	g, _ := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			sh := st.shardFor(key)
			res, err := sh.box.submit(ctx, func(s *shard) (any, error) {
				deleted, serr := s.deleteMutation(key, "")
				if serr != nil {
					return nil, serr
				}
				return deleted, nil
			})
			if err != nil {
				results[i] = BatchDeleteItemResult{Key: key, Status: "error", Error: st.submitErr(err)}
				return nil
			}
			if res.(bool) {
				results[i] = BatchDeleteItemResult{Key: key, Status: "deleted"}
			} else {
				results[i] = BatchDeleteItemResult{Key: key, Status: "missing"}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// ShardStats reports one shard's counters for Stats.
type ShardStats struct {
	ID           int
	Entries      int
	MailboxDepth int
}

// Stats is the aggregate snapshot returned by Store.Stats.
type Stats struct {
	Shards        []ShardStats
	TotalEntries  int
	ImbalanceCV   float64 // coefficient of variation of per-shard entry counts
	InFlightLimit int64
}

// Stats aggregates per-shard counters and computes the imbalance metric:
// the coefficient of variation of entry counts across shards, 0 when the
// mean is 0. A high value flags hot-key concentration on few shards.
func (st *Store) Stats() Stats {
	shardStats := make([]ShardStats, len(st.shards))
	counts := make([]float64, len(st.shards))
	total := 0
	for i, sh := range st.shards {
		n := sh.entryCount()
		d := sh.mailboxDepth()
		shardStats[i] = ShardStats{ID: sh.id, Entries: n, MailboxDepth: d}
		counts[i] = float64(n)
		total += n
		st.metrics.setMailboxDepth(sh.id, d)
	}

	cv := coefficientOfVariation(counts)
	st.metrics.setImbalance(cv)

	return Stats{
		Shards:        shardStats,
		TotalEntries:  total,
		ImbalanceCV:   cv,
		InFlightLimit: st.cfg.maxInflight,
	}
}

func coefficientOfVariation(xs []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n
	return math.Sqrt(variance) / mean
}

// IncAuthFailure records a rejected request due to a missing or invalid
// credential. The engine has no authentication concept of its own; this
// lets the serving layer contribute to the same metrics surface the
// engine exposes for everything else.
func (st *Store) IncAuthFailure() {
	st.metrics.incAuthFailure()
}

// Close drains and stops every shard, releasing dispatcher and sweeper
// goroutines. Call it at most once: a second call closes the shards'
// already-closed channels and panics.
func (st *Store) Close() {
	st.cancel()
	for _, sh := range st.shards {
		sh.drainAndStop()
	}
}

// toEngineErr normalizes an error returned through mailbox.submit (which
// may be a context error or an *Error) into an *Error for callers.
func toEngineErr(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return ErrInternal(err)
}

// submitErr is toEngineErr plus backpressure accounting: a mutation shed
// by a full mailbox counts toward the same backpressure counter the
// admission gate feeds, under its own reason label.
func (st *Store) submitErr(err error) *Error {
	e := toEngineErr(err)
	if e != nil && e.Kind == KindOverloaded {
		reason, _ := e.Details["reason"].(string)
		st.metrics.incOverload(reason)
	}
	return e
}
