// options.go defines the functional options accepted by New. Logging
// defaults to a nop logger and metrics to a no-op sink, so an embedded
// Store pays nothing for either until a caller opts in.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// config bundles every knob that influences Store behavior. All fields are
// immutable once a Store is constructed.
type config struct {
	shards            int
	maxItemBytes      int64
	memoryBudgetBytes int64 // 0 disables byte-based LRU eviction
	maxInflight       int64
	maxShardMailbox   int
	sweepInterval     time.Duration
	sweepBatch        int // max expirations the sweeper enqueues per tick, per shard

	logger   *zap.Logger
	registry *prometheus.Registry
}

// Option configures a Store constructed by New.
type Option func(*config)

func defaultConfig() *config {
	return &config{
		shards:            1,
		maxItemBytes:      256 << 20, // 256 MiB
		memoryBudgetBytes: 0,
		maxInflight:       1 << 16,
		maxShardMailbox:   1024,
		sweepInterval:     time.Second,
		sweepBatch:        256,
		logger:            zap.NewNop(),
		registry:          nil,
	}
}

// WithShards sets the number of shards. Must be > 0.
func WithShards(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithMaxItemBytes sets the per-entry size ceiling.
func WithMaxItemBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxItemBytes = n
		}
	}
}

// WithMemoryBudgetBytes sets the total LRU byte budget, divided equally
// across shards. 0 disables byte-based eviction.
func WithMemoryBudgetBytes(n int64) Option {
	return func(c *config) {
		c.memoryBudgetBytes = n
	}
}

// WithMaxInflight sets the store-wide admission cap.
func WithMaxInflight(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxInflight = n
		}
	}
}

// WithMaxShardMailbox sets the per-shard mailbox capacity.
func WithMaxShardMailbox(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxShardMailbox = n
		}
	}
}

// WithSweepInterval overrides the default ~1s periodic sweeper tick.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithLogger plugs an external zap.Logger. The Store keeps the logger but
// writes no log lines of its own, on the hot path or elsewhere.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetricsRegistry enables Prometheus metrics collection. Passing nil
// disables metrics (the default).
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *config) {
		c.registry = reg
	}
}

func applyOptions(opts []Option) *config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *config) perShardMaxBytes() int64 {
	if c.memoryBudgetBytes <= 0 {
		return -1 // unlimited
	}
	per := c.memoryBudgetBytes / int64(c.shards)
	if per <= 0 {
		per = 1
	}
	return per
}
