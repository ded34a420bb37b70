// metrics.go is a thin abstraction over Prometheus so the engine works with
// or without metrics wired in. When the caller passes a
// *prometheus.Registry via WithMetricsRegistry, labeled metrics are created
// and registered; otherwise a no-op sink is used and the hot path pays
// nothing for metric updates.
//
// authFailures is the one metric the engine never increments itself: the
// engine has no authentication concept, so the serving layer feeds it
// through Store.IncAuthFailure.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSink is the internal interface abstracting the concrete backend
// (Prometheus vs noop). Not exposed outside the package.
type metricsSink interface {
	incHit(shard int)
	incMiss(shard int)
	incSet(shard int)
	incDelete(shard int)
	incEvict(shard int)
	incExpire(shard int)
	incCASConflict()
	incAuthFailure()
	incOverload(reason string)
	setInFlight(n int64)
	setMailboxDepth(shard int, n int)
	setImbalance(v float64)
	observePayloadBytes(n float64)
}

type noopMetrics struct{}

func (noopMetrics) incHit(int)                    {}
func (noopMetrics) incMiss(int)                   {}
func (noopMetrics) incSet(int)                    {}
func (noopMetrics) incDelete(int)                 {}
func (noopMetrics) incEvict(int)                  {}
func (noopMetrics) incExpire(int)                 {}
func (noopMetrics) incCASConflict()                {}
func (noopMetrics) incAuthFailure()                {}
func (noopMetrics) incOverload(string)             {}
func (noopMetrics) setInFlight(int64)              {}
func (noopMetrics) setMailboxDepth(int, int)       {}
func (noopMetrics) setImbalance(float64)           {}
func (noopMetrics) observePayloadBytes(float64)    {}

type promMetrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	sets          *prometheus.CounterVec
	deletes       *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	expirations   *prometheus.CounterVec
	casConflicts  prometheus.Counter
	authFailures  prometheus.Counter
	overloads     *prometheus.CounterVec
	inFlight      prometheus.Gauge
	mailboxDepth  *prometheus.GaugeVec
	imbalance     prometheus.Gauge
	payloadBytes  prometheus.Histogram
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	shardLabel := []string{"shard"}
	pm := &promMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_hits_total", Help: "Number of cache hits.",
		}, shardLabel),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_misses_total", Help: "Number of cache misses.",
		}, shardLabel),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_sets_total", Help: "Number of successful set mutations.",
		}, shardLabel),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_deletes_total", Help: "Number of successful delete mutations.",
		}, shardLabel),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_evictions_total", Help: "Number of entries evicted by the LRU.",
		}, shardLabel),
		expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_expirations_total", Help: "Number of entries removed due to TTL expiry.",
		}, shardLabel),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_cas_conflicts_total", Help: "Number of CAS precondition failures.",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_auth_failures_total", Help: "Number of rejected requests due to missing/invalid credentials.",
		}),
		overloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kv", Name: "cache_backpressure_total", Help: "Number of requests shed due to admission limits.",
		}, []string{"reason"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kv", Name: "cache_inflight", Help: "Current number of in-flight store operations.",
		}),
		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kv", Name: "cache_mailbox_depth", Help: "Current depth of each shard's mutation mailbox.",
		}, shardLabel),
		imbalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kv", Name: "cache_shard_imbalance", Help: "Coefficient of variation of entry counts across shards.",
		}),
		payloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kv", Name: "cache_payload_bytes", Help: "Size in bytes of values written to the cache.",
			Buckets: prometheus.ExponentialBuckets(8, 4, 12),
		}),
	}
	reg.MustRegister(
		pm.hits, pm.misses, pm.sets, pm.deletes, pm.evictions, pm.expirations,
		pm.casConflicts, pm.authFailures, pm.overloads, pm.inFlight,
		pm.mailboxDepth, pm.imbalance, pm.payloadBytes,
	)
	return pm
}

func (m *promMetrics) incHit(shard int)    { m.hits.WithLabelValues(strconv.Itoa(shard)).Inc() }
func (m *promMetrics) incMiss(shard int)   { m.misses.WithLabelValues(strconv.Itoa(shard)).Inc() }
func (m *promMetrics) incSet(shard int)    { m.sets.WithLabelValues(strconv.Itoa(shard)).Inc() }
func (m *promMetrics) incDelete(shard int) { m.deletes.WithLabelValues(strconv.Itoa(shard)).Inc() }
func (m *promMetrics) incEvict(shard int)  { m.evictions.WithLabelValues(strconv.Itoa(shard)).Inc() }
func (m *promMetrics) incExpire(shard int) {
	m.expirations.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (m *promMetrics) incCASConflict()     { m.casConflicts.Inc() }
func (m *promMetrics) incAuthFailure()     { m.authFailures.Inc() }
func (m *promMetrics) incOverload(reason string) {
	m.overloads.WithLabelValues(reason).Inc()
}
func (m *promMetrics) setInFlight(n int64) { m.inFlight.Set(float64(n)) }
func (m *promMetrics) setMailboxDepth(shard int, n int) {
	m.mailboxDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(n))
}
func (m *promMetrics) setImbalance(v float64)        { m.imbalance.Set(v) }
func (m *promMetrics) observePayloadBytes(n float64) { m.payloadBytes.Observe(n) }

// newMetricsSink decides which implementation to use. reg == nil disables
// metrics.
func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
