// admission.go implements the store-wide in-flight gate. Every public
// call reserves one slot before touching a shard and releases it on
// completion; exhaustion refuses the call immediately, it never queues.
// semaphore.Weighted's TryAcquire is non-blocking by construction, which
// is exactly the contract here.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// admitter is the store-wide admission gate. Batch calls acquire exactly
// one slot regardless of fan-out width. The semaphore makes
// the admission decision; inFlight is a plain counter kept alongside it
// purely to report the current in-flight gauge without reaching into the
// semaphore's internals.
type admitter struct {
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	metrics  metricsSink
}

func newAdmitter(max int64, metrics metricsSink) *admitter {
	return &admitter{sem: semaphore.NewWeighted(max), metrics: metrics}
}

// tryAdmit attempts to reserve one in-flight slot. On success it returns a
// release func that must be called exactly once when the call completes.
// On failure it returns (nil, *Error) with KindOverloaded.
func (a *admitter) tryAdmit() (func(), *Error) {
	if !a.sem.TryAcquire(1) {
		a.metrics.incOverload("max_inflight_exceeded")
		return nil, ErrOverloaded("max_inflight_exceeded")
	}
	a.metrics.setInFlight(a.inFlight.Add(1))
	release := func() {
		a.metrics.setInFlight(a.inFlight.Add(-1))
		a.sem.Release(1)
	}
	return release, nil
}
