// Package metrics registers the gauges and timers the gateway exposes,
// following the same go-ethereum/metrics idiom the teacher's
// preconf/metrics.go uses for its own subsystem.
package metrics

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

var (
	// Channel pool
	PoolSizeGauge       = metrics.NewRegisteredGauge("gateway/pool/size", nil)
	PoolLockedGauge     = metrics.NewRegisteredGauge("gateway/pool/locked", nil)
	PoolAcquireTimer    = metrics.NewRegisteredTimer("gateway/pool/acquire", nil)
	PoolCapacityMeter   = metrics.NewRegisteredMeter("gateway/pool/capacity_exhausted", nil)
	PoolMutexSpinMeter  = metrics.NewRegisteredMeter("gateway/pool/mutex_spin", nil)
	PoolAcquiredCounter = metrics.NewRegisteredCounter("gateway/pool/acquired", nil)
	PoolReleasedCounter = metrics.NewRegisteredCounter("gateway/pool/released", nil)

	// Sequence cache
	SeqCacheHitMeter  = metrics.NewRegisteredMeter("gateway/seqcache/hit", nil)
	SeqCacheMissMeter = metrics.NewRegisteredMeter("gateway/seqcache/miss", nil)

	// Simulation / submit pipeline
	SimulateTimer     = metrics.NewRegisteredTimer("gateway/simulate", nil)
	SubmitTimer       = metrics.NewRegisteredTimer("gateway/submit", nil)
	ReadonlyMeter     = metrics.NewRegisteredMeter("gateway/readonly", nil)
	ConfirmedMeter    = metrics.NewRegisteredMeter("gateway/tx/confirmed", nil)
	FailedMeter       = metrics.NewRegisteredMeter("gateway/tx/failed", nil)
	WaitTimeoutMeter  = metrics.NewRegisteredMeter("gateway/tx/wait_timeout", nil)
	PendingHeldMeter  = metrics.NewRegisteredMeter("gateway/tx/pending_held", nil)

	// Fee tracker
	FeeUsageConsumedGauge = metrics.NewRegisteredGauge("gateway/fee/consumed", nil)
	FeeLimitExceededMeter = metrics.NewRegisteredMeter("gateway/fee/limit_exceeded", nil)
)

// ObservePoolAcquire records the wall-clock cost of an acquire attempt,
// whether or not it ultimately succeeded.
func ObservePoolAcquire(start time.Time) {
	PoolAcquireTimer.Update(time.Since(start))
}

// ObserveSimulate records the wall-clock cost of a simulateTransaction call.
func ObserveSimulate(start time.Time) {
	SimulateTimer.Update(time.Since(start))
}

// ObserveSubmit records the wall-clock cost of submit+wait.
func ObserveSubmit(start time.Time) {
	SubmitTimer.Update(time.Since(start))
}
