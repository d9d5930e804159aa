package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
)

// Monitor is a periodic scan. Tick reports how many items it handled and
// how many of those failed; err means the scan itself could not run.
type Monitor interface {
	Name() string
	Tick(ctx context.Context) (processed, failed int, err error)
}

// Lease keeps a tick exclusive across scheduler replicas. The lease must stay
// held until release, however long the tick runs. *cache.Locker satisfies it.
type Lease interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type scheduledMonitor struct {
	monitor  Monitor
	interval time.Duration
	busy     atomic.Bool
}

// MonitorRunner ticks each monitor on its own interval. A tick that is still
// running when the next one is due causes that next tick to be skipped, never queued.
type MonitorRunner struct {
	monitors []*scheduledMonitor
	lease    Lease
	log      *logger.Logger
}

func NewMonitorRunner(lease Lease, log *logger.Logger) *MonitorRunner {
	return &MonitorRunner{lease: lease, log: log}
}

// Add registers m. Intervals of zero or less disable it.
func (r *MonitorRunner) Add(m Monitor, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	r.monitors = append(r.monitors, &scheduledMonitor{monitor: m, interval: interval})
}

// Run blocks until ctx is cancelled and the in-flight ticks have returned.
func (r *MonitorRunner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sm := range r.monitors {
		wg.Add(1)
		go func(sm *scheduledMonitor) {
			defer wg.Done()
			r.loop(ctx, sm)
		}(sm)
	}
	wg.Wait()
}

func (r *MonitorRunner) loop(ctx context.Context, sm *scheduledMonitor) {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		if !sm.busy.CompareAndSwap(false, true) {
			r.skipped(sm)
			continue
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer sm.busy.Store(false)
			r.tick(ctx, sm)
		}()
	}
}

// tick runs one scan under the shared lease. It returns false when skipped.
func (r *MonitorRunner) tick(ctx context.Context, sm *scheduledMonitor) bool {
	name := sm.monitor.Name()
	if r.lease != nil {
		release, ok, err := r.lease.TryLock(ctx, "monitor:"+name, sm.interval)
		if err != nil {
			r.log.Warn("monitor lease unavailable", "monitor", name, "error", err)
			return false
		}
		if !ok {
			r.skipped(sm)
			return false
		}
		defer release()
	}

	start := time.Now()
	processed, failed, err := sm.monitor.Tick(ctx)
	elapsed := time.Since(start)
	metrics.MonitorTickDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		r.log.Error("monitor tick failed", "monitor", name, "error", err)
		return true
	}
	r.log.MonitorTick(name, processed, failed, float64(elapsed.Microseconds())/1000)
	return true
}

func (r *MonitorRunner) skipped(sm *scheduledMonitor) {
	name := sm.monitor.Name()
	metrics.MonitorTicksSkipped.WithLabelValues(name).Inc()
	r.log.MonitorSkipped(name)
}
