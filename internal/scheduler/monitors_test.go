package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type blockingMonitor struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (m *blockingMonitor) Name() string { return "blocking" }

func (m *blockingMonitor) Tick(context.Context) (int, int, error) {
	if m.calls.Add(1) == 1 {
		close(m.started)
	}
	<-m.release
	return 1, 0, nil
}

type countingMonitor struct {
	calls atomic.Int32
	err   error
}

func (m *countingMonitor) Name() string { return "counting" }

func (m *countingMonitor) Tick(context.Context) (int, int, error) {
	m.calls.Add(1)
	return 3, 1, m.err
}

type fakeLease struct {
	ok       bool
	err      error
	released int
}

func (l *fakeLease) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() { l.released++ }, l.ok, l.err
}

func TestBusyMonitorSkipsOverlappingTicks(t *testing.T) {
	m := &blockingMonitor{started: make(chan struct{}), release: make(chan struct{})}
	r := NewMonitorRunner(nil, logger.New("development"))
	r.Add(m, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-m.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never started")
	}
	time.Sleep(50 * time.Millisecond)
	if got := m.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one tick while busy, got %d", got)
	}
	cancel()
	close(m.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestTickSkippedWhenLeaseHeldElsewhere(t *testing.T) {
	m := &countingMonitor{}
	lease := &fakeLease{ok: false}
	r := NewMonitorRunner(lease, logger.New("development"))

	ran := r.tick(context.Background(), &scheduledMonitor{monitor: m, interval: time.Minute})
	if ran || m.calls.Load() != 0 {
		t.Fatalf("expected tick to be skipped, ran=%v calls=%d", ran, m.calls.Load())
	}
}

func TestTickReleasesLease(t *testing.T) {
	m := &countingMonitor{err: errors.New("db down")}
	lease := &fakeLease{ok: true}
	r := NewMonitorRunner(lease, logger.New("development"))

	if !r.tick(context.Background(), &scheduledMonitor{monitor: m, interval: time.Minute}) {
		t.Fatal("expected tick to run")
	}
	if m.calls.Load() != 1 || lease.released != 1 {
		t.Fatalf("expected one call and one release, got calls=%d released=%d", m.calls.Load(), lease.released)
	}
}

func TestAddIgnoresDisabledMonitors(t *testing.T) {
	r := NewMonitorRunner(nil, logger.New("development"))
	r.Add(&countingMonitor{}, 0)
	if len(r.monitors) != 0 {
		t.Fatalf("expected zero interval to disable the monitor")
	}
}

// slowScan is shared by replicas so overlap across them is observable.
type slowScan struct {
	running  atomic.Int32
	maxSeen  atomic.Int32
	finished atomic.Int32
	hold     time.Duration
}

type slowMonitor struct{ scan *slowScan }

func (m slowMonitor) Name() string { return "leakage_monitor" }

func (m slowMonitor) Tick(ctx context.Context) (int, int, error) {
	n := m.scan.running.Add(1)
	for {
		seen := m.scan.maxSeen.Load()
		if n <= seen || m.scan.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(m.scan.hold)
	m.scan.running.Add(-1)
	m.scan.finished.Add(1)
	return 1, 0, nil
}

func TestReplicasNeverOverlapWhenTickOutlivesInterval(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewLocker(client)

	scan := &slowScan{hold: 300 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	// Keep miniredis time moving with the wall clock so TTLs can lapse.
	clockDone := make(chan struct{})
	go func() {
		defer close(clockDone)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mr.FastForward(5 * time.Millisecond)
			}
		}
	}()

	var wg sync.WaitGroup
	for range 2 {
		r := NewMonitorRunner(locker, logger.New("development"))
		r.Add(slowMonitor{scan: scan}, 50*time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	time.Sleep(900 * time.Millisecond)
	cancel()
	wg.Wait()
	<-clockDone

	if scan.finished.Load() == 0 {
		t.Fatal("expected at least one tick to run")
	}
	if got := scan.maxSeen.Load(); got != 1 {
		t.Fatalf("expected ticks to stay exclusive across replicas, max concurrent %d", got)
	}
}
