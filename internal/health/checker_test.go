package health

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/yaap/hardware-google-pixel/internal/infra/metrics"
	"github.com/yaap/hardware-google-pixel/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeTimeouts struct {
	backlog time.Duration
	drained atomic.Int32
}

func (f *fakeTimeouts) TimeoutBacklog() time.Duration { return f.backlog }

func (f *fakeTimeouts) DrainTimeouts() int {
	f.drained.Add(1)
	return 1
}

type fakeGpu struct{ err error }

func (f fakeGpu) CheckGpuNode() error { return f.err }

func status(t *testing.T, c *Checker, name string) Status {
	t.Helper()
	for _, s := range c.Statuses() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("check %q not found", name)
	return Status{}
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	c := NewChecker(Options{
		Store:    newTestDB(t),
		Timeouts: &fakeTimeouts{},
		Gpu:      fakeGpu{},
		Logger:   logr.Discard(),
	})
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3", len(c.checks))
	}
	if c.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", c.interval, DefaultInterval)
	}
}

func TestNewChecker_SkipsMissing(t *testing.T) {
	c := NewChecker(Options{Store: newTestDB(t), Logger: logr.Discard()})
	if len(c.checks) != 1 {
		t.Errorf("checks = %d, want 1", len(c.checks))
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	c := NewChecker(Options{
		Store:    newTestDB(t),
		Timeouts: &fakeTimeouts{backlog: 100 * time.Millisecond},
		Gpu:      fakeGpu{},
		Logger:   logr.Discard(),
	})
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
	if got := testutil.ToFloat64(metrics.HealthCheckStatus.WithLabelValues("sqlite")); got != 1 {
		t.Errorf("sqlite status metric = %v, want 1", got)
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(Options{Store: newTestDB(t), Logger: logr.Discard()})

	// Vacuously healthy without statuses
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_SQLiteClosed(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	c := NewChecker(Options{Store: db, Logger: logr.Discard()})
	c.RunOnce(context.Background())

	if s := status(t, c, "sqlite"); s.Healthy {
		t.Error("sqlite check should fail on a closed database")
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
}

func TestChecker_TimeoutBacklogRecovers(t *testing.T) {
	timeouts := &fakeTimeouts{backlog: 3 * time.Second}
	c := NewChecker(Options{Timeouts: timeouts, Logger: logr.Discard()})
	before := testutil.ToFloat64(metrics.HealthRecoveries.WithLabelValues("timeout_queue"))

	c.RunOnce(context.Background())

	s := status(t, c, "timeout_queue")
	if s.Healthy {
		t.Error("timeout_queue should be unhealthy")
	}
	if !s.Recovered {
		t.Error("timeout_queue should report recovery")
	}
	if timeouts.drained.Load() != 1 {
		t.Errorf("drained = %d, want 1", timeouts.drained.Load())
	}
	after := testutil.ToFloat64(metrics.HealthRecoveries.WithLabelValues("timeout_queue"))
	if after-before != 1 {
		t.Errorf("recoveries delta = %v, want 1", after-before)
	}
}

func TestChecker_MaxBacklog(t *testing.T) {
	timeouts := &fakeTimeouts{backlog: 3 * time.Second}
	c := NewChecker(Options{Timeouts: timeouts, MaxBacklog: 5 * time.Second, Logger: logr.Discard()})
	c.RunOnce(context.Background())
	if s := status(t, c, "timeout_queue"); !s.Healthy {
		t.Errorf("backlog under the limit should be healthy: %s", s.Error)
	}
}

func TestChecker_GpuNodeFailure(t *testing.T) {
	c := NewChecker(Options{Gpu: fakeGpu{err: os.ErrNotExist}, Logger: logr.Discard()})
	c.RunOnce(context.Background())

	s := status(t, c, "gpu_nodes")
	if s.Healthy || s.Error == "" {
		t.Errorf("gpu_nodes = %+v, want failure with message", s)
	}
	if s.Recovered {
		t.Error("gpu_nodes has no recovery")
	}
	if got := testutil.ToFloat64(metrics.HealthCheckStatus.WithLabelValues("gpu_nodes")); got != 0 {
		t.Errorf("gpu status metric = %v, want 0", got)
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	c := NewChecker(Options{Logger: logr.Discard()})
	c.AddCheck(Check{
		Name:    "always_pass",
		CheckFn: func(ctx context.Context) error { return nil },
	})
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if !statuses[0].Healthy {
		t.Error("always_pass check should be healthy")
	}
}

func TestChecker_FailedRecovery(t *testing.T) {
	c := NewChecker(Options{Logger: logr.Discard()})
	c.AddCheck(Check{
		Name:      "broken",
		CheckFn:   func(ctx context.Context) error { return os.ErrPermission },
		RecoverFn: func(ctx context.Context) error { return errors.New("still broken") },
	})
	c.RunOnce(context.Background())

	s := status(t, c, "broken")
	if s.Healthy || s.Recovered {
		t.Errorf("broken = %+v, want unhealthy and not recovered", s)
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := NewChecker(Options{Store: newTestDB(t), Logger: logr.Discard()})
	c.RunOnce(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()
	s1[0].Healthy = false
	if !s2[0].Healthy {
		t.Error("Statuses() should return a copy, not a reference")
	}
}

func TestChecker_RunTicks(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(1000, 0))
	var runs atomic.Int32
	c := NewChecker(Options{Interval: time.Minute, Clock: clk, Logger: logr.Discard()})
	c.AddCheck(Check{
		Name: "count",
		CheckFn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return clk.HasWaiters() })
	if runs.Load() != 1 {
		t.Fatalf("runs = %d after start, want 1", runs.Load())
	}
	clk.Step(time.Minute)
	waitFor(t, func() bool { return runs.Load() == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}
