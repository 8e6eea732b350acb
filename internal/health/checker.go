// Package health provides periodic health checks with auto-recovery for the
// daemon's store, its vote expiry worker and the GPU nodes.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/yaap/hardware-google-pixel/internal/infra/metrics"
)

const (
	// DefaultInterval is how often every check runs.
	DefaultInterval = 60 * time.Second
	// DefaultMaxBacklog is how long a vote expiry may be overdue before the
	// worker counts as stalled.
	DefaultMaxBacklog = time.Second
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Store is the persistent store.
type Store interface {
	PingContext(ctx context.Context) error
}

// Timeouts is the vote expiry worker.
type Timeouts interface {
	TimeoutBacklog() time.Duration
	DrainTimeouts() int
}

// GpuNodes are the GPU sysfs nodes.
type GpuNodes interface {
	CheckGpuNode() error
}

// Options selects what the checker watches. Nil collaborators are skipped.
type Options struct {
	Store    Store
	Timeouts Timeouts
	Gpu      GpuNodes

	Interval   time.Duration
	MaxBacklog time.Duration
	Clock      clock.WithTicker
	Logger     logr.Logger
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	log      logr.Logger
	clock    clock.WithTicker
	interval time.Duration

	mu       sync.RWMutex
	checks   []Check
	statuses []Status
}

// NewChecker creates a health checker with one check per collaborator.
func NewChecker(opts Options) *Checker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxBacklog <= 0 {
		opts.MaxBacklog = DefaultMaxBacklog
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	c := &Checker{
		log:      opts.Logger.WithName("health"),
		clock:    opts.Clock,
		interval: opts.Interval,
	}

	if opts.Store != nil {
		c.checks = append(c.checks, Check{
			Name:    "sqlite",
			CheckFn: opts.Store.PingContext,
			// SQLite auto-recovers via WAL
		})
	}
	if opts.Timeouts != nil {
		c.checks = append(c.checks, Check{
			Name: "timeout_queue",
			CheckFn: func(ctx context.Context) error {
				if late := opts.Timeouts.TimeoutBacklog(); late > opts.MaxBacklog {
					return fmt.Errorf("vote expiry overdue by %v", late)
				}
				return nil
			},
			RecoverFn: func(ctx context.Context) error {
				opts.Timeouts.DrainTimeouts()
				return nil
			},
		})
	}
	if opts.Gpu != nil {
		c.checks = append(c.checks, Check{
			Name: "gpu_nodes",
			CheckFn: func(ctx context.Context) error {
				return opts.Gpu.CheckGpuNode()
			},
		})
	}
	return c
}

// AddCheck registers an extra check. Call before Run.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check once and records the results.
func (c *Checker) RunOnce(ctx context.Context) {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: c.clock.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			c.log.Info("health check failed", "check", check.Name, "err", s.Error)
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.log.Error(rerr, "recovery failed", "check", check.Name)
				} else {
					s.Recovered = true
				}
			}
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
