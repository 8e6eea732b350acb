// Package resource applies resolved ADPF decisions to the system: uclamp
// ranges on threads and extra capacity on the GPU.
package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
)

// SinkConfig selects the nodes the sink writes to.
type SinkConfig struct {
	// UclampEnabled turns sched_setattr calls on. Off on kernels without
	// uclamp support or when running unprivileged.
	UclampEnabled bool
	// GpuCapacityNode receives the requested capacity in cycles.
	GpuCapacityNode string
	// GpuFrequencyNode reports the current GPU frequency in kHz.
	GpuFrequencyNode string
}

// SysSink is the production ResourceSink.
type SysSink struct {
	cfg SinkConfig
	log logr.Logger

	mu          sync.Mutex
	lastCap     domain.Cycles
	capWritten  bool
	applyErrors uint64
}

// NewSysSink creates a sink from cfg.
func NewSysSink(cfg SinkConfig, log logr.Logger) *SysSink {
	return &SysSink{cfg: cfg, log: log.WithName("sink")}
}

var _ domain.ResourceSink = (*SysSink)(nil)

// ApplyThreadResourceRange sets the uclamp range of tid.
func (s *SysSink) ApplyThreadResourceRange(tid int32, r domain.UclampRange) error {
	if !s.cfg.UclampEnabled {
		return nil
	}
	err := setUclamp(tid, r.Bounded())
	if err != nil && !errors.Is(err, domain.ErrThreadGone) {
		s.mu.Lock()
		s.applyErrors++
		s.mu.Unlock()
		s.log.V(logging.VERBOSE).Info("sched_setattr failed", "tid", tid, "range", r.String(), "err", err.Error())
	}
	return err
}

// RevertThreadResourceRange drops tid back to an unclamped range.
func (s *SysSink) RevertThreadResourceRange(tid int32) error {
	if !s.cfg.UclampEnabled {
		return nil
	}
	return setUclamp(tid, domain.DefaultUclampRange)
}

// SetGpuCapacity writes c to the capacity node. Repeated values are skipped.
func (s *SysSink) SetGpuCapacity(c domain.Cycles) error {
	if s.cfg.GpuCapacityNode == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capWritten && s.lastCap == c {
		return nil
	}
	if err := writeNode(s.cfg.GpuCapacityNode, fmt.Sprintf("%d", c)); err != nil {
		return fmt.Errorf("set gpu capacity: %w", err)
	}
	s.lastCap, s.capWritten = c, true
	return nil
}

// GpuFrequency reads the frequency node.
func (s *SysSink) GpuFrequency() (domain.Frequency, bool) {
	if s.cfg.GpuFrequencyNode == "" {
		return 0, false
	}
	v, err := readNodeInt(s.cfg.GpuFrequencyNode)
	if err != nil || v <= 0 {
		return 0, false
	}
	return domain.Frequency(v), true
}

// HasGpuNode reports whether a GPU capacity node is configured.
func (s *SysSink) HasGpuNode() bool { return s.cfg.GpuCapacityNode != "" }

// CheckGpuNode verifies the GPU frequency node is readable.
func (s *SysSink) CheckGpuNode() error {
	if s.cfg.GpuFrequencyNode == "" {
		return nil
	}
	_, err := readNodeInt(s.cfg.GpuFrequencyNode)
	return err
}

// ApplyErrors returns how many sched_setattr calls failed for live threads.
func (s *SysSink) ApplyErrors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyErrors
}
