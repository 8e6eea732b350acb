package resource

import (
	"fmt"
	"maps"
	"sync"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// RecordingSink keeps the last decision per thread in memory instead of
// touching the kernel. The daemon uses it in dry-run mode.
type RecordingSink struct {
	mu       sync.Mutex
	ranges   map[int32]domain.UclampRange
	reverted map[int32]int
	dead     map[int32]bool
	capacity domain.Cycles
	freq     domain.Frequency
	applies  int
}

// NewRecordingSink creates an empty recording sink. freq is what
// GpuFrequency reports; 0 means unknown.
func NewRecordingSink(freq domain.Frequency) *RecordingSink {
	return &RecordingSink{
		ranges:   make(map[int32]domain.UclampRange),
		reverted: make(map[int32]int),
		dead:     make(map[int32]bool),
		freq:     freq,
	}
}

var _ domain.ResourceSink = (*RecordingSink)(nil)

// ApplyThreadResourceRange records r for tid.
func (s *RecordingSink) ApplyThreadResourceRange(tid int32, r domain.UclampRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead[tid] {
		return fmt.Errorf("tid %d: %w", tid, domain.ErrThreadGone)
	}
	s.ranges[tid] = r.Bounded()
	s.applies++
	return nil
}

// RevertThreadResourceRange forgets tid.
func (s *RecordingSink) RevertThreadResourceRange(tid int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ranges, tid)
	s.reverted[tid]++
	return nil
}

// SetGpuCapacity records c.
func (s *RecordingSink) SetGpuCapacity(c domain.Cycles) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = c
	return nil
}

// GpuFrequency returns the configured frequency.
func (s *RecordingSink) GpuFrequency() (domain.Frequency, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freq, s.freq > 0
}

// Kill makes later applies for tid fail as if the thread exited.
func (s *RecordingSink) Kill(tid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead[tid] = true
}

// Range returns the last range applied to tid.
func (s *RecordingSink) Range(tid int32) (domain.UclampRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ranges[tid]
	return r, ok
}

// Ranges returns a copy of every applied range.
func (s *RecordingSink) Ranges() map[int32]domain.UclampRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.ranges)
}

// Reverts returns how often tid was reverted.
func (s *RecordingSink) Reverts(tid int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reverted[tid]
}

// Capacity returns the last GPU capacity.
func (s *RecordingSink) Capacity() domain.Cycles {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Applies returns the number of successful range applications.
func (s *RecordingSink) Applies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies
}
