// Package jank keeps a bounded window of recent work durations per session
// and classifies how janky the session has been.
package jank

import (
	"time"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

type record struct {
	start    int64 // work period start, ns; 0 when the client did not send one
	duration time.Duration
	missed   bool
}

// Records is a fixed-capacity ring of reported durations with O(1)
// amortized max, average and missed-cycle queries.
type Records struct {
	maxRecords  int
	checkFactor float64

	ring  []record
	head  int // index of the oldest record
	count int
	seq   int64 // sequence number of the oldest record

	sum    time.Duration
	missed int

	// maxq holds sequence numbers whose durations are non-increasing, so the
	// front is always the window maximum.
	maxq []int64
}

// NewRecords creates a window of maxRecords samples. A sample is a missed
// cycle when it exceeds its target by more than jankCheckFactor.
func NewRecords(maxRecords int, jankCheckFactor float64) *Records {
	if maxRecords <= 0 {
		maxRecords = 1
	}
	return &Records{
		maxRecords:  maxRecords,
		checkFactor: jankCheckFactor,
		ring:        make([]record, maxRecords),
	}
}

// AddDurations appends every sample in ds, judged against target.
func (r *Records) AddDurations(ds []domain.WorkDuration, target time.Duration) {
	limit := time.Duration(float64(target) * r.checkFactor)
	for _, d := range ds {
		r.add(record{
			start:    d.WorkPeriodStartNanos,
			duration: d.Duration(),
			missed:   d.Duration() > limit,
		})
	}
}

func (r *Records) add(rec record) {
	if r.count == r.maxRecords {
		r.evict()
	}
	idx := (r.head + r.count) % r.maxRecords
	r.ring[idx] = rec
	seq := r.seq + int64(r.count)
	r.count++

	r.sum += rec.duration
	if rec.missed {
		r.missed++
	}
	for len(r.maxq) > 0 && r.at(r.maxq[len(r.maxq)-1]).duration <= rec.duration {
		r.maxq = r.maxq[:len(r.maxq)-1]
	}
	r.maxq = append(r.maxq, seq)
}

func (r *Records) evict() {
	old := r.ring[r.head]
	r.sum -= old.duration
	if old.missed {
		r.missed--
	}
	if len(r.maxq) > 0 && r.maxq[0] == r.seq {
		r.maxq = r.maxq[1:]
	}
	r.head = (r.head + 1) % r.maxRecords
	r.count--
	r.seq++
}

func (r *Records) at(seq int64) record {
	return r.ring[(r.head+int(seq-r.seq))%r.maxRecords]
}

// NumRecords returns the number of samples in the window.
func (r *Records) NumRecords() int { return r.count }

// MissedCycles returns how many samples in the window overran their target.
func (r *Records) MissedCycles() int { return r.missed }

// MaxDuration returns the longest sample in the window.
func (r *Records) MaxDuration() (time.Duration, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.at(r.maxq[0]).duration, true
}

// AvgDuration returns the mean sample in the window.
func (r *Records) AvgDuration() (time.Duration, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.sum / time.Duration(r.count), true
}

// IsLowFrameRate reports whether the window runs below fpsThreshold frames
// per second. The frame interval comes from work period start stamps when
// the client reports them, otherwise from the average duration.
func (r *Records) IsLowFrameRate(fpsThreshold int) bool {
	if r.count == 0 || fpsThreshold <= 0 {
		return false
	}
	var interval time.Duration
	first, last := r.at(r.seq), r.at(r.seq+int64(r.count)-1)
	if r.count > 1 && first.start > 0 && last.start > first.start {
		interval = time.Duration(last.start-first.start) / time.Duration(r.count-1)
	} else {
		interval, _ = r.AvgDuration()
	}
	if interval <= 0 {
		return false
	}
	return interval > time.Second/time.Duration(fpsThreshold)
}
