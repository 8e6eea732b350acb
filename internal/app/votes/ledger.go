// Package votes implements the per-session vote ledger: one slot per vote
// kind, each holding a uclamp range or GPU capacity with a validity window.
// The ledger is plain data; callers hold the lock that guards it.
package votes

import (
	"time"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// Vote is one time-bounded resource request.
type Vote struct {
	Active   bool               `json:"active"`
	Start    time.Time          `json:"start"`
	Duration time.Duration      `json:"duration"`
	Range    domain.UclampRange `json:"range"`
	Capacity domain.Cycles      `json:"capacity,omitempty"`
}

// Deadline is the instant the vote stops counting.
func (v Vote) Deadline() time.Time { return v.Start.Add(v.Duration) }

// InWindow reports whether t falls inside [Start, Deadline).
func (v Vote) InWindow(t time.Time) bool {
	return !t.Before(v.Start) && t.Before(v.Deadline())
}

// Live reports whether the vote is active and t is inside its window.
func (v Vote) Live(t time.Time) bool { return v.Active && v.InWindow(t) }

// Ledger holds at most one vote per kind for a single session.
type Ledger struct {
	votes        [domain.NumVoteKinds]Vote
	present      [domain.NumVoteKinds]bool
	defaultRange domain.UclampRange
}

// New creates an empty ledger. defaultRange is what UclampRange reports when
// no CPU vote is live.
func New(defaultRange domain.UclampRange) *Ledger {
	return &Ledger{defaultRange: defaultRange}
}

// Add upserts a CPU vote for kind and marks it active.
func (l *Ledger) Add(kind domain.VoteKind, r domain.UclampRange, start time.Time, d time.Duration) {
	if !kind.Valid() {
		return
	}
	l.votes[kind] = Vote{Active: true, Start: start, Duration: d, Range: r}
	l.present[kind] = true
}

// AddGpu upserts a GPU capacity vote for kind and marks it active.
func (l *Ledger) AddGpu(kind domain.VoteKind, c domain.Cycles, start time.Time, d time.Duration) {
	if !kind.Valid() {
		return
	}
	l.votes[kind] = Vote{Active: true, Start: start, Duration: d, Capacity: c}
	l.present[kind] = true
}

// SetUseVote flips the active flag of an existing vote.
func (l *Ledger) SetUseVote(kind domain.VoteKind, active bool) {
	if !kind.Valid() || !l.present[kind] {
		return
	}
	l.votes[kind].Active = active
}

// VoteIsActive reports the active flag of kind, ignoring its window.
func (l *Ledger) VoteIsActive(kind domain.VoteKind) bool {
	return kind.Valid() && l.present[kind] && l.votes[kind].Active
}

// VoteTimeout returns the deadline of kind, or the zero time if never voted.
func (l *Ledger) VoteTimeout(kind domain.VoteKind) time.Time {
	if !kind.Valid() || !l.present[kind] {
		return time.Time{}
	}
	return l.votes[kind].Deadline()
}

// Get returns the vote for kind.
func (l *Ledger) Get(kind domain.VoteKind) (Vote, bool) {
	if !kind.Valid() || !l.present[kind] {
		return Vote{}, false
	}
	return l.votes[kind], true
}

// UpdateDuration changes the validity window of an existing vote without
// touching its start time or active flag.
func (l *Ledger) UpdateDuration(kind domain.VoteKind, d time.Duration) {
	if !kind.Valid() || !l.present[kind] {
		return
	}
	l.votes[kind].Duration = d
}

// DisableAll deactivates every vote.
func (l *Ledger) DisableAll() {
	for k := range l.votes {
		l.votes[k].Active = false
	}
}

// UclampRange folds the live CPU votes at t into one range: the highest
// floor and the highest ceiling. ok is false when no CPU vote is live, in
// which case the ledger default is returned.
func (l *Ledger) UclampRange(t time.Time) (r domain.UclampRange, ok bool) {
	for k, v := range l.votes {
		kind := domain.VoteKind(k)
		if !l.present[k] || kind.IsGPU() || !v.Live(t) {
			continue
		}
		if !ok {
			r, ok = v.Range, true
			continue
		}
		r.Min = max(r.Min, v.Range.Min)
		r.Max = max(r.Max, v.Range.Max)
	}
	if !ok {
		return l.defaultRange, false
	}
	return r, true
}

// GpuCapacity returns the highest live GPU capacity at t.
func (l *Ledger) GpuCapacity(t time.Time) (c domain.Cycles, ok bool) {
	for k, v := range l.votes {
		kind := domain.VoteKind(k)
		if !l.present[k] || !kind.IsGPU() || !v.Live(t) {
			continue
		}
		if !ok || v.Capacity > c {
			c, ok = v.Capacity, true
		}
	}
	return c, ok
}

// AnyLive reports whether any vote is live at t.
func (l *Ledger) AnyLive(t time.Time) bool {
	for k, v := range l.votes {
		if l.present[k] && v.Live(t) {
			return true
		}
	}
	return false
}

// Votes returns a copy of every present vote keyed by kind.
func (l *Ledger) Votes() map[domain.VoteKind]Vote {
	out := make(map[domain.VoteKind]Vote)
	for k, v := range l.votes {
		if l.present[k] {
			out[domain.VoteKind(k)] = v
		}
	}
	return out
}
