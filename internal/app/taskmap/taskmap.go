// Package taskmap keeps the canonical many-to-many relation between hint
// sessions and kernel threads, and resolves the uclamp range each thread
// should run with.
//
// A Map is not safe for concurrent use; the session manager guards it with
// the same lock that guards the vote ledgers.
package taskmap

import (
	"slices"
	"time"

	"github.com/yaap/hardware-google-pixel/internal/app/votes"
	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// HBoostDist counts reported frames per janky level.
type HBoostDist struct {
	Light    int64 `json:"light"`
	Moderate int64 `json:"moderate"`
	Severe   int64 `json:"severe"`
}

// Add counts n frames at level.
func (d *HBoostDist) Add(level domain.JankyLevel, n int) {
	switch level {
	case domain.JankLight:
		d.Light += int64(n)
	case domain.JankModerate:
		d.Moderate += int64(n)
	case domain.JankSevere:
		d.Severe += int64(n)
	}
}

// Entry is the manager-side record of one session.
type Entry struct {
	TGID             int32
	UID              int32
	IDString         string
	IsActive         bool
	IsAppSession     bool
	IsPowerEfficient bool
	LastUpdated      time.Time
	Votes            *votes.Ledger
	HBoost           HBoostDist
	// Profile drives the apply pass for this session's threads.
	Profile *domain.Profile
}

type sessionItem struct {
	entry   *Entry
	threads []int32
}

// Map relates sessions to threads.
type Map struct {
	sessions map[int64]*sessionItem
	tasks    map[int32][]int64
}

// New creates an empty map.
func New() *Map {
	return &Map{
		sessions: make(map[int64]*sessionItem),
		tasks:    make(map[int32][]int64),
	}
}

// Add registers a session without threads. It returns false if the id is
// already taken.
func (m *Map) Add(id int64, e *Entry) bool {
	if _, ok := m.sessions[id]; ok || e == nil {
		return false
	}
	m.sessions[id] = &sessionItem{entry: e}
	return true
}

// Remove drops a session and returns the threads no longer claimed by any
// session.
func (m *Map) Remove(id int64) (orphaned []int32) {
	if _, ok := m.sessions[id]; !ok {
		return nil
	}
	_, orphaned, _ = m.Replace(id, nil)
	delete(m.sessions, id)
	return orphaned
}

// Replace sets the thread list of a session. added holds threads that were
// not claimed by any session before the call; removed holds threads that are
// claimed by none after it. Each thread transition is reported exactly once.
func (m *Map) Replace(id int64, threads []int32) (added, removed []int32, ok bool) {
	item, ok := m.sessions[id]
	if !ok {
		return nil, nil, false
	}
	next := dedup(threads)

	for _, tid := range item.threads {
		if slices.Contains(next, tid) {
			continue
		}
		if m.unlink(tid, id) {
			removed = append(removed, tid)
		}
	}
	for _, tid := range next {
		if slices.Contains(item.threads, tid) {
			continue
		}
		if len(m.tasks[tid]) == 0 {
			added = append(added, tid)
		}
		m.tasks[tid] = append(m.tasks[tid], id)
	}
	item.threads = next
	return added, removed, true
}

// unlink removes id from the owners of tid and reports whether tid became
// unowned.
func (m *Map) unlink(tid int32, id int64) bool {
	owners := slices.DeleteFunc(m.tasks[tid], func(s int64) bool { return s == id })
	if len(owners) == 0 {
		delete(m.tasks, tid)
		return true
	}
	m.tasks[tid] = owners
	return false
}

// FindSession returns the entry for id, or nil.
func (m *Map) FindSession(id int64) *Entry {
	if item, ok := m.sessions[id]; ok {
		return item.entry
	}
	return nil
}

// ThreadIDs returns a copy of the thread list of id.
func (m *Map) ThreadIDs(id int64) []int32 {
	if item, ok := m.sessions[id]; ok {
		return slices.Clone(item.threads)
	}
	return nil
}

// SessionsOf returns the sessions that claim tid.
func (m *Map) SessionsOf(tid int32) []int64 {
	return slices.Clone(m.tasks[tid])
}

// SessionIDs returns every registered session id in ascending order.
func (m *Map) SessionIDs() []int64 {
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of sessions.
func (m *Map) Len() int { return len(m.sessions) }

// ThreadCount returns the number of distinct claimed threads.
func (m *Map) ThreadCount() int { return len(m.tasks) }

// ThreadRange resolves the range tid should run with at t. Every active
// session claiming tid that has a live CPU vote contributes its folded ledger
// range; contributions combine by highest floor and highest ceiling. When all
// contributors prefer power efficiency and eff is set, the ceiling is capped
// to base+offset. A thread with no contributor gets the default range. ok is
// false for unknown threads.
func (m *Map) ThreadRange(tid int32, t time.Time, eff *domain.EfficiencyConfig) (r domain.UclampRange, ok bool) {
	owners, ok := m.tasks[tid]
	if !ok {
		return domain.DefaultUclampRange, false
	}
	contributed := false
	allEfficient := true
	for _, id := range owners {
		e := m.sessions[id].entry
		if !e.IsActive {
			continue
		}
		sr, live := e.Votes.UclampRange(t)
		if !live {
			continue
		}
		if !e.IsPowerEfficient {
			allEfficient = false
		}
		if !contributed {
			r, contributed = sr, true
			continue
		}
		r.Min = max(r.Min, sr.Min)
		r.Max = max(r.Max, sr.Max)
	}
	if !contributed {
		return domain.DefaultUclampRange, true
	}
	if allEfficient && eff != nil {
		r.Max = min(r.Max, eff.UclampMaxBase+eff.UclampMaxOffset)
	}
	return r, true
}

// GpuCapacity returns the highest live GPU capacity across active sessions.
func (m *Map) GpuCapacity(t time.Time) domain.Cycles {
	var out domain.Cycles
	for _, item := range m.sessions {
		if !item.entry.IsActive {
			continue
		}
		if c, ok := item.entry.Votes.GpuCapacity(t); ok && c > out {
			out = c
		}
	}
	return out
}

// IsAnyAppSessionActive reports whether an active app session has a live
// vote at t.
func (m *Map) IsAnyAppSessionActive(t time.Time) bool {
	for _, item := range m.sessions {
		e := item.entry
		if e.IsAppSession && e.IsActive && e.Votes.AnyLive(t) {
			return true
		}
	}
	return false
}

// RemoveDeadThread forgets tid everywhere after the kernel reported it gone.
// It returns the sessions that had claimed it.
func (m *Map) RemoveDeadThread(tid int32) []int64 {
	owners := m.tasks[tid]
	delete(m.tasks, tid)
	for _, id := range owners {
		item := m.sessions[id]
		item.threads = slices.DeleteFunc(item.threads, func(x int32) bool { return x == tid })
	}
	return owners
}

func dedup(threads []int32) []int32 {
	out := make([]int32, 0, len(threads))
	for _, tid := range threads {
		if !slices.Contains(out, tid) {
			out = append(out, tid)
		}
	}
	return out
}
