package session

import (
	"errors"
	"slices"
	"time"

	"github.com/yaap/hardware-google-pixel/internal/app/taskmap"
	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
	"github.com/yaap/hardware-google-pixel/internal/infra/metrics"
	"github.com/yaap/hardware-google-pixel/internal/infra/scheduler"
)

// ─── Votes ──────────────────────────────────────────────────────────────────

// voteSet casts a CPU vote for session id, arms its expiry and re-applies the
// session's threads.
func (m *Manager) voteSet(id int64, kind domain.VoteKind, r domain.UclampRange, start time.Time, d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil {
		return false
	}
	e.Votes.Add(kind, r, start, d)
	m.armLocked(id, kind, start, start.Add(d))
	metrics.VotesCast.WithLabelValues(kind.String()).Inc()
	m.applyThreadsLocked(id, m.clock.Now())
	return true
}

// voteSetGpu casts a GPU capacity vote for session id, arms its expiry and
// re-applies the device GPU capacity.
func (m *Manager) voteSetGpu(id int64, kind domain.VoteKind, c domain.Cycles, start time.Time, d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil {
		return false
	}
	e.Votes.AddGpu(kind, c, start, d)
	m.armLocked(id, kind, start, start.Add(d))
	metrics.VotesCast.WithLabelValues(kind.String()).Inc()
	m.applyGpuLocked(e, m.clock.Now())
	return true
}

// armLocked schedules an expiry for the slot. The queue drops the request
// when a timer at or before deadline is already armed; that timer requeues
// itself for the later deadline when it fires.
func (m *Manager) armLocked(id int64, kind domain.VoteKind, start, deadline time.Time) {
	m.queue.Schedule(scheduler.Event{
		SessionID:   id,
		Kind:        kind,
		ScheduledAt: start,
		Deadline:    deadline,
	})
}

// handleEvent runs on the timeout worker for every due slot.
func (m *Manager) handleEvent(ev scheduler.Event) {
	expired := m.expire(ev)
	if expired {
		m.updateUniversalBoost()
	}
}

func (m *Manager) expire(ev scheduler.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.tasks.FindSession(ev.SessionID)
	if e == nil {
		// Closed since the timer was armed.
		return false
	}
	v, ok := e.Votes.Get(ev.Kind)
	if !ok || !v.Active {
		return false
	}
	now := m.clock.Now()
	if deadline := v.Deadline(); now.Before(deadline) {
		m.armLocked(ev.SessionID, ev.Kind, ev.ScheduledAt, deadline)
		metrics.TimeoutsRequeued.Inc()
		return false
	}

	e.Votes.SetUseVote(ev.Kind, false)
	metrics.VotesExpired.WithLabelValues(ev.Kind.String()).Inc()
	m.log.V(logging.TRACE).Info("vote expired", "session", e.IDString, "kind", ev.Kind.String())
	if ev.Kind.IsGPU() {
		m.applyGpuLocked(e, now)
	} else {
		m.applyThreadsLocked(ev.SessionID, now)
	}
	return true
}

// disableBoosts deactivates every boost vote of session id ahead of a
// report, leaving the default and GPU capacity votes alone.
func (m *Manager) disableBoosts(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil {
		return
	}
	for _, kind := range domain.BoostVoteKinds {
		e.Votes.SetUseVote(kind, false)
	}
}

// updateTargetDuration stretches the default vote window without
// re-applying; the next report re-applies with the new window.
func (m *Manager) updateTargetDuration(id int64, target time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.tasks.FindSession(id); e != nil {
		e.Votes.UpdateDuration(domain.VoteCPUDefault, target)
	}
}

func (m *Manager) setPowerEfficient(id int64, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil || e.IsPowerEfficient == enabled {
		return
	}
	e.IsPowerEfficient = enabled
	m.applyThreadsLocked(id, m.clock.Now())
}

func (m *Manager) setProfile(id int64, p *domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.tasks.FindSession(id); e != nil {
		e.Profile = p
	}
}

// recordFrames adds n frames at level to the session's statistics and
// stamps the report time.
func (m *Manager) recordFrames(id int64, level domain.JankyLevel, n int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil {
		return
	}
	e.LastUpdated = now
	if n > 0 {
		e.HBoost.Add(level, n)
	}
}

// ─── Thread Association ─────────────────────────────────────────────────────

// setThreads replaces the threads of session id. Threads nobody claims any
// more are reverted, dropped threads still claimed elsewhere are re-resolved
// without id, and the session's current threads are re-applied.
func (m *Manager) setThreads(id int64, tids []int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.tasks.ThreadIDs(id)
	_, orphaned, ok := m.tasks.Replace(id, tids)
	if !ok {
		return
	}
	m.revertLocked(orphaned)
	now := m.clock.Now()
	dropped := slices.DeleteFunc(before, func(tid int32) bool { return slices.Contains(tids, tid) })
	m.reresolveLocked(dropped, orphaned, now)
	m.applyThreadsLocked(id, now)
}

// threadsOf returns the live threads of session id. Dead threads pruned by
// the apply pass are gone from the list.
func (m *Manager) threadsOf(id int64) ([]int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks.FindSession(id) == nil {
		return nil, false
	}
	return m.tasks.ThreadIDs(id), true
}

// pause deactivates session id, disables its votes and detaches its threads.
// It returns the threads that were still alive, for the later resume.
func (m *Manager) pause(id int64) []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil {
		return nil
	}
	live := m.tasks.ThreadIDs(id)
	e.IsActive = false
	e.Votes.DisableAll()
	m.detachLocked(id)
	return live
}

// resume reattaches tids to session id and marks it active.
func (m *Manager) resume(id int64, tids []int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil {
		return
	}
	e.IsActive = true
	m.tasks.Replace(id, tids)
	m.applyThreadsLocked(id, m.clock.Now())
}

// remove drops session id from the thread map and returns its final entry.
func (m *Manager) remove(id int64) (taskmap.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.tasks.FindSession(id)
	if e == nil {
		return taskmap.Entry{}, false
	}
	e.IsActive = false
	e.Votes.DisableAll()
	m.detachLocked(id)
	m.tasks.Remove(id)
	m.applyGpuLocked(e, m.clock.Now())
	return *e, true
}

// detachLocked releases every thread of session id. Threads still claimed by
// another session are re-resolved without it.
func (m *Manager) detachLocked(id int64) {
	threads := m.tasks.ThreadIDs(id)
	_, orphaned, _ := m.tasks.Replace(id, nil)
	m.revertLocked(orphaned)
	m.reresolveLocked(threads, orphaned, m.clock.Now())
}

// reresolveLocked re-applies every thread in tids that is not orphaned, so
// its range only reflects the sessions that still claim it.
func (m *Manager) reresolveLocked(tids, orphaned []int32, now time.Time) {
	for _, tid := range tids {
		if slices.Contains(orphaned, tid) {
			continue
		}
		var p *domain.Profile
		if owners := m.tasks.SessionsOf(tid); len(owners) > 0 {
			p = m.tasks.FindSession(owners[0]).Profile
		}
		m.applyThreadLocked(tid, now, p)
	}
}

func (m *Manager) revertLocked(tids []int32) {
	for _, tid := range tids {
		if err := m.sink.RevertThreadResourceRange(tid); err != nil && !errors.Is(err, domain.ErrThreadGone) {
			m.log.V(logging.VERBOSE).Info("revert thread", "tid", tid, "err", err.Error())
		}
	}
}

// ─── Apply ──────────────────────────────────────────────────────────────────

// applyThreadsLocked resolves and applies the range of every thread of
// session id. A failing thread never stops the pass.
func (m *Manager) applyThreadsLocked(id int64, now time.Time) {
	e := m.tasks.FindSession(id)
	if e == nil {
		return
	}
	for _, tid := range m.tasks.ThreadIDs(id) {
		m.applyThreadLocked(tid, now, e.Profile)
	}
}

// applyThreadLocked applies the resolved range of one thread. p supplies
// the efficiency cap and the uclamp.min switch; nil means neither.
func (m *Manager) applyThreadLocked(tid int32, now time.Time, p *domain.Profile) {
	var eff *domain.EfficiencyConfig
	minOn := true
	if p != nil {
		eff = p.Efficiency
		minOn = p.UclampMinOn
	}
	r, ok := m.tasks.ThreadRange(tid, now, eff)
	if !ok {
		return
	}
	if !minOn {
		r.Min = domain.UclampMin
	}

	err := m.sink.ApplyThreadResourceRange(tid, r)
	switch {
	case err == nil:
		metrics.UclampApplies.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrThreadGone):
		metrics.UclampApplies.WithLabelValues("gone").Inc()
		metrics.DeadThreadsPruned.Inc()
		owners := m.tasks.RemoveDeadThread(tid)
		m.log.V(logging.VERBOSE).Info("pruned dead thread", "tid", tid, "sessions", owners)
	default:
		metrics.UclampApplies.WithLabelValues("error").Inc()
		m.log.Error(err, "apply uclamp", "tid", tid, "range", r.String())
	}
}

// applyGpuLocked pushes the highest live GPU capacity vote to the sink.
func (m *Manager) applyGpuLocked(e *taskmap.Entry, now time.Time) {
	if e.Profile == nil || !e.Profile.GpuBoostOn() {
		return
	}
	c := m.tasks.GpuCapacity(now)
	if err := m.sink.SetGpuCapacity(c); err != nil {
		m.log.Error(err, "set gpu capacity", "capacity", int64(c))
		return
	}
	metrics.GpuCapacity.Set(float64(c))
}
