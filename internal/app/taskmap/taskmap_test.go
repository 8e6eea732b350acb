package taskmap

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/yaap/hardware-google-pixel/internal/app/votes"
	"github.com/yaap/hardware-google-pixel/internal/domain"
)

var t0 = time.Unix(5000, 0)

func newEntry(uid int32) *Entry {
	return &Entry{
		UID:          uid,
		IsActive:     true,
		IsAppSession: domain.IsAppUID(uid),
		Votes:        votes.New(domain.DefaultUclampRange),
	}
}

func sorted() cmp.Option {
	return cmpopts.SortSlices(func(a, b int32) bool { return a < b })
}

// ─── Association ────────────────────────────────────────────────────────────

func TestMap_AddRejectsDuplicateID(t *testing.T) {
	m := New()
	if !m.Add(1, newEntry(1000)) {
		t.Fatal("first Add failed")
	}
	if m.Add(1, newEntry(1000)) {
		t.Error("duplicate Add should fail")
	}
	if m.Add(2, nil) {
		t.Error("nil entry should be rejected")
	}
}

func TestMap_ReplaceReportsTransitions(t *testing.T) {
	m := New()
	m.Add(1, newEntry(1000))
	m.Add(2, newEntry(1000))

	added, removed, ok := m.Replace(1, []int32{10, 11, 12, 10})
	if !ok {
		t.Fatal("Replace on known session failed")
	}
	if diff := cmp.Diff([]int32{10, 11, 12}, added, sorted()); diff != "" {
		t.Errorf("added (-want +got):\n%s", diff)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}

	// 12 is shared; claiming it again is not a transition.
	added, _, _ = m.Replace(2, []int32{12, 13})
	if diff := cmp.Diff([]int32{13}, added, sorted()); diff != "" {
		t.Errorf("added (-want +got):\n%s", diff)
	}

	// Dropping 11 and 12 from session 1: only 11 becomes unowned.
	added, removed, _ = m.Replace(1, []int32{10, 14})
	if diff := cmp.Diff([]int32{14}, added, sorted()); diff != "" {
		t.Errorf("added (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{11}, removed, sorted()); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int64{2}, m.SessionsOf(12)); diff != "" {
		t.Errorf("owners of 12 (-want +got):\n%s", diff)
	}
	if m.ThreadCount() != 4 {
		t.Errorf("ThreadCount = %d, want 4", m.ThreadCount())
	}

	if _, _, ok := m.Replace(99, []int32{1}); ok {
		t.Error("Replace on unknown session should fail")
	}
}

func TestMap_RemoveReturnsOrphans(t *testing.T) {
	m := New()
	m.Add(1, newEntry(1000))
	m.Add(2, newEntry(1000))
	m.Replace(1, []int32{10, 11})
	m.Replace(2, []int32{11})

	orphaned := m.Remove(1)
	if diff := cmp.Diff([]int32{10}, orphaned, sorted()); diff != "" {
		t.Errorf("orphaned (-want +got):\n%s", diff)
	}
	if m.FindSession(1) != nil {
		t.Error("session 1 still present")
	}
	if diff := cmp.Diff([]int64{2}, m.SessionIDs()); diff != "" {
		t.Errorf("SessionIDs (-want +got):\n%s", diff)
	}
	if m.Remove(1) != nil {
		t.Error("second Remove should be a no-op")
	}
}

func TestMap_RemoveDeadThread(t *testing.T) {
	m := New()
	m.Add(1, newEntry(1000))
	m.Add(2, newEntry(1000))
	m.Replace(1, []int32{10, 11})
	m.Replace(2, []int32{11})

	owners := m.RemoveDeadThread(11)
	if len(owners) != 2 {
		t.Errorf("owners = %v, want both sessions", owners)
	}
	if diff := cmp.Diff([]int32{10}, m.ThreadIDs(1)); diff != "" {
		t.Errorf("session 1 threads (-want +got):\n%s", diff)
	}
	if len(m.ThreadIDs(2)) != 0 {
		t.Errorf("session 2 threads = %v, want none", m.ThreadIDs(2))
	}
	if _, ok := m.ThreadRange(11, t0, nil); ok {
		t.Error("dead thread still resolvable")
	}
}

// ─── Aggregation ────────────────────────────────────────────────────────────

func TestMap_SharedThreadRange(t *testing.T) {
	m := New()
	s1, s2 := newEntry(1000), newEntry(1000)
	m.Add(1, s1)
	m.Add(2, s2)
	m.Replace(1, []int32{42})
	m.Replace(2, []int32{42})

	s1.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 200, Max: 800}, t0, time.Second)
	s2.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 100, Max: 1000}, t0, time.Second)

	r, ok := m.ThreadRange(42, t0.Add(time.Millisecond), nil)
	if !ok || r != (domain.UclampRange{Min: 200, Max: 1000}) {
		t.Errorf("ThreadRange = %v, %v; want [200,1000]", r, ok)
	}
}

func TestMap_InactiveSessionsDoNotContribute(t *testing.T) {
	m := New()
	s1, s2 := newEntry(1000), newEntry(1000)
	m.Add(1, s1)
	m.Add(2, s2)
	m.Replace(1, []int32{42})
	m.Replace(2, []int32{42})
	s1.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 600, Max: 900}, t0, time.Second)
	s2.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 100, Max: 300}, t0, time.Second)

	s1.IsActive = false
	if r, _ := m.ThreadRange(42, t0, nil); r != (domain.UclampRange{Min: 100, Max: 300}) {
		t.Errorf("range = %v, want only session 2", r)
	}
	s2.IsActive = false
	if r, _ := m.ThreadRange(42, t0, nil); r != domain.DefaultUclampRange {
		t.Errorf("range = %v, want default", r)
	}
}

func TestMap_PowerEfficiencyCap(t *testing.T) {
	eff := &domain.EfficiencyConfig{UclampMaxBase: 500, UclampMaxOffset: 200}
	m := New()
	s1, s2 := newEntry(1000), newEntry(1000)
	m.Add(1, s1)
	m.Add(2, s2)
	m.Replace(1, []int32{42})
	m.Replace(2, []int32{42})
	s1.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 300, Max: 1024}, t0, time.Second)
	s2.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 100, Max: 1024}, t0, time.Second)

	s1.IsPowerEfficient = true
	if r, _ := m.ThreadRange(42, t0, eff); r.Max != 1024 {
		t.Errorf("one efficient session capped the ceiling: %v", r)
	}
	s2.IsPowerEfficient = true
	if r, _ := m.ThreadRange(42, t0, eff); r != (domain.UclampRange{Min: 300, Max: 700}) {
		t.Errorf("range = %v, want [300,700]", r)
	}
	if r, _ := m.ThreadRange(42, t0, nil); r.Max != 1024 {
		t.Errorf("no efficiency config should not cap: %v", r)
	}
}

func TestMap_AggregationMonotonicAcrossSessions(t *testing.T) {
	m := New()
	entries := make([]*Entry, 4)
	for i := range entries {
		entries[i] = newEntry(1000)
		m.Add(int64(i), entries[i])
		m.Replace(int64(i), []int32{7})
	}
	entries[0].Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 10, Max: 20}, t0, time.Second)

	ranges := []domain.UclampRange{{Min: 5, Max: 900}, {Min: 400, Max: 10}, {Min: 400, Max: 400}}
	for i, vr := range ranges {
		before, _ := m.ThreadRange(7, t0, nil)
		entries[i+1].Votes.Add(domain.VoteCPULoadUp, vr, t0, time.Second)
		after, _ := m.ThreadRange(7, t0, nil)
		if after.Min < before.Min || after.Max < before.Max {
			t.Errorf("adding %v lowered range %v -> %v", vr, before, after)
		}
	}
}

func TestMap_GpuCapacity(t *testing.T) {
	m := New()
	s1, s2 := newEntry(1000), newEntry(1000)
	m.Add(1, s1)
	m.Add(2, s2)
	s1.Votes.AddGpu(domain.VoteGPUCapacity, 800, t0, time.Second)
	s2.Votes.AddGpu(domain.VoteGPUCapacity, 1500, t0, time.Second)

	if got := m.GpuCapacity(t0); got != 1500 {
		t.Errorf("GpuCapacity = %d, want 1500", got)
	}
	s2.IsActive = false
	if got := m.GpuCapacity(t0); got != 800 {
		t.Errorf("GpuCapacity = %d, want 800", got)
	}
	if got := m.GpuCapacity(t0.Add(2 * time.Second)); got != 0 {
		t.Errorf("GpuCapacity after expiry = %d, want 0", got)
	}
}

func TestMap_IsAnyAppSessionActive(t *testing.T) {
	m := New()
	system, app := newEntry(1000), newEntry(10001)
	m.Add(1, system)
	m.Add(2, app)
	system.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 1, Max: 2}, t0, time.Second)
	if m.IsAnyAppSessionActive(t0) {
		t.Error("system session counted as app")
	}

	app.Votes.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 1, Max: 2}, t0, time.Second)
	if !m.IsAnyAppSessionActive(t0) {
		t.Error("app session with live vote not detected")
	}
	if m.IsAnyAppSessionActive(t0.Add(time.Second)) {
		t.Error("expired votes should not count")
	}
	app.IsActive = false
	if m.IsAnyAppSessionActive(t0) {
		t.Error("paused app session should not count")
	}
}

func TestHBoostDist_Add(t *testing.T) {
	var d HBoostDist
	d.Add(domain.JankLight, 3)
	d.Add(domain.JankModerate, 2)
	d.Add(domain.JankSevere, 1)
	d.Add(domain.JankSevere, 1)
	if d != (HBoostDist{Light: 3, Moderate: 2, Severe: 2}) {
		t.Errorf("dist = %+v", d)
	}
}
