package session

import (
	"time"

	"github.com/yaap/hardware-google-pixel/internal/app/taskmap"
	"github.com/yaap/hardware-google-pixel/internal/app/votes"
	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/scheduler"
)

// Snapshot is the manager dump.
type Snapshot struct {
	Taken           time.Time         `json:"taken"`
	Sessions        []SessionSnapshot `json:"sessions"`
	Threads         []ThreadSnapshot  `json:"threads"`
	BoostSuppressed bool              `json:"boost_suppressed"`
	Timeouts        scheduler.Stats   `json:"timeouts"`
}

// SessionSnapshot is the manager-side state of one session.
type SessionSnapshot struct {
	ID             int64                 `json:"id"`
	IDString       string                `json:"id_string"`
	Active         bool                  `json:"active"`
	AppSession     bool                  `json:"app_session"`
	PowerEfficient bool                  `json:"power_efficient"`
	Range          domain.UclampRange    `json:"range"`
	RangeLive      bool                  `json:"range_live"`
	GpuCapacity    domain.Cycles         `json:"gpu_capacity,omitempty"`
	Threads        []int32               `json:"threads"`
	Votes          map[string]votes.Vote `json:"votes"`
	HBoost         taskmap.HBoostDist    `json:"hboost"`
	LastUpdated    time.Time             `json:"last_updated"`
}

// ThreadSnapshot is the resolved state of one thread.
type ThreadSnapshot struct {
	TID      int32              `json:"tid"`
	Sessions []int64            `json:"sessions"`
	Range    domain.UclampRange `json:"range"`
}

// Snapshot dumps every session and thread under one lock acquisition.
func (m *Manager) Snapshot() Snapshot {
	boost := m.BoostSuppressed()

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	snap := Snapshot{Taken: now, BoostSuppressed: boost, Timeouts: m.queue.Stats()}

	seen := make(map[int32]bool)
	for _, id := range m.tasks.SessionIDs() {
		e := m.tasks.FindSession(id)
		r, live := e.Votes.UclampRange(now)
		gpu, _ := e.Votes.GpuCapacity(now)
		vs := make(map[string]votes.Vote)
		for kind, v := range e.Votes.Votes() {
			vs[kind.String()] = v
		}
		threads := m.tasks.ThreadIDs(id)
		snap.Sessions = append(snap.Sessions, SessionSnapshot{
			ID:             id,
			IDString:       e.IDString,
			Active:         e.IsActive,
			AppSession:     e.IsAppSession,
			PowerEfficient: e.IsPowerEfficient,
			Range:          r,
			RangeLive:      live,
			GpuCapacity:    gpu,
			Threads:        threads,
			Votes:          vs,
			HBoost:         e.HBoost,
			LastUpdated:    e.LastUpdated,
		})

		for _, tid := range threads {
			if seen[tid] {
				continue
			}
			seen[tid] = true
			var eff *domain.EfficiencyConfig
			if e.Profile != nil {
				eff = e.Profile.Efficiency
			}
			tr, _ := m.tasks.ThreadRange(tid, now, eff)
			snap.Threads = append(snap.Threads, ThreadSnapshot{
				TID:      tid,
				Sessions: m.tasks.SessionsOf(tid),
				Range:    tr,
			})
		}
	}
	return snap
}
