// Package session is the ADPF orchestrator. A Manager owns every hint
// session, casts their votes into the thread map, applies the resolved
// ranges through the resource sink and toggles the universal boost hint.
//
// Locking: a Session's own mutex is taken before Manager.mu. Manager.mu
// guards the thread map and every vote ledger. Manager.registryMu guards the
// id to Session registry and is never taken while holding Manager.mu.
// The universal boost recompute takes Manager.mu itself, so it always runs
// after Manager.mu and the session mutex are released.
package session

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/yaap/hardware-google-pixel/internal/app/jank"
	"github.com/yaap/hardware-google-pixel/internal/app/pid"
	"github.com/yaap/hardware-google-pixel/internal/app/taskmap"
	"github.com/yaap/hardware-google-pixel/internal/app/votes"
	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
	"github.com/yaap/hardware-google-pixel/internal/infra/metrics"
	"github.com/yaap/hardware-google-pixel/internal/infra/scheduler"
)

// historyTimeout bounds the history write on close.
const historyTimeout = 2 * time.Second

// Options wires a Manager to its collaborators.
type Options struct {
	Sink     domain.ResourceSink
	Profiles domain.ProfileProvider
	// Hints receives forwarded session hints and the universal boost hint.
	// Optional.
	Hints domain.HintController
	// History records closed sessions. Optional.
	History domain.HistoryStore

	Clock  clock.Clock
	Logger logr.Logger

	// BoostHintName is the hint that suppresses the generic boost while an
	// app session is active. Defaults to domain.DefaultBoostHintName.
	BoostHintName string
}

// Manager owns all sessions.
type Manager struct {
	log       logr.Logger
	clock     clock.Clock
	sink      domain.ResourceSink
	profiles  domain.ProfileProvider
	hints     domain.HintController
	history   domain.HistoryStore
	boostHint string

	queue *scheduler.TimeoutQueue

	mu    sync.Mutex
	tasks *taskmap.Map

	registryMu sync.RWMutex
	registry   map[int64]*Session

	boostMu         sync.Mutex
	boostSuppressed bool

	nextID atomic.Int64
}

// NewManager creates a manager. Call Run to start expiring votes.
func NewManager(opts Options) (*Manager, error) {
	if opts.Sink == nil {
		return nil, fmt.Errorf("%w: resource sink is required", domain.ErrInvalidArgument)
	}
	if opts.Profiles == nil {
		return nil, fmt.Errorf("%w: profile provider is required", domain.ErrInvalidArgument)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.BoostHintName == "" {
		opts.BoostHintName = domain.DefaultBoostHintName
	}

	m := &Manager{
		log:       opts.Logger.WithName("session-manager"),
		clock:     opts.Clock,
		sink:      opts.Sink,
		profiles:  opts.Profiles,
		hints:     opts.Hints,
		history:   opts.History,
		boostHint: opts.BoostHintName,
		tasks:     taskmap.New(),
		registry:  make(map[int64]*Session),
	}
	m.queue = scheduler.NewTimeoutQueue(opts.Clock, opts.Logger, m.handleEvent)
	return m, nil
}

// Run expires votes until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.queue.Run(ctx)
}

// TimeoutStats returns the timeout queue counters.
func (m *Manager) TimeoutStats() scheduler.Stats {
	return m.queue.Stats()
}

// TimeoutBacklog returns how long the earliest vote expiry has been overdue.
func (m *Manager) TimeoutBacklog() time.Duration {
	return m.queue.Overdue()
}

// DrainTimeouts expires every due vote on the calling goroutine.
func (m *Manager) DrainTimeouts() int {
	return m.queue.FireDue()
}

// ─── Session Lifecycle ──────────────────────────────────────────────────────

// CreateSession opens a session for threads tids of process tgid. Only a
// negative target is rejected: a zero target is accepted and leaves the
// session unconfigured, so reports fail with ErrTargetNotSet until
// UpdateTargetWorkDuration sets a positive one.
func (m *Manager) CreateSession(tgid, uid int32, tids []int32, target time.Duration, tag domain.SessionTag) (*Session, error) {
	if len(tids) == 0 {
		return nil, m.reject("create", domain.ErrEmptyThreads)
	}
	if target < 0 {
		return nil, m.reject("create", domain.ErrNegativeDuration)
	}
	if !slices.Contains(domain.SessionTags, tag) {
		return nil, m.reject("create", fmt.Errorf("%w: %d", domain.ErrUnknownTag, tag))
	}
	profile, err := m.profiles.Profile(tag)
	if err != nil {
		return nil, m.reject("create", err)
	}
	if profile == nil {
		return nil, m.reject("create", domain.ErrAdpfUnsupported)
	}

	now := m.clock.Now()
	id := m.nextID.Add(1)
	s := &Session{
		m:         m,
		id:        id,
		tgid:      tgid,
		uid:       uid,
		tag:       tag,
		idString:  domain.SessionIDString(tgid, uid, id, tag),
		createdAt: now,
		profile:   profile,
		target:    target,
		threads:   dedupThreads(tids),
		pid:       pid.New(profile),
		cv:        profile.UclampMinInit,
		active:    true,
		supported: make(map[domain.SessionHint]bool),
	}
	if profile.HeuristicBoostOn() {
		s.tracker = jank.NewTracker(profile.HeuristicBoost)
	}

	m.mu.Lock()
	e := &taskmap.Entry{
		TGID:         tgid,
		UID:          uid,
		IDString:     s.idString,
		IsActive:     true,
		IsAppSession: domain.IsAppUID(uid),
		LastUpdated:  now,
		Votes:        votes.New(domain.DefaultUclampRange),
		Profile:      profile,
	}
	m.tasks.Add(id, e)
	m.tasks.Replace(id, s.threads)
	m.mu.Unlock()

	m.voteSet(id, domain.VoteCPULoadReset,
		domain.UclampRange{Min: profile.UclampMinLoadReset, Max: domain.UclampMax},
		now, profile.StaleTimeout(target)/2)
	m.voteSet(id, domain.VoteCPUDefault,
		domain.UclampRange{Min: profile.UclampMinInit, Max: domain.UclampMax},
		now, target)

	s.unregister = m.profiles.RegisterProfileUpdate(tag, s.onProfileUpdate)

	m.registryMu.Lock()
	m.registry[id] = s
	m.registryMu.Unlock()

	metrics.SessionsCreated.WithLabelValues(tag.String()).Inc()
	metrics.SessionsActive.WithLabelValues(tag.String()).Inc()
	m.log.V(logging.VERBOSE).Info("session created", "session", s.idString, "threads", s.threads, "target", target, "profile", profile.Name)

	m.updateUniversalBoost()
	return s, nil
}

// Session returns the live session with id. Ids are handed out in order, so
// an id that was issued but is no longer registered belongs to a closed
// session and yields ErrSessionClosed.
func (m *Manager) Session(id int64) (*Session, error) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	s, ok := m.registry[id]
	switch {
	case ok:
		return s, nil
	case id > 0 && id <= m.nextID.Load():
		return nil, fmt.Errorf("%w: %d", domain.ErrSessionClosed, id)
	default:
		return nil, fmt.Errorf("%w: %d", domain.ErrSessionNotFound, id)
	}
}

// Sessions returns every live session ordered by id.
func (m *Manager) Sessions() []*Session {
	m.registryMu.RLock()
	out := make([]*Session, 0, len(m.registry))
	for _, s := range m.registry {
		out = append(out, s)
	}
	m.registryMu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int { return cmp.Compare(a.id, b.id) })
	return out
}

// PreferredRate is the reporting interval clients should aim for.
func (m *Manager) PreferredRate() (time.Duration, error) {
	p, err := m.profiles.Profile(domain.TagOther)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, domain.ErrAdpfUnsupported
	}
	return p.ReportingRateLimit(), nil
}

// Close closes every live session and stops the timeout queue.
func (m *Manager) Close() error {
	var errs error
	for _, s := range m.Sessions() {
		if err := s.Close(); err != nil && !isClosed(err) {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", s.idString, err))
		}
	}
	m.queue.Close()
	return errs
}

func (m *Manager) unregisterSession(id int64) {
	m.registryMu.Lock()
	delete(m.registry, id)
	m.registryMu.Unlock()
}

func (m *Manager) recordHistory(h domain.SessionHistory) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := m.history.InsertSessionHistory(ctx, h); err != nil {
		m.log.Error(err, "record session history", "session", h.IDString)
	}
}

// reject counts a rejected call and returns err unchanged.
func (m *Manager) reject(op string, err error) error {
	metrics.RejectedCalls.WithLabelValues(op, domain.ErrorReason(err)).Inc()
	m.log.V(logging.DEBUG).Info("call rejected", "op", op, "err", err.Error())
	return err
}

// ─── Universal Boost ────────────────────────────────────────────────────────

// updateUniversalBoost suppresses the generic boost while any app session is
// active and lifts it otherwise. Must not be called with Manager.mu held.
func (m *Manager) updateUniversalBoost() {
	if m.hints == nil || !m.hints.IsHintSupported(m.boostHint) {
		return
	}
	m.boostMu.Lock()
	defer m.boostMu.Unlock()

	m.mu.Lock()
	active := m.tasks.IsAnyAppSessionActive(m.clock.Now())
	m.mu.Unlock()
	if active == m.boostSuppressed {
		return
	}

	var err error
	if active {
		err = m.hints.DoHint(m.boostHint)
	} else {
		err = m.hints.EndHint(m.boostHint)
	}
	if err != nil {
		m.log.Error(err, "toggle universal boost", "suppress", active)
		return
	}
	m.boostSuppressed = active
	if active {
		metrics.UniversalBoostSuppressed.Set(1)
	} else {
		metrics.UniversalBoostSuppressed.Set(0)
	}
	m.log.V(logging.VERBOSE).Info("universal boost", "suppressed", active)
}

// BoostSuppressed reports whether the generic boost is currently disabled.
func (m *Manager) BoostSuppressed() bool {
	m.boostMu.Lock()
	defer m.boostMu.Unlock()
	return m.boostSuppressed
}

func dedupThreads(tids []int32) []int32 {
	out := make([]int32, 0, len(tids))
	for _, tid := range tids {
		if !slices.Contains(out, tid) {
			out = append(out, tid)
		}
	}
	return out
}
