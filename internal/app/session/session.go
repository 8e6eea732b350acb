package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/yaap/hardware-google-pixel/internal/app/jank"
	"github.com/yaap/hardware-google-pixel/internal/app/pid"
	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
	"github.com/yaap/hardware-google-pixel/internal/infra/metrics"
)

// Session is one client's hint session. All methods are safe for concurrent
// use and fail fast once the session is closed.
type Session struct {
	m *Manager

	id        int64
	tgid      int32
	uid       int32
	tag       domain.SessionTag
	idString  string
	createdAt time.Time

	mu         sync.Mutex
	profile    *domain.Profile
	target     time.Duration
	threads    []int32
	pid        *pid.Controller
	cv         int
	tracker    *jank.Tracker
	active     bool
	closed     bool
	efficient  bool
	lastReport time.Time
	reports    int64
	// supported caches HintController.IsHintSupported per hint.
	supported  map[domain.SessionHint]bool
	unregister func()
}

// Config is a point-in-time view of a session.
type Config struct {
	ID              int64           `json:"id"`
	IDString        string          `json:"id_string"`
	TGID            int32           `json:"tgid"`
	UID             int32           `json:"uid"`
	Tag             string          `json:"tag"`
	Profile         string          `json:"profile"`
	TargetNanos     int64           `json:"target_ns"`
	Threads         []int32         `json:"threads"`
	ControlVariable int             `json:"control_variable"`
	Active          bool            `json:"active"`
	PowerEfficient  bool            `json:"power_efficient"`
	JankyLevel      string          `json:"janky_level,omitempty"`
	Reports         int64           `json:"reports"`
	CreatedAt       time.Time       `json:"created_at"`
	LastReport      time.Time       `json:"last_report,omitzero"`
	Integral        int64           `json:"pid_integral"`
	PreviousError   int64           `json:"pid_previous_error"`
	Heuristic       *JankStats      `json:"heuristic,omitempty"`
	HintSupport     map[string]bool `json:"hint_support,omitempty"`
}

// JankStats summarizes the heuristic window of a session.
type JankStats struct {
	Records      int   `json:"records"`
	MissedCycles int   `json:"missed_cycles"`
	MaxNanos     int64 `json:"max_ns"`
	AvgNanos     int64 `json:"avg_ns"`
}

// ID returns the session id.
func (s *Session) ID() int64 { return s.id }

// IDString returns the "<tgid>-<uid>-<id>-<TAG>" identifier.
func (s *Session) IDString() string { return s.idString }

// Tag returns the session tag.
func (s *Session) Tag() domain.SessionTag { return s.tag }

// ─── Session API ────────────────────────────────────────────────────────────

// UpdateTargetWorkDuration sets the per-report target. The stored target is
// scaled by the profile's target time factor.
func (s *Session) UpdateTargetWorkDuration(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.m.reject("update_target", domain.ErrSessionClosed)
	}
	if d <= 0 {
		return s.m.reject("update_target", domain.ErrNonPositiveDuration)
	}
	s.target = time.Duration(float64(d) * s.profile.TargetTimeFactor)
	s.m.updateTargetDuration(s.id, s.target)
	return nil
}

// ReportActualWorkDuration feeds a batch of reports through the jank
// tracker and the PID controller and casts the resulting votes.
func (s *Session) ReportActualWorkDuration(ds []domain.WorkDuration) error {
	stale, err := s.report(ds)
	if err != nil {
		return s.m.reject("report", err)
	}
	if stale {
		s.m.updateUniversalBoost()
	}
	return nil
}

func (s *Session) report(ds []domain.WorkDuration) (stale bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return false, domain.ErrSessionClosed
	case s.target == 0:
		return false, domain.ErrTargetNotSet
	case len(ds) == 0:
		return false, domain.ErrEmptyDurations
	case !s.active:
		return false, domain.ErrSessionPaused
	}
	for _, d := range ds {
		if d.DurationNanos <= 0 {
			return false, domain.ErrNonPositiveDuration
		}
	}

	p := s.profile
	m := s.m
	now := m.clock.Now()
	stale = s.lastReport.IsZero() || now.Sub(s.lastReport) > p.StaleTimeout(s.target)
	s.lastReport = now
	s.reports++

	m.disableBoosts(s.id)
	tag := s.tag.String()
	for _, d := range ds {
		metrics.WorkDurations.WithLabelValues(tag).Observe(d.Duration().Seconds())
	}

	if !p.PidOn {
		m.recordFrames(s.id, domain.JankLight, 0, now)
		s.setControlVariable(p.UclampMinHigh, true)
		return stale, nil
	}

	h := pid.Heuristic{}
	if s.tracker != nil && p.HeuristicBoostOn() {
		s.tracker.Add(ds, s.target)
		// Frames count toward the level in force when they were reported.
		m.recordFrames(s.id, s.tracker.Level(), len(ds), now)
		metrics.JankFrames.WithLabelValues(s.tracker.Level().String()).Add(float64(len(ds)))
		s.tracker.Update(s.target, p.HeuristicBoost)
		h = pid.Heuristic{Enabled: true, Level: s.tracker.Level(), Missed: s.tracker.MissedCycles()}
	} else {
		m.recordFrames(s.id, domain.JankLight, 0, now)
	}

	terms := s.pid.Step(p, s.target, ds, h)
	floor, ceiling := pid.Bounds(p, h)
	next := pid.Next(s.cv, terms.Output(), floor, ceiling)
	m.log.V(logging.TRACE).Info("pid", "session", s.idString,
		"p", terms.P, "i", terms.I, "d", terms.D, "cv", next, "floor", floor, "ceiling", ceiling)
	s.setControlVariable(next, true)
	metrics.ControlVariable.WithLabelValues(tag).Observe(float64(next))

	if p.GpuBoostOn() {
		s.voteGpuCapacity(ds[len(ds)-1], now)
	}
	return stale, nil
}

// voteGpuCapacity casts the steady-state GPU vote from the last report's
// GPU time. Needs s.mu.
func (s *Session) voteGpuCapacity(last domain.WorkDuration, now time.Time) {
	if last.GPUDurationNanos <= 0 {
		return
	}
	freq, ok := s.m.sink.GpuFrequency()
	if !ok {
		return
	}
	c := min(domain.GpuCapacityFor(last, s.target, freq), s.profile.GpuBoost.CapacityMax)
	s.m.voteSetGpu(s.id, domain.VoteGPUCapacity, c, now, s.validity())
}

// SendHint applies a one-shot hint and forwards it to the hint controller
// when the controller knows it.
func (s *Session) SendHint(h domain.SessionHint) error {
	forward, err := s.sendHint(h)
	if err != nil {
		return s.m.reject("hint", err)
	}
	if forward {
		if err := s.m.hints.DoHint(h.String()); err != nil {
			s.m.log.V(logging.VERBOSE).Info("forward hint", "hint", h.String(), "err", err.Error())
		}
	}
	return nil
}

func (s *Session) sendHint(h domain.SessionHint) (forward bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return false, domain.ErrSessionClosed
	case !h.Valid():
		return false, domain.ErrUnknownHint
	case s.target == 0:
		return false, domain.ErrTargetNotSet
	}

	p := s.profile
	m := s.m
	now := m.clock.Now()
	switch h {
	case domain.HintCPULoadUp:
		s.setControlVariable(s.cv, true)
		m.voteSet(s.id, domain.VoteCPULoadUp,
			domain.UclampRange{Min: p.UclampMinLoadUp, Max: domain.UclampMax}, now, 2*s.target)
	case domain.HintCPULoadDown:
		s.setControlVariable(p.UclampMinLow, true)
	case domain.HintCPULoadReset:
		s.setControlVariable(max(p.UclampMinInit, s.cv), false)
		m.voteSet(s.id, domain.VoteCPULoadReset,
			domain.UclampRange{Min: p.UclampMinLoadReset, Max: domain.UclampMax}, now, p.StaleTimeout(s.target)/2)
	case domain.HintCPULoadResume:
		m.voteSet(s.id, domain.VoteCPULoadResume,
			domain.UclampRange{Min: s.cv, Max: domain.UclampMax}, now, p.StaleTimeout(s.target)/2)
	case domain.HintPowerEfficiency:
		s.setPowerEfficient(true)
	case domain.HintGPULoadUp:
		if p.GpuBoost != nil {
			m.voteSetGpu(s.id, domain.VoteGPULoadUp, p.GpuBoost.LoadUpHeadroom, now, s.target)
		}
	case domain.HintGPULoadDown, domain.HintGPULoadReset:
		// Accepted; the next report settles GPU capacity.
	}

	if m.hints == nil {
		return false, nil
	}
	supported, ok := s.supported[h]
	if !ok {
		supported = m.hints.IsHintSupported(h.String())
		s.supported[h] = supported
	}
	return supported, nil
}

// SetMode toggles a persistent session mode.
func (s *Session) SetMode(mode domain.SessionMode, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.m.reject("set_mode", domain.ErrSessionClosed)
	}
	if mode != domain.ModePowerEfficiency {
		return s.m.reject("set_mode", domain.ErrUnknownMode)
	}
	s.setPowerEfficient(enabled)
	return nil
}

// setPowerEfficient needs s.mu.
func (s *Session) setPowerEfficient(enabled bool) {
	if s.efficient == enabled {
		return
	}
	s.efficient = enabled
	s.m.setPowerEfficient(s.id, enabled)
}

// SetThreads replaces the session's threads and restarts the control
// variable from the profile's initial value.
func (s *Session) SetThreads(tids []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.m.reject("set_threads", domain.ErrSessionClosed)
	}
	if len(tids) == 0 {
		return s.m.reject("set_threads", domain.ErrEmptyThreads)
	}
	s.threads = dedupThreads(tids)
	if !s.active {
		// Applied on resume.
		s.cv = s.profile.UclampMinInit
		return nil
	}
	s.m.setThreads(s.id, s.threads)
	s.setControlVariable(s.profile.UclampMinInit, true)
	return nil
}

// Pause stops resource control for the session until Resume.
func (s *Session) Pause() error {
	if err := s.pause(); err != nil {
		return s.m.reject("pause", err)
	}
	metrics.SessionsActive.WithLabelValues(s.tag.String()).Dec()
	s.m.updateUniversalBoost()
	return nil
}

func (s *Session) pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if !s.active {
		return domain.ErrSessionPaused
	}
	s.active = false
	s.threads = s.m.pause(s.id)
	return nil
}

// Resume restores resource control after Pause.
func (s *Session) Resume() error {
	if err := s.resume(); err != nil {
		return s.m.reject("resume", err)
	}
	metrics.SessionsActive.WithLabelValues(s.tag.String()).Inc()
	s.m.updateUniversalBoost()
	return nil
}

func (s *Session) resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.active {
		return domain.ErrSessionAlreadyActive
	}
	s.active = true
	s.m.resume(s.id, s.threads)
	s.setControlVariable(s.cv, true)
	return nil
}

// Close revokes every vote, releases the threads and unregisters the
// session. A second Close fails.
func (s *Session) Close() error {
	h, err := s.close()
	if err != nil {
		return s.m.reject("close", err)
	}
	s.m.unregisterSession(s.id)
	s.m.recordHistory(h)
	s.m.updateUniversalBoost()
	return nil
}

func (s *Session) close() (domain.SessionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.SessionHistory{}, domain.ErrSessionClosed
	}
	s.closed = true
	wasActive := s.active
	s.active = false
	if s.unregister != nil {
		s.unregister()
		s.unregister = nil
	}

	e, _ := s.m.remove(s.id)
	tag := s.tag.String()
	metrics.SessionsClosed.WithLabelValues(tag).Inc()
	if wasActive {
		metrics.SessionsActive.WithLabelValues(tag).Dec()
	}
	s.m.log.V(logging.VERBOSE).Info("session closed", "session", s.idString, "reports", s.reports)

	return domain.SessionHistory{
		SessionID:      s.id,
		IDString:       s.idString,
		TGID:           s.tgid,
		UID:            s.uid,
		Tag:            tag,
		Profile:        s.profile.Name,
		CreatedAt:      s.createdAt,
		ClosedAt:       s.m.clock.Now(),
		Target:         s.target,
		Reports:        s.reports,
		LightFrames:    e.HBoost.Light,
		ModerateFrames: e.HBoost.Moderate,
		SevereFrames:   e.HBoost.Severe,
	}, nil
}

// Config returns a snapshot of the session state.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Config{
		ID:              s.id,
		IDString:        s.idString,
		TGID:            s.tgid,
		UID:             s.uid,
		Tag:             s.tag.String(),
		Profile:         s.profile.Name,
		TargetNanos:     s.target.Nanoseconds(),
		Threads:         slices.Clone(s.threads),
		ControlVariable: s.cv,
		Active:          s.active && !s.closed,
		PowerEfficient:  s.efficient,
		Reports:         s.reports,
		CreatedAt:       s.createdAt,
		LastReport:      s.lastReport,
		Integral:        s.pid.Integral,
		PreviousError:   s.pid.PreviousError,
	}
	if c.Active {
		if live, ok := s.m.threadsOf(s.id); ok {
			c.Threads = live
		}
	}
	if s.tracker != nil {
		c.JankyLevel = s.tracker.Level().String()
		r := s.tracker.Records()
		js := &JankStats{Records: r.NumRecords(), MissedCycles: r.MissedCycles()}
		if d, ok := r.MaxDuration(); ok {
			js.MaxNanos = d.Nanoseconds()
		}
		if d, ok := r.AvgDuration(); ok {
			js.AvgNanos = d.Nanoseconds()
		}
		c.Heuristic = js
	}
	if len(s.supported) > 0 {
		c.HintSupport = make(map[string]bool, len(s.supported))
		for h, ok := range s.supported {
			c.HintSupport[h.String()] = ok
		}
	}
	return c
}

// ─── Internals ──────────────────────────────────────────────────────────────

// setControlVariable stores cv and, with vote set, re-casts the default vote
// around it. Needs s.mu.
func (s *Session) setControlVariable(cv int, vote bool) {
	s.cv = cv
	if !vote {
		return
	}
	s.m.voteSet(s.id, domain.VoteCPUDefault,
		domain.UclampRange{Min: cv, Max: domain.UclampMax}, s.m.clock.Now(), s.validity())
}

// validity is how long a PID vote stays live. Needs s.mu.
func (s *Session) validity() time.Duration {
	return max(s.profile.StaleTimeout(s.target), 2*s.profile.ReportingRateLimit())
}

// onProfileUpdate swaps the profile of a live session. Votes already cast
// keep their windows.
func (s *Session) onProfileUpdate(p *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || p == nil {
		return
	}
	s.profile = p
	switch {
	case p.HeuristicBoostOn() && s.tracker == nil:
		s.tracker = jank.NewTracker(p.HeuristicBoost)
	case !p.HeuristicBoostOn():
		s.tracker = nil
	}
	s.m.setProfile(s.id, p)
	s.m.log.V(logging.VERBOSE).Info("session profile updated", "session", s.idString, "profile", p.Name)
}

func isClosed(err error) bool {
	return errors.Is(err, domain.ErrSessionClosed)
}
