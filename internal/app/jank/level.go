package jank

import (
	"time"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// NextLevel moves the janky level state machine one step.
//
// A low frame rate always means LIGHT. Below the moderate threshold the
// level stays LIGHT unless the previous level was already elevated and the
// max/avg duration ratio is still at or above the release bound. Between the
// thresholds the level is MODERATE; at or above the severe threshold SEVERE.
func NextLevel(old domain.JankyLevel, missed int, maxToAvg float64, lowFPS bool, cfg *domain.HeuristicBoostConfig) domain.JankyLevel {
	if lowFPS {
		return domain.JankLight
	}
	switch {
	case missed < cfg.ModerateJankThreshold:
		if old == domain.JankLight || maxToAvg < cfg.OffMaxAvgDurRatio {
			return domain.JankLight
		}
		return domain.JankModerate
	case missed < cfg.SevereJankThreshold:
		return domain.JankModerate
	default:
		return domain.JankSevere
	}
}

// Factor is how far missed sits between the moderate and severe thresholds,
// 0 below the moderate threshold. It is not clamped above 1.
func Factor(missed int, cfg *domain.HeuristicBoostConfig) float64 {
	if missed < cfg.ModerateJankThreshold {
		return 0
	}
	return float64(missed-cfg.ModerateJankThreshold) /
		float64(cfg.SevereJankThreshold-cfg.ModerateJankThreshold)
}

// Tracker combines a record window with the level state machine.
type Tracker struct {
	records *Records
	level   domain.JankyLevel
	missed  int
}

// NewTracker creates a tracker sized from cfg.
func NewTracker(cfg *domain.HeuristicBoostConfig) *Tracker {
	return &Tracker{records: NewRecords(cfg.MaxRecordsNum, cfg.JankCheckTimeFactor)}
}

// Level returns the current janky level.
func (t *Tracker) Level() domain.JankyLevel { return t.level }

// MissedCycles returns the missed-cycle count seen at the last update.
func (t *Tracker) MissedCycles() int { return t.missed }

// Records exposes the underlying window.
func (t *Tracker) Records() *Records { return t.records }

// Add appends reported durations to the window without re-evaluating the
// level.
func (t *Tracker) Add(ds []domain.WorkDuration, target time.Duration) {
	t.records.AddDurations(ds, target)
}

// Update re-evaluates the level from the current window. target stands in
// for the average when the average is zero.
func (t *Tracker) Update(target time.Duration, cfg *domain.HeuristicBoostConfig) domain.JankyLevel {
	maxD, ok := t.records.MaxDuration()
	if !ok {
		return t.level
	}
	avgD, _ := t.records.AvgDuration()

	var ratio float64
	switch {
	case avgD > 0:
		ratio = float64(maxD) / float64(avgD)
	case target > 0:
		ratio = float64(maxD) / float64(target)
	}

	missed := t.records.MissedCycles()
	lowFPS := t.records.IsLowFrameRate(cfg.LowFrameRateThreshold)
	t.level = NextLevel(t.level, missed, ratio, lowFPS, cfg)
	t.missed = missed
	return t.level
}
