// Package pid converts reported work durations into the next uclamp.min
// control variable of a session.
package pid

import (
	"time"

	"github.com/yaap/hardware-google-pixel/internal/app/jank"
	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// nsTo100us is the fixed-point time unit of the controller.
func nsTo100us(ns int64) int64 { return ns / 100000 }

// Heuristic is the jank state the controller blends its gains with. The
// zero value means heuristic boost is off.
type Heuristic struct {
	Enabled bool
	Level   domain.JankyLevel
	Missed  int
}

// Controller carries the integral and derivative state of one session.
type Controller struct {
	Integral      int64
	PreviousError int64
}

// New creates a controller seeded from p.
func New(p *domain.Profile) *Controller {
	return &Controller{Integral: p.PidIInitDivI()}
}

// Terms is the breakdown of one controller step.
type Terms struct {
	P, I, D int64
}

// Output returns P+I+D.
func (t Terms) Output() int64 { return t.P + t.I + t.D }

// Step consumes one batch of reports and returns the controller output.
func (c *Controller) Step(p *domain.Profile, target time.Duration, ds []domain.WorkDuration, h Heuristic) Terms {
	length := int64(len(ds))
	if length == 0 || target <= 0 {
		return Terms{}
	}
	pStart := windowStart(p.SamplingWindowP, length)
	iStart := windowStart(p.SamplingWindowI, length)
	dStart := windowStart(p.SamplingWindowD, length)
	dt := nsTo100us(target.Nanoseconds())
	if dt == 0 {
		dt = 1
	}

	var errSum, derivativeSum int64
	for i := min(pStart, iStart, dStart); i < length; i++ {
		e := nsTo100us(ds[i].DurationNanos - target.Nanoseconds())
		if i >= dStart {
			derivativeSum += e - c.PreviousError
		}
		if i >= pStart {
			errSum += e
		}
		if i >= iStart {
			c.Integral += e * dt
			c.Integral = min(p.PidIHighDivI(), c.Integral)
			c.Integral = max(p.PidILowDivI(), c.Integral)
		}
		c.PreviousError = e
	}

	pu := underGain(p, h)
	var t Terms
	if errSum > 0 {
		t.P = int64(p.PidPo * float64(errSum) / float64(length-pStart))
	} else {
		t.P = int64(pu * float64(errSum) / float64(length-pStart))
	}
	t.I = int64(p.PidI * float64(c.Integral))
	dGain := p.PidDu
	if derivativeSum > 0 {
		dGain = p.PidDo
	}
	t.D = int64(dGain * float64(derivativeSum) / float64(dt) / float64(length-dStart))
	return t
}

func windowStart(window int, length int64) int64 {
	if window == 0 || int64(window) > length {
		return 0
	}
	return length - int64(window)
}

// underGain is the undershoot P gain, blended toward the severe jank gain
// as the session gets jankier.
func underGain(p *domain.Profile, h Heuristic) float64 {
	if !h.Enabled || p.HeuristicBoost == nil {
		return p.PidPu
	}
	severe := min(p.HeuristicBoost.SevereJankPidPu, p.PidPu)
	switch h.Level {
	case domain.JankModerate:
		return p.PidPu + jank.Factor(h.Missed, p.HeuristicBoost)*(severe-p.PidPu)
	case domain.JankSevere:
		return severe
	default:
		return p.PidPu
	}
}

// Bounds returns the floor and ceiling of the control variable. Heuristic
// boost widens both as the jank level rises.
func Bounds(p *domain.Profile, h Heuristic) (floor, ceiling int) {
	floor, ceiling = p.UclampMinLow, p.UclampMinHigh
	hb := p.HeuristicBoost
	if !h.Enabled || hb == nil {
		return floor, ceiling
	}
	minFloor := max(p.UclampMinLow, hb.UclampMinFloor.Min)
	maxFloor := max(p.UclampMinLow, hb.UclampMinFloor.Max)
	minCeiling := max(p.UclampMinHigh, hb.UclampMinCeiling.Min)
	maxCeiling := max(p.UclampMinHigh, hb.UclampMinCeiling.Max)
	switch h.Level {
	case domain.JankModerate:
		f := jank.Factor(h.Missed, hb)
		floor = minFloor + int(float64(maxFloor-minFloor)*f)
		ceiling = minCeiling + int(float64(maxCeiling-minCeiling)*f)
	case domain.JankSevere:
		floor, ceiling = maxFloor, maxCeiling
	}
	return floor, ceiling
}

// Next clamps cur+output into [floor, ceiling]. The floor wins when the
// bounds cross.
func Next(cur int, output int64, floor, ceiling int) int {
	next := min(ceiling, cur+int(output))
	return max(floor, next)
}
