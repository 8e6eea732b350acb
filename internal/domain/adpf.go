// Package domain holds the ADPF session types shared by every layer.
// Nothing in here performs I/O.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Uclamp bounds accepted by the kernel.
const (
	UclampMin = 0
	UclampMax = 1024
)

// AppUIDStart is the first uid reserved for applications. Sessions owned by
// an app uid count as foreground work for universal boost suppression.
const AppUIDStart = 10000

// DefaultBoostHintName is the hint that disables the generic top-app boost
// while a foreground ADPF session is active.
const DefaultBoostHintName = "ADPF_DISABLE_TA_BOOST"

// ─── Vote Kinds ─────────────────────────────────────────────────────────────

// VoteKind identifies one vote slot within a session's ledger.
type VoteKind int

const (
	VoteCPUDefault VoteKind = iota
	VoteCPULoadUp
	VoteCPULoadReset
	VoteCPULoadResume
	VotePowerEfficiency
	VoteGPULoadUp
	VoteGPULoadDown
	VoteGPULoadReset
	VoteGPUCapacity
	voteKindCount
)

// NumVoteKinds is the number of vote slots per session.
const NumVoteKinds = int(voteKindCount)

var voteKindNames = [...]string{
	VoteCPUDefault:      "CPU_VOTE_DEFAULT",
	VoteCPULoadUp:       "CPU_LOAD_UP",
	VoteCPULoadReset:    "CPU_LOAD_RESET",
	VoteCPULoadResume:   "CPU_LOAD_RESUME",
	VotePowerEfficiency: "VOTE_POWER_EFFICIENCY",
	VoteGPULoadUp:       "GPU_LOAD_UP",
	VoteGPULoadDown:     "GPU_LOAD_DOWN",
	VoteGPULoadReset:    "GPU_LOAD_RESET",
	VoteGPUCapacity:     "GPU_CAPACITY",
}

// String returns the vote kind name.
func (k VoteKind) String() string {
	if k < 0 || k >= voteKindCount {
		return "INVALID_VOTE"
	}
	return voteKindNames[k]
}

// Valid reports whether k names a real vote slot.
func (k VoteKind) Valid() bool { return k >= 0 && k < voteKindCount }

// IsGPU reports whether the vote carries a GPU capacity instead of a uclamp range.
func (k VoteKind) IsGPU() bool { return k >= VoteGPULoadUp && k < voteKindCount }

// BoostVoteKinds are cleared on every work duration report so that only the
// PID output and the steady-state GPU vote survive a report.
var BoostVoteKinds = []VoteKind{
	VoteCPULoadUp,
	VoteCPULoadReset,
	VoteCPULoadResume,
	VotePowerEfficiency,
	VoteGPULoadUp,
	VoteGPULoadReset,
}

// ─── Session Tags ───────────────────────────────────────────────────────────

// SessionTag classifies the workload a session belongs to. Profiles are
// looked up by tag.
type SessionTag int

const (
	TagOther SessionTag = iota
	TagSurfaceFlinger
	TagHWUI
	TagGame
	TagApp
)

var sessionTagNames = map[SessionTag]string{
	TagOther:          "OTHER",
	TagSurfaceFlinger: "SURFACEFLINGER",
	TagHWUI:           "HWUI",
	TagGame:           "GAME",
	TagApp:            "APP",
}

// SessionTags lists every known tag in declaration order.
var SessionTags = []SessionTag{TagOther, TagSurfaceFlinger, TagHWUI, TagGame, TagApp}

func (t SessionTag) String() string {
	if s, ok := sessionTagNames[t]; ok {
		return s
	}
	return "OTHER"
}

// ParseSessionTag maps a tag name to its SessionTag. An empty name is TagOther.
func ParseSessionTag(s string) (SessionTag, error) {
	if s == "" {
		return TagOther, nil
	}
	for tag, name := range sessionTagNames {
		if strings.EqualFold(name, s) {
			return tag, nil
		}
	}
	return TagOther, fmt.Errorf("%w: %q", ErrUnknownTag, s)
}

// ─── Hints & Modes ──────────────────────────────────────────────────────────

// SessionHint is a one-shot signal a client sends about upcoming load.
type SessionHint int

const (
	HintOther SessionHint = iota // unknown; rejected at the boundary
	HintCPULoadUp
	HintCPULoadDown
	HintCPULoadReset
	HintCPULoadResume
	HintPowerEfficiency
	HintGPULoadUp
	HintGPULoadDown
	HintGPULoadReset
)

var sessionHintNames = map[SessionHint]string{
	HintCPULoadUp:       "CPU_LOAD_UP",
	HintCPULoadDown:     "CPU_LOAD_DOWN",
	HintCPULoadReset:    "CPU_LOAD_RESET",
	HintCPULoadResume:   "CPU_LOAD_RESUME",
	HintPowerEfficiency: "POWER_EFFICIENCY",
	HintGPULoadUp:       "GPU_LOAD_UP",
	HintGPULoadDown:     "GPU_LOAD_DOWN",
	HintGPULoadReset:    "GPU_LOAD_RESET",
}

// String returns the hint name. The name doubles as the hint forwarded to
// the HintController after the session applied it.
func (h SessionHint) String() string {
	if s, ok := sessionHintNames[h]; ok {
		return s
	}
	return "OTHER"
}

// Valid reports whether h is a known hint other than HintOther.
func (h SessionHint) Valid() bool {
	_, ok := sessionHintNames[h]
	return ok
}

// ParseSessionHint maps a hint name to its SessionHint.
func ParseSessionHint(s string) (SessionHint, error) {
	for h, name := range sessionHintNames {
		if strings.EqualFold(name, s) {
			return h, nil
		}
	}
	return HintOther, fmt.Errorf("%w: %q", ErrUnknownHint, s)
}

// SessionMode is a persistent per-session preference toggled by setMode.
type SessionMode int

const (
	ModeOther SessionMode = iota
	ModePowerEfficiency
)

func (m SessionMode) String() string {
	if m == ModePowerEfficiency {
		return "POWER_EFFICIENCY"
	}
	return "OTHER"
}

// ParseSessionMode maps a mode name to its SessionMode.
func ParseSessionMode(s string) (SessionMode, error) {
	if strings.EqualFold(s, "POWER_EFFICIENCY") {
		return ModePowerEfficiency, nil
	}
	return ModeOther, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ─── Jank ───────────────────────────────────────────────────────────────────

// JankyLevel is the heuristic classification of recent frame behavior.
type JankyLevel int

const (
	JankLight JankyLevel = iota
	JankModerate
	JankSevere
)

func (l JankyLevel) String() string {
	switch l {
	case JankLight:
		return "LIGHT"
	case JankModerate:
		return "MODERATE"
	case JankSevere:
		return "SEVERE"
	default:
		return "UNKNOWN"
	}
}

// ─── Values ─────────────────────────────────────────────────────────────────

// UclampRange is a utilization clamp pair applied to one thread.
type UclampRange struct {
	Min int `toml:"min" json:"min"`
	Max int `toml:"max" json:"max"`
}

// DefaultUclampRange leaves a thread unclamped.
var DefaultUclampRange = UclampRange{Min: UclampMin, Max: UclampMax}

// Bounded clamps Min into [UclampMin, UclampMax] and Max into [Min, UclampMax],
// which is what the kernel accepts.
func (r UclampRange) Bounded() UclampRange {
	r.Min = min(max(UclampMin, r.Min), UclampMax)
	r.Max = min(max(r.Max, r.Min), UclampMax)
	return r
}

func (r UclampRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

// Cycles is a GPU capacity in thousands of cycles. One unit is one
// millisecond of work at 1 MHz; capacity_max and load_up_headroom use it too.
type Cycles int64

// Frequency is a GPU frequency in kHz.
type Frequency int64

// WorkDuration is one reported unit of work. All values are nanoseconds.
type WorkDuration struct {
	TimeStampNanos       int64 `json:"timestamp_ns"`
	WorkPeriodStartNanos int64 `json:"work_period_start_ns"`
	DurationNanos        int64 `json:"duration_ns"`
	CPUDurationNanos     int64 `json:"cpu_duration_ns"`
	GPUDurationNanos     int64 `json:"gpu_duration_ns"`
}

// Duration returns the total work duration.
func (w WorkDuration) Duration() time.Duration { return time.Duration(w.DurationNanos) }

// IsAppUID reports whether uid belongs to an application.
func IsAppUID(uid int32) bool { return uid >= AppUIDStart }

// SessionIDString builds the "<tgid>-<uid>-<id>-<TAG>" identifier used in
// logs and dumps.
func SessionIDString(tgid, uid int32, id int64, tag SessionTag) string {
	return fmt.Sprintf("%d-%d-%d-%s", tgid, uid, id, tag)
}

// GpuCapacityFor estimates the extra GPU capacity needed for the GPU part of
// w to fit into target at frequency freq. Work that already fits needs none.
func GpuCapacityFor(w WorkDuration, target time.Duration, freq Frequency) Cycles {
	gpu := w.GPUDurationNanos
	cpu := w.CPUDurationNanos
	if cpu == 0 {
		cpu = max(w.DurationNanos-gpu, 0)
	}
	gpuTarget := target.Nanoseconds() - cpu
	excess := gpu - gpuTarget
	if excess <= 0 {
		return 0
	}
	// ns × kHz / 1e9 = thousands of cycles.
	return Cycles(excess * int64(freq) / int64(time.Second))
}
