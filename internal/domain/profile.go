package domain

import (
	"fmt"
	"time"
)

// Profile is an immutable bundle of ADPF tunables. Sessions share profiles by
// pointer; a profile switch swaps the pointer, never the contents.
type Profile struct {
	Name string `toml:"name" json:"name"`

	PidOn    bool    `toml:"pid_on" json:"pid_on"`
	PidPo    float64 `toml:"pid_po" json:"pid_po"`
	PidPu    float64 `toml:"pid_pu" json:"pid_pu"`
	PidI     float64 `toml:"pid_i" json:"pid_i"`
	PidIInit int64   `toml:"pid_i_init" json:"pid_i_init"`
	PidIHigh int64   `toml:"pid_i_high" json:"pid_i_high"`
	PidILow  int64   `toml:"pid_i_low" json:"pid_i_low"`
	PidDo    float64 `toml:"pid_do" json:"pid_do"`
	PidDu    float64 `toml:"pid_du" json:"pid_du"`

	UclampMinOn        bool `toml:"uclamp_min_on" json:"uclamp_min_on"`
	UclampMinInit      int  `toml:"uclamp_min_init" json:"uclamp_min_init"`
	UclampMinHigh      int  `toml:"uclamp_min_high" json:"uclamp_min_high"`
	UclampMinLow       int  `toml:"uclamp_min_low" json:"uclamp_min_low"`
	UclampMinLoadUp    int  `toml:"uclamp_min_load_up" json:"uclamp_min_load_up"`
	UclampMinLoadReset int  `toml:"uclamp_min_load_reset" json:"uclamp_min_load_reset"`

	SamplingWindowP int `toml:"sampling_window_p" json:"sampling_window_p"`
	SamplingWindowI int `toml:"sampling_window_i" json:"sampling_window_i"`
	SamplingWindowD int `toml:"sampling_window_d" json:"sampling_window_d"`

	ReportingRateLimitNs int64   `toml:"reporting_rate_limit_ns" json:"reporting_rate_limit_ns"`
	TargetTimeFactor     float64 `toml:"target_time_factor" json:"target_time_factor"`
	StaleTimeFactor      float64 `toml:"stale_time_factor" json:"stale_time_factor"`

	GpuBoost       *GpuBoostConfig       `toml:"gpu_boost" json:"gpu_boost,omitempty"`
	HeuristicBoost *HeuristicBoostConfig `toml:"heuristic_boost" json:"heuristic_boost,omitempty"`
	Efficiency     *EfficiencyConfig     `toml:"efficiency" json:"efficiency,omitempty"`
}

// GpuBoostConfig enables GPU capacity votes.
type GpuBoostConfig struct {
	CapacityMax    Cycles `toml:"capacity_max" json:"capacity_max"`
	LoadUpHeadroom Cycles `toml:"load_up_headroom" json:"load_up_headroom"`
}

// HeuristicBoostConfig tunes the jank classifier and the widened uclamp
// bounds it unlocks.
type HeuristicBoostConfig struct {
	ModerateJankThreshold int         `toml:"moderate_jank_threshold" json:"moderate_jank_threshold"`
	SevereJankThreshold   int         `toml:"severe_jank_threshold" json:"severe_jank_threshold"`
	OffMaxAvgDurRatio     float64     `toml:"off_max_avg_dur_ratio" json:"off_max_avg_dur_ratio"`
	SevereJankPidPu       float64     `toml:"severe_jank_pid_pu" json:"severe_jank_pid_pu"`
	UclampMinCeiling      UclampRange `toml:"uclamp_min_ceiling" json:"uclamp_min_ceiling"`
	UclampMinFloor        UclampRange `toml:"uclamp_min_floor" json:"uclamp_min_floor"`
	JankCheckTimeFactor   float64     `toml:"jank_check_time_factor" json:"jank_check_time_factor"`
	LowFrameRateThreshold int         `toml:"low_frame_rate_threshold" json:"low_frame_rate_threshold"`
	MaxRecordsNum         int         `toml:"max_records_num" json:"max_records_num"`
}

// EfficiencyConfig caps the uclamp max of threads whose sessions all prefer
// power efficiency.
type EfficiencyConfig struct {
	UclampMaxBase   int `toml:"uclamp_max_base" json:"uclamp_max_base"`
	UclampMaxOffset int `toml:"uclamp_max_offset" json:"uclamp_max_offset"`
}

// HeuristicBoostOn reports whether the jank classifier runs for this profile.
func (p *Profile) HeuristicBoostOn() bool { return p.HeuristicBoost != nil }

// GpuBoostOn reports whether GPU capacity votes are cast.
func (p *Profile) GpuBoostOn() bool { return p.GpuBoost != nil && p.GpuBoost.CapacityMax > 0 }

// PidIInitDivI is the initial integral term expressed before the I gain.
func (p *Profile) PidIInitDivI() int64 { return p.divI(p.PidIInit) }

// PidIHighDivI is the integral upper clamp expressed before the I gain.
func (p *Profile) PidIHighDivI() int64 { return p.divI(p.PidIHigh) }

// PidILowDivI is the integral lower clamp expressed before the I gain.
func (p *Profile) PidILowDivI() int64 { return p.divI(p.PidILow) }

func (p *Profile) divI(v int64) int64 {
	if p.PidI == 0 {
		return 0
	}
	return int64(float64(v) / p.PidI)
}

// StaleTimeout is target scaled by the staleness factor.
func (p *Profile) StaleTimeout(target time.Duration) time.Duration {
	return time.Duration(float64(target) * p.StaleTimeFactor)
}

// ReportingRateLimit returns the preferred reporting interval.
func (p *Profile) ReportingRateLimit() time.Duration {
	return time.Duration(p.ReportingRateLimitNs)
}

// ApplyDefaults fills fields whose default derives from other fields.
func (p *Profile) ApplyDefaults() {
	if p.UclampMinLoadUp == 0 {
		p.UclampMinLoadUp = p.UclampMinHigh
	}
	if p.UclampMinLoadReset == 0 {
		p.UclampMinLoadReset = p.UclampMinHigh
	}
	if p.TargetTimeFactor == 0 {
		p.TargetTimeFactor = 1.0
	}
}

// Validate checks a single profile.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrProfileInvalid)
	}
	if p.UclampMinLow > p.UclampMinHigh {
		return fmt.Errorf("%w: %s: uclamp_min_low %d > uclamp_min_high %d",
			ErrProfileInvalid, p.Name, p.UclampMinLow, p.UclampMinHigh)
	}
	if p.UclampMinHigh > UclampMax || p.UclampMinLow < UclampMin {
		return fmt.Errorf("%w: %s: uclamp bounds outside [%d,%d]",
			ErrProfileInvalid, p.Name, UclampMin, UclampMax)
	}
	if p.SamplingWindowP < 0 || p.SamplingWindowI < 0 || p.SamplingWindowD < 0 {
		return fmt.Errorf("%w: %s: negative sampling window", ErrProfileInvalid, p.Name)
	}
	if p.StaleTimeFactor <= 0 || p.TargetTimeFactor <= 0 {
		return fmt.Errorf("%w: %s: time factors must be positive", ErrProfileInvalid, p.Name)
	}
	if h := p.HeuristicBoost; h != nil {
		switch {
		case h.ModerateJankThreshold <= 0 || h.SevereJankThreshold <= h.ModerateJankThreshold:
			return fmt.Errorf("%w: %s: need 0 < moderate_jank_threshold < severe_jank_threshold",
				ErrProfileInvalid, p.Name)
		case h.MaxRecordsNum <= 0:
			return fmt.Errorf("%w: %s: max_records_num must be positive", ErrProfileInvalid, p.Name)
		case h.JankCheckTimeFactor <= 0:
			return fmt.Errorf("%w: %s: jank_check_time_factor must be positive", ErrProfileInvalid, p.Name)
		case h.OffMaxAvgDurRatio <= 0:
			return fmt.Errorf("%w: %s: off_max_avg_dur_ratio must be positive", ErrProfileInvalid, p.Name)
		}
	}
	if g := p.GpuBoost; g != nil && g.CapacityMax < 0 {
		return fmt.Errorf("%w: %s: negative gpu capacity_max", ErrProfileInvalid, p.Name)
	}
	return nil
}

// ValidateProfiles checks every profile and that names are unique.
func ValidateProfiles(profiles []Profile) error {
	if len(profiles) == 0 {
		return ErrAdpfUnsupported
	}
	seen := make(map[string]bool, len(profiles))
	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return err
		}
		if seen[profiles[i].Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrProfileInvalid, profiles[i].Name)
		}
		seen[profiles[i].Name] = true
	}
	return nil
}

// DefaultProfile returns the 60 fps profile the daemon ships with.
func DefaultProfile() Profile {
	return Profile{
		Name:                 "REFRESH_60FPS",
		PidOn:                true,
		PidPo:                2.0,
		PidPu:                1.0,
		PidI:                 0.0,
		PidIInit:             200,
		PidIHigh:             512,
		PidILow:              -30,
		PidDo:                500.0,
		PidDu:                0.0,
		UclampMinOn:          true,
		UclampMinInit:        162,
		UclampMinHigh:        480,
		UclampMinLow:         2,
		UclampMinLoadUp:      480,
		UclampMinLoadReset:   480,
		SamplingWindowP:      1,
		SamplingWindowI:      0,
		SamplingWindowD:      1,
		ReportingRateLimitNs: 166666660,
		TargetTimeFactor:     1.0,
		StaleTimeFactor:      15.0,
		GpuBoost: &GpuBoostConfig{
			CapacityMax:    25000,
			LoadUpHeadroom: 0,
		},
		HeuristicBoost: &HeuristicBoostConfig{
			ModerateJankThreshold: 2,
			SevereJankThreshold:   8,
			OffMaxAvgDurRatio:     4.0,
			SevereJankPidPu:       0.5,
			UclampMinCeiling:      UclampRange{Min: 480, Max: 800},
			UclampMinFloor:        UclampRange{Min: 200, Max: 400},
			JankCheckTimeFactor:   1.2,
			LowFrameRateThreshold: 25,
			MaxRecordsNum:         300,
		},
		Efficiency: &EfficiencyConfig{
			UclampMaxBase:   500,
			UclampMaxOffset: 200,
		},
	}
}
