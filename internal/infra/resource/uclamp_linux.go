//go:build linux

package resource

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// setUclamp sets the uclamp range of tid via sched_setattr, keeping its
// policy and priority.
func setUclamp(tid int32, r domain.UclampRange) error {
	attr := unix.SchedAttr{
		Flags: unix.SCHED_FLAG_KEEP_ALL |
			unix.SCHED_FLAG_UTIL_CLAMP_MIN |
			unix.SCHED_FLAG_UTIL_CLAMP_MAX,
		Util_min: uint32(r.Min),
		Util_max: uint32(r.Max),
	}
	err := unix.SchedSetAttr(int(tid), &attr, 0)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("tid %d: %w", tid, domain.ErrThreadGone)
	default:
		return fmt.Errorf("sched_setattr tid %d: %w", tid, err)
	}
}
