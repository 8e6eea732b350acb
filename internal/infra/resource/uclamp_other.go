//go:build !linux

package resource

import (
	"fmt"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

// setUclamp is Linux only.
func setUclamp(tid int32, _ domain.UclampRange) error {
	return fmt.Errorf("uclamp tid %d: %w", tid, domain.ErrUnsupported)
}
