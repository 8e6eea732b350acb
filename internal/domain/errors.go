package domain

import (
	"errors"
	"fmt"
)

// ─── Error Categories ───────────────────────────────────────────────────────
// Every rejected call wraps one of these so transports can map them to
// status codes with errors.Is.

var (
	ErrIllegalState    = errors.New("illegal state")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported")
	ErrNotFound        = errors.New("not found")
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Session lifecycle
	ErrSessionClosed        = fmt.Errorf("%w: session is closed", ErrIllegalState)
	ErrSessionNotFound      = fmt.Errorf("%w: session", ErrNotFound)
	ErrTargetNotSet         = fmt.Errorf("%w: target duration not set, call updateTargetWorkDuration first", ErrIllegalState)
	ErrSessionPaused        = fmt.Errorf("%w: session is paused", ErrIllegalState)
	ErrSessionAlreadyActive = fmt.Errorf("%w: session is already active", ErrIllegalState)

	// Arguments
	ErrNonPositiveDuration = fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	ErrNegativeDuration    = fmt.Errorf("%w: duration must not be negative", ErrInvalidArgument)
	ErrEmptyThreads        = fmt.Errorf("%w: thread list is empty", ErrInvalidArgument)
	ErrEmptyDurations      = fmt.Errorf("%w: work duration list is empty", ErrInvalidArgument)
	ErrUnknownHint         = fmt.Errorf("%w: unknown session hint", ErrInvalidArgument)
	ErrUnknownMode         = fmt.Errorf("%w: unknown session mode", ErrInvalidArgument)
	ErrUnknownTag          = fmt.Errorf("%w: unknown session tag", ErrInvalidArgument)

	// Profiles
	ErrAdpfUnsupported = fmt.Errorf("%w: no ADPF profile configured", ErrUnsupported)
	ErrProfileNotFound = fmt.Errorf("%w: ADPF profile", ErrNotFound)
	ErrProfileInvalid  = fmt.Errorf("%w: invalid ADPF profile", ErrInvalidArgument)

	// Resource sink
	ErrThreadGone = errors.New("thread no longer exists")
)

// ErrorReason returns a short label for the category err belongs to. It is
// used as a metric label and in API error bodies.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrIllegalState):
		return "illegal_state"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
