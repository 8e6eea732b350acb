package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// The session layer depends on these; infra implements them.

// ResourceSink applies resolved resource decisions to the system.
type ResourceSink interface {
	// ApplyThreadResourceRange sets the uclamp range of one thread. An error
	// wrapping ErrThreadGone means the thread exited and should be forgotten.
	ApplyThreadResourceRange(tid int32, r UclampRange) error

	// RevertThreadResourceRange returns a thread to the default profile once
	// no session claims it.
	RevertThreadResourceRange(tid int32) error

	// SetGpuCapacity requests extra GPU capacity.
	SetGpuCapacity(c Cycles) error

	// GpuFrequency returns the current GPU frequency, if known.
	GpuFrequency() (Frequency, bool)
}

// ProfileProvider hands out tunable profiles by session tag.
type ProfileProvider interface {
	// Profile returns the profile currently selected for tag.
	Profile(tag SessionTag) (*Profile, error)

	// RegisterProfileUpdate calls fn whenever the profile selected for tag
	// changes. The returned func unregisters the callback.
	RegisterProfileUpdate(tag SessionTag, fn func(*Profile)) (unregister func())
}

// HintController drives named power hints.
type HintController interface {
	DoHint(name string) error
	EndHint(name string) error
	IsHintSupported(name string) bool
}

// HistoryStore persists a summary of every closed session.
type HistoryStore interface {
	InsertSessionHistory(ctx context.Context, h SessionHistory) error
}
