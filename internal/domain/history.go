package domain

import "time"

// SessionHistory is the summary written when a session closes.
type SessionHistory struct {
	SessionID int64  `json:"session_id"`
	IDString  string `json:"id_string"`
	TGID      int32  `json:"tgid"`
	UID       int32  `json:"uid"`
	Tag       string `json:"tag"`
	Profile   string `json:"profile"`
	// BootID identifies the daemon instance that served the session.
	BootID    string        `json:"boot_id"`
	CreatedAt time.Time     `json:"created_at"`
	ClosedAt  time.Time     `json:"closed_at"`
	Target    time.Duration `json:"target_ns"`
	Reports   int64         `json:"reports"`
	// Frames seen per heuristic janky level.
	LightFrames    int64 `json:"light_frames"`
	ModerateFrames int64 `json:"moderate_frames"`
	SevereFrames   int64 `json:"severe_frames"`
}
