package sqlite

import (
	"context"
	"time"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

var _ domain.HistoryStore = (*DB)(nil)

// HistoryQuery filters SessionHistory. Zero fields match everything.
type HistoryQuery struct {
	Tag   string
	Since time.Time
	Limit int
}

// TagSummary aggregates the closed sessions of one tag.
type TagSummary struct {
	Tag            string `json:"tag"`
	Sessions       int64  `json:"sessions"`
	Reports        int64  `json:"reports"`
	LightFrames    int64  `json:"light_frames"`
	ModerateFrames int64  `json:"moderate_frames"`
	SevereFrames   int64  `json:"severe_frames"`
}

// InsertSessionHistory records a closed session. An empty BootID is filled
// with the current boot.
func (d *DB) InsertSessionHistory(ctx context.Context, h domain.SessionHistory) error {
	if h.BootID == "" {
		h.BootID = d.bootID
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO session_history (session_id, id_string, tgid, uid, tag, profile, boot_id,
			created_at, closed_at, target_ns, reports, light_frames, moderate_frames, severe_frames)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.SessionID, h.IDString, h.TGID, h.UID, h.Tag, h.Profile, h.BootID,
		h.CreatedAt.UnixNano(), h.ClosedAt.UnixNano(), int64(h.Target), h.Reports,
		h.LightFrames, h.ModerateFrames, h.SevereFrames,
	)
	return err
}

// SessionHistory returns closed sessions matching q, most recently closed
// first.
func (d *DB) SessionHistory(ctx context.Context, q HistoryQuery) ([]domain.SessionHistory, error) {
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixNano()
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT session_id, id_string, tgid, uid, tag, profile, boot_id,
			created_at, closed_at, target_ns, reports, light_frames, moderate_frames, severe_frames
		 FROM session_history
		 WHERE (? = '' OR tag = ?) AND closed_at >= ?
		 ORDER BY closed_at DESC, id DESC
		 LIMIT ?`,
		q.Tag, q.Tag, since, limitOrAll(q.Limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SummarizeHistory totals the closed sessions per tag, ordered by tag.
func (d *DB) SummarizeHistory(ctx context.Context) ([]TagSummary, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT tag, COUNT(*), SUM(reports), SUM(light_frames), SUM(moderate_frames), SUM(severe_frames)
		 FROM session_history GROUP BY tag ORDER BY tag`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TagSummary
	for rows.Next() {
		var s TagSummary
		if err := rows.Scan(&s.Tag, &s.Sessions, &s.Reports,
			&s.LightFrames, &s.ModerateFrames, &s.SevereFrames); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneHistory deletes sessions closed before cutoff and returns how many
// rows went.
func (d *DB) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`DELETE FROM session_history WHERE closed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanHistory(s scanner) (domain.SessionHistory, error) {
	var h domain.SessionHistory
	var created, closed, target int64
	err := s.Scan(&h.SessionID, &h.IDString, &h.TGID, &h.UID, &h.Tag, &h.Profile, &h.BootID,
		&created, &closed, &target, &h.Reports,
		&h.LightFrames, &h.ModerateFrames, &h.SevereFrames)
	if err != nil {
		return h, err
	}
	h.CreatedAt = time.Unix(0, created)
	h.ClosedAt = time.Unix(0, closed)
	h.Target = time.Duration(target)
	return h, nil
}
