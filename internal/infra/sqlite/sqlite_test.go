package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func history(id int64, tag string, closed time.Time) domain.SessionHistory {
	return domain.SessionHistory{
		SessionID:      id,
		IDString:       domain.SessionIDString(1000, 10050, id, domain.TagApp),
		TGID:           1000,
		UID:            10050,
		Tag:            tag,
		Profile:        "REFRESH_60FPS",
		CreatedAt:      closed.Add(-time.Minute),
		ClosedAt:       closed,
		Target:         16666666 * time.Nanosecond,
		Reports:        42,
		LightFrames:    3,
		ModerateFrames: 2,
		SevereFrames:   1,
	}
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); os.IsNotExist(err) {
		t.Errorf("%s should exist", FileName)
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("PingContext() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := db.SetSetting("k", "v"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	got, err := db.GetSetting("k")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v" {
		t.Errorf("GetSetting after reopen = %q, want v", got)
	}
}

// ─── Settings ───────────────────────────────────────────────────────────────

func TestSettings(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetSetting("missing")
	if err != nil || got != "" {
		t.Fatalf("GetSetting(missing) = %q, %v; want empty, nil", got, err)
	}

	for k, v := range map[string]string{
		"profile.GAME": "REFRESH_120FPS",
		"profile.APP":  "REFRESH_60FPS",
		"other":        "x",
	} {
		if err := db.SetSetting(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.SetSetting("profile.APP", "REFRESH_90FPS"); err != nil {
		t.Fatal(err)
	}

	m, err := db.SettingsWithPrefix("profile.")
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 2 {
		t.Fatalf("SettingsWithPrefix = %v, want 2 entries", m)
	}
	if m["GAME"] != "REFRESH_120FPS" || m["APP"] != "REFRESH_90FPS" {
		t.Errorf("SettingsWithPrefix = %v", m)
	}
}

// ─── Boots ──────────────────────────────────────────────────────────────────

func TestRecordBoot(t *testing.T) {
	db := newTestDB(t)
	t0 := time.Unix(1000, 0)

	first := Boot{ID: uuid.NewString(), Version: "1.0.0", StartedAt: t0}
	second := Boot{ID: uuid.NewString(), Version: "1.0.1", StartedAt: t0.Add(time.Hour)}
	for _, b := range []Boot{first, second} {
		if err := db.RecordBoot(b); err != nil {
			t.Fatalf("RecordBoot() error: %v", err)
		}
	}
	if db.BootID() != second.ID {
		t.Errorf("BootID() = %q, want %q", db.BootID(), second.ID)
	}

	boots, err := db.Boots(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(boots) != 2 {
		t.Fatalf("Boots() len = %d, want 2", len(boots))
	}
	if boots[0].ID != second.ID || boots[1].ID != first.ID {
		t.Errorf("Boots() order = %s, %s", boots[0].ID, boots[1].ID)
	}
	if !boots[1].StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", boots[1].StartedAt, t0)
	}

	if err := db.RecordBoot(first); err == nil {
		t.Error("duplicate boot id should fail")
	}
}
