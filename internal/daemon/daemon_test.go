package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/resource"
	"github.com/yaap/hardware-google-pixel/internal/infra/sqlite"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	fast := domain.DefaultProfile()
	fast.Name = "REFRESH_120FPS"

	cfg := DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.ADPF.DryRun = true
	cfg.Profiles = append(cfg.Profiles, fast)
	return cfg
}

func newTestDaemon(t *testing.T, cfg Config) *Daemon {
	t.Helper()
	d, err := NewWithConfig(cfg, "test", logr.Discard())
	require.NoError(t, err)
	return d
}

func TestNewWithConfig_DryRun(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()

	_, ok := d.Sink.(*resource.RecordingSink)
	assert.True(t, ok, "dry run should record instead of applying")
	assert.NotEmpty(t, d.BootID)
	assert.Equal(t, d.BootID, d.DB.BootID())

	boots, err := d.DB.Boots(0)
	require.NoError(t, err)
	require.Len(t, boots, 1)
	assert.Equal(t, "test", boots[0].Version)
}

func TestNewWithConfig_SysSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.ADPF.DryRun = false
	cfg.ADPF.Uclamp = false
	d := newTestDaemon(t, cfg)
	defer d.Close()

	_, ok := d.Sink.(*resource.SysSink)
	assert.True(t, ok)
}

func TestNewWithConfig_Invalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.ADPF.DefaultProfile = "MISSING"
	_, err := NewWithConfig(cfg, "test", logr.Discard())
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	cfg = testConfig(t)
	cfg.API.Port = 0
	_, err = NewWithConfig(cfg, "test", logr.Discard())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestDaemon_ProfileSelectionPersists(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDaemon(t, cfg)

	req := httptest.NewRequest(http.MethodPut, "/api/profiles/GAME", strings.NewReader(`{"profile": "REFRESH_120FPS"}`))
	w := httptest.NewRecorder()
	d.Server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, d.Close())

	d2 := newTestDaemon(t, cfg)
	defer d2.Close()
	assert.Equal(t, "REFRESH_120FPS", d2.Hints.TagProfiles()["GAME"])
	assert.NotEqual(t, d.BootID, d2.BootID)
}

func TestDaemon_IgnoresStaleProfileSelection(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDaemon(t, cfg)
	require.NoError(t, d.DB.SetSetting(profileSettingPrefix+"GAME", "REMOVED"))
	require.NoError(t, d.Close())

	d2 := newTestDaemon(t, cfg)
	defer d2.Close()
	assert.Equal(t, "REFRESH_60FPS", d2.Hints.TagProfiles()["GAME"])
}

func TestDaemon_ServeListener(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))
	defer d.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.ServeListener(ctx, ln) }()

	resp, err := http.Post(base+"/api/sessions", "application/json",
		strings.NewReader(`{"tgid": 1, "uid": 10001, "threads": [11], "target_ns": 16666666, "tag": "APP"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(base + "/api/status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, d.BootID, status["boot_id"])
	assert.EqualValues(t, 1, status["sessions"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("ServeListener did not return")
	}

	require.NoError(t, d.Sessions.Close())
	hist, err := d.DB.SessionHistory(context.Background(), sqlite.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, d.BootID, hist[0].BootID)
}
