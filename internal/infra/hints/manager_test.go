package hints

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

func testProfiles() []domain.Profile {
	p60 := domain.DefaultProfile()
	p120 := domain.DefaultProfile()
	p120.Name = "REFRESH_120FPS"
	p120.PidPo = 3.0
	return []domain.Profile{p60, p120}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Profiles == nil {
		cfg.Profiles = testProfiles()
	}
	m, err := New(cfg, logr.Discard())
	require.NoError(t, err)
	return m
}

// ─── Profile Tests ──────────────────────────────────────────────────────────

func TestNew_NoProfiles(t *testing.T) {
	_, err := New(Config{Profiles: []domain.Profile{}}, logr.Discard())
	assert.ErrorIs(t, err, domain.ErrAdpfUnsupported)
}

func TestNew_UnknownDefault(t *testing.T) {
	_, err := New(Config{Profiles: testProfiles(), DefaultProfile: "nope"}, logr.Discard())
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestNew_UnknownTag(t *testing.T) {
	_, err := New(Config{
		Profiles:    testProfiles(),
		TagProfiles: map[string]string{"kernel": "REFRESH_60FPS"},
	}, logr.Discard())
	assert.ErrorIs(t, err, domain.ErrUnknownTag)
}

func TestProfile_TagMapping(t *testing.T) {
	m := newTestManager(t, Config{
		TagProfiles: map[string]string{"game": "REFRESH_120FPS"},
	})

	p, err := m.Profile(domain.TagGame)
	require.NoError(t, err)
	assert.Equal(t, "REFRESH_120FPS", p.Name)

	p, err = m.Profile(domain.TagHWUI)
	require.NoError(t, err)
	assert.Equal(t, "REFRESH_60FPS", p.Name)

	assert.Equal(t, "REFRESH_60FPS", m.DefaultProfile().Name)
	assert.Len(t, m.Profiles(), 2)
	// Tag names are parsed case-insensitively and reported upper-case.
	tags := m.TagProfiles()
	assert.Equal(t, "REFRESH_120FPS", tags["GAME"])
	assert.NotContains(t, tags, "game")
}

func TestSetProfile_NotifiesRegistered(t *testing.T) {
	m := newTestManager(t, Config{})

	var got []string
	unregister := m.RegisterProfileUpdate(domain.TagGame, func(p *domain.Profile) {
		got = append(got, p.Name)
	})
	m.RegisterProfileUpdate(domain.TagHWUI, func(p *domain.Profile) {
		t.Error("hwui callback fired for a game switch")
	})

	require.NoError(t, m.SetProfile(domain.TagGame, "REFRESH_120FPS"))
	// Same selection again is not a switch.
	require.NoError(t, m.SetProfile(domain.TagGame, "REFRESH_120FPS"))
	assert.Equal(t, []string{"REFRESH_120FPS"}, got)

	unregister()
	assert.Equal(t, 0, m.CallbackCount(domain.TagGame))
	require.NoError(t, m.SetProfile(domain.TagGame, "REFRESH_60FPS"))
	assert.Len(t, got, 1)
}

func TestSetProfile_Unknown(t *testing.T) {
	m := newTestManager(t, Config{})
	err := m.SetProfile(domain.TagApp, "REFRESH_90FPS")
	assert.True(t, errors.Is(err, domain.ErrProfileNotFound))
}

// ─── Hint Tests ─────────────────────────────────────────────────────────────

func TestHints_NodeWrites(t *testing.T) {
	node := filepath.Join(t.TempDir(), "ta_boost")
	m := newTestManager(t, Config{Hints: []Action{
		{Name: domain.DefaultBoostHintName, Node: node, Value: "0", ResetValue: "1"},
		{Name: "LAUNCH"},
	}})

	assert.True(t, m.IsHintSupported(domain.DefaultBoostHintName))
	assert.False(t, m.IsHintSupported("INTERACTION"))

	require.NoError(t, m.DoHint(domain.DefaultBoostHintName))
	data, err := os.ReadFile(node)
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
	assert.True(t, m.HintActive(domain.DefaultBoostHintName))

	require.NoError(t, m.DoHint("LAUNCH"))
	assert.Equal(t, []string{domain.DefaultBoostHintName, "LAUNCH"}, m.ActiveHints())

	require.NoError(t, m.EndHint(domain.DefaultBoostHintName))
	data, _ = os.ReadFile(node)
	assert.Equal(t, "1", string(data))
	assert.Equal(t, []string{"LAUNCH"}, m.ActiveHints())
}

func TestHints_Unsupported(t *testing.T) {
	m := newTestManager(t, Config{})
	assert.ErrorIs(t, m.DoHint("LAUNCH"), domain.ErrUnsupported)
}
