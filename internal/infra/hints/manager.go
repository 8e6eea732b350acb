// Package hints owns the ADPF profile table and the named power hints.
//
// Profiles are selected per session tag. Switching the profile of a tag
// notifies every session registered for that tag. Hints map a name to a
// node write; a hint without a node is tracked but writes nothing.
package hints

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/go-logr/logr"

	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
)

// Action is one named hint.
type Action struct {
	Name string `toml:"name" json:"name"`
	// Node is written with Value on DoHint and ResetValue on EndHint.
	Node       string `toml:"node" json:"node,omitempty"`
	Value      string `toml:"value" json:"value,omitempty"`
	ResetValue string `toml:"reset_value" json:"reset_value,omitempty"`
}

// Config is the static hint and profile setup.
type Config struct {
	Profiles []domain.Profile
	// DefaultProfile is used for tags without an explicit mapping. Empty
	// means the first profile.
	DefaultProfile string
	// TagProfiles maps tag names to profile names.
	TagProfiles map[string]string
	Hints       []Action
}

// Manager implements domain.ProfileProvider and domain.HintController.
type Manager struct {
	log logr.Logger

	mu             sync.RWMutex
	profiles       map[string]*domain.Profile
	order          []string
	defaultProfile string
	tagProfile     map[domain.SessionTag]string
	callbacks      map[domain.SessionTag]map[uint64]func(*domain.Profile)
	nextCallback   uint64

	hintMu sync.Mutex
	hints  map[string]Action
	active map[string]bool
}

var (
	_ domain.ProfileProvider = (*Manager)(nil)
	_ domain.HintController  = (*Manager)(nil)
)

// New validates cfg and builds a manager.
func New(cfg Config, log logr.Logger) (*Manager, error) {
	for i := range cfg.Profiles {
		cfg.Profiles[i].ApplyDefaults()
	}
	if err := domain.ValidateProfiles(cfg.Profiles); err != nil {
		return nil, err
	}

	m := &Manager{
		log:        log.WithName("hints"),
		profiles:   make(map[string]*domain.Profile, len(cfg.Profiles)),
		tagProfile: make(map[domain.SessionTag]string),
		callbacks:  make(map[domain.SessionTag]map[uint64]func(*domain.Profile)),
		hints:      make(map[string]Action, len(cfg.Hints)),
		active:     make(map[string]bool),
	}
	for i := range cfg.Profiles {
		p := cfg.Profiles[i]
		m.profiles[p.Name] = &p
		m.order = append(m.order, p.Name)
	}

	m.defaultProfile = cfg.DefaultProfile
	if m.defaultProfile == "" {
		m.defaultProfile = m.order[0]
	}
	if _, ok := m.profiles[m.defaultProfile]; !ok {
		return nil, fmt.Errorf("default profile %q: %w", m.defaultProfile, domain.ErrProfileNotFound)
	}

	for tagName, profile := range cfg.TagProfiles {
		tag, err := domain.ParseSessionTag(tagName)
		if err != nil {
			return nil, err
		}
		if _, ok := m.profiles[profile]; !ok {
			return nil, fmt.Errorf("tag %s profile %q: %w", tag, profile, domain.ErrProfileNotFound)
		}
		m.tagProfile[tag] = profile
	}

	for _, h := range cfg.Hints {
		if h.Name == "" {
			return nil, fmt.Errorf("%w: hint without name", domain.ErrInvalidArgument)
		}
		m.hints[h.Name] = h
	}
	return m, nil
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// Profile returns the profile selected for tag.
func (m *Manager) Profile(tag domain.SessionTag) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profileLocked(tag), nil
}

func (m *Manager) profileLocked(tag domain.SessionTag) *domain.Profile {
	if name, ok := m.tagProfile[tag]; ok {
		return m.profiles[name]
	}
	return m.profiles[m.defaultProfile]
}

// DefaultProfile returns the profile used for unmapped tags.
func (m *Manager) DefaultProfile() *domain.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profiles[m.defaultProfile]
}

// Profiles returns every profile in configuration order.
func (m *Manager) Profiles() []domain.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Profile, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, *m.profiles[name])
	}
	return out
}

// TagProfiles returns the profile name currently selected for every tag.
func (m *Manager) TagProfiles() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(domain.SessionTags))
	for _, tag := range domain.SessionTags {
		out[tag.String()] = m.profileLocked(tag).Name
	}
	return out
}

// SetProfile selects profile name for tag and notifies registered sessions
// when the selection changed.
func (m *Manager) SetProfile(tag domain.SessionTag, name string) error {
	m.mu.Lock()
	p, ok := m.profiles[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%q: %w", name, domain.ErrProfileNotFound)
	}
	if m.profileLocked(tag) == p {
		m.mu.Unlock()
		return nil
	}
	m.tagProfile[tag] = name
	fns := make([]func(*domain.Profile), 0, len(m.callbacks[tag]))
	for _, fn := range m.callbacks[tag] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.log.Info("adpf profile switched", "tag", tag.String(), "profile", name, "sessions", len(fns))
	for _, fn := range fns {
		fn(p)
	}
	return nil
}

// RegisterProfileUpdate registers fn for profile switches of tag.
func (m *Manager) RegisterProfileUpdate(tag domain.SessionTag, fn func(*domain.Profile)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextCallback
	m.nextCallback++
	if m.callbacks[tag] == nil {
		m.callbacks[tag] = make(map[uint64]func(*domain.Profile))
	}
	m.callbacks[tag][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.callbacks[tag], id)
	}
}

// CallbackCount returns the number of registered callbacks for tag.
func (m *Manager) CallbackCount(tag domain.SessionTag) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.callbacks[tag])
}

// ─── Hints ──────────────────────────────────────────────────────────────────

// IsHintSupported reports whether name is configured.
func (m *Manager) IsHintSupported(name string) bool {
	m.hintMu.Lock()
	defer m.hintMu.Unlock()
	_, ok := m.hints[name]
	return ok
}

// DoHint activates name.
func (m *Manager) DoHint(name string) error {
	return m.setHint(name, true)
}

// EndHint deactivates name.
func (m *Manager) EndHint(name string) error {
	return m.setHint(name, false)
}

func (m *Manager) setHint(name string, on bool) error {
	m.hintMu.Lock()
	defer m.hintMu.Unlock()
	h, ok := m.hints[name]
	if !ok {
		return fmt.Errorf("hint %q: %w", name, domain.ErrUnsupported)
	}
	if h.Node != "" {
		value := h.ResetValue
		if on {
			value = h.Value
		}
		if err := os.WriteFile(h.Node, []byte(value), 0644); err != nil {
			return fmt.Errorf("hint %q: %w", name, err)
		}
	}
	m.active[name] = on
	m.log.V(logging.DEBUG).Info("hint", "name", name, "active", on)
	return nil
}

// ActiveHints returns the names of hints currently on, sorted.
func (m *Manager) ActiveHints() []string {
	m.hintMu.Lock()
	defer m.hintMu.Unlock()
	var out []string
	for name, on := range m.active {
		if on {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// HintActive reports whether name is currently on.
func (m *Manager) HintActive(name string) bool {
	m.hintMu.Lock()
	defer m.hintMu.Unlock()
	return m.active[name]
}
