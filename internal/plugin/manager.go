package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/panel"
	"go.uber.org/zap"
)

// Page is a page mounted on the host preferences surface.
type Page interface {
	Title() string
	Attach(view panel.View)
	Detach()
	Layout()
}

// Preferences is the host settings surface pages are mounted on.
type Preferences interface {
	AddPage(page Page) Page
	RemovePage(page Page)
}

// Host is what the plugin manager hands to plugins on enable/disable.
type Host interface {
	Preferences() Preferences
}

// Plugin is a feature whose lifecycle is driven by the host.
type Plugin interface {
	OnEnable(ctx context.Context, host Host) error
	OnDisable(host Host) error
}

// Factory builds a fresh plugin instance on every enable.
type Factory func() Plugin

// Manager keeps registered plugins and the enabled instances.
type Manager struct {
	host Host

	mu        sync.Mutex
	factories map[string]Factory
	enabled   map[string]Plugin
}

func NewManager(host Host) *Manager {
	return &Manager{
		host:      host,
		factories: make(map[string]Factory),
		enabled:   make(map[string]Plugin),
	}
}

func (m *Manager) RegisterPlugin(name string, factory Factory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.factories[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	m.factories[name] = factory
	zap.L().Info("Plugin registered", zap.String("plugin", name))
	return nil
}

// UnregisterPlugin disables the plugin if needed and forgets it.
func (m *Manager) UnregisterPlugin(name string) error {
	if err := m.Disable(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.factories[name]; !exists {
		return fmt.Errorf("plugin %q not registered", name)
	}
	delete(m.factories, name)
	zap.L().Info("Plugin unregistered", zap.String("plugin", name))
	return nil
}

// Enable builds the plugin and runs its enable hook. Enabling an enabled
// plugin is a no-op.
func (m *Manager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, on := m.enabled[name]; on {
		return nil
	}
	factory, exists := m.factories[name]
	if !exists {
		return fmt.Errorf("plugin %q not registered", name)
	}

	p := factory()
	if err := p.OnEnable(ctx, m.host); err != nil {
		zap.L().Error("Plugin enable failed", zap.String("plugin", name), zap.Error(err))
		return fmt.Errorf("failed to enable plugin %q: %w", name, err)
	}
	m.enabled[name] = p
	zap.L().Info("Plugin enabled", zap.String("plugin", name))
	return nil
}

// Disable runs the disable hook of an enabled plugin and releases it.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, on := m.enabled[name]
	if !on {
		return nil
	}
	delete(m.enabled, name)
	if err := p.OnDisable(m.host); err != nil {
		zap.L().Error("Plugin disable failed", zap.String("plugin", name), zap.Error(err))
		return fmt.Errorf("failed to disable plugin %q: %w", name, err)
	}
	zap.L().Info("Plugin disabled", zap.String("plugin", name))
	return nil
}

// DisableAll disables every enabled plugin, collecting the first error.
func (m *Manager) DisableAll() error {
	var firstErr error
	for _, name := range m.Enabled() {
		if err := m.Disable(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Enabled lists enabled plugin names, sorted.
func (m *Manager) Enabled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.enabled))
	for name := range m.enabled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
