package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Config configures a Manager.
type Config struct {
	// PluginsDir is the root directory scanned for plugin subdirectories.
	PluginsDir string

	// ProjectRoot anchors per-plugin data directories. Defaults to the
	// parent of PluginsDir.
	ProjectRoot string

	// AgentID identifies the agent this manager serves; pushed into proxy
	// tools that require it.
	AgentID string
}

// Manager is the plugin lifecycle runtime. It owns the plugin-record table,
// the hook-chain cache, and the per-plugin subscription receipts. The bus,
// registry, and resolver are injected, non-owning collaborators.
//
// Mutation operations (load, unload, reconcile) must be serialized by the
// caller; hook dispatch may race with them and at worst observes a slightly
// stale chain.
type Manager struct {
	logger    zerolog.Logger
	cfg       Config
	bus       EventBus
	registry  ToolRegistry
	resolver  Resolver
	builder   *ContextBuilder
	store     *ManifestStore
	discovery *Discovery

	mu      sync.RWMutex
	records map[string]*Record
	subs    map[string][]EventSubscription

	chainMu sync.Mutex
	chain   map[string][]chainEntry // nil means invalidated

	triggerMu     sync.Mutex
	lastTriggerTS int64 // unix nanos of the last observed trigger marker mtime
}

// NewManager creates a plugin manager.
func NewManager(logger zerolog.Logger, cfg Config, bus EventBus, registry ToolRegistry, resolver Resolver) *Manager {
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = parentDir(cfg.PluginsDir)
	}

	managerLogger := logger.With().Str("component", "plugin-manager").Logger()
	return &Manager{
		logger:    managerLogger,
		cfg:       cfg,
		bus:       bus,
		registry:  registry,
		resolver:  resolver,
		builder:   NewContextBuilder(logger, cfg.AgentID, cfg.ProjectRoot, bus),
		store:     NewManifestStore(logger),
		discovery: NewDiscovery(logger, cfg.PluginsDir),
		records:   make(map[string]*Record),
		subs:      make(map[string][]EventSubscription),
	}
}

// DiscoverAndLoad scans the plugins root and loads every enabled plugin.
// Per-plugin failures never abort the scan.
func (m *Manager) DiscoverAndLoad(ctx context.Context) *LoadReport {
	report := NewLoadReport()

	discovered, err := m.discovery.Scan()
	if err != nil {
		m.logger.Error().Err(err).Msg("Plugin discovery failed")
		return report
	}

	for _, dp := range discovered {
		outcome := m.loadDir(ctx, dp)
		report.add(outcome)
		if outcome.Status == StatusFailed {
			m.logger.Error().
				Err(outcome.Err).
				Str("dir", dp.DirName).
				Msg("Failed to load plugin")
		}
	}

	m.invalidateChain()
	m.logger.Info().
		Int("loaded", len(report.Loaded)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Strs("plugins", report.Loaded).
		Msg("Plugin discovery completed")
	return report
}

// Get returns a loaded plugin instance by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[name]
	if !ok {
		return nil, false
	}
	return record.Plugin, true
}

// Metadata returns the regenerated manifest for a loaded plugin.
func (m *Manager) Metadata(name string) (Manifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[name]
	if !ok {
		return Manifest{}, false
	}
	return record.Manifest, true
}

// LoadedNames returns the names of all loaded plugins in sorted order.
func (m *Manager) LoadedNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByType returns all loaded plugins of one type.
func (m *Manager) ByType(pluginType string) []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var plugins []Plugin
	for _, name := range sortedKeys(m.records) {
		record := m.records[name]
		if record.Meta.Type == pluginType {
			plugins = append(plugins, record.Plugin)
		}
	}
	return plugins
}

// List returns a display summary of every loaded plugin, sorted by name.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]Summary, 0, len(m.records))
	for _, name := range sortedKeys(m.records) {
		record := m.records[name]
		summaries = append(summaries, Summary{
			Name:        record.Name,
			DisplayName: record.Manifest.DisplayName,
			Version:     record.Manifest.Version,
			Type:        record.Manifest.Type,
			Description: record.Manifest.Description,
		})
	}
	return summaries
}

// Unload fully tears down one plugin: unload callback, bus unsubscribe, tool
// unbind, record removal. Every step runs even if an earlier one failed, so
// a misbehaving callback cannot leave orphaned registrations. Returns false
// only when the plugin is not loaded.
func (m *Manager) Unload(ctx context.Context, name string) bool {
	m.mu.Lock()
	record, ok := m.records[name]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn().Str("plugin", name).Msg("Cannot unload plugin: not loaded")
		return false
	}
	subs := m.subs[name]
	delete(m.subs, name)
	delete(m.records, name)
	m.mu.Unlock()

	if err := safeUnload(ctx, record.Plugin); err != nil {
		m.logger.Error().Err(err).Str("plugin", name).Msg("Plugin unload callback failed")
	}

	for _, sub := range subs {
		m.bus.Unsubscribe(sub.Event, sub.Token)
		m.logger.Debug().
			Str("plugin", name).
			Str("event", sub.Event).
			Msg("Unsubscribed plugin from event")
	}

	m.unbindTools(record)

	m.invalidateChain()
	m.logger.Info().Str("plugin", name).Msg("Unloaded plugin")
	return true
}

// Shutdown unloads every plugin.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, name := range m.LoadedNames() {
		m.Unload(ctx, name)
	}
}

func (m *Manager) trackSubscription(sub EventSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Plugin] = append(m.subs[sub.Plugin], sub)
}

// Subscriptions returns the tracked subscription receipts for one plugin.
func (m *Manager) Subscriptions(name string) []EventSubscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventSubscription(nil), m.subs[name]...)
}

func safeUnload(ctx context.Context, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unload callback panicked: %v", r)
		}
	}()
	return p.OnUnload(ctx)
}

func sortedKeys(records map[string]*Record) []string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
