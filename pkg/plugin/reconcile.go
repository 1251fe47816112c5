package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// TriggerFileName is the shared marker whose modification time signals
// "reconcile now" to any poller.
const TriggerFileName = ".reload"

type diskState struct {
	enabled bool
	path    string
}

// Reconcile diffs the on-disk enabled state against the in-memory plugin set
// and drives incremental load/unload. Plugins whose state agrees on both
// sides are untouched. Per-plugin failures are logged and excluded from the
// summary without aborting the pass.
func (m *Manager) Reconcile(ctx context.Context, allowList []string) ReloadSummary {
	summary := ReloadSummary{Loaded: []string{}, Unloaded: []string{}}

	discovered, err := m.discovery.Scan()
	if err != nil {
		m.logger.Error().Err(err).Msg("Reconcile scan failed")
		return summary
	}

	onDisk := make(map[string]diskState, len(discovered))
	for _, dp := range discovered {
		name := m.store.NameOnDisk(dp.Path)
		onDisk[name] = diskState{
			enabled: m.store.EnabledOnDisk(dp.Path),
			path:    dp.Path,
		}
	}

	// Loaded in memory but disabled on disk: full teardown.
	for _, name := range m.LoadedNames() {
		state, ok := onDisk[name]
		if !ok || state.enabled {
			continue
		}
		if m.Unload(ctx, name) {
			summary.Unloaded = append(summary.Unloaded, name)
		}
	}

	// Enabled on disk but not loaded in memory: load, then bind tools with
	// the current allow-list.
	matcher := newAllowMatcher(allowList)
	diskNames := make([]string, 0, len(onDisk))
	for name := range onDisk {
		diskNames = append(diskNames, name)
	}
	sort.Strings(diskNames)

	for _, name := range diskNames {
		state := onDisk[name]
		if !state.enabled {
			continue
		}
		if _, loaded := m.Get(name); loaded {
			continue
		}

		outcome := m.Load(ctx, state.path)
		switch outcome.Status {
		case StatusLoaded:
			m.mu.RLock()
			record := m.records[outcome.Name]
			m.mu.RUnlock()
			if record != nil {
				m.bindRecord(record, matcher)
			}
			summary.Loaded = append(summary.Loaded, outcome.Name)
		case StatusFailed:
			m.logger.Error().
				Err(outcome.Err).
				Str("plugin", name).
				Msg("Failed to reload plugin")
		}
	}

	if !summary.Empty() {
		m.invalidateChain()
		m.logger.Info().
			Strs("loaded", summary.Loaded).
			Strs("unloaded", summary.Unloaded).
			Msg("Reconcile complete")
	}

	return summary
}

// NeedsReconcile reports whether the trigger marker changed since the last
// observation. It returns true at most once per actual change and is only
// advisory; Reconcile itself is idempotent.
func (m *Manager) NeedsReconcile() bool {
	info, err := os.Stat(filepath.Join(m.cfg.PluginsDir, TriggerFileName))
	if err != nil {
		return false
	}

	m.triggerMu.Lock()
	defer m.triggerMu.Unlock()
	mtime := info.ModTime().UnixNano()
	if mtime > m.lastTriggerTS {
		m.lastTriggerTS = mtime
		return true
	}
	return false
}

// TouchTrigger bumps the trigger marker under pluginsDir so pollers observe
// a reconcile request.
func TouchTrigger(pluginsDir string) error {
	path := filepath.Join(pluginsDir, TriggerFileName)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(now.Format(time.RFC3339Nano)+"\n"), 0644)
}
