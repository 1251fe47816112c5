package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Load loads a single plugin directory. The directory must contain the entry
// file; otherwise it is not a plugin and the load is skipped silently.
func (m *Manager) Load(ctx context.Context, dir string) Outcome {
	ref, ok := readEntryFile(dir)
	if !ok {
		return skippedOutcome(filepath.Base(dir), "not a plugin directory")
	}
	if ref == "" {
		ref = filepath.Base(dir)
	}

	return m.loadDir(ctx, DiscoveredPlugin{
		DirName:    filepath.Base(dir),
		Path:       dir,
		FactoryRef: ref,
	})
}

// loadDir runs the full load sequence for one discovered plugin. Failures
// are isolated to this plugin; callers continue their scan regardless.
func (m *Manager) loadDir(ctx context.Context, dp DiscoveredPlugin) Outcome {
	factory, ok := m.resolver.Resolve(dp.FactoryRef)
	if !ok {
		return failedOutcome(dp.DirName, fmt.Errorf("no plugin factory registered for %q", dp.FactoryRef))
	}

	meta := factory.Meta
	if meta.Name == "" {
		return failedOutcome(dp.DirName, fmt.Errorf("factory %q declares no plugin name", dp.FactoryRef))
	}
	name := meta.Name

	m.mu.RLock()
	_, alreadyLoaded := m.records[name]
	m.mu.RUnlock()
	if alreadyLoaded {
		return skippedOutcome(name, "already loaded")
	}

	// The persisted enabled flag gates loading before any side effects.
	manifestPath := filepath.Join(dp.Path, ManifestFileName)
	prior, priorErr := m.store.Read(manifestPath)
	if priorErr == nil && !prior.IsEnabled() {
		m.logger.Info().Str("plugin", name).Msg("Plugin is disabled, skipping")
		return skippedOutcome(name, "disabled")
	}

	ec := m.builder.Build(meta, dp.Path)
	instance, err := instantiate(factory, ec)
	if err != nil {
		return failedOutcome(name, fmt.Errorf("failed to instantiate plugin: %w", err))
	}

	// Event subscriptions are an observable load-time side effect.
	if provider, ok := instance.(EventProvider); ok {
		for _, eh := range provider.Events() {
			if eh.Event == "" || eh.Fn == nil {
				continue
			}
			token := m.bus.Subscribe(eh.Event, eh.Fn)
			m.trackSubscription(EventSubscription{Event: eh.Event, Token: token, Plugin: name})
			m.logger.Info().
				Str("plugin", name).
				Str("event", eh.Event).
				Msg("Subscribed plugin to event")
		}
	}

	var wrappers []*ToolModule
	if provider, ok := instance.(ToolProvider); ok {
		wrappers = buildToolModules(name, provider.Tools())
	}

	hookMap := make(map[string][]HookHandler)
	if provider, ok := instance.(HookProvider); ok {
		for _, hh := range provider.Hooks() {
			if hh.Hook == "" || hh.Fn == nil {
				continue
			}
			hookMap[hh.Hook] = append(hookMap[hh.Hook], hh)
		}
	}

	manifest := m.store.Regenerate(meta, wrappers, dynamicTools(instance), prior)
	if err := m.store.Write(dp.Path, manifest); err != nil {
		// Non-fatal: the plugin still loads without a fresh manifest.
		m.logger.Warn().Err(err).Str("plugin", name).Msg("Failed to write plugin manifest")
	}

	// A failed load callback does not roll back the completed registration;
	// the plugin stays loaded and the failure is surfaced via logs.
	if err := safeLoadCallback(ctx, instance); err != nil {
		m.logger.Error().Err(err).Str("plugin", name).Msg("Plugin load callback failed")
	}

	record := &Record{
		Name:     name,
		Plugin:   instance,
		Meta:     meta,
		Manifest: manifest,
		Dir:      dp.Path,
		HookMap:  hookMap,
		Wrappers: wrappers,
		LoadedAt: time.Now(),
	}

	m.mu.Lock()
	m.records[name] = record
	m.mu.Unlock()
	m.invalidateChain()

	hookNames := make([]string, 0, len(hookMap))
	for hook := range hookMap {
		hookNames = append(hookNames, hook)
	}
	m.logger.Info().
		Str("plugin", name).
		Str("version", manifest.Version).
		Str("type", manifest.Type).
		Int("tools", len(wrappers)).
		Strs("hooks", hookNames).
		Msg("Loaded plugin")
	return loadedOutcome(name)
}

func instantiate(factory Factory, ec *ExecutionContext) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("plugin constructor panicked: %v", r)
		}
	}()

	p, err = factory.New(ec)
	if err == nil && p == nil {
		err = fmt.Errorf("plugin constructor returned nil")
	}
	return p, err
}

func safeLoadCallback(ctx context.Context, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("load callback panicked: %v", r)
		}
	}()
	return p.OnLoad(ctx)
}

// dynamicTools queries a plugin's proxy tool descriptors, tolerating panics
// from plugin code.
func dynamicTools(p Plugin) (descs []ToolDescriptor) {
	provider, ok := p.(DynamicToolProvider)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			descs = nil
		}
	}()
	return provider.DynamicTools()
}

func parentDir(dir string) string {
	return filepath.Dir(filepath.Clean(dir))
}
