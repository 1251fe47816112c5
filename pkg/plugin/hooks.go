package plugin

import (
	"context"
	"fmt"
	"sort"
)

// HookContext is the value threaded through a hook chain. Each handler
// receives the context returned by its predecessor.
type HookContext struct {
	values map[string]any
	stop   bool
}

// NewHookContext creates an empty hook context.
func NewHookContext() *HookContext {
	return &HookContext{values: make(map[string]any)}
}

// NewHookContextWith seeds a hook context from an existing value map.
func NewHookContextWith(values map[string]any) *HookContext {
	hc := NewHookContext()
	for k, v := range values {
		hc.values[k] = v
	}
	return hc
}

// Get returns the value stored under key.
func (c *HookContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value under key.
func (c *HookContext) Set(key string, value any) {
	c.values[key] = value
}

// Stop requests early termination: no later handler in the current chain
// invocation will run.
func (c *HookContext) Stop() {
	c.stop = true
}

// Stopped reports whether a handler requested early termination.
func (c *HookContext) Stopped() bool {
	return c.stop
}

// Values returns the underlying value map.
func (c *HookContext) Values() map[string]any {
	return c.values
}

type chainEntry struct {
	priority int
	plugin   string
	fn       HookFunc
}

// RunHook executes the chain registered for hookName sequentially, each
// handler waiting for the previous one to finish. With no handlers the
// context is returned unchanged. A failing handler is logged with plugin
// attribution and skipped; the chain continues with the context as it stood
// before the failing call.
func (m *Manager) RunHook(ctx context.Context, hookName string, hc *HookContext) *HookContext {
	if hc == nil {
		hc = NewHookContext()
	}

	handlers := m.hookChain(hookName)
	if len(handlers) == 0 {
		return hc
	}

	for _, entry := range handlers {
		next, err := invokeHook(ctx, entry.fn, hc)
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hookName).
				Str("plugin", entry.plugin).
				Msg("Hook handler failed")
			continue
		}
		if next != nil {
			hc = next
		}
		if hc.Stopped() {
			m.logger.Info().
				Str("hook", hookName).
				Str("plugin", entry.plugin).
				Int("priority", entry.priority).
				Msg("Hook chain stopped by plugin")
			break
		}
	}

	return hc
}

// hookChain returns the memoized chain for one hook name, rebuilding the
// whole cache on a miss. Rebuilds are idempotent, so racing a membership
// change at worst serves a slightly stale chain.
func (m *Manager) hookChain(hookName string) []chainEntry {
	m.chainMu.Lock()
	defer m.chainMu.Unlock()
	if m.chain == nil {
		m.chain = m.buildHookChain()
	}
	return m.chain[hookName]
}

// buildHookChain collects every handler from every loaded plugin. Plugins are
// iterated in ascending name order so the final descending-priority sort is
// deterministic regardless of load order.
func (m *Manager) buildHookChain() map[string][]chainEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := make(map[string][]chainEntry)
	for _, name := range sortedKeys(m.records) {
		record := m.records[name]
		for hookName, handlers := range record.HookMap {
			for _, h := range handlers {
				chain[hookName] = append(chain[hookName], chainEntry{
					priority: h.Priority,
					plugin:   name,
					fn:       h.Fn,
				})
			}
		}
	}

	for hookName := range chain {
		entries := chain[hookName]
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].priority != entries[j].priority {
				return entries[i].priority > entries[j].priority
			}
			return entries[i].plugin < entries[j].plugin
		})
	}

	return chain
}

// invalidateChain drops the memoized chain wholesale; it is never patched
// incrementally.
func (m *Manager) invalidateChain() {
	m.chainMu.Lock()
	m.chain = nil
	m.chainMu.Unlock()
}

func invokeHook(ctx context.Context, fn HookFunc, hc *HookContext) (next *HookContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = fmt.Errorf("hook handler panicked: %v", r)
		}
	}()
	return fn(ctx, hc)
}
