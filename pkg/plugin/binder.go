package plugin

import (
	"github.com/gobwas/glob"
)

// allowMatcher matches tool namespaces against a caller-supplied allow-list.
// Entries are compiled as glob patterns; an entry that does not compile
// degrades to an exact name comparison.
type allowMatcher struct {
	globs    []glob.Glob
	literals map[string]bool
}

func newAllowMatcher(allowList []string) *allowMatcher {
	m := &allowMatcher{literals: make(map[string]bool)}
	for _, entry := range allowList {
		if entry == "" {
			continue
		}
		g, err := glob.Compile(entry)
		if err != nil {
			m.literals[entry] = true
			continue
		}
		m.globs = append(m.globs, g)
	}
	return m
}

func (m *allowMatcher) match(namespace string) bool {
	if m.literals[namespace] {
		return true
	}
	for _, g := range m.globs {
		if g.Match(namespace) {
			return true
		}
	}
	return false
}

// BindTools registers every eligible tool from every loaded plugin into the
// external registry. A tool is eligible when it is flagged auto-register or
// its namespace matches the allow-list. Returns the number of registrations.
func (m *Manager) BindTools(allowList []string) int {
	matcher := newAllowMatcher(allowList)

	m.mu.RLock()
	records := make([]*Record, 0, len(m.records))
	for _, name := range sortedKeys(m.records) {
		records = append(records, m.records[name])
	}
	m.mu.RUnlock()

	count := 0
	for _, record := range records {
		count += m.bindRecord(record, matcher)
	}
	return count
}

// bindRecord registers one plugin's tools: the namespace wrappers built at
// load time, then the proxy descriptors queried fresh from the plugin so
// they reflect runtime state.
func (m *Manager) bindRecord(record *Record, matcher *allowMatcher) int {
	count := 0

	for _, wrapper := range record.Wrappers {
		if !wrapper.AutoRegister && !matcher.match(wrapper.Namespace) {
			continue
		}
		if err := m.registry.Register(wrapper, wrapper.Namespace, wrapper.Level); err != nil {
			m.logger.Warn().
				Err(err).
				Str("plugin", record.Name).
				Str("tool", wrapper.Namespace).
				Msg("Failed to register tool")
			continue
		}
		count++
		m.logger.Info().
			Str("plugin", record.Name).
			Str("tool", wrapper.Namespace).
			Str("level", wrapper.Level).
			Msg("Registered tool")
	}

	for _, desc := range dynamicTools(record.Plugin) {
		if desc.Name == "" || desc.Module == nil {
			continue
		}
		if !desc.AutoRegister && !matcher.match(desc.Name) {
			continue
		}
		level := desc.Level
		if level == "" {
			level = DefaultToolLevel
		}
		if err := m.registry.Register(desc.Module, desc.Name, level); err != nil {
			m.logger.Warn().
				Err(err).
				Str("plugin", record.Name).
				Str("tool", desc.Name).
				Msg("Failed to register proxy tool")
			continue
		}
		if desc.RequiresAgentID && m.cfg.AgentID != "" {
			if setter, ok := desc.Module.(AgentIdentitySetter); ok {
				setter.SetAgentID(m.cfg.AgentID)
			}
		}
		count++
		m.logger.Info().
			Str("plugin", record.Name).
			Str("tool", desc.Name).
			Str("level", level).
			Msg("Registered proxy tool")
	}

	return count
}

// unbindTools removes every namespace the plugin could have registered, from
// both sources. Unregistering a namespace that was never bound is a no-op.
func (m *Manager) unbindTools(record *Record) {
	for _, wrapper := range record.Wrappers {
		if err := m.registry.Unregister(wrapper.Namespace); err != nil {
			m.logger.Debug().
				Err(err).
				Str("plugin", record.Name).
				Str("tool", wrapper.Namespace).
				Msg("Tool was not registered")
		}
	}

	for _, desc := range dynamicTools(record.Plugin) {
		if desc.Name == "" {
			continue
		}
		if err := m.registry.Unregister(desc.Name); err != nil {
			m.logger.Debug().
				Err(err).
				Str("plugin", record.Name).
				Str("tool", desc.Name).
				Msg("Proxy tool was not registered")
		}
	}
}
