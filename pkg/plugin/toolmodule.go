package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ToolModule bundles the tool handlers a plugin declared under one namespace.
// It is the handler object registered into the external tool registry.
type ToolModule struct {
	PluginName      string
	Namespace       string
	Level           string
	AutoRegister    bool
	RequiresAgentID bool

	mu      sync.RWMutex
	methods map[string]ToolFunc
	docs    map[string]string
}

// newToolModule creates an empty namespace wrapper seeded from the first
// handler's declaration flags.
func newToolModule(pluginName string, h ToolHandler) *ToolModule {
	level := h.Level
	if level == "" {
		level = DefaultToolLevel
	}
	return &ToolModule{
		PluginName:      pluginName,
		Namespace:       h.Name,
		Level:           level,
		AutoRegister:    h.AutoRegister,
		RequiresAgentID: h.RequiresAgentID,
		methods:         make(map[string]ToolFunc),
		docs:            make(map[string]string),
	}
}

func (m *ToolModule) addMethod(h ToolHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods[h.Method] = h.Fn
	if h.Doc != "" {
		m.docs[h.Method] = h.Doc
	}
}

// Module identifies the wrapper in manifest tool entries.
func (m *ToolModule) Module() string {
	return m.PluginName
}

// Methods lists the bundled method names in sorted order.
func (m *ToolModule) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.methods))
	for name := range m.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Doc returns the combined documentation of all bundled methods.
func (m *ToolModule) Doc() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.docs))
	for name := range m.docs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", name, m.docs[name])
	}
	return b.String()
}

// Invoke executes one bundled method by name.
func (m *ToolModule) Invoke(ctx context.Context, method string, args map[string]any) (map[string]any, error) {
	m.mu.RLock()
	fn, ok := m.methods[method]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool %s has no method %q", m.Namespace, method)
	}
	return fn(ctx, args)
}

// buildToolModules groups declared handlers into namespace wrappers.
func buildToolModules(pluginName string, handlers []ToolHandler) []*ToolModule {
	byNamespace := make(map[string]*ToolModule)
	var order []string

	for _, h := range handlers {
		if h.Name == "" || h.Fn == nil {
			continue
		}
		module, ok := byNamespace[h.Name]
		if !ok {
			module = newToolModule(pluginName, h)
			byNamespace[h.Name] = module
			order = append(order, h.Name)
		}
		module.addMethod(h)
	}

	modules := make([]*ToolModule, 0, len(order))
	sort.Strings(order)
	for _, ns := range order {
		modules = append(modules, byNamespace[ns])
	}
	return modules
}
