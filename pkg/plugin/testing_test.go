package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeBus implements EventBus and tracks live subscriptions per event.
type fakeBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[string]EventCallback
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]map[string]EventCallback)}
}

func (b *fakeBus) Subscribe(event string, cb EventCallback) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	token := fmt.Sprintf("sub-%d", b.nextID)
	if b.subs[event] == nil {
		b.subs[event] = make(map[string]EventCallback)
	}
	b.subs[event][token] = cb
	return token
}

func (b *fakeBus) Unsubscribe(event, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[event], token)
}

func (b *fakeBus) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[event])
}

func (b *fakeBus) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, callbacks := range b.subs {
		n += len(callbacks)
	}
	return n
}

// fakeRegistry implements ToolRegistry and records registrations by namespace.
type fakeRegistry struct {
	mu      sync.Mutex
	entries map[string]any
	levels  map[string]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		entries: make(map[string]any),
		levels:  make(map[string]string),
	}
}

func (r *fakeRegistry) Register(handler any, namespace, level string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[namespace] = handler
	r.levels[namespace] = level
	return nil
}

func (r *fakeRegistry) Unregister(namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[namespace]; !ok {
		return fmt.Errorf("namespace %s not registered", namespace)
	}
	delete(r.entries, namespace)
	delete(r.levels, namespace)
	return nil
}

func (r *fakeRegistry) has(namespace string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[namespace]
	return ok
}

func (r *fakeRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// testPlugin is a configurable in-process plugin used across the package
// tests. The optional capability slices drive which provider interfaces are
// exercised via the separate provider wrapper types below.
type testPlugin struct {
	mu          sync.Mutex
	loadCalls   int
	unloadCalls int
	loadErr     error
	unloadErr   error
	unloadPanic bool
}

func (p *testPlugin) OnLoad(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadCalls++
	return p.loadErr
}

func (p *testPlugin) OnUnload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloadCalls++
	if p.unloadPanic {
		panic("unload exploded")
	}
	return p.unloadErr
}

// capablePlugin layers the capability interfaces on top of testPlugin.
type capablePlugin struct {
	testPlugin
	tools   []ToolHandler
	hooks   []HookHandler
	events  []EventHandler
	dynamic []ToolDescriptor
}

func (p *capablePlugin) Tools() []ToolHandler { return p.tools }

func (p *capablePlugin) Hooks() []HookHandler { return p.hooks }

func (p *capablePlugin) Events() []EventHandler { return p.events }

func (p *capablePlugin) DynamicTools() []ToolDescriptor { return p.dynamic }

// identityModule records the agent identity pushed by the binder.
type identityModule struct {
	mu      sync.Mutex
	agentID string
}

func (m *identityModule) SetAgentID(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentID = agentID
}

func (m *identityModule) got() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agentID
}

// testEnv bundles a manager with its fakes and plugins root.
type testEnv struct {
	manager  *Manager
	bus      *fakeBus
	registry *fakeRegistry
	root     string
}

func newTestEnv(t *testing.T, resolver Resolver) *testEnv {
	t.Helper()
	root := t.TempDir()

	bus := newFakeBus()
	registry := newFakeRegistry()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	manager := NewManager(logger, Config{
		PluginsDir: root,
		AgentID:    "agent-1",
	}, bus, registry, resolver)

	return &testEnv{manager: manager, bus: bus, registry: registry, root: root}
}

// writePluginDir creates a plugin directory with an entry file referencing
// the given factory.
func writePluginDir(t *testing.T, root, dirName, ref string) string {
	t.Helper()
	dir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, EntryFileName), []byte(ref+"\n"), 0644))
	return dir
}

// simpleFactory builds a Factory returning a fixed plugin instance.
func simpleFactory(meta Metadata, instance Plugin) Factory {
	return Factory{
		Meta: meta,
		New: func(ec *ExecutionContext) (Plugin, error) {
			return instance, nil
		},
	}
}

func metaFor(name string) Metadata {
	return Metadata{
		Name:        name,
		DisplayName: name,
		Version:     "1.0.0",
		Type:        "feature",
	}
}
