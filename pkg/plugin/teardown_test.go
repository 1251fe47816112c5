package plugin

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnload_NotLoadedReturnsFalse(t *testing.T) {
	env := newTestEnv(t, StaticResolver{})

	assert.False(t, env.manager.Unload(context.Background(), "ghost"))
}

func TestUnload_RemovesAllSideEffects(t *testing.T) {
	noop := func(ctx context.Context, args map[string]any) (map[string]any, error) { return nil, nil }
	instance := &capablePlugin{
		tools: []ToolHandler{
			{Name: "d_tools", Method: "run", AutoRegister: true, Fn: noop},
		},
		events: []EventHandler{
			{Event: "tick", Fn: func(ctx context.Context, payload map[string]any) {}},
		},
		dynamic: []ToolDescriptor{
			{Name: "d_proxy", Module: &identityModule{}, AutoRegister: true},
		},
	}
	resolver := StaticResolver{"d": simpleFactory(metaFor("d"), instance)}
	env := newTestEnv(t, resolver)
	dir := writePluginDir(t, env.root, "d", "d")

	require.Equal(t, StatusLoaded, env.manager.Load(context.Background(), dir).Status)
	require.Equal(t, 2, env.manager.BindTools(nil))
	require.True(t, env.registry.has("d_tools"))
	require.True(t, env.registry.has("d_proxy"))
	require.Equal(t, 1, env.bus.count("tick"))

	require.True(t, env.manager.Unload(context.Background(), "d"))

	assert.Equal(t, 1, instance.unloadCalls)
	assert.Zero(t, env.bus.total())
	assert.Zero(t, env.registry.size())
	assert.Empty(t, env.manager.Subscriptions("d"))
	_, loaded := env.manager.Get("d")
	assert.False(t, loaded)
}

func TestUnload_CallbackFailureDoesNotShortCircuit(t *testing.T) {
	t.Run("error return", func(t *testing.T) {
		assertCleanTeardown(t, &capablePlugin{
			testPlugin: testPlugin{unloadErr: fmt.Errorf("unload broke")},
		})
	})

	t.Run("panic", func(t *testing.T) {
		assertCleanTeardown(t, &capablePlugin{
			testPlugin: testPlugin{unloadPanic: true},
		})
	})
}

func assertCleanTeardown(t *testing.T, instance *capablePlugin) {
	t.Helper()
	noop := func(ctx context.Context, args map[string]any) (map[string]any, error) { return nil, nil }
	instance.tools = []ToolHandler{
		{Name: "d_tools", Method: "run", AutoRegister: true, Fn: noop},
	}
	instance.events = []EventHandler{
		{Event: "tick", Fn: func(ctx context.Context, payload map[string]any) {}},
	}

	resolver := StaticResolver{"d": simpleFactory(metaFor("d"), instance)}
	env := newTestEnv(t, resolver)
	dir := writePluginDir(t, env.root, "d", "d")

	require.Equal(t, StatusLoaded, env.manager.Load(context.Background(), dir).Status)
	require.Equal(t, 1, env.manager.BindTools(nil))

	// Teardown reports success and leaves nothing attributable behind even
	// though the unload callback misbehaved.
	assert.True(t, env.manager.Unload(context.Background(), "d"))
	assert.False(t, env.registry.has("d_tools"))
	assert.Zero(t, env.bus.total())
	_, loaded := env.manager.Get("d")
	assert.False(t, loaded)
}

func TestShutdown_UnloadsEverything(t *testing.T) {
	resolver := StaticResolver{
		"alpha": simpleFactory(metaFor("alpha"), &testPlugin{}),
		"beta":  simpleFactory(metaFor("beta"), &testPlugin{}),
	}
	env := newTestEnv(t, resolver)
	writePluginDir(t, env.root, "alpha", "alpha")
	writePluginDir(t, env.root, "beta", "beta")
	require.Len(t, env.manager.DiscoverAndLoad(context.Background()).Loaded, 2)

	env.manager.Shutdown(context.Background())

	assert.Empty(t, env.manager.LoadedNames())
}
