package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flipEnabled(t *testing.T, dir string, enabled bool) {
	t.Helper()
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["enabled"] = enabled

	out, err := json.MarshalIndent(raw, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0644))
}

func TestReconcile_UnloadsDisabledPlugin(t *testing.T) {
	instance := &capablePlugin{
		tools: []ToolHandler{
			{Name: "c_tools", Method: "run", AutoRegister: true, Fn: noopTool},
		},
	}
	resolver := StaticResolver{"c": simpleFactory(metaFor("c"), instance)}
	env := newTestEnv(t, resolver)
	dir := writePluginDir(t, env.root, "c", "c")

	require.Equal(t, StatusLoaded, env.manager.Load(context.Background(), dir).Status)
	require.Equal(t, 1, env.manager.BindTools(nil))

	flipEnabled(t, dir, false)
	summary := env.manager.Reconcile(context.Background(), nil)

	assert.Empty(t, summary.Loaded)
	assert.Equal(t, []string{"c"}, summary.Unloaded)
	_, loaded := env.manager.Get("c")
	assert.False(t, loaded)
	assert.False(t, env.registry.has("c_tools"))
}

func TestReconcile_LoadsNewlyEnabledPluginAndBindsTools(t *testing.T) {
	instance := &capablePlugin{
		tools: []ToolHandler{
			{Name: "notes", Method: "add", Fn: noopTool},
		},
	}
	resolver := StaticResolver{"notes": simpleFactory(metaFor("notes"), instance)}
	env := newTestEnv(t, resolver)
	writePluginDir(t, env.root, "notes", "notes")

	summary := env.manager.Reconcile(context.Background(), []string{"notes"})

	assert.Equal(t, []string{"notes"}, summary.Loaded)
	assert.Empty(t, summary.Unloaded)
	_, loaded := env.manager.Get("notes")
	assert.True(t, loaded)
	assert.True(t, env.registry.has("notes"))
}

func TestReconcile_SecondPassIsEmpty(t *testing.T) {
	resolver := StaticResolver{"stable": simpleFactory(metaFor("stable"), &testPlugin{})}
	env := newTestEnv(t, resolver)
	writePluginDir(t, env.root, "stable", "stable")

	first := env.manager.Reconcile(context.Background(), nil)
	require.Equal(t, []string{"stable"}, first.Loaded)

	second := env.manager.Reconcile(context.Background(), nil)

	assert.True(t, second.Empty())
}

func TestReconcile_AgreedStateUntouched(t *testing.T) {
	instance := &testPlugin{}
	resolver := StaticResolver{"steady": simpleFactory(metaFor("steady"), instance)}
	env := newTestEnv(t, resolver)
	dir := writePluginDir(t, env.root, "steady", "steady")

	require.Equal(t, StatusLoaded, env.manager.Load(context.Background(), dir).Status)
	require.Equal(t, 1, instance.loadCalls)

	summary := env.manager.Reconcile(context.Background(), nil)

	// No restart churn: the plugin instance was not reloaded.
	assert.True(t, summary.Empty())
	assert.Equal(t, 1, instance.loadCalls)
	assert.Zero(t, instance.unloadCalls)
}

func TestReconcile_FailureIsolatedFromOtherPlugins(t *testing.T) {
	resolver := StaticResolver{"good": simpleFactory(metaFor("good"), &testPlugin{})}
	env := newTestEnv(t, resolver)
	writePluginDir(t, env.root, "bad", "unresolvable")
	writePluginDir(t, env.root, "good", "good")

	summary := env.manager.Reconcile(context.Background(), nil)

	assert.Equal(t, []string{"good"}, summary.Loaded)
	assert.Empty(t, summary.Unloaded)
}

func TestNeedsReconcile_DebouncesOnMtime(t *testing.T) {
	env := newTestEnv(t, StaticResolver{})

	t.Run("no trigger marker", func(t *testing.T) {
		assert.False(t, env.manager.NeedsReconcile())
	})

	t.Run("fires once per change", func(t *testing.T) {
		require.NoError(t, TouchTrigger(env.root))

		assert.True(t, env.manager.NeedsReconcile())
		assert.False(t, env.manager.NeedsReconcile())
	})

	t.Run("fires again after a newer write", func(t *testing.T) {
		later := time.Now().Add(2 * time.Second)
		path := filepath.Join(env.root, TriggerFileName)
		require.NoError(t, os.Chtimes(path, later, later))

		assert.True(t, env.manager.NeedsReconcile())
		assert.False(t, env.manager.NeedsReconcile())
	})
}
