package plugin

import (
	"context"
)

// ToolFunc executes one tool method.
type ToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// HookFunc processes a hook context and returns the (possibly replaced)
// context for the next handler in the chain. Returning nil keeps the
// incoming context.
type HookFunc func(ctx context.Context, hc *HookContext) (*HookContext, error)

// EventCallback receives an event published on the shared bus.
type EventCallback func(ctx context.Context, payload map[string]any)

// Plugin is the lifecycle contract every plugin implements.
type Plugin interface {
	// OnLoad is called after registration completes. A failure is logged
	// but does not roll back the load.
	OnLoad(ctx context.Context) error

	// OnUnload is called first during teardown.
	OnUnload(ctx context.Context) error
}

// ToolProvider is implemented by plugins that declare tool handlers.
type ToolProvider interface {
	Tools() []ToolHandler
}

// HookProvider is implemented by plugins that declare lifecycle hook handlers.
type HookProvider interface {
	Hooks() []HookHandler
}

// EventProvider is implemented by plugins that subscribe to bus events.
// Subscriptions are established at load time, not at first delivery.
type EventProvider interface {
	Events() []EventHandler
}

// DynamicToolProvider is implemented by plugins that supply proxy tools at
// bind time. The list is queried fresh on every bind so it can reflect
// runtime state.
type DynamicToolProvider interface {
	DynamicTools() []ToolDescriptor
}

// EventBus is the shared bus collaborator. Subscribe returns an opaque token
// used to reverse the subscription.
type EventBus interface {
	Subscribe(event string, cb EventCallback) string
	Unsubscribe(event, token string)
}

// ToolRegistry is the external registry plugin tools are bound into.
// Unregister of an unknown namespace must not be treated as fatal.
type ToolRegistry interface {
	Register(handler any, namespace, level string) error
	Unregister(namespace string) error
}

// AgentIdentitySetter is probed on proxy tool modules that require the
// current agent identity.
type AgentIdentitySetter interface {
	SetAgentID(agentID string)
}

// Factory instantiates a plugin implementation with its execution context.
type Factory struct {
	Meta Metadata
	New  func(ec *ExecutionContext) (Plugin, error)
}

// Resolver maps an entry-file reference to a plugin factory. The manager
// holds a non-owning reference; hosts typically use a StaticResolver.
type Resolver interface {
	Resolve(ref string) (Factory, bool)
}

// StaticResolver is a fixed table of plugin factories keyed by reference name.
type StaticResolver map[string]Factory

// Resolve looks up a factory by reference.
func (r StaticResolver) Resolve(ref string) (Factory, bool) {
	f, ok := r[ref]
	return f, ok
}
