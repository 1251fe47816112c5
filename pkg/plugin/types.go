package plugin

import (
	"time"
)

// Default tool capability level used when a handler does not declare one.
const DefaultToolLevel = "extended"

// Metadata describes a plugin before it is instantiated.
type Metadata struct {
	Name         string
	DisplayName  string
	Version      string
	Type         string
	Description  string
	ConfigSchema map[string]SchemaField
}

// SchemaField describes a single config key in a plugin's config schema.
type SchemaField struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// ToolHandler is a single declared tool method. Handlers sharing a Name are
// grouped into one namespace wrapper at load time.
type ToolHandler struct {
	Name            string // namespace the handler registers under
	Method          string
	Doc             string
	Level           string
	AutoRegister    bool
	RequiresAgentID bool
	Fn              ToolFunc
}

// HookHandler is a declared lifecycle hook handler.
type HookHandler struct {
	Hook     string
	Priority int
	Fn       HookFunc
}

// EventHandler is a declared event-bus subscription.
type EventHandler struct {
	Event string
	Fn    EventCallback
}

// ToolDescriptor describes a proxy-style tool supplied dynamically by a
// plugin at bind time. Module is the backing handler registered into the
// external registry.
type ToolDescriptor struct {
	Name            string
	Module          any
	Level           string
	AutoRegister    bool
	RequiresAgentID bool
}

// EventSubscription records one bus subscription so teardown can reverse it.
// The bus owns the actual subscription; this is only the receipt.
type EventSubscription struct {
	Event  string
	Token  string
	Plugin string
}

// Record tracks a loaded plugin and everything needed to tear it down.
type Record struct {
	Name     string
	Plugin   Plugin
	Meta     Metadata
	Manifest Manifest
	Dir      string
	HookMap  map[string][]HookHandler
	Wrappers []*ToolModule
	LoadedAt time.Time
}

// OutcomeStatus classifies the result of loading one plugin directory.
type OutcomeStatus string

const (
	StatusLoaded  OutcomeStatus = "loaded"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

// Outcome is the structured result of a single directory load.
type Outcome struct {
	Status OutcomeStatus
	Name   string
	Reason string
	Err    error
}

func loadedOutcome(name string) Outcome {
	return Outcome{Status: StatusLoaded, Name: name}
}

func skippedOutcome(name, reason string) Outcome {
	return Outcome{Status: StatusSkipped, Name: name, Reason: reason}
}

func failedOutcome(name string, err error) Outcome {
	return Outcome{Status: StatusFailed, Name: name, Err: err}
}

// LoadReport summarizes a discover-all pass.
type LoadReport struct {
	Loaded  []string
	Skipped []string
	Failed  []string
	Errors  map[string]error
}

// NewLoadReport creates an empty report.
func NewLoadReport() *LoadReport {
	return &LoadReport{
		Loaded:  []string{},
		Skipped: []string{},
		Failed:  []string{},
		Errors:  make(map[string]error),
	}
}

func (r *LoadReport) add(o Outcome) {
	switch o.Status {
	case StatusLoaded:
		r.Loaded = append(r.Loaded, o.Name)
	case StatusSkipped:
		r.Skipped = append(r.Skipped, o.Name)
	case StatusFailed:
		r.Failed = append(r.Failed, o.Name)
		if o.Err != nil {
			r.Errors[o.Name] = o.Err
		}
	}
}

// ReloadSummary reports the plugins a reconcile pass loaded and unloaded.
type ReloadSummary struct {
	Loaded   []string
	Unloaded []string
}

// Empty reports whether the reconcile pass changed anything.
func (s ReloadSummary) Empty() bool {
	return len(s.Loaded) == 0 && len(s.Unloaded) == 0
}

// Summary is a display-oriented row for one loaded plugin.
type Summary struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Type        string `json:"type"`
	Description string `json:"description"`
}
