package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// ManifestFileName is the persisted manifest co-located with each plugin.
	ManifestFileName = "plugin.json"

	// EntryFileName marks a directory as a plugin. Its trimmed content names
	// the factory to resolve; empty content falls back to the directory name.
	EntryFileName = "plugin.ref"
)

// Manifest is the persisted JSON description of a plugin. The Enabled flag is
// authoritative and survives regeneration.
type Manifest struct {
	Name         string                 `json:"name"`
	DisplayName  string                 `json:"display_name,omitempty"`
	Version      string                 `json:"version"`
	Type         string                 `json:"type,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Tools        []ManifestTool         `json:"tools,omitempty"`
	Enabled      *bool                  `json:"enabled,omitempty"`
	ConfigSchema map[string]SchemaField `json:"config_schema,omitempty"`
}

// ManifestTool is one declared or proxy tool entry in the manifest.
type ManifestTool struct {
	Name            string `json:"name"`
	Module          string `json:"module,omitempty"`
	Level           string `json:"level,omitempty"`
	AutoRegister    bool   `json:"auto_register"`
	RequiresAgentID bool   `json:"requires_agent_id"`
}

// IsEnabled reports the enabled flag, defaulting to true when absent.
func (m *Manifest) IsEnabled() bool {
	return m == nil || m.Enabled == nil || *m.Enabled
}

// SetEnabled pins the enabled flag explicitly.
func (m *Manifest) SetEnabled(enabled bool) {
	m.Enabled = &enabled
}

// ManifestStore reads, regenerates, and writes plugin manifests.
type ManifestStore struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewManifestStore creates a manifest store.
func NewManifestStore(logger zerolog.Logger) *ManifestStore {
	return &ManifestStore{
		logger:       logger.With().Str("component", "manifest-store").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(ManifestSchema),
	}
}

// Read loads a manifest file. Parse errors are returned to the caller, which
// falls back to defaults per the error-handling contract.
func (s *ManifestStore) Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	return &manifest, nil
}

// EnabledOnDisk reports the persisted enabled flag for a plugin directory.
// Missing or unreadable manifests count as enabled.
func (s *ManifestStore) EnabledOnDisk(dir string) bool {
	manifest, err := s.Read(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return true
	}
	return manifest.IsEnabled()
}

// NameOnDisk returns the persisted plugin name for a directory, defaulting to
// the directory name when no readable manifest exists.
func (s *ManifestStore) NameOnDisk(dir string) string {
	manifest, err := s.Read(filepath.Join(dir, ManifestFileName))
	if err != nil || manifest.Name == "" {
		return filepath.Base(dir)
	}
	return manifest.Name
}

// Regenerate rebuilds a manifest from extracted metadata and tool sources.
// Proxy tools merge in only when their name is not already declared; the
// previously persisted enabled flag is carried over.
func (s *ManifestStore) Regenerate(meta Metadata, wrappers []*ToolModule, dynamic []ToolDescriptor, prior *Manifest) Manifest {
	manifest := Manifest{
		Name:         meta.Name,
		DisplayName:  meta.DisplayName,
		Version:      meta.Version,
		Type:         meta.Type,
		Description:  meta.Description,
		ConfigSchema: meta.ConfigSchema,
	}
	if manifest.DisplayName == "" {
		manifest.DisplayName = meta.Name
	}
	if manifest.Version == "" {
		manifest.Version = "0.0.0"
	}
	if _, err := semver.NewVersion(manifest.Version); err != nil {
		s.logger.Warn().
			Str("plugin", meta.Name).
			Str("version", manifest.Version).
			Msg("Plugin version is not valid semver, keeping as-is")
	}

	declared := make(map[string]bool)
	for _, w := range wrappers {
		manifest.Tools = append(manifest.Tools, ManifestTool{
			Name:            w.Namespace,
			Module:          w.Module(),
			Level:           w.Level,
			AutoRegister:    w.AutoRegister,
			RequiresAgentID: w.RequiresAgentID,
		})
		declared[w.Namespace] = true
	}

	// Explicit tools win name ties against proxy tools.
	for _, desc := range dynamic {
		if desc.Name == "" || declared[desc.Name] {
			continue
		}
		level := desc.Level
		if level == "" {
			level = DefaultToolLevel
		}
		manifest.Tools = append(manifest.Tools, ManifestTool{
			Name:            desc.Name,
			Module:          "proxy",
			Level:           level,
			AutoRegister:    desc.AutoRegister,
			RequiresAgentID: desc.RequiresAgentID,
		})
		declared[desc.Name] = true
	}

	sort.Slice(manifest.Tools, func(i, j int) bool {
		return manifest.Tools[i].Name < manifest.Tools[j].Name
	})

	if prior != nil {
		manifest.SetEnabled(prior.IsEnabled())
	} else {
		manifest.SetEnabled(true)
	}

	return manifest
}

// Write persists a manifest. The document is validated against the embedded
// schema first; validation failures abort the write.
func (s *ManifestStore) Write(dir string, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := s.validate(data); err != nil {
		return fmt.Errorf("manifest schema validation failed: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create plugin directory: %w", err)
	}

	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}

	s.logger.Debug().
		Str("plugin", manifest.Name).
		Str("path", path).
		Msg("Wrote manifest")
	return nil
}

func (s *ManifestStore) validate(data []byte) error {
	result, err := gojsonschema.Validate(s.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}

	return nil
}
