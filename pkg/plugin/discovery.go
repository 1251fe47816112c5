package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// DiscoveredPlugin is one plugin directory found during a scan.
type DiscoveredPlugin struct {
	DirName    string
	Path       string
	FactoryRef string
}

// Discovery scans the plugins root for plugin directories.
type Discovery struct {
	logger zerolog.Logger
	root   string
}

// NewDiscovery creates a discovery for one plugins root.
func NewDiscovery(logger zerolog.Logger, root string) *Discovery {
	return &Discovery{
		logger: logger.With().Str("component", "plugin-discovery").Logger(),
		root:   root,
	}
}

// Scan returns every subdirectory carrying a recognized entry file, in
// ascending directory-name order. Directories without one are not plugins
// and are skipped silently.
func (d *Discovery) Scan() ([]DiscoveredPlugin, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Warn().Str("dir", d.root).Msg("Plugins directory not found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat plugins directory %s: %w", d.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.root)
	}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory %s: %w", d.root, err)
	}

	var discovered []DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(d.root, entry.Name())
		ref, ok := readEntryFile(pluginDir)
		if !ok {
			d.logger.Debug().
				Str("dir", pluginDir).
				Msg("Directory does not contain an entry file, skipping")
			continue
		}
		if ref == "" {
			ref = entry.Name()
		}

		discovered = append(discovered, DiscoveredPlugin{
			DirName:    entry.Name(),
			Path:       pluginDir,
			FactoryRef: ref,
		})
		d.logger.Debug().
			Str("dir", pluginDir).
			Str("ref", ref).
			Msg("Discovered plugin")
	}

	sort.Slice(discovered, func(i, j int) bool {
		return discovered[i].DirName < discovered[j].DirName
	})
	return discovered, nil
}

// readEntryFile reports whether dir contains the entry file and returns its
// trimmed content.
func readEntryFile(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, EntryFileName))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
