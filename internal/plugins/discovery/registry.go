// Package discovery scans the plugin root directory for plugin packages and
// holds their static metadata. It knows nothing about running processes.
package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/logging"
)

// DefaultEntryPoint is the launch script a plugin directory must contain.
const DefaultEntryPoint = "main.py"

// RequirementsFileName is the optional dependency manifest noted during
// discovery.
const RequirementsFileName = "requirements.txt"

// Registry is the in-memory plugin catalogue. Discover replaces its
// contents wholesale; lookups are safe for concurrent use.
type Registry struct {
	rootDir    string
	entryPoint string

	mu      sync.RWMutex
	plugins map[string]*domain.PluginInfo
}

// NewRegistry creates a registry over rootDir. An empty entryPoint selects
// the default launch script name.
func NewRegistry(rootDir, entryPoint string) *Registry {
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	return &Registry{
		rootDir:    rootDir,
		entryPoint: entryPoint,
		plugins:    make(map[string]*domain.PluginInfo),
	}
}

// Discover scans every immediate subdirectory of the root for a valid
// plugin package. Directories missing the manifest, the entry point, or
// required fields are skipped with a warning; only failure to read the root
// itself is an error. The catalogue is replaced wholesale.
func (r *Registry) Discover(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Debug("discovering plugins", "dir", r.rootDir)

	entries, err := os.ReadDir(r.rootDir)
	if err != nil {
		return fmt.Errorf("read plugins directory %s: %w", r.rootDir, err)
	}

	found := make(map[string]*domain.PluginInfo)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}

		pluginDir := filepath.Join(r.rootDir, name)
		info, err := r.loadPlugin(pluginDir)
		if err != nil {
			log.Warn("skipping plugin", "dir", name, "error", err)
			continue
		}

		found[info.Name] = info
		toolNames := make([]string, 0, len(info.Tools))
		for _, t := range info.Tools {
			toolNames = append(toolNames, t.Name)
		}
		log.Info("discovered plugin",
			"name", info.Name,
			"version", info.Version,
			"tools", strings.Join(toolNames, ","),
		)
	}

	r.mu.Lock()
	r.plugins = found
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadPlugin(pluginDir string) (*domain.PluginInfo, error) {
	manifestPath := filepath.Join(pluginDir, ManifestFileName)
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, fmt.Errorf("no %s", ManifestFileName)
	}

	m, raw, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	entryPath := filepath.Join(pluginDir, r.entryPoint)
	if _, err := os.Stat(entryPath); err != nil {
		return nil, fmt.Errorf("entry point %s not found", r.entryPoint)
	}

	requirements := filepath.Join(pluginDir, RequirementsFileName)
	if _, err := os.Stat(requirements); err != nil {
		requirements = ""
	}

	return &domain.PluginInfo{
		Name:             m.Name,
		Version:          m.Version,
		Description:      m.Description,
		Author:           m.Author,
		Engine:           m.Engine,
		Tools:            m.tools(),
		PluginDir:        pluginDir,
		EntryPoint:       entryPath,
		RequirementsFile: requirements,
		Config:           raw,
	}, nil
}

// List returns every discovered plugin.
func (r *Registry) List() []*domain.PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.PluginInfo, 0, len(r.plugins))
	for _, info := range r.plugins {
		out = append(out, info)
	}
	return out
}

// GetByName looks up one plugin by name.
func (r *Registry) GetByName(name string) (*domain.PluginInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.plugins[name]
	return info, ok
}

// GetByTool returns every plugin declaring the named tool.
func (r *Registry) GetByTool(toolName string) []*domain.PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.PluginInfo
	for _, info := range r.plugins {
		if info.SupportsTool(toolName) {
			out = append(out, info)
		}
	}
	return out
}
