package discovery

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"filmeto.ai/engine/internal/core/domain"
)

// ManifestFileName is the per-plugin descriptor each plugin directory must
// contain.
const ManifestFileName = "plugin.yaml"

// manifest mirrors plugin.yaml. Either the legacy single ToolType or the
// Tools list must be present.
type manifest struct {
	Name        string         `yaml:"name"`
	Version     string         `yaml:"version"`
	Description string         `yaml:"description"`
	Author      string         `yaml:"author"`
	Engine      string         `yaml:"engine"`
	ToolType    string         `yaml:"tool_type"`
	Tools       []manifestTool `yaml:"tools"`
}

type manifestTool struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Parameters  []map[string]any `yaml:"parameters"`
}

// loadManifest parses and validates one plugin.yaml, returning the declared
// tool list normalized to the multi-tool form.
func loadManifest(path string) (*manifest, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" || m.Version == "" || m.Description == "" {
		return nil, nil, fmt.Errorf("manifest missing required fields (name, version, description)")
	}
	if m.ToolType == "" && len(m.Tools) == 0 {
		return nil, nil, fmt.Errorf("manifest missing 'tool_type' or 'tools'")
	}

	// Raw map retained for optional fields like startup.timeout.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, raw, nil
}

// tools returns the declared tools, converting a legacy tool_type entry
// into the list form.
func (m *manifest) tools() []domain.ToolInfo {
	if m.ToolType != "" && len(m.Tools) == 0 {
		return []domain.ToolInfo{{Name: m.ToolType, Description: m.Description}}
	}
	out := make([]domain.ToolInfo, 0, len(m.Tools))
	for _, t := range m.Tools {
		out = append(out, domain.ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}
