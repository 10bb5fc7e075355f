package domain

// ToolInfo describes one tool a plugin declares in its manifest.
type ToolInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  []map[string]any `json:"parameters,omitempty"`
}

// PluginInfo is the static metadata loaded from a plugin's manifest at
// discovery time. It is immutable after discovery; re-discovery replaces
// the whole catalogue.
type PluginInfo struct {
	Name             string         `json:"name"`
	Version          string         `json:"version"`
	Description      string         `json:"description"`
	Author           string         `json:"author,omitempty"`
	Engine           string         `json:"engine,omitempty"`
	Tools            []ToolInfo     `json:"tools"`
	PluginDir        string         `json:"plugin_dir"`
	EntryPoint       string         `json:"entry_point"`
	RequirementsFile string         `json:"requirements_file,omitempty"`
	Config           map[string]any `json:"-"`
}

// SupportsTool reports whether the plugin declares the named tool.
func (p *PluginInfo) SupportsTool(toolName string) bool {
	for _, tool := range p.Tools {
		if tool.Name == toolName {
			return true
		}
	}
	return false
}

// StartupTimeoutSeconds reads the optional startup.timeout manifest field,
// returning 0 when absent so callers can apply their default.
func (p *PluginInfo) StartupTimeoutSeconds() int {
	startup, ok := p.Config["startup"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := startup["timeout"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
