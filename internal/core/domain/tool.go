package domain

import "strings"

// ToolType identifies a logical generation tool. The values are wire-level
// identifiers shared with plugins, so they never change even if display
// names do.
type ToolType string

const (
	ToolTextToImage  ToolType = "text2image"
	ToolImageToImage ToolType = "image2image"
	ToolImageToVideo ToolType = "image2video"
	ToolTextToVideo  ToolType = "text2video"
	ToolSpeakToVideo ToolType = "speak2video"
	ToolTextToSpeech ToolType = "text2speak"
	ToolTextToMusic  ToolType = "text2music"
)

// AllTools lists every tool the engine knows about, in a stable order.
func AllTools() []ToolType {
	return []ToolType{
		ToolTextToImage,
		ToolImageToImage,
		ToolImageToVideo,
		ToolTextToVideo,
		ToolSpeakToVideo,
		ToolTextToSpeech,
		ToolTextToMusic,
	}
}

// IsValid reports whether t is one of the known tool types.
func (t ToolType) IsValid() bool {
	for _, known := range AllTools() {
		if t == known {
			return true
		}
	}
	return false
}

// DisplayName renders a human-readable name, e.g. "text2image" becomes
// "Text To Image".
func (t ToolType) DisplayName() string {
	words := strings.Split(strings.ReplaceAll(string(t), "2", " to "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
