package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTaskTimeout bounds a task's total execution when the caller does
// not set one.
const DefaultTaskTimeout = 300 * time.Second

// Task is one unit of requested work targeting a specific tool and plugin.
// The engine never mutates a task except to record processed resource paths
// into its metadata before dispatch.
type Task struct {
	ID         string          `json:"task_id"`
	ToolName   ToolType        `json:"tool_name"`
	PluginName string          `json:"plugin_name"`
	Parameters map[string]any  `json:"parameters"`
	Resources  []ResourceInput `json:"resources,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Timeout    time.Duration   `json:"-"`
	Metadata   map[string]any  `json:"metadata,omitempty"`

	// TimeoutSeconds is the wire representation of Timeout.
	TimeoutSeconds int `json:"timeout"`
}

// NewTask builds a task with a fresh id, creation timestamp, and the
// default timeout.
func NewTask(tool ToolType, pluginName string, parameters map[string]any) *Task {
	return &Task{
		ID:             uuid.NewString(),
		ToolName:       tool,
		PluginName:     pluginName,
		Parameters:     parameters,
		CreatedAt:      time.Now(),
		Timeout:        DefaultTaskTimeout,
		TimeoutSeconds: int(DefaultTaskTimeout / time.Second),
		Metadata:       make(map[string]any),
	}
}

// EffectiveTimeout reconciles the two timeout representations, preferring
// the duration when set.
func (t *Task) EffectiveTimeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}
	return DefaultTaskTimeout
}

// Validate checks the task structure and tool-specific requirements without
// side effects. It returns false with a human-readable reason naming the
// missing piece.
func (t *Task) Validate() (bool, string) {
	if t.PluginName == "" {
		return false, "plugin name is required"
	}
	if len(t.Parameters) == 0 {
		return false, "parameters are required"
	}
	for i, r := range t.Resources {
		if r.Data == "" {
			return false, fmt.Sprintf("resource %d: data cannot be empty", i)
		}
		if r.MimeType == "" {
			return false, fmt.Sprintf("resource %d: mime_type is required", i)
		}
	}

	switch t.ToolName {
	case ToolTextToImage, ToolTextToVideo, ToolTextToMusic:
		if _, ok := t.Parameters["prompt"]; !ok {
			return false, fmt.Sprintf("%s requires 'prompt' parameter", t.ToolName)
		}
	case ToolImageToImage:
		if _, ok := t.Parameters["prompt"]; !ok {
			return false, "image2image requires 'prompt' parameter"
		}
		if len(t.Resources) == 0 {
			return false, "image2image requires at least one input image"
		}
	case ToolImageToVideo:
		if len(t.Resources) == 0 {
			return false, "image2video requires at least one input image"
		}
	case ToolSpeakToVideo:
		if len(t.Resources) == 0 {
			return false, "speak2video requires audio input"
		}
	case ToolTextToSpeech:
		if _, ok := t.Parameters["text"]; !ok {
			return false, "text2speak requires 'text' parameter"
		}
	default:
		return false, fmt.Sprintf("unknown tool: %s", t.ToolName)
	}

	return true, ""
}
