package domain

import "time"

// ProgressType classifies a progress notification.
type ProgressType string

const (
	ProgressStarted   ProgressType = "started"
	ProgressUpdate    ProgressType = "progress"
	ProgressHeartbeat ProgressType = "heartbeat"
	ProgressCompleted ProgressType = "completed"
	ProgressFailed    ProgressType = "failed"
)

// TaskProgress is one immutable progress notification for a task. Within a
// single task's stream, percentages are non-decreasing except heartbeats,
// which carry no percent.
type TaskProgress struct {
	TaskID    string         `json:"task_id"`
	Type      ProgressType   `json:"type"`
	Percent   float64        `json:"percent"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewProgress builds a timestamped progress notification.
func NewProgress(taskID string, kind ProgressType, percent float64, message string) TaskProgress {
	return TaskProgress{
		TaskID:    taskID,
		Type:      kind,
		Percent:   percent,
		Message:   message,
		Timestamp: time.Now(),
	}
}
