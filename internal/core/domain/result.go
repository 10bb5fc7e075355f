package domain

import "strings"

// Task result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TaskResult is the single terminal item of a task's stream. Once emitted
// the engine retains no reference to it.
type TaskResult struct {
	TaskID          string           `json:"task_id"`
	Status          string           `json:"status"`
	OutputFiles     []string         `json:"output_files,omitempty"`
	OutputResources []ResourceOutput `json:"output_resources,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	ExecutionTime   float64          `json:"execution_time"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// Success reports whether the task completed successfully.
func (r *TaskResult) Success() bool {
	return r.Status == StatusSuccess
}

// ImagePath returns the first image output file, or "".
func (r *TaskResult) ImagePath() string {
	return r.firstWithSuffix(".png", ".jpg", ".jpeg", ".webp")
}

// VideoPath returns the first video output file, or "".
func (r *TaskResult) VideoPath() string {
	return r.firstWithSuffix(".mp4", ".mov", ".avi")
}

// AudioPath returns the first audio output file, or "".
func (r *TaskResult) AudioPath() string {
	return r.firstWithSuffix(".mp3", ".wav", ".ogg", ".m4a")
}

func (r *TaskResult) firstWithSuffix(suffixes ...string) string {
	for _, path := range r.OutputFiles {
		for _, suffix := range suffixes {
			if strings.HasSuffix(path, suffix) {
				return path
			}
		}
	}
	return ""
}
