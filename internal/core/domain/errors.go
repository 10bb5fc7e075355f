package domain

import "fmt"

// Stable machine-readable error codes for the engine's error taxonomy.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeResourceProcessing = "RESOURCE_PROCESSING_ERROR"
	CodePluginNotFound     = "PLUGIN_NOT_FOUND"
	CodePluginExecution    = "PLUGIN_EXECUTION_ERROR"
	CodeTimeout            = "TIMEOUT_ERROR"
)

// TaskError is the engine's typed error: a stable code, a human message,
// and a structured detail map sufficient to render a precise diagnostic.
type TaskError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *TaskError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error without changing the code.
func (e *TaskError) WithCause(err error) *TaskError {
	e.cause = err
	return e
}

func newTaskError(code, message string, details map[string]any) *TaskError {
	if details == nil {
		details = map[string]any{}
	}
	return &TaskError{Code: code, Message: message, Details: details}
}

// NewValidationError reports a malformed or incomplete task, caught before
// any side effect.
func NewValidationError(message string, details map[string]any) *TaskError {
	return newTaskError(CodeValidation, message, details)
}

// NewResourceError reports a missing, oversized, undownloadable, or
// undecodable resource input.
func NewResourceError(message string, details map[string]any) *TaskError {
	return newTaskError(CodeResourceProcessing, message, details)
}

// NewPluginNotFoundError reports a request for a plugin that discovery
// never catalogued.
func NewPluginNotFoundError(pluginName string) *TaskError {
	return newTaskError(
		CodePluginNotFound,
		fmt.Sprintf("plugin %q not found", pluginName),
		map[string]any{"plugin_name": pluginName},
	)
}

// NewPluginExecutionError reports a startup, control-channel, or mid-task
// process failure.
func NewPluginExecutionError(message string, details map[string]any) *TaskError {
	return newTaskError(CodePluginExecution, message, details)
}

// NewTimeoutError reports a task exceeding its declared budget.
func NewTimeoutError(taskID string, timeoutSeconds int) *TaskError {
	return newTaskError(
		CodeTimeout,
		fmt.Sprintf("task %q exceeded timeout of %d seconds", taskID, timeoutSeconds),
		map[string]any{"task_id": taskID, "timeout": timeoutSeconds},
	)
}
