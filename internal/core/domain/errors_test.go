package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Run("codes are stable", func(t *testing.T) {
		assert.Equal(t, "VALIDATION_ERROR", NewValidationError("x", nil).Code)
		assert.Equal(t, "RESOURCE_PROCESSING_ERROR", NewResourceError("x", nil).Code)
		assert.Equal(t, "PLUGIN_NOT_FOUND", NewPluginNotFoundError("p").Code)
		assert.Equal(t, "PLUGIN_EXECUTION_ERROR", NewPluginExecutionError("x", nil).Code)
		assert.Equal(t, "TIMEOUT_ERROR", NewTimeoutError("t", 30).Code)
	})

	t.Run("not-found carries the plugin name", func(t *testing.T) {
		err := NewPluginNotFoundError("missing-plugin")
		assert.Contains(t, err.Error(), "missing-plugin")
		assert.Equal(t, "missing-plugin", err.Details["plugin_name"])
	})

	t.Run("timeout carries task id and budget", func(t *testing.T) {
		err := NewTimeoutError("task-1", 30)
		assert.Equal(t, "task-1", err.Details["task_id"])
		assert.Equal(t, 30, err.Details["timeout"])
	})

	t.Run("errors.As finds the typed error through wrapping", func(t *testing.T) {
		cause := fmt.Errorf("connection reset")
		err := NewPluginExecutionError("write failed", nil).WithCause(cause)
		wrapped := fmt.Errorf("dispatch: %w", err)

		var taskErr *TaskError
		require.True(t, errors.As(wrapped, &taskErr))
		assert.Equal(t, CodePluginExecution, taskErr.Code)
		assert.ErrorIs(t, wrapped, cause)
	})

	t.Run("details map is never nil", func(t *testing.T) {
		assert.NotNil(t, NewValidationError("x", nil).Details)
	})
}
