package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/plugins/discovery"
	"filmeto.ai/engine/internal/plugins/runtime"
	"filmeto.ai/engine/internal/process"
	"filmeto.ai/engine/internal/resources"
)

func newTestAPI(t *testing.T, root string) *API {
	t.Helper()
	ctx := context.Background()
	reg := discovery.NewRegistry(root, "main.sh")
	require.NoError(t, reg.Discover(ctx))
	sup := runtime.NewSupervisor(reg, process.NewExecutor(), runtime.Options{Interpreter: "/bin/sh"})
	t.Cleanup(func() { sup.StopAll(ctx) })
	processor, err := resources.NewProcessor(t.TempDir(), resources.DefaultLimits(), time.Minute)
	require.NoError(t, err)
	engine := NewEngine(sup, processor, time.Hour)
	return NewFromParts(engine, reg, sup, processor, 24*time.Hour)
}

func TestListTools(t *testing.T) {
	api := newTestAPI(t, t.TempDir())
	tools := api.ListTools()
	require.Len(t, tools, len(domain.AllTools()))
	byName := make(map[string]string, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool.DisplayName
	}
	assert.Equal(t, "Text To Image", byName["text2image"])
	assert.Equal(t, "Speak To Video", byName["speak2video"])
}

func TestExecuteTaskStreamUniformErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("typed errors become error results", func(t *testing.T) {
		api := newTestAPI(t, t.TempDir())

		task := domain.NewTask(domain.ToolTextToImage, "ghost", map[string]any{"prompt": "a cat"})
		stream, err := api.ExecuteTaskStream(ctx, task)
		require.NoError(t, err)

		var last StreamItem
		for item := range stream {
			assert.Nil(t, item.Err, "typed errors must not leak through the facade")
			last = item
		}
		require.NotNil(t, last.Result)
		assert.False(t, last.Result.Success())
		assert.NotEmpty(t, last.Result.ErrorMessage)
		assert.Equal(t, domain.CodePluginNotFound, last.Result.Metadata["error_code"])
	})

	t.Run("validation failures stay synchronous", func(t *testing.T) {
		api := newTestAPI(t, t.TempDir())

		task := domain.NewTask(domain.ToolTextToImage, "", map[string]any{"prompt": "a cat"})
		stream, err := api.ExecuteTaskStream(ctx, task)
		assert.Nil(t, stream)
		var taskErr *domain.TaskError
		require.ErrorAs(t, err, &taskErr)
		assert.Equal(t, domain.CodeValidation, taskErr.Code)
	})
}

func TestSuccessfulStreamPassesThrough(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeEnginePlugin(t, root, "render", renderScript)
	api := newTestAPI(t, root)

	task := domain.NewTask(domain.ToolTextToImage, "render", map[string]any{"prompt": "a cat"})
	stream, err := api.ExecuteTaskStream(ctx, task)
	require.NoError(t, err)

	var last StreamItem
	terminals := 0
	for item := range stream {
		if item.Terminal() {
			terminals++
		}
		last = item
	}
	assert.Equal(t, 1, terminals)
	require.NotNil(t, last.Result)
	assert.True(t, last.Result.Success())
}

func TestCacheOperations(t *testing.T) {
	api := newTestAPI(t, t.TempDir())

	size, err := api.CacheSize()
	require.NoError(t, err)
	assert.Zero(t, size)

	deleted, err := api.CleanupCache(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestValidateTask(t *testing.T) {
	api := newTestAPI(t, t.TempDir())

	ok, reason := api.ValidateTask(domain.NewTask(domain.ToolTextToImage, "render", map[string]any{"prompt": "x"}))
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = api.ValidateTask(domain.NewTask(domain.ToolTextToImage, "render", map[string]any{"width": 512}))
	assert.False(t, ok)
	assert.Contains(t, reason, "prompt")
}
