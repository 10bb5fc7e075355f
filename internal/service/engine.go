// Package service orchestrates task execution: validation, resource
// resolution, plugin acquisition, and re-emission of the plugin's message
// stream with phase-scaled percentages.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/logging"
	"filmeto.ai/engine/internal/plugins/runtime"
	"filmeto.ai/engine/internal/resources"
)

// Phase boundaries of the fixed percent mapping: resource processing fills
// 0-10, plugin acquisition 10-15, plugin execution 15-95, finalization
// 95-100.
const (
	percentResourcesEnd = 10.0
	percentPluginStart  = 15.0
	percentPluginEnd    = 95.0
	percentDone         = 100.0
)

const defaultHeartbeatInterval = 5 * time.Second

// StreamItem is one element of a task's execution stream: a progress
// notification, a terminal result, or a terminal typed error. Exactly one
// terminal item ends every stream.
type StreamItem struct {
	Progress *domain.TaskProgress
	Result   *domain.TaskResult
	Err      *domain.TaskError
}

// Terminal reports whether the item ends the stream.
func (s StreamItem) Terminal() bool {
	return s.Result != nil || s.Err != nil
}

// Engine executes tasks through plugins. All collaborators are injected;
// the engine holds no global state.
type Engine struct {
	supervisor        *runtime.Supervisor
	resources         *resources.Processor
	heartbeatInterval time.Duration
}

// NewEngine builds an engine over the given supervisor and resource
// processor. A zero heartbeatInterval selects the five second default.
func NewEngine(supervisor *runtime.Supervisor, processor *resources.Processor, heartbeatInterval time.Duration) *Engine {
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	return &Engine{
		supervisor:        supervisor,
		resources:         processor,
		heartbeatInterval: heartbeatInterval,
	}
}

// ExecuteStream validates the task and returns its execution stream. A
// validation failure is returned synchronously, before any progress is
// emitted or any side effect happens. The returned channel always ends in
// exactly one terminal item.
func (e *Engine) ExecuteStream(ctx context.Context, task *domain.Task) (<-chan StreamItem, error) {
	if valid, reason := task.Validate(); !valid {
		return nil, domain.NewValidationError(reason, map[string]any{"task_id": task.ID})
	}

	out := make(chan StreamItem)
	go e.run(ctx, task, out)
	return out, nil
}

// run drives one task. It owns the out channel and closes it after the
// single terminal item.
func (e *Engine) run(ctx context.Context, task *domain.Task, out chan<- StreamItem) {
	start := time.Now()
	log := logging.FromContext(ctx)

	taskCtx, cancel := context.WithTimeout(ctx, task.EffectiveTimeout())
	defer cancel()

	terminal := false
	defer func() {
		// Unexpected failures still terminate the stream with a result
		// so no caller is left hanging.
		if r := recover(); r != nil {
			log.Error("task execution panicked", "task_id", task.ID, "panic", r)
			if !terminal {
				out <- StreamItem{Result: errorResult(task.ID, fmt.Sprintf("internal error: %v", r), start)}
			}
		}
		close(out)
	}()
	emit := func(item StreamItem) bool {
		if item.Terminal() {
			terminal = true
		}
		select {
		case out <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		emit(StreamItem{Err: e.classify(task, err)})
	}

	// Phase 1: resource processing, 0-10%.
	if !emit(progressItem(task.ID, domain.ProgressStarted, 0, "Processing resources...")) {
		return
	}
	processed := make([]string, 0, len(task.Resources))
	for i, resource := range task.Resources {
		localPath, err := e.resources.Process(taskCtx, resource)
		if err != nil {
			fail(err)
			return
		}
		processed = append(processed, localPath)
		percent := float64(i+1) / float64(len(task.Resources)) * percentResourcesEnd
		msg := fmt.Sprintf("Processed resource %d/%d", i+1, len(task.Resources))
		if !emit(progressItem(task.ID, domain.ProgressUpdate, percent, msg)) {
			return
		}
	}
	if task.Metadata == nil {
		task.Metadata = make(map[string]any)
	}
	task.Metadata["processed_resources"] = processed

	// Phase 2: plugin acquisition, 10-15%.
	msg := fmt.Sprintf("Starting plugin: %s", task.PluginName)
	if !emit(progressItem(task.ID, domain.ProgressUpdate, percentResourcesEnd, msg)) {
		return
	}
	handle, err := e.supervisor.GetOrStart(taskCtx, task.PluginName)
	if err != nil {
		fail(err)
		return
	}

	// Phase 3: plugin execution, 15-95%.
	if !emit(progressItem(task.ID, domain.ProgressUpdate, percentPluginStart, "Executing task...")) {
		return
	}
	if err := handle.Send(taskCtx, task); err != nil {
		e.supervisor.Discard(ctx, task.PluginName)
		fail(err)
		return
	}

	// The heartbeat keeper runs only while the plugin stream is live and
	// is joined before any terminal item, on every exit path.
	keeper := newHeartbeatKeeper(task.ID, e.heartbeatInterval, out)
	keeper.start()
	defer keeper.stop()

	var result *StreamItem
	inbox := handle.Receive(taskCtx)
receive:
	for {
		select {
		case inbound, ok := <-inbox:
			if !ok {
				break receive
			}
			item, isResult := e.translate(task, inbound, start)
			if item == nil {
				continue
			}
			if isResult {
				result = item
				break receive
			}
			if !emit(*item) {
				return
			}
		case <-taskCtx.Done():
			// A worker that stops talking must not stall the stream past
			// the task's deadline.
			break receive
		}
	}
	keeper.stop()

	if result != nil {
		// Phase 4: finalization, 95-100%.
		if result.Result.Success() {
			if !emit(progressItem(task.ID, domain.ProgressCompleted, percentDone, "Finalizing result")) {
				return
			}
		}
		emit(*result)
		return
	}

	// The channel closed without a terminal result: the worker died
	// mid-task or the task timed out. Drop the handle either way so the
	// next request starts fresh.
	e.supervisor.Discard(ctx, task.PluginName)
	if taskCtx.Err() == context.DeadlineExceeded {
		emit(StreamItem{Err: domain.NewTimeoutError(task.ID, int(task.EffectiveTimeout().Seconds()))})
		return
	}
	emit(StreamItem{Err: domain.NewPluginExecutionError(
		fmt.Sprintf("plugin %s exited before sending a result", task.PluginName),
		map[string]any{"plugin": task.PluginName, "task_id": task.ID},
	)})
}

// classify maps an error to its taxonomy kind, folding context deadline
// expiry into the timeout category. The deadline check walks the whole
// cause chain and wins over an already-typed error, so a failure whose root
// cause is the expired task deadline reports as a timeout.
func (e *Engine) classify(task *domain.Task, err error) *domain.TaskError {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTimeoutError(task.ID, int(task.EffectiveTimeout().Seconds()))
	}
	var taskErr *domain.TaskError
	if errors.As(err, &taskErr) {
		return taskErr
	}
	return domain.NewPluginExecutionError(err.Error(), map[string]any{"task_id": task.ID})
}
