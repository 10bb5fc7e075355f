package service

import (
	"context"
	"time"

	"filmeto.ai/engine/internal/config"
	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/logging"
	"filmeto.ai/engine/internal/plugins/discovery"
	"filmeto.ai/engine/internal/plugins/runtime"
	"filmeto.ai/engine/internal/process"
	"filmeto.ai/engine/internal/resources"
)

// ToolDescriptor is one entry of the tool listing exposed to callers.
type ToolDescriptor struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// API is the thin pass-through surface consumed by outer layers (GUI,
// web). It is explicitly constructed; there is no process-wide instance.
type API struct {
	engine     *Engine
	registry   *discovery.Registry
	supervisor *runtime.Supervisor
	resources  *resources.Processor
	cleanupAge time.Duration
}

// New wires the full engine stack from configuration and runs plugin
// discovery once.
func New(ctx context.Context, cfg config.Config) (*API, error) {
	registry := discovery.NewRegistry(cfg.Plugins.Dir, cfg.Plugins.EntryPoint)
	if err := registry.Discover(ctx); err != nil {
		return nil, err
	}

	supervisor := runtime.NewSupervisor(registry, process.NewExecutor(), runtime.Options{
		Interpreter:     cfg.Plugins.Interpreter,
		ReadyTimeout:    cfg.Plugins.ReadyTimeout,
		PingTimeout:     cfg.Plugins.PingTimeout,
		StopGracePeriod: cfg.Plugins.StopGracePeriod,
		PingBeforeReuse: cfg.Plugins.PingBeforeReuse,
	})

	processor, err := resources.NewProcessor(cfg.Resources.CacheDir, resources.Limits{
		MaxImageSize: cfg.Resources.MaxImageSize,
		MaxVideoSize: cfg.Resources.MaxVideoSize,
		MaxAudioSize: cfg.Resources.MaxAudioSize,
	}, cfg.Resources.DownloadTimeout)
	if err != nil {
		return nil, err
	}

	return &API{
		engine:     NewEngine(supervisor, processor, 0),
		registry:   registry,
		supervisor: supervisor,
		resources:  processor,
		cleanupAge: cfg.Resources.CleanupMaxAge,
	}, nil
}

// NewFromParts wires an API over already-constructed collaborators, mainly
// for tests.
func NewFromParts(engine *Engine, registry *discovery.Registry, supervisor *runtime.Supervisor, processor *resources.Processor, cleanupAge time.Duration) *API {
	return &API{
		engine:     engine,
		registry:   registry,
		supervisor: supervisor,
		resources:  processor,
		cleanupAge: cleanupAge,
	}
}

// ExecuteTaskStream executes a task and returns a uniform stream: every
// terminal typed error is converted into an error TaskResult, so callers
// always see progress items followed by exactly one result.
func (a *API) ExecuteTaskStream(ctx context.Context, task *domain.Task) (<-chan StreamItem, error) {
	start := time.Now()
	inner, err := a.engine.ExecuteStream(ctx, task)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamItem)
	go func() {
		defer close(out)
		for item := range inner {
			if item.Err != nil {
				result := errorResult(task.ID, item.Err.Message, start)
				result.Metadata = map[string]any{"error_code": item.Err.Code, "error_details": item.Err.Details}
				item = StreamItem{Result: result}
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ValidateTask checks a task without executing it.
func (a *API) ValidateTask(task *domain.Task) (bool, string) {
	return task.Validate()
}

// ListTools lists every tool the engine knows about.
func (a *API) ListTools() []ToolDescriptor {
	tools := domain.AllTools()
	out := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		out = append(out, ToolDescriptor{Name: string(tool), DisplayName: tool.DisplayName()})
	}
	return out
}

// ListPlugins lists every discovered plugin.
func (a *API) ListPlugins() []*domain.PluginInfo {
	return a.registry.List()
}

// PluginsByTool lists the plugins declaring the named tool.
func (a *API) PluginsByTool(toolName string) []*domain.PluginInfo {
	return a.registry.GetByTool(toolName)
}

// Discover rebuilds the plugin catalogue from disk.
func (a *API) Discover(ctx context.Context) error {
	return a.registry.Discover(ctx)
}

// CacheSize sums the resource cache in bytes.
func (a *API) CacheSize() (int64, error) {
	return a.resources.CacheSize()
}

// CleanupCache deletes cache entries older than maxAge.
func (a *API) CleanupCache(ctx context.Context, maxAge time.Duration) (int, error) {
	return a.resources.Cleanup(ctx, maxAge)
}

// Cleanup stops every plugin worker and prunes the resource cache.
func (a *API) Cleanup(ctx context.Context) {
	a.supervisor.StopAll(ctx)
	if _, err := a.resources.Cleanup(ctx, a.cleanupAge); err != nil {
		logging.FromContext(ctx).Warn("cache cleanup failed", "error", err)
	}
}
