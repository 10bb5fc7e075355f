// Package runtime owns the lifecycle of plugin worker processes: start
// with ready handshake, health checks, task dispatch over the control
// channel, and graceful-then-forced termination.
package runtime

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/logging"
	"filmeto.ai/engine/internal/plugins/discovery"
	"filmeto.ai/engine/internal/process"
	"filmeto.ai/engine/internal/protocol"
)

// Options tunes supervisor behavior. Zero values select the defaults.
type Options struct {
	// Interpreter launches script entry points, e.g. "python3". Empty
	// means the entry point is executed directly.
	Interpreter string

	// ReadyTimeout bounds the wait for the ready handshake when the
	// plugin manifest declares no startup.timeout.
	ReadyTimeout time.Duration

	// PingTimeout bounds the wait for a pong.
	PingTimeout time.Duration

	// StopGracePeriod is how long a worker gets to exit after SIGTERM
	// before escalation to SIGKILL.
	StopGracePeriod time.Duration

	// PingBeforeReuse verifies a live worker with a ping before handing
	// it out again, restarting it on a failed pong.
	PingBeforeReuse bool
}

const (
	defaultReadyTimeout    = 60 * time.Second
	defaultPingTimeout     = 5 * time.Second
	defaultStopGracePeriod = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = defaultReadyTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = defaultPingTimeout
	}
	if o.StopGracePeriod <= 0 {
		o.StopGracePeriod = defaultStopGracePeriod
	}
	return o
}

// Supervisor manages at most one live worker per plugin name. Concurrent
// GetOrStart calls for the same not-yet-ready plugin wait on the in-flight
// start instead of spawning duplicates.
type Supervisor struct {
	registry *discovery.Registry
	executor process.Executor
	opts     Options

	mu     sync.Mutex
	starts map[string]*startState
}

type startState struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// NewSupervisor builds a supervisor over the registry's catalogue.
func NewSupervisor(registry *discovery.Registry, executor process.Executor, opts Options) *Supervisor {
	return &Supervisor{
		registry: registry,
		executor: executor,
		opts:     opts.withDefaults(),
		starts:   make(map[string]*startState),
	}
}

// GetOrStart returns a ready handle for the named plugin, reusing a live
// worker or starting a new one. Only one start per name is in flight at a
// time; other callers block on it.
func (s *Supervisor) GetOrStart(ctx context.Context, name string) (*Handle, error) {
	for {
		s.mu.Lock()
		state, exists := s.starts[name]
		if !exists {
			state = &startState{done: make(chan struct{})}
			s.starts[name] = state
			s.mu.Unlock()

			handle, err := s.start(ctx, name)
			state.handle = handle
			state.err = err
			close(state.done)
			if err != nil {
				s.remove(name, state)
				return nil, err
			}
			return handle, nil
		}
		s.mu.Unlock()

		select {
		case <-state.done:
		case <-ctx.Done():
			return nil, domain.NewPluginExecutionError(
				fmt.Sprintf("waiting for plugin %s start: %v", name, ctx.Err()),
				map[string]any{"plugin": name},
			).WithCause(ctx.Err())
		}
		if state.err != nil {
			// The failed starter already removed itself; retry the map.
			continue
		}

		handle := state.handle
		if !handle.Alive() || handle.State() == StateDead {
			logging.FromContext(ctx).Warn("plugin process died, restarting", "plugin", name)
			s.remove(name, state)
			continue
		}
		if s.opts.PingBeforeReuse {
			if err := s.ping(ctx, handle); err != nil {
				logging.FromContext(ctx).Warn("plugin unresponsive, restarting",
					"plugin", name, "error", err)
				s.stopHandle(ctx, handle)
				s.remove(name, state)
				continue
			}
		}
		return handle, nil
	}
}

func (s *Supervisor) remove(name string, state *startState) {
	s.mu.Lock()
	if current, ok := s.starts[name]; ok && current == state {
		delete(s.starts, name)
	}
	s.mu.Unlock()
}

// start spawns the worker and blocks for its ready handshake. Any failure
// kills the process and discards the handle; a worker is never left
// half-started.
func (s *Supervisor) start(ctx context.Context, name string) (*Handle, error) {
	log := logging.FromContext(ctx)

	info, ok := s.registry.GetByName(name)
	if !ok {
		return nil, domain.NewPluginNotFoundError(name)
	}

	executable := info.EntryPoint
	var args []string
	if s.opts.Interpreter != "" {
		executable = s.opts.Interpreter
		args = []string{info.EntryPoint}
	}
	cmd, err := process.NewCommand(executable, args, info.PluginDir)
	if err != nil {
		return nil, domain.NewPluginExecutionError(
			fmt.Sprintf("build command for plugin %s: %v", name, err),
			map[string]any{"plugin": name},
		).WithCause(err)
	}

	log.Info("starting plugin", "plugin", name, "entry", info.EntryPoint)
	// The worker outlives the requesting task, so its lifetime must not be
	// tied to the caller's context.
	proc, err := s.executor.Execute(context.WithoutCancel(ctx), cmd)
	if err != nil {
		return nil, domain.NewPluginExecutionError(
			fmt.Sprintf("start plugin %s: %v", name, err),
			map[string]any{"plugin": name},
		).WithCause(err)
	}

	handle := newHandle(info, proc)
	go s.drainStderr(ctx, handle)

	readyTimeout := s.opts.ReadyTimeout
	if secs := info.StartupTimeoutSeconds(); secs > 0 {
		readyTimeout = time.Duration(secs) * time.Second
	}
	if err := s.awaitReady(ctx, handle, readyTimeout); err != nil {
		_ = proc.Kill()
		return nil, err
	}

	handle.setState(StateReady)
	log.Info("plugin ready", "plugin", name, "pid", proc.PID())
	return handle, nil
}

// awaitReady waits for the single unsolicited ready notification. A
// timeout, EOF, or any non-ready first message is fatal for the start.
func (s *Supervisor) awaitReady(ctx context.Context, handle *Handle, timeout time.Duration) error {
	name := handle.info.Name

	type readResult struct {
		msg protocol.Message
		err error
	}
	read := make(chan readResult, 1)
	go func() {
		msg, err := handle.readMessage(ctx)
		read <- readResult{msg, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-read:
		if r.err != nil {
			return domain.NewPluginExecutionError(
				fmt.Sprintf("plugin %s exited before ready handshake", name),
				map[string]any{"plugin": name},
			).WithCause(r.err)
		}
		if r.msg.Kind != protocol.KindReady {
			return domain.NewPluginExecutionError(
				fmt.Sprintf("plugin %s did not send ready message", name),
				map[string]any{"plugin": name, "got": r.msg.Kind.String()},
			)
		}
		return nil
	case <-timer.C:
		return domain.NewPluginExecutionError(
			fmt.Sprintf("plugin %s startup timeout", name),
			map[string]any{"plugin": name, "timeout": timeout.Seconds()},
		)
	case <-ctx.Done():
		return domain.NewPluginExecutionError(
			fmt.Sprintf("plugin %s start cancelled", name),
			map[string]any{"plugin": name},
		).WithCause(ctx.Err())
	}
}

// drainStderr forwards the worker's diagnostic output to the engine log so
// stdout stays reserved for the control channel.
func (s *Supervisor) drainStderr(ctx context.Context, handle *Handle) {
	log := logging.FromContext(ctx)
	scanner := bufio.NewScanner(handle.proc.Stderr())
	scanner.Buffer(make([]byte, 4096), 1024*1024)
	for scanner.Scan() {
		log.Debug("plugin stderr", "plugin", handle.info.Name, "line", scanner.Text())
	}
}

// Ping verifies a worker answers the control channel within the ping
// timeout. It is a health check, never used during task dispatch.
func (s *Supervisor) Ping(ctx context.Context, name string) error {
	s.mu.Lock()
	state, ok := s.starts[name]
	s.mu.Unlock()
	if !ok {
		return domain.NewPluginExecutionError(
			fmt.Sprintf("plugin %s is not running", name),
			map[string]any{"plugin": name},
		)
	}
	select {
	case <-state.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if state.err != nil || state.handle == nil {
		return domain.NewPluginExecutionError(
			fmt.Sprintf("plugin %s is not running", name),
			map[string]any{"plugin": name},
		)
	}
	return s.ping(ctx, state.handle)
}

func (s *Supervisor) ping(ctx context.Context, handle *Handle) error {
	name := handle.info.Name
	req := protocol.NewRequest(protocol.MethodPing, nil, handle.nextRequestID())
	if err := handle.writeRequest(req); err != nil {
		return err
	}

	type readResult struct {
		msg protocol.Message
		err error
	}
	read := make(chan readResult, 1)
	go func() {
		for {
			msg, err := handle.readMessage(ctx)
			if err != nil || msg.Kind == protocol.KindPong {
				read <- readResult{msg, err}
				return
			}
			// Skip stray notifications between ping and pong.
		}
	}()

	timer := time.NewTimer(s.opts.PingTimeout)
	defer timer.Stop()
	select {
	case r := <-read:
		if r.err != nil {
			return domain.NewPluginExecutionError(
				fmt.Sprintf("plugin %s ping failed", name),
				map[string]any{"plugin": name},
			).WithCause(r.err)
		}
		return nil
	case <-timer.C:
		return domain.NewPluginExecutionError(
			fmt.Sprintf("plugin %s ping timeout", name),
			map[string]any{"plugin": name, "timeout": s.opts.PingTimeout.Seconds()},
		)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard drops a known-bad handle so the next request for that plugin
// starts a fresh worker. The process is killed if still alive.
func (s *Supervisor) Discard(ctx context.Context, name string) {
	s.mu.Lock()
	state, ok := s.starts[name]
	if ok {
		delete(s.starts, name)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	<-state.done
	if state.handle != nil {
		s.stopHandle(ctx, state.handle)
	}
}

// Stop gracefully terminates the named plugin's worker, escalating to a
// forced kill after the grace period. The handle is always released.
func (s *Supervisor) Stop(ctx context.Context, name string) {
	s.Discard(ctx, name)
	logging.FromContext(ctx).Info("stopped plugin", "plugin", name)
}

func (s *Supervisor) stopHandle(ctx context.Context, handle *Handle) {
	handle.setState(StateStopping)
	proc := handle.proc
	if !proc.IsRunning() {
		handle.setState(StateDead)
		return
	}

	if err := proc.Signal(process.SignalTerminate); err == nil {
		timer := time.NewTimer(s.opts.StopGracePeriod)
		select {
		case <-proc.Done():
			timer.Stop()
			handle.setState(StateDead)
			return
		case <-timer.C:
		}
	}

	logging.FromContext(ctx).Warn("plugin did not exit, killing", "plugin", handle.info.Name)
	_ = proc.Kill()
	<-proc.Done()
	handle.setState(StateDead)
}

// StopAll terminates every live worker.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.starts))
	for name := range s.starts {
		names = append(names, name)
	}
	s.mu.Unlock()
	for _, name := range names {
		s.Stop(ctx, name)
	}
}

// Running lists the plugin names with a live (or starting) worker.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.starts))
	for name := range s.starts {
		names = append(names, name)
	}
	return names
}
