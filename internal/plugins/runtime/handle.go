package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/logging"
	"filmeto.ai/engine/internal/process"
	"filmeto.ai/engine/internal/protocol"
)

// State tracks a plugin handle through its lifecycle.
type State int

const (
	StateStarting State = iota
	StateReady
	StateBusy
	StateStopping
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateStopping:
		return "stopping"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Control-channel lines can carry large payloads (inline result data), so
// the scanner buffer is generous.
const (
	readBufferSize = 64 * 1024
	maxLineSize    = 16 * 1024 * 1024
)

// Handle is the mutable runtime handle for one running plugin: the OS
// process plus the control channel over its stdio. At most one Handle per
// plugin name is live at a time.
type Handle struct {
	info *domain.PluginInfo
	proc process.Process

	writeMu sync.Mutex
	readMu  sync.Mutex
	scanner *bufio.Scanner

	mu        sync.Mutex
	state     State
	requestID int
}

func newHandle(info *domain.PluginInfo, proc process.Process) *Handle {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, readBufferSize), maxLineSize)
	return &Handle{
		info:    info,
		proc:    proc,
		scanner: scanner,
		state:   StateStarting,
	}
}

// Info returns the bound plugin metadata.
func (h *Handle) Info() *domain.PluginInfo { return h.info }

// PID returns the worker's process id.
func (h *Handle) PID() int { return h.proc.PID() }

// State returns the handle's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Alive reports whether the underlying OS process is still running.
func (h *Handle) Alive() bool {
	return h.proc.IsRunning()
}

func (h *Handle) nextRequestID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestID++
	return h.requestID
}

// Send serializes the task into an execute_task envelope and writes one
// line to the worker's stdin. The handle must be Ready or Busy; the state
// check and the Busy transition happen under one lock so a concurrent stop
// cannot slip between them.
func (h *Handle) Send(ctx context.Context, task *domain.Task) error {
	h.mu.Lock()
	switch h.state {
	case StateReady, StateBusy:
	default:
		state := h.state
		h.mu.Unlock()
		return domain.NewPluginExecutionError(
			fmt.Sprintf("plugin %s is not ready", h.info.Name),
			map[string]any{"plugin": h.info.Name, "state": state.String()},
		)
	}
	h.state = StateBusy
	h.requestID++
	id := h.requestID
	h.mu.Unlock()

	req := protocol.NewRequest(protocol.MethodExecuteTask, task, id)
	if err := h.writeRequest(req); err != nil {
		h.setState(StateDead)
		return err
	}
	return nil
}

func (h *Handle) writeRequest(req protocol.Request) error {
	line, err := req.Encode()
	if err != nil {
		return domain.NewPluginExecutionError(
			fmt.Sprintf("encode request for plugin %s", h.info.Name),
			map[string]any{"plugin": h.info.Name},
		).WithCause(err)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.proc.Stdin().Write(line); err != nil {
		return domain.NewPluginExecutionError(
			fmt.Sprintf("write to plugin %s: %v", h.info.Name, err),
			map[string]any{"plugin": h.info.Name},
		).WithCause(err)
	}
	return nil
}

// readMessage blocks for the next decodable control message, skipping
// lines that are not valid JSON. It returns io.EOF when the worker's
// stdout closes.
func (h *Handle) readMessage(ctx context.Context) (protocol.Message, error) {
	h.readMu.Lock()
	defer h.readMu.Unlock()

	log := logging.FromContext(ctx)
	for h.scanner.Scan() {
		line := h.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			log.Warn("dropping undecodable plugin output", "plugin", h.info.Name, "error", err)
			continue
		}
		return msg, nil
	}
	if err := h.scanner.Err(); err != nil {
		return protocol.Message{}, err
	}
	return protocol.Message{}, io.EOF
}

// Receive reads inbound messages until a terminal result arrives or the
// channel closes. The returned channel is closed afterwards; if it closes
// without a result message the worker died mid-task and the caller must
// treat the stream as failed. Reading stops early when ctx is cancelled.
func (h *Handle) Receive(ctx context.Context) <-chan protocol.Message {
	out := make(chan protocol.Message)
	go func() {
		defer close(out)
		log := logging.FromContext(ctx)
		for {
			msg, err := h.readMessage(ctx)
			if err != nil {
				if err != io.EOF {
					log.Warn("control channel read failed", "plugin", h.info.Name, "error", err)
				}
				h.setState(StateDead)
				return
			}
			if msg.Kind == protocol.KindUnknown {
				log.Debug("ignoring unknown control message", "plugin", h.info.Name)
				continue
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}

			if msg.Kind == protocol.KindResult {
				h.setState(StateReady)
				return
			}
		}
	}()
	return out
}
