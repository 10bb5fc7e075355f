// Package process wraps os/exec with the handle the plugin supervisor
// needs: piped stdio, liveness tracking, and signal-based termination.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Signal enumerates the signals the supervisor sends to plugin workers.
type Signal int

const (
	SignalTerminate Signal = iota // SIGTERM
	SignalInterrupt               // SIGINT
	SignalKill                    // SIGKILL
)

func (s Signal) osSignal() os.Signal {
	switch s {
	case SignalInterrupt:
		return syscall.SIGINT
	case SignalKill:
		return syscall.SIGKILL
	default:
		return syscall.SIGTERM
	}
}

// Process is the runtime handle for one launched plugin worker.
type Process interface {
	// PID returns the OS process id.
	PID() int

	// Stdin is the worker's control-channel input.
	Stdin() io.WriteCloser

	// Stdout is the worker's control-channel output.
	Stdout() io.ReadCloser

	// Stderr carries the worker's diagnostic output.
	Stderr() io.ReadCloser

	// Wait blocks until the process exits.
	Wait() error

	// Done is closed when the process exits.
	Done() <-chan struct{}

	// Signal delivers a termination signal.
	Signal(sig Signal) error

	// Kill forcefully terminates the process.
	Kill() error

	// IsRunning reports whether the process is still alive.
	IsRunning() bool

	// ExitCode returns the exit code once the process has finished.
	ExitCode() int
}

// Executor launches plugin worker processes.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (Process, error)
}

// OSExecutor is the production Executor backed by os/exec.
type OSExecutor struct {
	baseEnv []string
}

// NewExecutor creates an executor that inherits the current environment.
func NewExecutor() *OSExecutor {
	return &OSExecutor{baseEnv: os.Environ()}
}

// Execute starts cmd with piped stdio and begins monitoring its exit.
func (e *OSExecutor) Execute(ctx context.Context, cmd Command) (Process, error) {
	execCmd := exec.CommandContext(ctx, cmd.Executable(), cmd.Args()...)
	execCmd.Dir = cmd.WorkingDir()
	execCmd.Env = e.buildEnvironment(cmd.Env())

	stdin, err := execCmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := execCmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := execCmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	p := &osProcess{
		cmd:     execCmd,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		running: true,
		done:    make(chan struct{}),
	}
	go p.monitor()
	return p, nil
}

func (e *OSExecutor) buildEnvironment(extra map[string]string) []string {
	env := append([]string(nil), e.baseEnv...)
	for key, value := range extra {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	return env
}

type osProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu       sync.RWMutex
	running  bool
	exitCode int
	waitErr  error
	done     chan struct{}
}

func (p *osProcess) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *osProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *osProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *osProcess) Stderr() io.ReadCloser { return p.stderr }

func (p *osProcess) Wait() error {
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.waitErr
}

func (p *osProcess) Done() <-chan struct{} { return p.done }

func (p *osProcess) Signal(sig Signal) error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not running")
	}
	return p.cmd.Process.Signal(sig.osSignal())
}

func (p *osProcess) Kill() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not running")
	}
	p.stdin.Close()
	return p.cmd.Process.Kill()
}

func (p *osProcess) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *osProcess) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

func (p *osProcess) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.running = false
	p.waitErr = err
	if exitErr, ok := err.(*exec.ExitError); ok {
		p.exitCode = exitErr.ExitCode()
	} else if err != nil {
		p.exitCode = -1
	}
	p.mu.Unlock()

	close(p.done)
}
