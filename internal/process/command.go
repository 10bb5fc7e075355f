package process

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Command is an immutable description of a plugin worker to launch: the
// interpreter or binary, its arguments, and the plugin directory it must
// run in.
type Command struct {
	executable string
	args       []string
	workingDir string
	env        map[string]string
}

// NewCommand creates a command rooted in workingDir.
func NewCommand(executable string, args []string, workingDir string) (Command, error) {
	if executable == "" {
		return Command{}, fmt.Errorf("executable cannot be empty")
	}
	if workingDir != "" && !filepath.IsAbs(workingDir) {
		abs, err := filepath.Abs(workingDir)
		if err != nil {
			return Command{}, fmt.Errorf("resolve working dir: %w", err)
		}
		workingDir = abs
	}
	return Command{
		executable: executable,
		args:       append([]string(nil), args...),
		workingDir: workingDir,
		env:        make(map[string]string),
	}, nil
}

// Executable returns the command executable.
func (c Command) Executable() string { return c.executable }

// Args returns a copy of the command arguments.
func (c Command) Args() []string { return append([]string(nil), c.args...) }

// WorkingDir returns the working directory for the command.
func (c Command) WorkingDir() string { return c.workingDir }

// Env returns a copy of the extra environment variables.
func (c Command) Env() map[string]string {
	envCopy := make(map[string]string, len(c.env))
	for k, v := range c.env {
		envCopy[k] = v
	}
	return envCopy
}

// WithEnv returns a new Command with one extra environment variable set.
func (c Command) WithEnv(key, value string) Command {
	env := c.Env()
	env[key] = value
	return Command{
		executable: c.executable,
		args:       append([]string(nil), c.args...),
		workingDir: c.workingDir,
		env:        env,
	}
}

func (c Command) String() string {
	if len(c.args) == 0 {
		return c.executable
	}
	return fmt.Sprintf("%s %s", c.executable, strings.Join(c.args, " "))
}
