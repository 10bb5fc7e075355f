package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/plugins/discovery"
	"filmeto.ai/engine/internal/process"
	"filmeto.ai/engine/internal/protocol"
)

// Fake plugins are shell scripts speaking the control protocol over stdio.
// Each appends to starts.log in its plugin directory so tests can count
// process launches.

const echoScript = `#!/bin/sh
echo started >> starts.log
echo '{"jsonrpc":"2.0","method":"ready","params":{}}'
while read -r line; do
  case "$line" in
    *'"ping"'*)
      echo '{"jsonrpc":"2.0","id":0,"result":{"status":"pong"}}'
      ;;
    *'"execute_task"'*)
      echo '{"jsonrpc":"2.0","method":"progress","params":{"type":"progress","percent":50,"message":"halfway"}}'
      echo '{"jsonrpc":"2.0","id":0,"result":{"status":"success","output_files":["out.png"]}}'
      ;;
  esac
done
`

const crashScript = `#!/bin/sh
echo started >> starts.log
echo '{"jsonrpc":"2.0","method":"ready","params":{}}'
read -r line
exit 1
`

const silentScript = `#!/bin/sh
echo started >> starts.log
sleep 60
`

func writeFakePlugin(t *testing.T, root, name, script string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := "name: " + name + "\nversion: 1.0.0\ndescription: test plugin\ntool_type: text2image\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, discovery.ManifestFileName), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.sh"), []byte(script), 0o755))
	return dir
}

func countStarts(t *testing.T, pluginDir string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(pluginDir, "starts.log"))
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "started")
}

func newTestSupervisor(t *testing.T, root string, opts Options) *Supervisor {
	t.Helper()
	reg := discovery.NewRegistry(root, "main.sh")
	require.NoError(t, reg.Discover(context.Background()))
	if opts.Interpreter == "" {
		opts.Interpreter = "/bin/sh"
	}
	return NewSupervisor(reg, process.NewExecutor(), opts)
}

func TestGetOrStart(t *testing.T) {
	ctx := context.Background()

	t.Run("starts and completes the ready handshake", func(t *testing.T) {
		root := t.TempDir()
		writeFakePlugin(t, root, "echo", echoScript)
		sup := newTestSupervisor(t, root, Options{})
		defer sup.StopAll(ctx)

		handle, err := sup.GetOrStart(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, StateReady, handle.State())
		assert.True(t, handle.Alive())
		assert.Equal(t, []string{"echo"}, sup.Running())
	})

	t.Run("reuses the live worker", func(t *testing.T) {
		root := t.TempDir()
		dir := writeFakePlugin(t, root, "echo", echoScript)
		sup := newTestSupervisor(t, root, Options{})
		defer sup.StopAll(ctx)

		first, err := sup.GetOrStart(ctx, "echo")
		require.NoError(t, err)
		second, err := sup.GetOrStart(ctx, "echo")
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, countStarts(t, dir))
	})

	t.Run("concurrent callers share one start", func(t *testing.T) {
		root := t.TempDir()
		dir := writeFakePlugin(t, root, "echo", echoScript)
		sup := newTestSupervisor(t, root, Options{})
		defer sup.StopAll(ctx)

		const callers = 8
		handles := make([]*Handle, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				h, err := sup.GetOrStart(ctx, "echo")
				assert.NoError(t, err)
				handles[i] = h
			}(i)
		}
		wg.Wait()

		for _, h := range handles[1:] {
			assert.Same(t, handles[0], h)
		}
		assert.Equal(t, 1, countStarts(t, dir))
	})

	t.Run("restarts a dead worker", func(t *testing.T) {
		root := t.TempDir()
		dir := writeFakePlugin(t, root, "crash", crashScript)
		sup := newTestSupervisor(t, root, Options{})
		defer sup.StopAll(ctx)

		handle, err := sup.GetOrStart(ctx, "crash")
		require.NoError(t, err)

		// Any stdin line makes the crash plugin exit.
		require.NoError(t, handle.Send(ctx, domain.NewTask(domain.ToolTextToImage, "crash", nil)))
		for msg := range handle.Receive(ctx) {
			_ = msg
		}
		assert.Equal(t, StateDead, handle.State())

		replacement, err := sup.GetOrStart(ctx, "crash")
		require.NoError(t, err)
		assert.NotSame(t, handle, replacement)
		assert.Equal(t, StateReady, replacement.State())
		assert.Equal(t, 2, countStarts(t, dir))
	})

	t.Run("unknown plugin", func(t *testing.T) {
		sup := newTestSupervisor(t, t.TempDir(), Options{})
		_, err := sup.GetOrStart(ctx, "nope")
		var taskErr *domain.TaskError
		require.ErrorAs(t, err, &taskErr)
		assert.Equal(t, domain.CodePluginNotFound, taskErr.Code)
	})

	t.Run("startup timeout kills the worker", func(t *testing.T) {
		root := t.TempDir()
		writeFakePlugin(t, root, "silent", silentScript)
		sup := newTestSupervisor(t, root, Options{ReadyTimeout: 300 * time.Millisecond})

		_, err := sup.GetOrStart(ctx, "silent")
		var taskErr *domain.TaskError
		require.ErrorAs(t, err, &taskErr)
		assert.Equal(t, domain.CodePluginExecution, taskErr.Code)
		assert.Empty(t, sup.Running())
	})
}

func TestSendReceive(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFakePlugin(t, root, "echo", echoScript)
	sup := newTestSupervisor(t, root, Options{})
	defer sup.StopAll(ctx)

	handle, err := sup.GetOrStart(ctx, "echo")
	require.NoError(t, err)

	task := domain.NewTask(domain.ToolTextToImage, "echo", map[string]any{"prompt": "a cat"})
	require.NoError(t, handle.Send(ctx, task))
	assert.Equal(t, StateBusy, handle.State())

	var msgs []protocol.Message
	for msg := range handle.Receive(ctx) {
		msgs = append(msgs, msg)
	}
	require.Len(t, msgs, 2)

	assert.Equal(t, protocol.KindProgress, msgs[0].Kind)
	assert.Equal(t, 50.0, msgs[0].Progress.Percent)
	assert.Equal(t, "halfway", msgs[0].Progress.Message)

	require.Equal(t, protocol.KindResult, msgs[1].Kind)
	assert.Equal(t, "success", msgs[1].Result.Status)
	assert.Equal(t, []string{"out.png"}, msgs[1].Result.OutputFiles)

	// Terminal result returns the handle to the pool.
	assert.Equal(t, StateReady, handle.State())
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFakePlugin(t, root, "echo", echoScript)
	sup := newTestSupervisor(t, root, Options{})
	defer sup.StopAll(ctx)

	require.Error(t, sup.Ping(ctx, "echo"), "ping before start must fail")

	_, err := sup.GetOrStart(ctx, "echo")
	require.NoError(t, err)
	assert.NoError(t, sup.Ping(ctx, "echo"))
}

func TestStop(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFakePlugin(t, root, "echo", echoScript)
	sup := newTestSupervisor(t, root, Options{StopGracePeriod: time.Second})

	handle, err := sup.GetOrStart(ctx, "echo")
	require.NoError(t, err)

	sup.Stop(ctx, "echo")
	assert.Empty(t, sup.Running())
	assert.Equal(t, StateDead, handle.State())
	assert.False(t, handle.Alive())

	// A stopped handle refuses dispatch instead of writing into the void.
	err = handle.Send(ctx, domain.NewTask(domain.ToolTextToImage, "echo", map[string]any{"prompt": "x"}))
	var taskErr *domain.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, domain.CodePluginExecution, taskErr.Code)
	assert.Equal(t, "dead", taskErr.Details["state"])
}
