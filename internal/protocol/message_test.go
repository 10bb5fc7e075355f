package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"ready"}`))
		require.NoError(t, err)
		assert.Equal(t, KindReady, msg.Kind)
	})

	t.Run("progress", func(t *testing.T) {
		line := `{"jsonrpc":"2.0","method":"progress","params":{"percent":42.5,"message":"rendering","data":{"step":3}}}`
		msg, err := Decode([]byte(line))
		require.NoError(t, err)
		require.Equal(t, KindProgress, msg.Kind)
		require.NotNil(t, msg.Progress)
		assert.Equal(t, 42.5, msg.Progress.Percent)
		assert.Equal(t, "rendering", msg.Progress.Message)
		assert.Equal(t, float64(3), msg.Progress.Data["step"])
	})

	t.Run("progress without params", func(t *testing.T) {
		msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"progress"}`))
		require.NoError(t, err)
		require.Equal(t, KindProgress, msg.Kind)
		assert.Zero(t, msg.Progress.Percent)
	})

	t.Run("heartbeat", func(t *testing.T) {
		msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"heartbeat"}`))
		require.NoError(t, err)
		assert.Equal(t, KindHeartbeat, msg.Kind)
	})

	t.Run("pong", func(t *testing.T) {
		msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":999,"result":{"status":"pong"}}`))
		require.NoError(t, err)
		assert.Equal(t, KindPong, msg.Kind)
	})

	t.Run("terminal result", func(t *testing.T) {
		line := `{"jsonrpc":"2.0","id":1,"result":{"status":"success","output_files":["/tmp/out.png"],"metadata":{"seed":7}}}`
		msg, err := Decode([]byte(line))
		require.NoError(t, err)
		require.Equal(t, KindResult, msg.Kind)
		require.NotNil(t, msg.Result)
		assert.Equal(t, "success", msg.Result.Status)
		assert.Equal(t, []string{"/tmp/out.png"}, msg.Result.OutputFiles)
	})

	t.Run("error result is still terminal", func(t *testing.T) {
		line := `{"jsonrpc":"2.0","id":1,"result":{"status":"error","error_message":"out of memory"}}`
		msg, err := Decode([]byte(line))
		require.NoError(t, err)
		require.Equal(t, KindResult, msg.Kind)
		assert.Equal(t, "out of memory", msg.Result.ErrorMessage)
	})

	t.Run("result without status is not terminal", func(t *testing.T) {
		msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{"partial":true}}`))
		require.NoError(t, err)
		assert.Equal(t, KindUnknown, msg.Kind)
	})

	t.Run("unknown method", func(t *testing.T) {
		msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"telemetry"}`))
		require.NoError(t, err)
		assert.Equal(t, KindUnknown, msg.Kind)
	})

	t.Run("junk line is an error", func(t *testing.T) {
		_, err := Decode([]byte(`Loading model weights... 42%`))
		assert.Error(t, err)
	})
}

func TestRequestEncode(t *testing.T) {
	req := NewRequest(MethodExecuteTask, map[string]any{"task_id": "t-1"}, 1)
	line, err := req.Encode()
	require.NoError(t, err)

	// Exactly one newline, at the end: the channel is line-delimited.
	assert.True(t, strings.HasSuffix(string(line), "\n"))
	assert.Equal(t, 1, strings.Count(string(line), "\n"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Equal(t, "execute_task", decoded["method"])
	assert.Equal(t, float64(1), decoded["id"])
}

func TestPingRequestHasEmptyParams(t *testing.T) {
	line, err := NewRequest(MethodPing, nil, 7).Encode()
	require.NoError(t, err)

	var decoded struct {
		Params map[string]any `json:"params"`
	}
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.NotNil(t, decoded.Params)
	assert.Empty(t, decoded.Params)
}
