package toolexec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glidecode/common"
	"glidecode/procreg"
)

func execContext(t *testing.T) ExecuteContext {
	return ExecuteContext{
		Context:    context.Background(),
		UserId:     "user1",
		SessionId:  "session1",
		ToolCallId: "call1",
		WorkingDir: t.TempDir(),
		WorkMode:   WorkModeBuild,
	}
}

func TestShellToolExitCodePropagates(t *testing.T) {
	tool := &ShellTool{Procreg: procreg.New()}
	args, err := json.Marshal(ShellParams{Command: "exit 3"})
	require.NoError(t, err)

	result := tool.Execute(execContext(t), args)
	require.False(t, result.Ok)
	require.Equal(t, common.ToolErrorCommandFailed, result.Error.Code)
	metadata, ok := result.Metadata.(map[string]any)
	require.True(t, ok)
	require.Equal(t, 3, metadata["exit_code"])
}

func TestShellToolSuccessCapturesOutput(t *testing.T) {
	tool := &ShellTool{Procreg: procreg.New()}
	args, err := json.Marshal(ShellParams{Command: "echo hello"})
	require.NoError(t, err)

	result := tool.Execute(execContext(t), args)
	require.True(t, result.Ok)
	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	require.Contains(t, data["output"], "hello")
}

func TestShellToolTimesOut(t *testing.T) {
	tool := &ShellTool{Procreg: procreg.New()}
	args, err := json.Marshal(ShellParams{Command: "sleep 5", Timeout: 1})
	require.NoError(t, err)

	start := time.Now()
	result := tool.Execute(execContext(t), args)
	require.False(t, result.Ok)
	require.Equal(t, common.ToolErrorTimeout, result.Error.Code)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestShellToolRunsInBackgroundOnTrailingAmpersand(t *testing.T) {
	reg := procreg.New()
	tool := &ShellTool{Procreg: reg}
	args, err := json.Marshal(ShellParams{Command: "sleep 30 &"})
	require.NoError(t, err)

	result := tool.Execute(execContext(t), args)
	require.True(t, result.Ok)
	require.NotEmpty(t, result.Warnings)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	processId, _ := data["process_id"].(string)
	require.NotEmpty(t, processId)
	require.NoError(t, reg.KillForUser("user1", processId))
}

func TestShellToolExplicitRunInBackground(t *testing.T) {
	reg := procreg.New()
	tool := &ShellTool{Procreg: reg}
	args, err := json.Marshal(ShellParams{Command: "sleep 30", RunInBackground: true})
	require.NoError(t, err)

	result := tool.Execute(execContext(t), args)
	require.True(t, result.Ok)
	require.Empty(t, result.Warnings)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	processId, _ := data["process_id"].(string)
	require.NoError(t, reg.KillForUser("user1", processId))
}

func TestLooksBackgrounded(t *testing.T) {
	require.True(t, looksBackgrounded("npm run dev &"))
	require.False(t, looksBackgrounded("echo a && echo b"))
	require.False(t, looksBackgrounded("echo a | grep a"))
}
