package toolexec

import (
	"context"
	"time"

	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"glidecode/common"
)

type fakeTool struct {
	name     string
	category common.ToolCategory
	delay    time.Duration
	result   common.ToolResult
}

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Description() string          { return "fake tool for tests" }
func (f *fakeTool) Category() common.ToolCategory { return f.category }
func (f *fakeTool) Schema() *jsonschema.Schema {
	return (&jsonschema.Reflector{ExpandedStruct: true}).Reflect(&struct{}{})
}
func (f *fakeTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Context.Done():
		}
	}
	return f.result
}

type stubApprover struct {
	approved bool
	answer   string
	err      error
}

func (s *stubApprover) RequestApproval(ctx context.Context, sessionId, toolCallId, toolName string) (bool, error) {
	return s.approved, s.err
}
func (s *stubApprover) RequestAnswer(ctx context.Context, sessionId, toolCallId, toolName string) (string, error) {
	return s.answer, s.err
}

func newExecutorWithTool(tool Tool) *Executor {
	reg := NewRegistry()
	reg.Register(tool)
	return NewExecutor(reg)
}

func TestExecutorUnknownTool(t *testing.T) {
	exec := NewExecutor(NewRegistry())
	result := exec.Execute(execContext(t), "nonexistent", nil, PermissionAutonomous, nil)
	require.False(t, result.Ok)
	require.Equal(t, common.ToolErrorUnknownTool, result.Error.Code)
}

func TestExecutorBlocksWriteToolsInPlanMode(t *testing.T) {
	tool := &fakeTool{name: "write_file", category: common.ToolCategoryWrite, result: common.OkResult(nil)}
	exec := newExecutorWithTool(tool)

	ctx := execContext(t)
	ctx.WorkMode = WorkModePlan
	result := exec.Execute(ctx, tool.name, nil, PermissionAutonomous, nil)
	require.False(t, result.Ok)
	require.Equal(t, common.ToolErrorBlockedByPolicy, result.Error.Code)
}

func TestExecutorRequiresApprovalForWriteInSupervisedMode(t *testing.T) {
	tool := &fakeTool{name: "write_file", category: common.ToolCategoryWrite, result: common.OkResult(map[string]any{"wrote": true})}
	exec := newExecutorWithTool(tool)

	denied := exec.Execute(execContext(t), tool.name, nil, PermissionSupervised, &stubApprover{approved: false})
	require.False(t, denied.Ok)
	require.Equal(t, common.ToolErrorPermissionDenied, denied.Error.Code)

	approved := exec.Execute(execContext(t), tool.name, nil, PermissionSupervised, &stubApprover{approved: true})
	require.True(t, approved.Ok)
}

func TestExecutorSkipsApprovalForWriteInAutonomousMode(t *testing.T) {
	tool := &fakeTool{name: "write_file", category: common.ToolCategoryWrite, result: common.OkResult(nil)}
	exec := newExecutorWithTool(tool)

	result := exec.Execute(execContext(t), tool.name, nil, PermissionAutonomous, nil)
	require.True(t, result.Ok)
}

func TestExecutorRoutesAskUserQuestionThroughApprover(t *testing.T) {
	tool := &fakeTool{name: "AskUserQuestion", category: common.ToolCategoryInteractive}
	exec := newExecutorWithTool(tool)

	result := exec.Execute(execContext(t), tool.name, nil, PermissionSupervised, &stubApprover{answer: "yes please"})
	require.True(t, result.Ok)
	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "yes please", data["answer"])
}

func TestExecutorPreHookBlocksCall(t *testing.T) {
	tool := &fakeTool{name: "write_file", category: common.ToolCategoryWrite, result: common.OkResult(nil)}
	exec := newExecutorWithTool(tool)
	exec.PreHooks = append(exec.PreHooks, func(ctx ExecuteContext, toolName string, rawArgs []byte) *Block {
		return &Block{Reason: "policy says no"}
	})

	result := exec.Execute(execContext(t), tool.name, nil, PermissionAutonomous, nil)
	require.False(t, result.Ok)
	require.Equal(t, common.ToolErrorBlockedByPolicy, result.Error.Code)
}

func TestExecutorRateLimitsToolCalls(t *testing.T) {
	tool := &fakeTool{name: "read_file", category: common.ToolCategoryReadOnly, result: common.OkResult(nil)}
	exec := newExecutorWithTool(tool)
	exec.Limiter = rate.NewLimiter(rate.Every(50*time.Millisecond), 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		result := exec.Execute(execContext(t), tool.name, nil, PermissionAutonomous, nil)
		require.True(t, result.Ok)
	}
	// 1 token up front plus 2 refills at 50ms each: the 3rd call can't start
	// before ~100ms has elapsed.
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestExecutorRateLimiterTimesOutUnderDefaultTimeout(t *testing.T) {
	tool := &fakeTool{name: "read_file", category: common.ToolCategoryReadOnly, result: common.OkResult(nil)}
	exec := newExecutorWithTool(tool)
	exec.DefaultTimeout = 10 * time.Millisecond
	exec.Limiter = rate.NewLimiter(rate.Every(time.Hour), 0)

	result := exec.Execute(execContext(t), tool.name, nil, PermissionAutonomous, nil)
	require.False(t, result.Ok)
	require.Equal(t, common.ToolErrorTimeout, result.Error.Code)
}

func TestExecutorTimesOutSlowTool(t *testing.T) {
	tool := &fakeTool{name: "slow", category: common.ToolCategoryReadOnly, delay: 200 * time.Millisecond, result: common.OkResult(nil)}
	exec := newExecutorWithTool(tool)
	exec.DefaultTimeout = 20 * time.Millisecond

	result := exec.Execute(execContext(t), tool.name, nil, PermissionAutonomous, nil)
	require.False(t, result.Ok)
	require.Equal(t, common.ToolErrorTimeout, result.Error.Code)
}
