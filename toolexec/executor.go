package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"glidecode/common"
)

// defaultToolRate/defaultToolBurst bound how often tool calls actually run,
// independent of how many the orchestrator dispatches concurrently: a
// model that fires off a burst of shell calls shouldn't be able to fork-bomb
// the host. SPEC_FULL.md's domain stack calls for x/time/rate here
// specifically as a per-call token bucket in front of execution.
const (
	defaultToolRate  = 5 // calls/sec sustained
	defaultToolBurst = 10
)

// PermissionMode mirrors the session's permission mode (spec.md §3).
type PermissionMode string

const (
	PermissionSupervised PermissionMode = "supervised"
	PermissionAutonomous PermissionMode = "autonomous"
)

// Approver is how the executor asks the orchestrator to suspend a turn and
// wait for a LoopInput. The orchestrator implements this on top of its
// per-session input channel; toolexec stays ignorant of LoopInput's shape.
type Approver interface {
	// RequestApproval suspends until a ToolApproval LoopInput arrives for
	// toolCallId, or ctx is canceled.
	RequestApproval(ctx context.Context, sessionId, toolCallId, toolName string) (approved bool, err error)
	// RequestAnswer suspends until an AskUserAnswer LoopInput arrives for
	// toolCallId, or ctx is canceled.
	RequestAnswer(ctx context.Context, sessionId, toolCallId, toolName string) (answer string, err error)
}

// Executor runs the five-step pipeline from spec.md §4.3 around a single
// tool call: pre-hooks, permission gate, timeout, execution, post-hooks.
type Executor struct {
	Registry       *Registry
	PreHooks       []PreToolHook
	PostHooks      []PostToolHook
	DefaultTimeout time.Duration

	// ClassifyShellCommand downgrades a "bash" call's effective category
	// from Write to ReadOnly for the purposes of the supervised-approval
	// gate below, when every command in the script is recognizably
	// read-only (spec.md §7). Defaults to IsReadOnlyCommand; nil disables
	// the downgrade entirely (every shell call stays Write).
	ClassifyShellCommand func(command string) bool

	// Limiter bounds how often tool calls actually execute; nil means
	// unlimited. It's waited on after the permission gate so a call
	// suspended on user approval/answer doesn't consume rate budget while
	// idle.
	Limiter *rate.Limiter
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		Registry:             registry,
		DefaultTimeout:       defaultShellTimeout,
		ClassifyShellCommand: IsReadOnlyCommand,
		Limiter:              rate.NewLimiter(rate.Limit(defaultToolRate), defaultToolBurst),
	}
}

// Execute runs the pipeline for one tool call and always returns a
// well-formed common.ToolResult; it never returns a raw error to the
// caller, since tool-local errors are data per spec.md §7.
func (e *Executor) Execute(ctx ExecuteContext, toolName string, rawArgs []byte, permMode PermissionMode, approver Approver) common.ToolResult {
	tool, ok := e.Registry.Get(toolName)
	if !ok {
		return common.ErrResult(common.ToolErrorUnknownTool, fmt.Sprintf("unknown tool: %s", toolName))
	}

	for _, hook := range e.PreHooks {
		if blocked := hook(ctx, toolName, rawArgs); blocked != nil {
			return common.ErrResult(common.ToolErrorBlockedByPolicy, blocked.Reason)
		}
	}

	category := tool.Category()

	if category == common.ToolCategoryWrite && toolName == "bash" && e.ClassifyShellCommand != nil {
		var params ShellParams
		if err := unmarshalParams(rawArgs, &params); err == nil && e.ClassifyShellCommand(params.Command) {
			category = common.ToolCategoryReadOnly
		}
	}

	if ctx.WorkMode == WorkModePlan && category == common.ToolCategoryWrite {
		return common.ErrResult(common.ToolErrorBlockedByPolicy, "write tools are disabled in plan mode")
	}

	if category == common.ToolCategoryWrite && permMode == PermissionSupervised {
		if approver == nil {
			return common.ErrResult(common.ToolErrorPermissionDenied, "no approver configured for supervised permission mode")
		}
		approved, err := approver.RequestApproval(ctx.Context, ctx.SessionId, ctx.ToolCallId, toolName)
		if err != nil {
			return common.ErrResult(common.ToolErrorPermissionDenied, err.Error())
		}
		if !approved {
			return common.ErrResult(common.ToolErrorPermissionDenied, "user denied")
		}
	}

	if category == common.ToolCategoryInteractive && toolName == "AskUserQuestion" {
		if approver == nil {
			return common.ErrResult(common.ToolErrorToolError, "no approver configured for interactive tool")
		}
		answer, err := approver.RequestAnswer(ctx.Context, ctx.SessionId, ctx.ToolCallId, toolName)
		if err != nil {
			return common.ErrResult(common.ToolErrorToolError, err.Error())
		}
		return common.OkResult(map[string]any{"answer": answer})
	}

	timeout := e.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx.Context, timeout)
	defer cancel()
	runCtx := ctx
	runCtx.Context = execCtx

	if e.Limiter != nil {
		if err := e.Limiter.Wait(execCtx); err != nil {
			return common.ErrResult(common.ToolErrorTimeout, fmt.Sprintf("tool %q exceeded its %s timeout waiting for its rate-limit slot", toolName, timeout))
		}
	}

	resultCh := make(chan common.ToolResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- common.ErrResult(common.ToolErrorToolError, fmt.Sprintf("tool panicked: %v", r))
			}
		}()
		resultCh <- tool.Execute(runCtx, rawArgs)
	}()

	var result common.ToolResult
	select {
	case result = <-resultCh:
	case <-execCtx.Done():
		result = common.ErrResult(common.ToolErrorTimeout, fmt.Sprintf("tool %q exceeded its %s timeout", toolName, timeout))
	}

	for _, hook := range e.PostHooks {
		hook(ctx, toolName, rawArgs, result)
	}

	return result
}

// unmarshalParams decodes a tool's raw JSON arguments into its typed
// params struct, wrapping failures as the invalid_parameters error code.
func unmarshalParams(rawArgs []byte, target any) error {
	if len(rawArgs) == 0 {
		return nil
	}
	if err := json.Unmarshal(rawArgs, target); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
