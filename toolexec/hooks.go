package toolexec

// Block is returned by a PreToolHook to short-circuit execution.
type Block struct {
	Reason string
}

// PreToolHook runs before permission gating and may block the call outright
// (e.g. a project-level policy file disallowing a path or command).
type PreToolHook func(ctx ExecuteContext, toolName string, rawArgs []byte) *Block

// PostToolHook runs after execution and is observational only: it cannot
// mutate the result, only read it (e.g. for audit logging or metrics).
type PostToolHook func(ctx ExecuteContext, toolName string, rawArgs []byte, result interface{})
