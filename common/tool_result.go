package common

import "encoding/json"

// ToolErrorCode is the closed set of error codes surfaced in a ToolResult's
// error.code field and in LoopEvent::Error.error.
type ToolErrorCode string

const (
	ToolErrorInvalidParameters ToolErrorCode = "invalid_parameters"
	ToolErrorAccessDenied      ToolErrorCode = "access_denied"
	ToolErrorPermissionDenied  ToolErrorCode = "permission_denied"
	ToolErrorTimeout           ToolErrorCode = "timeout"
	ToolErrorBlockedByPolicy   ToolErrorCode = "blocked_by_policy"
	ToolErrorUnknownTool       ToolErrorCode = "unknown_tool"
	ToolErrorCommandFailed     ToolErrorCode = "command_failed"
	ToolErrorToolError         ToolErrorCode = "tool_error"
)

// ToolErrorInfo is the error object nested in a ToolResult envelope.
type ToolErrorInfo struct {
	Code    ToolErrorCode `json:"code"`
	Message string        `json:"message"`
}

// ToolResult is the wire-level JSON envelope every tool returns.
// Raw strings are never returned to the model; helpers in toolexec enforce
// this by always wrapping tool output in a ToolResult before serialization.
type ToolResult struct {
	Ok        bool           `json:"ok"`
	Data      any            `json:"data,omitempty"`
	Error     *ToolErrorInfo `json:"error,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Diff      string         `json:"diff,omitempty"`
	Metadata  any            `json:"metadata,omitempty"`
}

// OkResult builds a successful envelope.
func OkResult(data any) ToolResult {
	return ToolResult{Ok: true, Data: data}
}

// ErrResult builds a failed envelope with the given closed-set error code.
func ErrResult(code ToolErrorCode, message string) ToolResult {
	return ToolResult{Ok: false, Error: &ToolErrorInfo{Code: code, Message: message}}
}

// WithWarnings returns a copy of r with warnings appended.
func (r ToolResult) WithWarnings(warnings ...string) ToolResult {
	r.Warnings = append(r.Warnings, warnings...)
	return r
}

// WithMetadata returns a copy of r with metadata attached.
func (r ToolResult) WithMetadata(metadata any) ToolResult {
	r.Metadata = metadata
	return r
}

// WithDiff returns a copy of r with a diff attached.
func (r ToolResult) WithDiff(diff string) ToolResult {
	r.Diff = diff
	return r
}

// MarshalText renders the envelope as the JSON string handed back to the
// model as ToolResult.Text/ToolResultBlock content.
func (r ToolResult) MarshalText() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToolCategory is the closed set of tool categories governing the
// permission gate and plan-mode restriction.
type ToolCategory string

const (
	ToolCategoryReadOnly    ToolCategory = "read_only"
	ToolCategoryInteractive ToolCategory = "interactive"
	ToolCategoryWrite       ToolCategory = "write"
)

// ReadOnlyToolNames is the named read-only tool set from spec §4.3.
var ReadOnlyToolNames = map[string]bool{
	"read": true, "glob": true, "grep": true, "list": true,
	"web_search": true, "web_fetch": true, "explore": true,
}

// InteractiveToolNames is the named interactive tool set from spec §4.3.
var InteractiveToolNames = map[string]bool{
	"AskUserQuestion": true, "PlanConfirm": true, "enter_plan_mode": true,
	"set_work_mode": true, "task_start": true, "task_complete": true,
	"add_subtask": true, "set_dependency": true,
}

// CategoryForToolName classifies a tool by name using the closed sets above;
// any name outside both named sets is Write.
func CategoryForToolName(name string) ToolCategory {
	if ReadOnlyToolNames[name] {
		return ToolCategoryReadOnly
	}
	if InteractiveToolNames[name] {
		return ToolCategoryInteractive
	}
	return ToolCategoryWrite
}
