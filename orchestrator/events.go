// Package orchestrator implements the single agentic loop that alternates
// LLM streaming turns with tool execution: the conversational heart of the
// runtime. It generalizes the teacher's dev.LlmLoop/handleToolCalls pair
// (Temporal-workflow-coupled) into a plain goroutine/channel loop, since
// this system does not schedule across machines.
package orchestrator

import (
	"glidecode/common"
	"glidecode/llm2"
	"glidecode/session"
)

// LoopEventType enumerates the kinds of events the orchestrator emits. Most
// fields on LoopEvent below are only meaningful for a subset of these types,
// following the same sparse-struct convention as llm2.ContentBlock.
type LoopEventType string

const (
	// Forwarded verbatim from the provider stream for this turn.
	LoopEventStream LoopEventType = "stream"

	LoopEventToolExecuting        LoopEventType = "tool_executing"
	LoopEventToolOutputDelta      LoopEventType = "tool_output_delta"
	LoopEventToolResult           LoopEventType = "tool_result"
	LoopEventToolApprovalRequired LoopEventType = "tool_approval_required"
	LoopEventToolApproved         LoopEventType = "tool_approved"
	LoopEventToolDenied           LoopEventType = "tool_denied"
	LoopEventAwaitingInput        LoopEventType = "awaiting_input"
	LoopEventModeChange           LoopEventType = "mode_change"
	LoopEventPlanUpdate           LoopEventType = "plan_update"
	LoopEventPlanComplete         LoopEventType = "plan_complete"
	LoopEventTurnComplete         LoopEventType = "turn_complete"
	LoopEventTitleGenerated       LoopEventType = "title_generated"
	LoopEventExplorationWarning   LoopEventType = "exploration_warning"
	LoopEventFinished             LoopEventType = "finished"
	LoopEventError                LoopEventType = "error"
)

// LoopEvent is the single outward-facing event type streamed to whatever
// front-end (SSE bridge, CLI) is consuming the run.
type LoopEvent struct {
	Type LoopEventType `json:"type"`

	// Populated for LoopEventStream: the raw provider-neutral stream event.
	StreamEvent *llm2.Event `json:"streamEvent,omitempty"`

	ToolCallId string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Delta      string `json:"delta,omitempty"`

	// Populated for LoopEventToolResult.
	ToolResult *common.ToolResult `json:"toolResult,omitempty"`

	// Populated for LoopEventAwaitingInput: the name of the tool awaiting a
	// LoopInput, e.g. "PlanConfirm" or "AskUserQuestion".
	AwaitingToolName string `json:"awaitingToolName,omitempty"`

	Turn    int  `json:"turn,omitempty"`
	HasMore bool `json:"hasMore,omitempty"`

	SessionId string `json:"sessionId,omitempty"`
	Title     string `json:"title,omitempty"`

	Mode session.WorkMode `json:"mode,omitempty"`

	PlanText string `json:"planText,omitempty"`

	ExplorationIterations int `json:"explorationIterations,omitempty"`

	ErrorMessage string `json:"errorMessage,omitempty"`
}

// LoopInputType enumerates the kinds of input the consumer can feed back.
type LoopInputType string

const (
	LoopInputToolApproval  LoopInputType = "tool_approval"
	LoopInputAskUserAnswer LoopInputType = "ask_user_answer"
	LoopInputCancel        LoopInputType = "cancel"
)

// LoopInput is fed into the orchestrator's input channel to resolve a
// suspended turn (approval, AskUser answer) or to cancel it outright.
type LoopInput struct {
	Type       LoopInputType `json:"type"`
	ToolCallId string        `json:"toolCallId,omitempty"`
	Approved   bool          `json:"approved,omitempty"`
	Answer     string        `json:"answer,omitempty"`
}

// CallOptions configures one orchestrator run: the model/provider
// selection and any per-run overrides layered over session defaults.
type CallOptions struct {
	ModelConfig common.ModelConfig

	// ProjectContext and SessionContext are the stable/dynamic system
	// messages prepended to every turn's conversation, in that order, so the
	// longest cacheable prefix is maximal (spec.md §4.1).
	ProjectContext string
	SessionContext string
}
