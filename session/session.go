// Package session implements the persistent session model: durable
// conversation history, per-session agent state machine, and parent/child
// session linkage for pinch compaction. It generalizes the teacher's
// domain.Flow (1:1 with a Temporal workflow) to a plain conversational
// Session, domain.FlowAction's tracked-action shape to the per-turn
// bookkeeping record, and domain.Subflow/worktree-fork to pinch linkage.
package session

import (
	"context"
	"encoding/json"
	"time"
)

// WorkMode mirrors spec.md §3; serialized as the lowercase strings.
type WorkMode string

const (
	WorkModePlan  WorkMode = "plan"
	WorkModeBuild WorkMode = "build"
)

// StringToWorkMode falls back to Build for any unrecognized value, per
// spec.md §6.
func StringToWorkMode(s string) WorkMode {
	if s == string(WorkModePlan) {
		return WorkModePlan
	}
	return WorkModeBuild
}

// PermissionMode mirrors spec.md §3.
type PermissionMode string

const (
	PermissionSupervised PermissionMode = "supervised"
	PermissionAutonomous PermissionMode = "autonomous"
)

// AgentState is the per-session state machine from spec.md §3:
// idle -> streaming -> tool_executing -> {streaming | awaiting_input | idle};
// error is terminal for the turn.
type AgentState string

const (
	AgentStateIdle          AgentState = "idle"
	AgentStateStreaming     AgentState = "streaming"
	AgentStateToolExecuting AgentState = "tool_executing"
	AgentStateAwaitingInput AgentState = "awaiting_input"
	AgentStateError         AgentState = "error"
)

// PinchContext is the compaction artifact carried when forking a session.
type PinchContext struct {
	WorkSummary       string   `json:"workSummary"`
	RankedFiles       []string `json:"rankedFiles"`
	PreservationHints []string `json:"preservationHints,omitempty"`
	Direction         string   `json:"direction,omitempty"`
}

// Session is the durable record backing one conversation.
type Session struct {
	Id                string     `json:"id"` // UUID v4
	Title             string     `json:"title"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	Model             string     `json:"model"`
	WorkingDir        string     `json:"workingDir"`
	ParentSessionId   string     `json:"parentSessionId,omitempty"`
	UserId            string     `json:"userId,omitempty"`
	TokenCount        int        `json:"tokenCount,omitempty"`
	WorkMode          WorkMode   `json:"workMode"`
	PermissionMode    PermissionMode `json:"permissionMode"`
	AgentState        AgentState `json:"agentState"`
	AgentStartedAt    *time.Time `json:"agentStartedAt,omitempty"`
	AgentLastEventAt  *time.Time `json:"agentLastEventAt,omitempty"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	type Alias Session
	return json.Marshal(&struct {
		Alias
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}{
		Alias:     Alias(s),
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	})
}

// StoredMessage is one row of durable conversation history.
// ContentJSON is the exact serialized llm2.Message content array; the
// store is schema-agnostic about it (spec.md §4.5).
type StoredMessage struct {
	Id          int64     `json:"id"`
	SessionId   string    `json:"sessionId"`
	Role        string    `json:"role"`
	ContentJSON []byte    `json:"contentJson"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is the persistence contract the orchestrator and SSE bridge
// depend on. Every operation opens/uses a connection from the pool with no
// shared connection-local state beyond it, matching the teacher's
// srv/sqlite convention of a fresh statement per call.
type Store interface {
	CreateSession(ctx context.Context, title, model, workingDir, userId string) (Session, error)
	GetSession(ctx context.Context, sessionId string) (Session, error)
	VerifySessionOwnership(ctx context.Context, sessionId, userId string) error
	ListActiveSessions(ctx context.Context, userId string) ([]Session, error)
	DeleteSession(ctx context.Context, sessionId string) error

	UpdateSessionTitle(ctx context.Context, sessionId, title string) error
	UpdateTokenCount(ctx context.Context, sessionId string, tokenCount int) error
	UpdateSessionWorkMode(ctx context.Context, sessionId string, mode WorkMode) error

	SetAgentState(ctx context.Context, sessionId string, state AgentState) error
	GetAgentState(ctx context.Context, sessionId string) (AgentState, error)
	TouchAgentEvent(ctx context.Context, sessionId string) error

	SaveMessage(ctx context.Context, sessionId, role string, contentJSON []byte) (StoredMessage, error)
	LoadSessionMessages(ctx context.Context, sessionId string) ([]StoredMessage, error)
	// UpdateLastMessage rewrites the tail message of the matching
	// session+role, used by the tool_result idempotency path in §4.7. It
	// only ever touches the single most recent row for (sessionId, role).
	UpdateLastMessage(ctx context.Context, sessionId, role string, contentJSON []byte) error

	CreateLinkedSession(ctx context.Context, parentId string, pinch PinchContext, title, model, workingDir, userId string) (Session, error)
	GetPinchContext(ctx context.Context, sessionId string) (*PinchContext, error)
}

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "session: not found" }

var ErrOwnershipMismatch = errOwnership{}

type errOwnership struct{}

func (errOwnership) Error() string { return "session: does not belong to user" }
