package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"glidecode/llm2"
	"glidecode/orchestrator"
	"glidecode/session"
)

// planConfirmPrefix marks a tool_use_id reserved for the front-end's plan
// confirmation reply (spec.md §6: `^plan-confirm-<uuid>$`), parsed here
// rather than treated as ordinary tool output.
const planConfirmPrefix = "plan-confirm-"

type ToolResultRequest struct {
	SessionId  string `json:"sessionId"`
	UserId     string `json:"userId"`
	ToolCallId string `json:"toolCallId"`
	Result     string `json:"result"`
	IsError    bool   `json:"isError,omitempty"`
}

// ToolResultHandler implements spec.md §4.7's "tool_result". For an
// ordinary suspended tool call (AskUserQuestion) it merges the answer into
// the placeholder left by the loop (SPEC_FULL.md's step-7 convention,
// orchestrator/loop.go) and resumes without a new user turn. For a
// plan-confirm id it instead appends an instructional user message and
// flips work mode, per E5.
func (ctrl *Controller) ToolResultHandler(c *gin.Context) {
	var req ToolResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SessionId == "" || req.ToolCallId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and toolCallId are required"})
		return
	}

	ctx := c.Request.Context()
	sess, err := ctrl.loadOwnedSession(c, req.SessionId, req.UserId)
	if err != nil {
		return
	}

	release, ok := ctrl.locks.TryAcquire(sess.Id)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "an orchestrator is already running for this session"})
		return
	}

	opts := orchestrator.CallOptions{ModelConfig: resolveModel("", sess.Model, ctrl.ClientDefaultModel)}

	if strings.HasPrefix(req.ToolCallId, planConfirmPrefix) {
		ctrl.resumeAfterPlanConfirm(c, ctx, sess, req, release, opts)
		return
	}

	if err := ctrl.mergeToolResult(ctx, sess.Id, req); err != nil {
		release()
		ctrl.errorResponse(c, http.StatusInternalServerError, err)
		return
	}

	events, input := ctrl.orchestratorInstance().Resume(ctx, sess, opts)
	ctrl.runs.register(sess.Id, &activeRun{input: input, release: release})
	ctrl.streamEvents(c, sess.Id, events, input)
}

// resumeAfterPlanConfirm handles the `plan-confirm-<uuid>` special case:
// "execute" flips work mode to Build and starts a fresh turn instructing
// the model to proceed; anything else leaves work mode as Plan and asks
// the model to stand by, per E5.
func (ctrl *Controller) resumeAfterPlanConfirm(c *gin.Context, ctx context.Context, sess session.Session, req ToolResultRequest, release func(), opts orchestrator.CallOptions) {
	choice := strings.ToLower(strings.TrimSpace(req.Result))

	var instruction string
	if choice == "execute" {
		if err := ctrl.Store.UpdateSessionWorkMode(ctx, sess.Id, session.WorkModeBuild); err != nil {
			release()
			ctrl.errorResponse(c, http.StatusInternalServerError, err)
			return
		}
		sess.WorkMode = session.WorkModeBuild
		instruction = "The plan has been approved. Proceed to execute it."
	} else {
		instruction = "The plan has been declined. Do not execute it; wait for further instructions."
	}

	userContent := []llm2.ContentBlock{{Type: llm2.ContentBlockTypeText, Text: instruction}}
	events, input := ctrl.orchestratorInstance().Run(ctx, sess, userContent, opts)
	ctrl.runs.register(sess.Id, &activeRun{input: input, release: release})
	ctrl.streamEvents(c, sess.Id, events, input)
}

// mergeToolResult replaces the placeholder content block for toolCallId in
// the last stored "tool"-role message with the real result if present,
// else appends a new one, then rewrites that message in place. This is the
// idempotent merge spec.md §4.7 calls for: calling it twice with the same
// toolCallId is a no-op the second time past the replace, not a duplicate
// append.
func (ctrl *Controller) mergeToolResult(ctx context.Context, sessionId string, req ToolResultRequest) error {
	stored, err := ctrl.Store.LoadSessionMessages(ctx, sessionId)
	if err != nil {
		return err
	}

	lastToolIdx := -1
	for i := len(stored) - 1; i >= 0; i-- {
		if stored[i].Role == "tool" {
			lastToolIdx = i
			break
		}
	}
	if lastToolIdx == -1 {
		return errNoToolMessage
	}

	var blocks []llm2.ContentBlock
	if err := json.Unmarshal(stored[lastToolIdx].ContentJSON, &blocks); err != nil {
		return err
	}

	found := false
	for i := range blocks {
		if blocks[i].ToolResult != nil && blocks[i].ToolResult.ToolCallId == req.ToolCallId {
			blocks[i].ToolResult.Text = req.Result
			blocks[i].ToolResult.IsError = req.IsError
			found = true
			break
		}
	}
	if !found {
		blocks = append(blocks, llm2.ContentBlock{
			Type: llm2.ContentBlockTypeToolResult,
			ToolResult: &llm2.ToolResultBlock{
				ToolCallId: req.ToolCallId,
				IsError:    req.IsError,
				Text:       req.Result,
			},
		})
	}

	merged, err := json.Marshal(blocks)
	if err != nil {
		return err
	}
	return ctrl.Store.UpdateLastMessage(ctx, sessionId, "tool", merged)
}

// loadOwnedSession verifies userId owns sessionId and loads it, writing an
// HTTP error response and returning a non-nil error if either step fails.
func (ctrl *Controller) loadOwnedSession(c *gin.Context, sessionId, userId string) (session.Session, error) {
	ctx := c.Request.Context()
	if err := ctrl.Store.VerifySessionOwnership(ctx, sessionId, userId); err != nil {
		if err == session.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			c.JSON(http.StatusForbidden, gin.H{"error": "session does not belong to user"})
		}
		return session.Session{}, err
	}
	sess, err := ctrl.Store.GetSession(ctx, sessionId)
	if err != nil {
		ctrl.errorResponse(c, http.StatusInternalServerError, err)
		return session.Session{}, err
	}
	return sess, nil
}

var errNoToolMessage = errors.New("tool_result received but no prior tool-result message exists for this session")
