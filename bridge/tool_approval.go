package bridge

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glidecode/orchestrator"
)

type ToolApprovalRequest struct {
	SessionId  string `json:"sessionId"`
	UserId     string `json:"userId"`
	ToolCallId string `json:"toolCallId"`
	Approved   bool   `json:"approved"`
}

// ToolApprovalHandler implements spec.md §4.7's "tool_approval": forwards
// LoopInput::ToolApproval into the input channel of the orchestrator
// already running for this session. Unlike chat/tool_result, this never
// starts a new run — the session must already have one in flight, awaiting
// exactly this tool call (testable property 6).
func (ctrl *Controller) ToolApprovalHandler(c *gin.Context) {
	var req ToolApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SessionId == "" || req.ToolCallId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and toolCallId are required"})
		return
	}

	if _, err := ctrl.loadOwnedSession(c, req.SessionId, req.UserId); err != nil {
		return
	}

	run, ok := ctrl.runs.get(req.SessionId)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no orchestrator is currently running for this session"})
		return
	}

	select {
	case run.input <- orchestrator.LoopInput{Type: orchestrator.LoopInputToolApproval, ToolCallId: req.ToolCallId, Approved: req.Approved}:
		c.Status(http.StatusAccepted)
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "orchestrator input channel is full"})
	}
}
