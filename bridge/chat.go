package bridge

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"glidecode/llm2"
	"glidecode/logger"
	"glidecode/orchestrator"
	"glidecode/session"
)

// keepAliveInterval bounds how long an idle SSE connection goes without a
// frame, per spec.md §6's "periodic keep-alive".
const keepAliveInterval = 20 * time.Second

type ChatRequest struct {
	SessionId      string `json:"sessionId,omitempty"`
	UserId         string `json:"userId"`
	WorkingDir     string `json:"workingDir,omitempty"`
	Content        string `json:"content"`
	Model          string `json:"model,omitempty"`
	ProjectContext string `json:"projectContext,omitempty"`
	SessionContext string `json:"sessionContext,omitempty"`
}

// ChatHandler implements spec.md §4.7's "chat": creates or resumes a
// session, appends the user message, starts an orchestrator, and streams
// back LoopEvent frames as SSE. Grounded on api.go's
// GetFlowActionChangesHandler (events channel + goroutine + clientGone
// select loop), generalized from a Redis stream poll to forwarding an
// already-live orchestrator.LoopEvent channel.
func (ctrl *Controller) ChatHandler(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	ctx := c.Request.Context()

	var sess session.Session
	var err error
	if req.SessionId == "" {
		sess, err = ctrl.Store.CreateSession(ctx, "", req.Model, req.WorkingDir, req.UserId)
		if err != nil {
			ctrl.errorResponse(c, http.StatusInternalServerError, err)
			return
		}
	} else {
		if err := ctrl.Store.VerifySessionOwnership(ctx, req.SessionId, req.UserId); err != nil {
			if err == session.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			} else {
				c.JSON(http.StatusForbidden, gin.H{"error": "session does not belong to user"})
			}
			return
		}
		sess, err = ctrl.Store.GetSession(ctx, req.SessionId)
		if err != nil {
			ctrl.errorResponse(c, http.StatusInternalServerError, err)
			return
		}
	}

	release, ok := ctrl.locks.TryAcquire(sess.Id)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "an orchestrator is already running for this session"})
		return
	}

	opts := orchestrator.CallOptions{
		ModelConfig:    resolveModel(req.Model, sess.Model, ctrl.ClientDefaultModel),
		ProjectContext: req.ProjectContext,
		SessionContext: req.SessionContext,
	}

	userContent := []llm2.ContentBlock{{Type: llm2.ContentBlockTypeText, Text: req.Content}}
	events, input := ctrl.orchestratorInstance().Run(ctx, sess, userContent, opts)

	ctrl.runs.register(sess.Id, &activeRun{input: input, release: release})

	ctrl.streamEvents(c, sess.Id, events, input)
}

// streamEvents writes every LoopEvent as an SSE frame, releasing the
// session lock and deregistering the run once LoopEventFinished arrives or
// the event channel closes. If the client disconnects first, a cancel is
// sent and events are drained without being written until then. The
// caller's input channel is always
// closed on return so the orchestrator's internal router goroutine exits
// (orchestrator.Orchestrator.Run's documented contract).
func (ctrl *Controller) streamEvents(c *gin.Context, sessionId string, events <-chan orchestrator.LoopEvent, input chan<- orchestrator.LoopInput) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	// Whatever happens to the HTTP connection, the orchestrator keeps
	// running to completion per spec.md §5 ("orchestrator still persists
	// the partial assistant message ... emits Finished"); this handler's
	// job is only to forward frames while the client is listening, then
	// always drain to Finished before releasing the session lock so a
	// follow-up chat/tool_result request never races a still-running turn.
	disconnected := false
	cancelSent := false
	writeFrame := func(ev orchestrator.LoopEvent) bool {
		if disconnected {
			return ev.Type != orchestrator.LoopEventFinished
		}
		frame, err := json.Marshal(ev)
		if err != nil {
			logger.Get().Error().Err(err).Msg("failed to marshal loop event")
			return true
		}
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			disconnected = true
			return true
		}
		if _, err := c.Writer.Write(frame); err != nil {
			disconnected = true
			return true
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			disconnected = true
			return true
		}
		c.Writer.Flush()
		return ev.Type != orchestrator.LoopEventFinished
	}

	defer func() {
		ctrl.runs.release(sessionId)
		ctrl.runs.unregister(sessionId)
		close(input)
	}()

loop:
	for {
		select {
		case <-clientGone:
			disconnected = true
			if !cancelSent {
				cancelSent = true
				select {
				case input <- orchestrator.LoopInput{Type: orchestrator.LoopInputCancel}:
				default:
				}
			}
		case ev, okCh := <-events:
			if !okCh {
				break loop
			}
			if !writeFrame(ev) {
				// still drain until the channel closes, to avoid leaking
				// the orchestrator goroutine and to run the deferred
				// release only once the run has truly finished.
				for range events {
				}
				break loop
			}
		case <-ticker.C:
			if !disconnected {
				if _, err := c.Writer.Write([]byte(": keep-alive\n\n")); err != nil {
					disconnected = true
				} else {
					c.Writer.Flush()
				}
			}
		}
	}
}

// release looks up and releases the session lock held by the given run,
// via the activeRuns registry rather than a closure, so tool_result/
// tool_approval handlers and streamEvents both go through one path.
func (a *activeRuns) release(sessionId string) {
	a.mu.Lock()
	run, ok := a.runs[sessionId]
	a.mu.Unlock()
	if ok && run.release != nil {
		run.release()
	}
}
