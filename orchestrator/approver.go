package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// inputRouter demultiplexes the orchestrator's single LoopInput channel to
// whichever suspended tool call is awaiting a reply, and turns
// LoopInputCancel into context cancellation. This is the goroutine/channel
// analogue of the teacher's workflow.Channel-based signal routing in
// dev/handle_tool_call.go, generalized to arbitrary suspension points rather
// than only parallel-tool-call fan-in.
type inputRouter struct {
	mu      sync.Mutex
	pending map[string]chan LoopInput
	cancel  context.CancelFunc
}

func newInputRouter(cancel context.CancelFunc) *inputRouter {
	return &inputRouter{
		pending: make(map[string]chan LoopInput),
		cancel:  cancel,
	}
}

func (r *inputRouter) register(toolCallId string) chan LoopInput {
	ch := make(chan LoopInput, 1)
	r.mu.Lock()
	r.pending[toolCallId] = ch
	r.mu.Unlock()
	return ch
}

func (r *inputRouter) unregister(toolCallId string) {
	r.mu.Lock()
	delete(r.pending, toolCallId)
	r.mu.Unlock()
}

func (r *inputRouter) route(in LoopInput) {
	if in.Type == LoopInputCancel {
		r.cancel()
		return
	}
	r.mu.Lock()
	ch, ok := r.pending[in.ToolCallId]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- in:
	default:
	}
}

func (r *inputRouter) pump(inputChan <-chan LoopInput) {
	for in := range inputChan {
		r.route(in)
	}
}

// sessionApprover implements toolexec.Approver on top of the orchestrator's
// event/input channel pair: it emits a LoopEventToolApprovalRequired (or
// awaiting-input) event, then blocks on the router-registered channel for a
// matching LoopInput, honoring context cancellation as a suspension point
// (spec.md §5's "awaiting a LoopInput during approval or AskUser").
type sessionApprover struct {
	router *inputRouter
	events chan<- LoopEvent
}

func (a *sessionApprover) emit(ev LoopEvent) {
	select {
	case a.events <- ev:
	default:
		// consumer is slow; block rather than drop, preserving ordering
		a.events <- ev
	}
}

func (a *sessionApprover) RequestApproval(ctx context.Context, sessionId, toolCallId, toolName string) (bool, error) {
	ch := a.router.register(toolCallId)
	defer a.router.unregister(toolCallId)

	a.emit(LoopEvent{Type: LoopEventToolApprovalRequired, SessionId: sessionId, ToolCallId: toolCallId, ToolName: toolName})

	select {
	case in := <-ch:
		if in.Type != LoopInputToolApproval {
			return false, fmt.Errorf("expected tool_approval input for %s, got %s", toolCallId, in.Type)
		}
		if in.Approved {
			a.emit(LoopEvent{Type: LoopEventToolApproved, SessionId: sessionId, ToolCallId: toolCallId, ToolName: toolName})
		} else {
			a.emit(LoopEvent{Type: LoopEventToolDenied, SessionId: sessionId, ToolCallId: toolCallId, ToolName: toolName})
		}
		return in.Approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a *sessionApprover) RequestAnswer(ctx context.Context, sessionId, toolCallId, toolName string) (string, error) {
	ch := a.router.register(toolCallId)
	defer a.router.unregister(toolCallId)

	a.emit(LoopEvent{Type: LoopEventAwaitingInput, SessionId: sessionId, ToolCallId: toolCallId, AwaitingToolName: toolName})

	select {
	case in := <-ch:
		if in.Type != LoopInputAskUserAnswer {
			return "", fmt.Errorf("expected ask_user_answer input for %s, got %s", toolCallId, in.Type)
		}
		return in.Answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
