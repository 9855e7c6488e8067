package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cbroglie/mustache"

	"glidecode/common"
	"glidecode/llm2"
	"glidecode/secret_manager"
	"glidecode/session"
	"glidecode/toolexec"
)

// MaxIterations bounds one orchestrator run, per spec.md §4.6.
const MaxIterations = 50

// Orchestrator drives the single agentic loop: stream -> tools -> repeat.
// Grounded on dev/llm_loop.go's LlmLoop (iteration/feedback-budget shape,
// pause-checking at each iteration head) and dev/handle_tool_call.go
// (parallel tool-call dispatch), reimplemented on goroutines and channels
// in place of Temporal workflow primitives (SPEC_FULL.md §6.6).
type Orchestrator struct {
	Provider      llm2.Provider
	Registry      *toolexec.Registry
	Executor      *toolexec.Executor
	Store         session.Store
	SecretManager secret_manager.SecretManager
	MaxIterations int

	// Flags lets operators retune exploration-budget thresholds per session
	// without a redeploy. Zero value disables overrides (package defaults
	// apply).
	Flags FeatureFlags
}

func NewOrchestrator(provider llm2.Provider, registry *toolexec.Registry, executor *toolexec.Executor, store session.Store, secrets secret_manager.SecretManager) *Orchestrator {
	return &Orchestrator{Provider: provider, Registry: registry, Executor: executor, Store: store, SecretManager: secrets, MaxIterations: MaxIterations}
}

// Run starts one orchestrator for sess with userContent appended as the new
// user turn, and returns the event stream plus the input channel used to
// resolve approvals, AskUser answers, and cancellation. The caller owns the
// input channel's lifecycle (close it to let the internal router goroutine
// exit once the run is done).
func (o *Orchestrator) Run(ctx context.Context, sess session.Session, userContent []llm2.ContentBlock, opts CallOptions) (<-chan LoopEvent, chan<- LoopInput) {
	return o.start(ctx, sess, userContent, opts)
}

// Resume continues a session whose prior run suspended awaiting a
// LoopInput (e.g. an AskUser answer merged directly into the last stored
// tool-result message by the caller) without appending a new user turn,
// picking the loop back up from the stored conversation as-is. Used by the
// bridge's tool_result handling for the non-plan-confirm case (spec.md
// §4.7): the plan-confirm case instead calls Run with a fresh instructional
// user message, per E5.
func (o *Orchestrator) Resume(ctx context.Context, sess session.Session, opts CallOptions) (<-chan LoopEvent, chan<- LoopInput) {
	return o.start(ctx, sess, nil, opts)
}

func (o *Orchestrator) start(ctx context.Context, sess session.Session, userContent []llm2.ContentBlock, opts CallOptions) (<-chan LoopEvent, chan<- LoopInput) {
	events := make(chan LoopEvent, 64)
	input := make(chan LoopInput, 16)

	runCtx, cancel := context.WithCancel(ctx)
	router := newInputRouter(cancel)
	go router.pump(input)

	go o.run(runCtx, sess, userContent, opts, events, router)

	return events, input
}

type exitReason int

const (
	exitNormal exitReason = iota
	exitError
	exitSuspend
)

func (o *Orchestrator) run(ctx context.Context, sess session.Session, userContent []llm2.ContentBlock, opts CallOptions, events chan<- LoopEvent, router *inputRouter) {
	// background tracks goroutines (e.g. title generation) that may still
	// call emit after the main turn loop finishes; closing events before
	// they're done would panic on a send to a closed channel. Deferred in
	// this order so Wait() runs before close(events) (defers run LIFO).
	var background sync.WaitGroup
	defer close(events)
	defer background.Wait()

	emit := func(ev LoopEvent) {
		ev.SessionId = sess.Id
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	approver := &sessionApprover{router: router, events: events}

	existing, err := o.Store.LoadSessionMessages(ctx, sess.Id)
	if err != nil {
		emit(LoopEvent{Type: LoopEventError, ErrorMessage: fmt.Sprintf("failed to load session history: %v", err)})
		return
	}
	isFirstTurn := len(existing) == 0

	// userContent is nil for Resume: the conversation already ends with
	// whatever the caller merged into the last stored message, and no new
	// user turn is appended.
	if userContent != nil {
		userJSON, err := json.Marshal(userContent)
		if err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: fmt.Sprintf("failed to encode user message: %v", err)})
			return
		}
		if _, err := o.Store.SaveMessage(ctx, sess.Id, "user", userJSON); err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: fmt.Sprintf("failed to persist user message: %v", err)})
			return
		}
	}

	maxIterations := o.MaxIterations
	if maxIterations <= 0 {
		maxIterations = MaxIterations
	}

	budget := &explorationBudget{}
	reason := exitNormal
	var lastUsage llm2.Usage
	failures := newFailureTracker()

	for iteration := 1; iteration <= maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			reason = exitSuspend
			goto finalize
		default:
		}

		if err := o.Store.SetAgentState(ctx, sess.Id, session.AgentStateStreaming); err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}

		conversation, err := o.buildConversation(ctx, sess, opts)
		if err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}

		resp, assistantText, err := o.streamTurn(ctx, conversation, opts, emit)
		if err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}
		lastUsage = resp.Usage

		assistantJSON, err := json.Marshal(resp.Output.Content)
		if err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}
		if _, err := o.Store.SaveMessage(ctx, sess.Id, "assistant", assistantJSON); err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}

		if isFirstTurn && strings.TrimSpace(assistantText) != "" {
			isFirstTurn = false
			firstUserText := ""
			for _, block := range userContent {
				if block.Type == llm2.ContentBlockTypeText {
					firstUserText += block.Text
				}
			}
			background.Add(1)
			go func() {
				defer background.Done()
				o.generateAndSaveTitle(ctx, sess.Id, firstUserText, opts, emit)
			}()
		}

		toolCalls := toolUseBlocks(resp.Output.Content)

		if sess.WorkMode == session.WorkModePlan && len(toolCalls) == 0 {
			if plan := parsePlan(assistantText); plan != nil {
				emit(LoopEvent{Type: LoopEventPlanUpdate, PlanText: plan.Summary})
				emit(LoopEvent{Type: LoopEventPlanComplete, PlanText: strings.Join(plan.Steps, "\n")})
				emit(LoopEvent{Type: LoopEventAwaitingInput, AwaitingToolName: "PlanConfirm"})
				reason = exitSuspend
				goto finalize
			}
		}

		if len(toolCalls) == 0 {
			emit(LoopEvent{Type: LoopEventTurnComplete, Turn: iteration, HasMore: false})
			reason = exitNormal
			goto finalize
		}

		categories := make([]common.ToolCategory, len(toolCalls))
		for i, tc := range toolCalls {
			categories[i] = common.CategoryForToolName(tc.Name)
		}
		warnAt, escalateAt := explorationWarnThreshold, explorationEscalateThreshold
		if o.Flags.client != nil {
			warnAt = o.Flags.explorationWarnThresholdFor(sess.Id)
			escalateAt = o.Flags.explorationEscalateThresholdFor(sess.Id)
		}
		if warn, escalate := budget.observe(categories, warnAt, escalateAt); warn || escalate {
			emit(LoopEvent{Type: LoopEventExplorationWarning, ExplorationIterations: budget.consecutiveReadOnlyIterations})
		}

		askUserCalls, toolCallsToRun := partitionAskUser(toolCalls)

		if err := o.Store.SetAgentState(ctx, sess.Id, session.AgentStateToolExecuting); err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}

		results := o.executeToolCalls(ctx, sess, toolCallsToRun, approver, emit)

		repeatedFailure := false
		for i, tc := range toolCallsToRun {
			if !results[i].Ok {
				if failures.recordFailure(tc.Name, []byte(tc.Arguments)) {
					repeatedFailure = true
				}
			}
		}

		resultBlocks := make([]llm2.ContentBlock, 0, len(toolCalls))
		resultsByCallId := make(map[string]common.ToolResult, len(toolCallsToRun))
		for i, tc := range toolCallsToRun {
			resultsByCallId[tc.Id] = results[i]
		}

		newWorkMode := sess.WorkMode
		for _, tc := range toolCalls {
			if res, ok := resultsByCallId[tc.Id]; ok {
				resultBlocks = append(resultBlocks, toolResultContentBlock(tc, res))
				if res.Ok && (tc.Name == "set_work_mode" || tc.Name == "enter_plan_mode") {
					if mode, ok := extractWorkMode(res); ok {
						newWorkMode = mode
					}
				}
				continue
			}
			// AskUser placeholder (spec.md §4.6 step 7).
			resultBlocks = append(resultBlocks, llm2.ContentBlock{
				Type: llm2.ContentBlockTypeToolResult,
				ToolResult: &llm2.ToolResultBlock{
					ToolCallId: tc.Id,
					Name:       tc.Name,
					Text:       "Awaiting user response...",
				},
			})
		}

		resultJSON, err := json.Marshal(resultBlocks)
		if err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}
		if _, err := o.Store.SaveMessage(ctx, sess.Id, "tool", resultJSON); err != nil {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			reason = exitError
			goto finalize
		}

		if newWorkMode != sess.WorkMode {
			sess.WorkMode = newWorkMode
			if err := o.Store.UpdateSessionWorkMode(ctx, sess.Id, newWorkMode); err != nil {
				emit(LoopEvent{Type: LoopEventError, ErrorMessage: err.Error()})
			}
			emit(LoopEvent{Type: LoopEventModeChange, Mode: newWorkMode})
		}

		if repeatedFailure {
			emit(LoopEvent{Type: LoopEventError, ErrorMessage: "a tool call failed repeatedly with the same arguments; stopping this turn"})
			emit(LoopEvent{Type: LoopEventTurnComplete, Turn: iteration, HasMore: false})
			reason = exitError
			goto finalize
		}

		if len(askUserCalls) > 0 {
			for _, tc := range askUserCalls {
				emit(LoopEvent{Type: LoopEventAwaitingInput, ToolCallId: tc.Id, AwaitingToolName: tc.Name})
			}
			reason = exitSuspend
			goto finalize
		}

		emit(LoopEvent{Type: LoopEventTurnComplete, Turn: iteration, HasMore: true})
	}

	reason = exitError
	emit(LoopEvent{Type: LoopEventError, ErrorMessage: "maximum iteration count reached without completing the turn"})

finalize:
	o.Store.UpdateTokenCount(ctx, sess.Id, lastUsage.InputTokens+lastUsage.OutputTokens)

	var finalState session.AgentState
	switch reason {
	case exitError:
		finalState = session.AgentStateError
	case exitSuspend:
		finalState = session.AgentStateAwaitingInput
	default:
		finalState = session.AgentStateIdle
	}
	o.Store.SetAgentState(ctx, sess.Id, finalState)

	emit(LoopEvent{Type: LoopEventFinished, SessionId: sess.Id})
}

// buildConversation prepends stable project/session context messages (kept
// first so the cacheable prefix is maximal, per spec.md §4.1) to the
// persisted message history. ProjectContext/SessionContext are rendered as
// mustache templates against the session before injection, the way
// dev/build_dev_plan.go assembles its prompt from a template plus flow
// state rather than raw string concatenation.
func (o *Orchestrator) buildConversation(ctx context.Context, sess session.Session, opts CallOptions) ([]llm2.Message, error) {
	stored, err := o.Store.LoadSessionMessages(ctx, sess.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session messages: %w", err)
	}

	messages := make([]llm2.Message, 0, len(stored)+2)

	if opts.ProjectContext != "" {
		rendered, err := renderSystemTemplate(opts.ProjectContext, sess)
		if err != nil {
			return nil, fmt.Errorf("failed to render project context template: %w", err)
		}
		messages = append(messages, llm2.Message{
			Role:    llm2.RoleSystem,
			Content: []llm2.ContentBlock{{Type: llm2.ContentBlockTypeText, Text: rendered, ContextType: "initial_instructions"}},
		})
	}
	if opts.SessionContext != "" {
		rendered, err := renderSystemTemplate(opts.SessionContext, sess)
		if err != nil {
			return nil, fmt.Errorf("failed to render session context template: %w", err)
		}
		messages = append(messages, llm2.Message{
			Role:    llm2.RoleSystem,
			Content: []llm2.ContentBlock{{Type: llm2.ContentBlockTypeText, Text: rendered}},
		})
	}

	for _, m := range stored {
		var blocks []llm2.ContentBlock
		if err := json.Unmarshal(m.ContentJSON, &blocks); err != nil {
			return nil, fmt.Errorf("failed to decode stored message %d: %w", m.Id, err)
		}
		messages = append(messages, llm2.Message{Role: storedRoleToLlm2Role(m.Role), Content: blocks})
	}

	return messages, nil
}

// renderSystemTemplate evaluates a project/session context string as a
// mustache template against session fields (working dir, mode, model), so
// callers can write "{{WorkingDir}}" / "{{WorkMode}}" into stored context
// strings instead of building them with string concatenation. A template
// with no mustache tags renders unchanged.
func renderSystemTemplate(tmpl string, sess session.Session) (string, error) {
	return mustache.Render(tmpl, map[string]any{
		"SessionId":      sess.Id,
		"Title":          sess.Title,
		"WorkingDir":     sess.WorkingDir,
		"Model":          sess.Model,
		"WorkMode":       string(sess.WorkMode),
		"PermissionMode": string(sess.PermissionMode),
	})
}

func storedRoleToLlm2Role(role string) llm2.Role {
	switch role {
	case "assistant":
		return llm2.RoleAssistant
	case "system":
		return llm2.RoleSystem
	default:
		// user and tool-result messages are both carried under RoleUser, per
		// llm2's convention that tool results are user-role content blocks.
		return llm2.RoleUser
	}
}

// streamTurn calls the provider and forwards every streamed event as a
// LoopEvent, returning the aggregated response and its concatenated text.
func (o *Orchestrator) streamTurn(ctx context.Context, conversation []llm2.Message, opts CallOptions, emit func(LoopEvent)) (*llm2.MessageResponse, string, error) {
	tools := o.sortedTools()

	req := llm2.StreamRequest{
		Messages: conversation,
		Options: llm2.Options{
			Params: llm2.Params{
				Messages:    conversation,
				Tools:       tools,
				ModelConfig: opts.ModelConfig,
			},
		},
		SecretManager: o.SecretManager,
	}

	eventChan := make(chan llm2.Event, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eventChan {
			ev := ev
			emit(LoopEvent{Type: LoopEventStream, StreamEvent: &ev})
		}
	}()

	resp, err := o.Provider.Stream(ctx, req, eventChan)
	close(eventChan)
	<-done
	if err != nil {
		return nil, "", err
	}

	var text strings.Builder
	for _, block := range resp.Output.Content {
		if block.Type == llm2.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}

	return resp, text.String(), nil
}

func (o *Orchestrator) sortedTools() []*common.Tool {
	tools := o.Registry.List()
	out := make([]*common.Tool, 0, len(tools))
	for _, t := range tools {
		ct := toolexec.ToCommonTool(t)
		out = append(out, &ct)
	}
	// Stable tool ordering keeps the cacheable prompt prefix stable across
	// turns (spec.md §4.1).
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (o *Orchestrator) generateAndSaveTitle(ctx context.Context, sessionId, firstUserText string, opts CallOptions, emit func(LoopEvent)) {
	title, err := o.generateTitle(ctx, firstUserText, opts)
	if err != nil || title == "" {
		return
	}
	if err := o.Store.UpdateSessionTitle(ctx, sessionId, title); err != nil {
		return
	}
	emit(LoopEvent{Type: LoopEventTitleGenerated, Title: title})
}

func toolUseBlocks(blocks []llm2.ContentBlock) []llm2.ToolUseBlock {
	var out []llm2.ToolUseBlock
	for _, b := range blocks {
		if b.Type == llm2.ContentBlockTypeToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

func partitionAskUser(toolCalls []llm2.ToolUseBlock) (askUser, other []llm2.ToolUseBlock) {
	for _, tc := range toolCalls {
		if tc.Name == "AskUserQuestion" {
			askUser = append(askUser, tc)
		} else {
			other = append(other, tc)
		}
	}
	return askUser, other
}

// executeToolCalls runs every non-AskUser tool call in parallel, grounded on
// dev/handle_tool_call.go's workflow.Go/channel fan-out with index-tagged
// results, reimplemented with plain goroutines and a buffered channel.
func (o *Orchestrator) executeToolCalls(ctx context.Context, sess session.Session, toolCalls []llm2.ToolUseBlock, approver toolexec.Approver, emit func(LoopEvent)) []common.ToolResult {
	results := make([]common.ToolResult, len(toolCalls))
	if len(toolCalls) == 0 {
		return results
	}

	permMode := toolexec.PermissionAutonomous
	if sess.PermissionMode == session.PermissionSupervised {
		permMode = toolexec.PermissionSupervised
	}
	workMode := toolexec.WorkModeBuild
	if sess.WorkMode == session.WorkModePlan {
		workMode = toolexec.WorkModePlan
	}

	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		i, tc := i, tc
		wg.Add(1)
		go func() {
			defer wg.Done()

			emit(LoopEvent{Type: LoopEventToolExecuting, ToolCallId: tc.Id, ToolName: tc.Name})

			outputChan := make(chan toolexec.OutputDelta, 64)
			deltaDone := make(chan struct{})
			go func() {
				defer close(deltaDone)
				for d := range outputChan {
					emit(LoopEvent{Type: LoopEventToolOutputDelta, ToolCallId: d.ToolCallId, Delta: d.Delta})
				}
			}()

			execCtx := toolexec.ExecuteContext{
				Context:     ctx,
				UserId:      sess.UserId,
				SessionId:   sess.Id,
				ToolCallId:  tc.Id,
				WorkingDir:  sess.WorkingDir,
				SandboxRoot: sess.WorkingDir,
				WorkMode:    workMode,
				OutputChan:  outputChan,
			}

			result := o.Executor.Execute(execCtx, tc.Name, []byte(tc.Arguments), permMode, approver)
			close(outputChan)
			<-deltaDone

			results[i] = result
			emit(LoopEvent{Type: LoopEventToolResult, ToolCallId: tc.Id, ToolName: tc.Name, ToolResult: &result})
		}()
	}
	wg.Wait()

	return results
}

func toolResultContentBlock(tc llm2.ToolUseBlock, result common.ToolResult) llm2.ContentBlock {
	text, err := result.MarshalText()
	if err != nil {
		text = fmt.Sprintf(`{"ok":false,"error":{"code":"tool_error","message":%q}}`, err.Error())
	}
	return llm2.ContentBlock{
		Type: llm2.ContentBlockTypeToolResult,
		ToolResult: &llm2.ToolResultBlock{
			ToolCallId: tc.Id,
			Name:       tc.Name,
			IsError:    !result.Ok,
			Text:       text,
		},
	}
}

// extractWorkMode pulls the new work mode out of a successful
// set_work_mode/enter_plan_mode result's data payload.
func extractWorkMode(result common.ToolResult) (session.WorkMode, bool) {
	data, ok := result.Data.(map[string]any)
	if !ok {
		return "", false
	}
	mode, ok := data["mode"].(string)
	if !ok {
		return "", false
	}
	return session.StringToWorkMode(mode), true
}
