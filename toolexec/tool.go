// Package toolexec implements the tool registry and execution pipeline:
// pre/post hooks, the permission gate, sandboxed path resolution, and
// structured result envelopes. It generalizes the teacher's hard-coded
// tool switch statement (dev/handle_tool_call.go) into a real registry,
// since this implementation is multi-tenant and sandboxes tool-accessible
// paths, which the teacher's single-tenant worktree model does not need.
package toolexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"glidecode/common"
)

// OutputDelta is pushed by streaming tools (e.g. shell) as output arrives.
type OutputDelta struct {
	ToolCallId string
	Delta      string
}

// ExecuteContext carries everything a tool execution needs beyond its
// parameters: identity, sandbox root, and the channel streaming tools push
// incremental output to.
type ExecuteContext struct {
	Context     context.Context
	UserId      string
	SessionId   string
	ToolCallId  string
	WorkingDir  string
	SandboxRoot string // empty means no sandbox (single-tenant, permissive resolution)
	WorkMode    WorkMode
	OutputChan  chan<- OutputDelta // nil if the caller doesn't want streamed deltas
}

// WorkMode mirrors the session's work mode (spec.md §3); toolexec only
// needs to know whether it's Plan (restricts to read-only/interactive).
type WorkMode string

const (
	WorkModePlan  WorkMode = "plan"
	WorkModeBuild WorkMode = "build"
)

// Tool is the capability interface every registered tool implements.
// There is no inheritance hierarchy: the registry stores a polymorphic
// handle and executes through it, nothing more.
type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Category() common.ToolCategory
	Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult
}

// Registry is keyed by tool name and exposes bulk listing for inclusion in
// provider requests. Reads dominate (system-prompt assembly on every
// turn); writes only happen at startup or on an explicit reload (e.g. MCP
// tool registration), so a plain RWMutex is sufficient.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool for inclusion in a provider request's
// tool list. Order is not guaranteed; callers that need a stable cache key
// (e.g. for prompt-cache breakpoints) should sort by name themselves.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ToCommonTool projects a Tool into the provider-request Tool shape.
func ToCommonTool(t Tool) common.Tool {
	return common.Tool{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

var errUnknownTool = func(name string) error { return fmt.Errorf("unknown tool: %s", name) }
