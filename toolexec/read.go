package toolexec

import (
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"glidecode/common"
)

// ReadParams is the parameter set for ReadTool.
type ReadParams struct {
	Path      string `json:"path" jsonschema:"required,description=Path to the file to read, relative to the working directory or absolute"`
	Offset    int    `json:"offset,omitempty" jsonschema:"description=0-based line offset to start reading from"`
	MaxLines  int    `json:"max_lines,omitempty" jsonschema:"description=Maximum number of lines to return; 0 means all"`
}

// ReadTool reads a sandboxed file, optionally windowed by line range.
type ReadTool struct{}

func (t *ReadTool) Name() string                    { return "read" }
func (t *ReadTool) Description() string              { return "Read the contents of a file." }
func (t *ReadTool) Category() common.ToolCategory    { return common.ToolCategoryReadOnly }
func (t *ReadTool) Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(&ReadParams{})
}

func (t *ReadTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	var params ReadParams
	if err := unmarshalParams(rawArgs, &params); err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, err.Error())
	}
	if params.Path == "" {
		return common.ErrResult(common.ToolErrorInvalidParameters, "path is required")
	}

	resolved, err := SandboxedResolve(joinIfRelative(ctx.WorkingDir, params.Path), ctx.SandboxRoot)
	if err != nil {
		return common.ErrResult(common.ToolErrorAccessDenied, err.Error())
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return common.ErrResult(common.ToolErrorToolError, fmt.Sprintf("failed to read %s: %v", params.Path, err))
	}

	lines := splitLinesKeepEnds(string(content))
	start := params.Offset
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := len(lines)
	if params.MaxLines > 0 && start+params.MaxLines < end {
		end = start + params.MaxLines
	}

	windowed := joinStrings(lines[start:end])
	return common.OkResult(map[string]any{
		"content":     windowed,
		"total_lines": len(lines),
	})
}

func joinIfRelative(workingDir, path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path
	}
	return workingDir + "/" + path
}

func splitLinesKeepEnds(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func joinStrings(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l
	}
	return out
}
