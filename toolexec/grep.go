package toolexec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/invopop/jsonschema"

	"glidecode/common"
)

// GrepParams is the parameter set for GrepTool.
type GrepParams struct {
	Pattern      string `json:"pattern" jsonschema:"required,description=A regular expression to search for"`
	PathGlob     string `json:"path_glob,omitempty" jsonschema:"description=Restrict the search to files matching this glob; defaults to '**/*'"`
	ContextLines int    `json:"context_lines,omitempty" jsonschema:"description=Lines of context to include around each match"`
}

// GrepTool searches file contents under the working directory for a regex,
// respecting .gitignore the same way GlobTool does.
type GrepTool struct{}

func (t *GrepTool) Name() string                 { return "grep" }
func (t *GrepTool) Description() string           { return "Search file contents for a regular expression." }
func (t *GrepTool) Category() common.ToolCategory { return common.ToolCategoryReadOnly }
func (t *GrepTool) Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(&GrepParams{})
}

type grepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

func (t *GrepTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	var params GrepParams
	if err := unmarshalParams(rawArgs, &params); err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, err.Error())
	}
	if params.Pattern == "" {
		return common.ErrResult(common.ToolErrorInvalidParameters, "pattern is required")
	}
	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, fmt.Sprintf("invalid pattern: %v", err))
	}

	pathGlob := params.PathGlob
	if pathGlob == "" {
		pathGlob = "**/*"
	}

	ignorer := loadGitignore(ctx.WorkingDir)

	candidates, err := doublestar.Glob(os.DirFS(ctx.WorkingDir), pathGlob)
	if err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, fmt.Sprintf("invalid path_glob: %v", err))
	}
	sort.Strings(candidates)

	var matches []grepMatch
	for _, rel := range candidates {
		abs := filepath.Join(ctx.WorkingDir, rel)
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if _, err := SandboxedResolve(abs, ctx.SandboxRoot); err != nil {
			continue
		}
		if ignorer != nil {
			if match := ignorer.Absolute(abs, false); match != nil && match.Ignore() {
				continue
			}
		}
		fileMatches := grepFile(abs, rel, re, params.ContextLines)
		matches = append(matches, fileMatches...)
	}

	return common.OkResult(map[string]any{"matches": matches, "count": len(matches)})
}

func grepFile(abs, rel string, re *regexp.Regexp, contextLines int) []grepMatch {
	f, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	var out []grepMatch
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		m := grepMatch{File: rel, Line: i + 1, Text: line}
		if contextLines > 0 {
			start := i - contextLines
			if start < 0 {
				start = 0
			}
			end := i + contextLines + 1
			if end > len(lines) {
				end = len(lines)
			}
			m.Context = strings.Join(lines[start:end], "\n")
		}
		out = append(out, m)
	}
	return out
}
