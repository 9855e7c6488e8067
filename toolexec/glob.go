package toolexec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/denormal/go-gitignore"
	"github.com/invopop/jsonschema"

	"glidecode/common"
)

// GlobParams is the parameter set for GlobTool.
type GlobParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=A doublestar glob pattern, e.g. '**/*.go'"`
}

// GlobTool matches files under the working directory against a doublestar
// glob pattern, skipping anything the repo's .gitignore excludes.
type GlobTool struct{}

func (t *GlobTool) Name() string                 { return "glob" }
func (t *GlobTool) Description() string           { return "Find files matching a glob pattern." }
func (t *GlobTool) Category() common.ToolCategory { return common.ToolCategoryReadOnly }
func (t *GlobTool) Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(&GlobParams{})
}

func (t *GlobTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	var params GlobParams
	if err := unmarshalParams(rawArgs, &params); err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, err.Error())
	}
	if params.Pattern == "" {
		return common.ErrResult(common.ToolErrorInvalidParameters, "pattern is required")
	}

	ignorer := loadGitignore(ctx.WorkingDir)

	matches, err := doublestar.Glob(os.DirFS(ctx.WorkingDir), params.Pattern)
	if err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, fmt.Sprintf("invalid glob pattern: %v", err))
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		abs := filepath.Join(ctx.WorkingDir, m)
		if _, err := SandboxedResolve(abs, ctx.SandboxRoot); err != nil {
			continue
		}
		if ignorer != nil {
			if match := ignorer.Absolute(abs, false); match != nil && match.Ignore() {
				continue
			}
		}
		files = append(files, m)
	}
	sort.Strings(files)

	return common.OkResult(map[string]any{"files": files})
}

// loadGitignore returns nil (meaning "ignore nothing") if the working
// directory has no .gitignore, rather than treating that as an error.
func loadGitignore(workingDir string) gitignore.GitIgnore {
	path := filepath.Join(workingDir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	ig, err := gitignore.NewRepositoryWithFile(workingDir, ".gitignore")
	if err != nil {
		return nil
	}
	return ig
}
