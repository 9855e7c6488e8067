package toolexec

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
)

// readOnlyCommandPrefixes lists shell command prefixes considered safe to
// auto-approve even under PermissionSupervised, trimmed from the teacher's
// much larger BaseCommandPermissions table (common/command_permission.go) to
// the prefixes that are unambiguously read-only regardless of arguments.
var readOnlyCommandPrefixes = []string{
	"cd", "ls", "cat", "echo", "pwd", "head", "tail", "wc", "grep", "find",
	"which", "date", "whoami", "hostname", "uname", "file", "stat", "du",
	"df", "tree", "less", "more", "diff", "sort", "uniq", "cut", "basename",
	"dirname", "realpath", "readlink",
	"git status", "git log", "git diff", "git branch", "git show",
	"git remote", "git tag", "git describe", "git rev-parse",
	"git ls-files", "git ls-tree", "git cat-file", "git blame",
	"git shortlog", "git stash list",
	"go test", "go build", "go vet", "go list", "go version", "go env", "go doc",
	"npm test", "npm run lint", "npm run test", "npm list", "npm outdated",
}

// IsReadOnlyCommand reports whether every command extracted from script
// matches a known read-only prefix. An empty or unparseable script is
// treated as not-read-only (fails closed, per spec.md §7's
// fail-safe-to-approval stance on ambiguous input).
func IsReadOnlyCommand(script string) bool {
	commands := extractShellCommands(script)
	if len(commands) == 0 {
		return false
	}
	for _, cmd := range commands {
		if !matchesReadOnlyPrefix(cmd) {
			return false
		}
	}
	return true
}

func matchesReadOnlyPrefix(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, prefix := range readOnlyCommandPrefixes {
		if trimmed == prefix || strings.HasPrefix(trimmed, prefix+" ") {
			return true
		}
	}
	return false
}

// extractShellCommands walks a bash script's tree-sitter AST and collects
// the text of every command node, recursing into subshells, brace groups,
// and command substitutions so a classifier sees every command that will
// actually run. Grounded on coding/permission/extract_commands.go's
// ExtractCommands, trimmed to the node kinds that matter for
// read-only/write classification (this drops that file's special-cased
// background-operator text reconstruction, which only affects display
// formatting, not classification).
func extractShellCommands(script string) []string {
	parser := sitter.NewParser()
	parser.SetLanguage(bash.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(script))
	if err != nil || tree == nil {
		return nil
	}

	var commands []string
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		switch node.Type() {
		case "command", "redirected_statement":
			if text := strings.TrimSpace(node.Content([]byte(script))); text != "" {
				commands = append(commands, text)
			}
			// keep walking: arguments may hold command substitutions
		case "subshell", "compound_statement", "command_substitution":
			// don't record the wrapper itself; recurse for the commands inside
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())
	return commands
}
