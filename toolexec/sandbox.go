package toolexec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SandboxedResolve resolves and canonicalizes an existing path and asserts
// it is a descendant of sandboxRoot. If sandboxRoot is empty (single-tenant
// operation), resolution is permissive and simply cleans the path.
func SandboxedResolve(path, sandboxRoot string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("access_denied: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// fall back to the cleaned absolute path for non-existent targets;
		// the prefix check below still applies.
		resolved = filepath.Clean(abs)
	}
	if sandboxRoot == "" {
		return resolved, nil
	}
	root, err := filepath.EvalSymlinks(sandboxRoot)
	if err != nil {
		root = filepath.Clean(sandboxRoot)
	}
	if !withinRoot(resolved, root) {
		return "", fmt.Errorf("access_denied: %s escapes sandbox root %s", path, root)
	}
	return resolved, nil
}

// SandboxedResolveNewPath resolves a path that may not exist yet (e.g. a
// file about to be created). It rejects any ".." path component outright,
// then walks up to the nearest existing ancestor, canonicalizes that
// ancestor, asserts the prefix match, and reappends the unresolved tail.
func SandboxedResolveNewPath(path, sandboxRoot string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("access_denied: %w", err)
	}
	clean := filepath.Clean(abs)
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("access_denied: path %q contains a \"..\" component", path)
		}
	}

	ancestor := clean
	var tail []string
	for {
		if _, err := os.Stat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return "", fmt.Errorf("access_denied: no existing ancestor for %s", path)
		}
		tail = append([]string{filepath.Base(ancestor)}, tail...)
		ancestor = parent
	}

	resolvedAncestor, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		resolvedAncestor = ancestor
	}

	if sandboxRoot != "" {
		root, err := filepath.EvalSymlinks(sandboxRoot)
		if err != nil {
			root = filepath.Clean(sandboxRoot)
		}
		if !withinRoot(resolvedAncestor, root) {
			return "", fmt.Errorf("access_denied: %s escapes sandbox root %s", path, root)
		}
	}

	return filepath.Join(append([]string{resolvedAncestor}, tail...)...), nil
}

func withinRoot(resolved, root string) bool {
	if resolved == root {
		return true
	}
	return strings.HasPrefix(resolved, root+string(filepath.Separator))
}
