package toolexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"

	"glidecode/common"
	"glidecode/procreg"
)

const defaultShellTimeout = 120 * time.Second

// trailingBackgroundRe matches an unquoted trailing "&" that is not part of
// "&&" or "|&". It is a conservative heuristic, not a shell parser: good
// enough to catch the common `long_running_cmd &` pattern spec.md names.
var trailingBackgroundRe = regexp.MustCompile(`(^|[^&|])&\s*$`)

func looksBackgrounded(command string) bool {
	trimmed := strings.TrimRight(command, " \t")
	return trailingBackgroundRe.MatchString(trimmed)
}

// ShellParams is the JSON-schema-backed parameter set for ShellTool.
type ShellParams struct {
	Command         string `json:"command" jsonschema:"required,description=The shell command to run"`
	Timeout         int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds; defaults to 120"`
	Description     string `json:"description,omitempty" jsonschema:"description=Human-readable summary of what this command does"`
	RunInBackground bool   `json:"run_in_background,omitempty" jsonschema:"description=Run detached via the process registry instead of waiting for completion"`
}

// ShellTool is the hardest tool in the registry: process-group isolation,
// streamed + ring-buffered output, ANSI stripping, timeout escalation, and
// background-process handoff to procreg. Grounded on
// coding/unix/run_command_activity.go's env filtering and process
// invocation, generalized from a single foreground `exec.CommandContext`
// call into the fuller lifecycle spec.md §4.3 requires.
type ShellTool struct {
	Procreg *procreg.Registry
}

func (t *ShellTool) Name() string        { return "bash" }
func (t *ShellTool) Description() string { return "Run a shell command in the working directory." }
func (t *ShellTool) Category() common.ToolCategory { return common.ToolCategoryWrite }

func (t *ShellTool) Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(&ShellParams{})
}

func (t *ShellTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	var params ShellParams
	if err := unmarshalParams(rawArgs, &params); err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, err.Error())
	}
	if params.Command == "" {
		return common.ErrResult(common.ToolErrorInvalidParameters, "command is required")
	}

	if params.RunInBackground || looksBackgrounded(params.Command) {
		return t.runInBackground(ctx, params)
	}

	return t.runForeground(ctx, params)
}

func (t *ShellTool) runInBackground(ctx ExecuteContext, params ShellParams) common.ToolResult {
	env := filteredEnv()
	argv := []string{"sh", "-c", params.Command}
	entry, err := t.Procreg.SpawnForUser(ctx.Context, ctx.UserId, params.Description, ctx.WorkingDir, "sh", []string{"-c", params.Command}, env)
	if err != nil {
		return common.ErrResult(common.ToolErrorCommandFailed, fmt.Sprintf("failed to start background process: %v", err))
	}

	result := common.OkResult(map[string]any{
		"process_id":   entry.ProcessId,
		"status":       string(entry.Status),
		"pid":          entry.Pid,
		"command_line": shellescape.QuoteCommand(argv),
	})
	if !params.RunInBackground {
		result = result.WithWarnings("Background mode inferred from trailing '&' in the command.")
	}
	return result
}

func (t *ShellTool) runForeground(ctx ExecuteContext, params ShellParams) common.ToolResult {
	timeout := defaultShellTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx.Context, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", params.Command)
	cmd.Dir = ctx.WorkingDir
	cmd.Env = filteredEnv()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// exec.CommandContext's default Cancel (sends Kill to the single pid) is
	// not enough for a process group; on timeout the whole group gets TERM,
	// then KILL after the grace window (killProcessGroup below).
	cmd.Cancel = func() error { return killProcessGroup(cmd.Process.Pid) }

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return common.ErrResult(common.ToolErrorToolError, err.Error())
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return common.ErrResult(common.ToolErrorToolError, err.Error())
	}

	if err := cmd.Start(); err != nil {
		return common.ErrResult(common.ToolErrorCommandFailed, err.Error())
	}

	buf := newLineRingBuffer()
	var bufMu sync.Mutex
	var wg sync.WaitGroup
	pump := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := stripANSI(scanner.Text())
			bufMu.Lock()
			buf.Append(line)
			bufMu.Unlock()
			if ctx.OutputChan != nil {
				select {
				case ctx.OutputChan <- OutputDelta{ToolCallId: ctx.ToolCallId, Delta: line + "\n"}:
				case <-runCtx.Done():
				}
			}
		}
	}
	wg.Add(2)
	go pump(stdoutPipe)
	go pump(stderrPipe)
	wg.Wait()

	waitErr := cmd.Wait()

	killed := false
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		killed = true
		if err := killProcessGroup(cmd.Process.Pid); err != nil {
			log.Warn().Err(err).Msg("failed to kill timed-out process group")
		}
	}

	if killed {
		return common.ErrResult(common.ToolErrorTimeout, fmt.Sprintf("command timed out after %s", timeout)).
			WithMetadata(map[string]any{"killed": true})
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				exitCode = status.ExitStatus()
			}
		} else {
			return common.ErrResult(common.ToolErrorCommandFailed, waitErr.Error())
		}
	}

	bufMu.Lock()
	output := truncateForModel(buf.String())
	bufMu.Unlock()

	result := common.ToolResult{
		Ok: exitCode == 0,
		Data: map[string]any{
			"output": output,
		},
		Metadata: map[string]any{
			"exit_code": exitCode,
			"killed":    false,
		},
	}
	if exitCode != 0 {
		result.Error = &common.ToolErrorInfo{
			Code:    common.ToolErrorCommandFailed,
			Message: fmt.Sprintf("command exited with status %d", exitCode),
		}
	}
	return result
}

// killProcessGroup sends TERM to the process group, waits up to a grace
// window, then escalates to KILL. On Windows this would be `taskkill /T
// /F`; this implementation targets POSIX only, matching the teacher's
// coding/unix package (no Windows build tags exist anywhere in the pack to
// generalize from).
func killProcessGroup(pid int) error {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); err != nil {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}

// filteredEnv mirrors coding/unix/run_command_activity.go's convention of
// stripping the host process's internal env vars before handing the
// environment to a spawned tool process.
func filteredEnv() []string {
	out := make([]string, 0, len(os.Environ()))
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "GLIDE_") {
			continue
		}
		out = append(out, e)
	}
	return out
}
