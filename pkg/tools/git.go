package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	gitDiffTimeout   = 30 * time.Second
	gitStatusTimeout = 10 * time.Second
	gitLogTimeout    = 15 * time.Second
	gitMaxOutput     = 5 << 20
)

// runGit invokes git with an explicit argument array. No shell is involved,
// so nothing in the arguments is interpreted.
func runGit(ctx context.Context, workingDir string, timeout time.Duration, args ...string) (stdout, stderr string, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workingDir
	outBuf := &cappedBuffer{limit: gitMaxOutput}
	errBuf := &cappedBuffer{limit: gitMaxOutput}
	cmd.Stdout = outBuf
	cmd.Stderr = errBuf

	runErr := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout, stderr, fmt.Errorf("git %s timed out after %s", args[0], timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := strings.TrimSpace(stderr)
			if msg == "" {
				msg = runErr.Error()
			}
			return stdout, stderr, fmt.Errorf("git %s failed: %s", args[0], msg)
		}
		return stdout, stderr, fmt.Errorf("failed to run git: %w", runErr)
	}
	return stdout, stderr, nil
}

type gitDiffArgs struct {
	Staged bool   `json:"staged,omitempty" jsonschema:"description=Show staged changes instead of unstaged"`
	Path   string `json:"path,omitempty" jsonschema:"description=Limit the diff to one path"`
}

func gitDiffTool() *Definition {
	return &Definition{
		Name:        "git_diff",
		Description: "Show uncommitted changes as a unified diff. Set staged:true for the index.",
		Category:    CategoryGit,
		Schema:      mustSchema[gitDiffArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args gitDiffArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}

			argv := []string{"diff"}
			if args.Staged {
				argv = append(argv, "--cached")
			}
			if args.Path != "" {
				if _, err := resolvePath(execCtx.WorkingDir, args.Path); err != nil {
					return nil, err
				}
				argv = append(argv, "--", args.Path)
			}

			stdout, stderr, err := runGit(ctx, execCtx.WorkingDir, gitDiffTimeout, argv...)
			if err != nil {
				return nil, err
			}
			result := map[string]any{
				"command":    "git " + strings.Join(argv, " "),
				"cwd":        ".",
				"diff":       stdout,
				"hasChanges": strings.TrimSpace(stdout) != "",
			}
			if strings.TrimSpace(stderr) != "" {
				result["stderr"] = stderr
			}
			return result, nil
		},
	}
}

type gitStatusArgs struct{}

func gitStatusTool() *Definition {
	return &Definition{
		Name:        "git_status",
		Description: "Show the working tree status in porcelain format.",
		Category:    CategoryGit,
		Schema:      mustSchema[gitStatusArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			stdout, stderr, err := runGit(ctx, execCtx.WorkingDir, gitStatusTimeout, "status", "--porcelain")
			if err != nil {
				return nil, err
			}
			result := map[string]any{
				"command":    "git status --porcelain",
				"cwd":        ".",
				"status":     stdout,
				"hasChanges": strings.TrimSpace(stdout) != "",
			}
			if strings.TrimSpace(stderr) != "" {
				result["stderr"] = stderr
			}
			return result, nil
		},
	}
}

type gitLogArgs struct {
	Limit int    `json:"limit,omitempty" jsonschema:"description=Number of commits to show,default=10"`
	Path  string `json:"path,omitempty" jsonschema:"description=Limit history to one path"`
}

func gitLogTool() *Definition {
	return &Definition{
		Name:        "git_log",
		Description: "Show recent commit history, one line per commit.",
		Category:    CategoryGit,
		Schema:      mustSchema[gitLogArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args gitLogArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 10
			}

			argv := []string{"log", "--oneline", "-n", strconv.Itoa(limit)}
			if args.Path != "" {
				if _, err := resolvePath(execCtx.WorkingDir, args.Path); err != nil {
					return nil, err
				}
				argv = append(argv, "--", args.Path)
			}

			stdout, stderr, err := runGit(ctx, execCtx.WorkingDir, gitLogTimeout, argv...)
			if err != nil {
				return nil, err
			}
			result := map[string]any{
				"command": "git " + strings.Join(argv, " "),
				"cwd":     ".",
				"log":     stdout,
			}
			if strings.TrimSpace(stderr) != "" {
				result["stderr"] = stderr
			}
			return result, nil
		},
	}
}
