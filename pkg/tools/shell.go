package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

const (
	shellTimeout   = 30 * time.Second
	shellMaxOutput = 1 << 20
)

// forbiddenPatterns is a closed denylist of commands that are never run no
// matter what the model asks for. Scoped variants (rm -rf ./build, chmod 777
// file) stay allowed.
var forbiddenPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`\brm\s+(-{1,2}\S+\s+)*(/|~/?)(\s|$)`), "recursive delete of the filesystem root or home directory"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;?\s*:`), "fork bomb"},
	{regexp.MustCompile(`\bmkfs(\.\w+)?\b`), "filesystem format"},
	{regexp.MustCompile(`\bmkswap\s+/dev/`), "swap creation on a device"},
	{regexp.MustCompile(`\bdd\b.*\bof=/dev/[sh]d[a-z]`), "raw write to a block device"},
	{regexp.MustCompile(`\bchmod\s+(-\S+\s+)*777\s+/(\s|$)`), "world-writable permissions on the filesystem root"},
	{regexp.MustCompile(`\bchmod\s+(-\S*R\S*\s+)(-\S+\s+)*777\b`), "recursive world-writable permissions"},
	{regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(ba)?sh\b`), "piping a download into a shell"},
	{regexp.MustCompile(`\bkill\s+-9\s+-1\b`), "killing all processes"},
	{regexp.MustCompile(`\bkillall\s+-9\b`), "force-killing processes by name"},
	{regexp.MustCompile(`\bshutdown\b`), "system shutdown"},
	{regexp.MustCompile(`\breboot\b`), "system reboot"},
	{regexp.MustCompile(`\binit\s+[06]\b`), "runlevel change"},
}

type runShellArgs struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to run"`
	Cwd     string `json:"cwd,omitempty" jsonschema:"description=Directory to run in; relative to the working directory"`
}

func runShellTool() *Definition {
	return &Definition{
		Name:        "run_shell",
		Description: "Run a shell command in the working directory. Output is capped at 1 MB and execution at 30 seconds; destructive commands are blocked.",
		Category:    CategoryShell,
		Schema:      mustSchema[runShellArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args runShellArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			if args.Command == "" {
				return nil, fmt.Errorf("command parameter is required")
			}

			for _, p := range forbiddenPatterns {
				if p.re.MatchString(args.Command) {
					return nil, fmt.Errorf("Dangerous command blocked: %s", p.reason)
				}
			}

			cwd := execCtx.WorkingDir
			cwdLabel := "."
			if args.Cwd != "" {
				fullPath, err := resolvePath(execCtx.WorkingDir, args.Cwd)
				if err != nil {
					return nil, err
				}
				cwd = fullPath
				cwdLabel = args.Cwd
			}

			runCtx, cancel := context.WithTimeout(ctx, shellTimeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "sh", "-c", args.Command)
			cmd.Dir = cwd
			stdout := &cappedBuffer{limit: shellMaxOutput}
			stderr := &cappedBuffer{limit: shellMaxOutput}
			cmd.Stdout = stdout
			cmd.Stderr = stderr

			exitCode := 0
			if err := cmd.Run(); err != nil {
				if runCtx.Err() == context.DeadlineExceeded {
					return nil, fmt.Errorf("command timed out after %s", shellTimeout)
				}
				var exitErr *exec.ExitError
				if !errors.As(err, &exitErr) {
					return nil, fmt.Errorf("failed to run command: %w", err)
				}
				exitCode = exitErr.ExitCode()
			}

			return map[string]any{
				"command":  args.Command,
				"cwd":      cwdLabel,
				"stdout":   stdout.String(),
				"stderr":   stderr.String(),
				"exitCode": exitCode,
			}, nil
		},
	}
}
