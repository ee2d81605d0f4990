package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	grepDefaultMaxResults = 50
	grepTimeout           = 10 * time.Second
	grepMaxFileSize       = 1 << 20
)

// lookRipgrep probes for the rg binary. Overridable so tests can pin the
// native engine.
var lookRipgrep = func() (string, bool) {
	path, err := exec.LookPath("rg")
	return path, err == nil
}

type grepArgs struct {
	Pattern       string `json:"pattern" jsonschema:"required,description=Text to search for"`
	Path          string `json:"path,omitempty" jsonschema:"description=File or directory to search,default=."`
	Regex         bool   `json:"regex,omitempty" jsonschema:"description=Treat pattern as a regular expression instead of literal text"`
	CaseSensitive bool   `json:"caseSensitive,omitempty" jsonschema:"description=Match case exactly"`
	MaxResults    int    `json:"maxResults,omitempty" jsonschema:"description=Stop after this many matches,default=50"`
}

func grepTool() *Definition {
	return &Definition{
		Name:        "grep",
		Description: "Search file contents for a pattern. Literal by default; set regex:true for regular expressions. Skips node_modules, .git, build output, lockfiles and binaries.",
		Category:    CategorySearch,
		Schema:      mustSchema[grepArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args grepArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			if args.Pattern == "" {
				return nil, fmt.Errorf("pattern parameter is required")
			}
			if args.Path == "" {
				args.Path = "."
			}
			maxResults := args.MaxResults
			if maxResults <= 0 {
				maxResults = grepDefaultMaxResults
			}

			fullPath, err := resolvePath(execCtx.WorkingDir, args.Path)
			if err != nil {
				return nil, err
			}
			if _, err := os.Stat(fullPath); err != nil {
				return nil, fmt.Errorf("failed to access path: %w", err)
			}

			var (
				matches   []map[string]any
				truncated bool
				engine    string
			)
			if rgPath, ok := lookRipgrep(); ok {
				engine = "ripgrep"
				matches, truncated, err = grepRipgrep(ctx, rgPath, fullPath, execCtx.WorkingDir, args, maxResults)
			} else {
				engine = "native"
				matches, truncated, err = grepNative(ctx, fullPath, execCtx.WorkingDir, args, maxResults)
			}
			if err != nil {
				return nil, err
			}

			if matches == nil {
				matches = []map[string]any{}
			}
			return map[string]any{
				"pattern":    args.Pattern,
				"searchPath": args.Path,
				"matchCount": len(matches),
				"matches":    matches,
				"engine":     engine,
				"truncated":  truncated,
			}, nil
		},
	}
}

func grepRipgrep(ctx context.Context, rgPath, fullPath, workingDir string, args grepArgs, maxResults int) ([]map[string]any, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, grepTimeout)
	defer cancel()

	argv := []string{"--line-number", "--no-heading", "--with-filename", "--color", "never"}
	if !args.Regex {
		argv = append(argv, "--fixed-strings")
	}
	if !args.CaseSensitive {
		argv = append(argv, "--ignore-case")
	}
	argv = append(argv, ignoreGlobs()...)
	argv = append(argv, "--", args.Pattern, fullPath)

	output, err := exec.CommandContext(ctx, rgPath, argv...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, false, nil // no matches
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, false, fmt.Errorf("search timed out after %s", grepTimeout)
		}
		return nil, false, fmt.Errorf("ripgrep failed: %s", commandStderr(err))
	}

	var matches []map[string]any
	truncated := false
	for _, line := range strings.Split(strings.TrimRight(string(output), "\n"), "\n") {
		if line == "" {
			continue
		}
		if len(matches) >= maxResults {
			truncated = true
			break
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		lineNum, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(workingDir, parts[0])
		if err != nil {
			rel = parts[0]
		}
		matches = append(matches, map[string]any{
			"file":    rel,
			"line":    lineNum,
			"content": parts[2],
		})
	}
	return matches, truncated, nil
}

func grepNative(ctx context.Context, fullPath, workingDir string, args grepArgs, maxResults int) ([]map[string]any, bool, error) {
	match, err := buildMatcher(args)
	if err != nil {
		return nil, false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to access path: %w", err)
	}

	var files []string
	if info.IsDir() {
		walkErr := filepath.WalkDir(fullPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if ignoredDir(d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if ignoredFile(d.Name()) {
				return nil
			}
			if fi, err := d.Info(); err != nil || fi.Size() > grepMaxFileSize {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if walkErr != nil {
			return nil, false, walkErr
		}
	} else {
		files = []string{fullPath}
	}

	var matches []map[string]any
	truncated := false
	for _, file := range files {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if len(matches) >= maxResults {
			truncated = true
			break
		}
		rel, err := filepath.Rel(workingDir, file)
		if err != nil {
			rel = file
		}
		for _, m := range grepFile(file, match, maxResults-len(matches)) {
			m["file"] = rel
			matches = append(matches, m)
		}
	}
	if len(matches) >= maxResults && !truncated {
		truncated = true
	}
	return matches, truncated, nil
}

func grepFile(path string, match func(string) bool, limit int) []map[string]any {
	data, err := os.ReadFile(path)
	if err != nil || bytes.IndexByte(data, 0) >= 0 {
		return nil
	}
	var out []map[string]any
	for i, line := range strings.Split(string(data), "\n") {
		if len(out) >= limit {
			break
		}
		if match(line) {
			out = append(out, map[string]any{
				"line":    i + 1,
				"content": line,
			})
		}
	}
	return out
}

func buildMatcher(args grepArgs) (func(string) bool, error) {
	if args.Regex {
		expr := args.Pattern
		if !args.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return re.MatchString, nil
	}
	if args.CaseSensitive {
		needle := args.Pattern
		return func(line string) bool { return strings.Contains(line, needle) }, nil
	}
	needle := strings.ToLower(args.Pattern)
	return func(line string) bool { return strings.Contains(strings.ToLower(line), needle) }, nil
}

func commandStderr(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return err.Error()
}
