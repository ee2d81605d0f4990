package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	findDefaultMaxResults = 100
	findTimeout           = 10 * time.Second
)

type findFilesArgs struct {
	Pattern    string `json:"pattern" jsonschema:"required,description=Glob pattern matched against paths; * ** and ? are supported (e.g. **/*.go)"`
	Path       string `json:"path,omitempty" jsonschema:"description=Directory to search,default=."`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"description=Stop after this many files,default=100"`
}

func findFilesTool() *Definition {
	return &Definition{
		Name:        "find_files",
		Description: "Find files by glob pattern. A bare pattern like *.go matches at any depth. Skips node_modules, .git, build output and lockfiles.",
		Category:    CategorySearch,
		Schema:      mustSchema[findFilesArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args findFilesArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			if args.Pattern == "" {
				return nil, fmt.Errorf("pattern parameter is required")
			}
			if !doublestar.ValidatePattern(args.Pattern) {
				return nil, fmt.Errorf("invalid glob pattern: %s", args.Pattern)
			}
			if args.Path == "" {
				args.Path = "."
			}
			maxResults := args.MaxResults
			if maxResults <= 0 {
				maxResults = findDefaultMaxResults
			}

			searchRoot, err := resolvePath(execCtx.WorkingDir, args.Path)
			if err != nil {
				return nil, err
			}
			if info, err := os.Stat(searchRoot); err != nil {
				return nil, fmt.Errorf("failed to access path: %w", err)
			} else if !info.IsDir() {
				return nil, fmt.Errorf("path is not a directory: %s", args.Path)
			}

			var (
				relPaths []string
				engine   string
			)
			if rgPath, ok := lookRipgrep(); ok {
				engine = "ripgrep"
				relPaths, err = findRipgrep(ctx, rgPath, searchRoot, args.Pattern)
			} else {
				engine = "native"
				relPaths, err = findNative(ctx, searchRoot, args.Pattern)
			}
			if err != nil {
				return nil, err
			}

			sort.Strings(relPaths)
			truncated := len(relPaths) > maxResults
			if truncated {
				relPaths = relPaths[:maxResults]
			}

			files := make([]map[string]any, 0, len(relPaths))
			for _, rel := range relPaths {
				entry := map[string]any{
					"path": filepath.Join(args.Path, rel),
					"type": "file",
				}
				if info, err := os.Stat(filepath.Join(searchRoot, rel)); err == nil {
					entry["size"] = info.Size()
				}
				files = append(files, entry)
			}

			return map[string]any{
				"pattern":    args.Pattern,
				"searchPath": args.Path,
				"fileCount":  len(files),
				"files":      files,
				"engine":     engine,
				"truncated":  truncated,
			}, nil
		},
	}
}

// matchesGlob matches a pattern against a path relative to the search root.
// Patterns without a separator also match against the base name, so *.go
// finds Go files at any depth.
func matchesGlob(pattern, rel string) bool {
	if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := doublestar.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

func findRipgrep(ctx context.Context, rgPath, searchRoot, pattern string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()

	argv := []string{"--files"}
	argv = append(argv, ignoreGlobs()...)

	cmd := exec.CommandContext(ctx, rgPath, argv...)
	cmd.Dir = searchRoot
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil // empty directory
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("search timed out after %s", findTimeout)
		}
		return nil, fmt.Errorf("ripgrep failed: %s", commandStderr(err))
	}

	var out []string
	for _, line := range strings.Split(strings.TrimRight(string(output), "\n"), "\n") {
		if line == "" {
			continue
		}
		if matchesGlob(pattern, line) {
			out = append(out, line)
		}
	}
	return out, nil
}

func findNative(ctx context.Context, searchRoot, pattern string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(searchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != searchRoot && ignoredDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if ignoredFile(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(searchRoot, path)
		if relErr != nil {
			return nil
		}
		if matchesGlob(pattern, rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
