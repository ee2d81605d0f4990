package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
	Content string `json:"content" jsonschema:"required,description=Full file content to write"`
}

func writeFileTool() *Definition {
	return &Definition{
		Name:        "write_file",
		Description: "Write a UTF-8 text file, creating parent directories as needed. Overwrites existing content.",
		Category:    CategoryFileOps,
		Schema:      mustSchema[writeFileArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args writeFileArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				return nil, fmt.Errorf("path parameter is required")
			}

			fullPath, err := resolvePath(execCtx.WorkingDir, args.Path)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create parent directories: %w", err)
			}
			if err := os.WriteFile(fullPath, []byte(args.Content), 0644); err != nil {
				return nil, fmt.Errorf("failed to write file: %w", err)
			}
			return map[string]any{
				"path":   args.Path,
				"status": "ok",
			}, nil
		},
	}
}
