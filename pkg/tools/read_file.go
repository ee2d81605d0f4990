package tools

import (
	"context"
	"fmt"
	"os"
)

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
}

func readFileTool() *Definition {
	return &Definition{
		Name:        "read_file",
		Description: "Read a UTF-8 text file and return its content.",
		Category:    CategoryFileOps,
		Schema:      mustSchema[readFileArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args readFileArgs
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
			content, err := os.ReadFile(fullPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			return map[string]any{
				"path":    args.Path,
				"content": string(content),
			}, nil
		},
	}
}
