package tools

import (
	"context"
	"fmt"
	"os"
)

type listDirArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory path relative to the working directory,default=."`
}

func listDirTool() *Definition {
	return &Definition{
		Name:        "list_dir",
		Description: "List the entries of a directory.",
		Category:    CategoryFileOps,
		Schema:      mustSchema[listDirArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args listDirArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				args.Path = "."
			}

			fullPath, err := resolvePath(execCtx.WorkingDir, args.Path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(fullPath)
			if err != nil {
				return nil, fmt.Errorf("failed to list directory: %w", err)
			}

			out := make([]map[string]any, 0, len(entries))
			for _, entry := range entries {
				entryType := "file"
				if entry.IsDir() {
					entryType = "dir"
				}
				out = append(out, map[string]any{
					"name": entry.Name(),
					"type": entryType,
				})
			}
			return out, nil
		},
	}
}
