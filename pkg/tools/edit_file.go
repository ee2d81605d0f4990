package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type editOperation struct {
	OldText string `json:"old_text" jsonschema:"required,description=Exact text to find"`
	NewText string `json:"new_text" jsonschema:"required,description=Replacement text"`
}

type editFileArgs struct {
	Path  string          `json:"path" jsonschema:"required,description=File path relative to the working directory"`
	Edits []editOperation `json:"edits" jsonschema:"required,description=Edits applied in order; each replaces every occurrence of old_text"`
}

func editFileTool() *Definition {
	return &Definition{
		Name:        "edit_file",
		Description: "Apply exact text replacements to a file. Each edit replaces all occurrences of old_text; an edit whose old_text is missing aborts the whole operation and the file is left untouched.",
		Category:    CategoryFileOps,
		Schema:      mustSchema[editFileArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args editFileArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				return nil, fmt.Errorf("path parameter is required")
			}
			if len(args.Edits) == 0 {
				return nil, fmt.Errorf("edits parameter requires at least one edit")
			}

			fullPath, err := resolvePath(execCtx.WorkingDir, args.Path)
			if err != nil {
				return nil, err
			}
			content, err := os.ReadFile(fullPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}

			original := string(content)
			buffer := original
			totalReplacements := 0
			details := make([]map[string]any, 0, len(args.Edits))

			for i, edit := range args.Edits {
				if edit.OldText == "" {
					return nil, fmt.Errorf("edit %d failed: old_text must not be empty", i+1)
				}
				count := strings.Count(buffer, edit.OldText)
				if count == 0 {
					return nil, fmt.Errorf("edit %d failed: old_text not found: '%s'", i+1, truncateText(edit.OldText, 50))
				}

				var warnings []string
				if count > 1 {
					warnings = append(warnings, fmt.Sprintf("Multiple occurrences (%d) were replaced", count))
				}
				if !strings.Contains(original, edit.OldText) {
					warnings = append(warnings, "old_text was not in the original file; it was created by an earlier edit")
				}

				buffer = strings.ReplaceAll(buffer, edit.OldText, edit.NewText)
				totalReplacements += count

				detail := map[string]any{
					"index":        i,
					"replacements": count,
				}
				if len(warnings) > 0 {
					detail["warnings"] = warnings
				}
				details = append(details, detail)
			}

			if err := os.WriteFile(fullPath, []byte(buffer), 0644); err != nil {
				return nil, fmt.Errorf("failed to write file: %w", err)
			}

			return map[string]any{
				"path":              args.Path,
				"oldContent":        original,
				"newContent":        buffer,
				"editsApplied":      len(args.Edits),
				"totalReplacements": totalReplacements,
				"editDetails":       details,
				"success":           true,
			}, nil
		},
	}
}
