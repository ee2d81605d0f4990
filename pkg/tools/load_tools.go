package tools

import (
	"context"
	"fmt"
)

type loadToolsArgs struct {
	Category string `json:"category,omitempty" jsonschema:"description=Category to load; omit to list the available categories"`
}

func loadToolsTool() *Definition {
	return &Definition{
		Name:        "load_tools",
		Description: "Discover and load tool categories. Call without arguments to see what categories exist; call with a category name to make its tools available.",
		Category:    CategoryMeta,
		Schema:      mustSchema[loadToolsArgs](),
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			var args loadToolsArgs
			if err := decodeArgs(input, &args); err != nil {
				return nil, err
			}
			if execCtx.Registry == nil {
				return nil, fmt.Errorf("no tool registry available")
			}

			if args.Category == "" {
				var categories []CategoryInfo
				for _, info := range execCtx.Registry.Categories() {
					if info.Name == CategoryMeta {
						continue
					}
					categories = append(categories, info)
				}
				return map[string]any{
					"action":     "list",
					"categories": categories,
					"message":    `Call load_tools({category: "<name>"}) to load a category.`,
				}, nil
			}

			defs := execCtx.Registry.ByCategory(Category(args.Category))
			if len(defs) == 0 {
				return nil, fmt.Errorf("unknown category: %s", args.Category)
			}

			names := make([]string, 0, len(defs))
			for _, def := range defs {
				execCtx.LoadTool(def.Name)
				names = append(names, def.Name)
			}
			return map[string]any{
				"action":      "load",
				"category":    args.Category,
				"toolsLoaded": names,
				"message":     fmt.Sprintf("Loaded %d tools from category %s. They are now available to call.", len(names), args.Category),
			}, nil
		},
	}
}
