// Package tools holds the catalog of built-in tools, the executor that runs
// model-requested invocations against it, and the handlers themselves.
//
// Tools are grouped into categories. Only the meta category is visible to the
// model up front; everything else must be loaded through load_tools first,
// which keeps the tool schema overhead out of small conversations.
package tools

import (
	"context"
	"time"
)

type Category string

const (
	CategoryFileOps Category = "file_ops"
	CategoryGit     Category = "git"
	CategorySearch  Category = "search"
	CategoryShell   Category = "shell"
	CategoryMeta    Category = "meta"
)

var categoryDescriptions = map[Category]string{
	CategoryFileOps: "Read, write, edit and list files in the working directory",
	CategoryGit:     "Inspect git state: diff, status and log",
	CategorySearch:  "Search file contents and find files by name",
	CategoryShell:   "Run shell commands in the working directory",
	CategoryMeta:    "Discover tool categories and load them",
}

// CategoryInfo is the client- and model-facing summary of one category.
type CategoryInfo struct {
	Name        Category `json:"name"`
	Description string   `json:"description"`
	ToolCount   int      `json:"toolCount"`
	Tools       []string `json:"tools"`
}

// Handler runs one invocation. The returned value becomes the tool result; a
// returned error becomes an error result without aborting the batch.
type Handler func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error)

// Definition describes one registered tool.
type Definition struct {
	Name        string
	Description string
	Category    Category
	Schema      map[string]any
	Handler     Handler
}

// ExecContext carries per-session execution state into handlers. LoadedTools
// is owned by the running turn and mutated only by load_tools.
type ExecContext struct {
	WorkingDir  string
	LoadedTools map[string]struct{}
	Registry    *Registry
}

func NewExecContext(workingDir string, registry *Registry) *ExecContext {
	return &ExecContext{
		WorkingDir:  workingDir,
		LoadedTools: make(map[string]struct{}),
		Registry:    registry,
	}
}

func (c *ExecContext) IsLoaded(name string) bool {
	_, ok := c.LoadedTools[name]
	return ok
}

func (c *ExecContext) LoadTool(name string) {
	c.LoadedTools[name] = struct{}{}
}

// Result is the outcome of one invocation, paired to it by ID. Duration
// covers the handler call only; catalog rejections report zero.
type Result struct {
	ID       string
	Name     string
	Value    any
	IsError  bool
	Error    string
	Duration time.Duration
}
