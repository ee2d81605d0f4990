package tools

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the canonical tool catalog, indexed by name and by category.
// It is append-only after startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Definition)}
}

// Register adds a tool. Name collisions are an error.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}
	if _, ok := categoryDescriptions[def.Category]; !ok {
		return fmt.Errorf("tool %s has unknown category %s", def.Name, def.Category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns every tool in registration order.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) ByCategory(cat Category) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Definition
	for _, name := range r.order {
		if def := r.tools[name]; def.Category == cat {
			out = append(out, def)
		}
	}
	return out
}

// Categories summarizes every category holding at least one tool, sorted by
// category name.
func (r *Registry) Categories() []CategoryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byCat := map[Category][]string{}
	for _, name := range r.order {
		def := r.tools[name]
		byCat[def.Category] = append(byCat[def.Category], def.Name)
	}

	out := make([]CategoryInfo, 0, len(byCat))
	for cat, names := range byCat {
		out = append(out, CategoryInfo{
			Name:        cat,
			Description: categoryDescriptions[cat],
			ToolCount:   len(names),
			Tools:       names,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadedView returns the tools visible to the model: every meta tool plus
// every loaded tool, without duplicates, in registration order.
func (r *Registry) LoadedView(loaded map[string]struct{}) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Definition
	for _, name := range r.order {
		def := r.tools[name]
		if def.Category == CategoryMeta {
			out = append(out, def)
			continue
		}
		if _, ok := loaded[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

// DefaultRegistry builds the catalog of built-in tools the server starts
// with.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range []*Definition{
		readFileTool(),
		writeFileTool(),
		editFileTool(),
		listDirTool(),
		grepTool(),
		findFilesTool(),
		gitDiffTool(),
		gitStatusTool(),
		gitLogTool(),
		runShellTool(),
		loadToolsTool(),
	} {
		if err := r.Register(def); err != nil {
			panic(fmt.Sprintf("failed to register built-in tool: %v", err))
		}
	}
	return r
}
