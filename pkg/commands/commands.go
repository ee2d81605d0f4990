// Package commands loads the slash-command catalog: one YAML file per
// command, each carrying a description and a prompt template expanded
// around the user's message.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 100 * time.Millisecond

// Command is one slash command: the file's base name, a short description
// for listings, and a prompt template with a {{.Message}} placeholder.
type Command struct {
	Name        string
	Description string
	tmpl        *template.Template
}

type commandFile struct {
	Description string `yaml:"description"`
	Prompt      string `yaml:"prompt"`
}

// Catalog holds the loaded commands and reloads them when the directory
// changes.
type Catalog struct {
	dir string

	mu       sync.RWMutex
	commands map[string]*Command
}

// Load reads every *.yaml and *.yml file in dir. A missing directory
// yields an empty catalog; individually broken files are skipped with a
// warning so one bad command cannot take the catalog down.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir, commands: make(map[string]*Command)}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the catalog with the directory's current contents.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			c.commands = make(map[string]*Command)
			c.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read commands directory: %w", err)
	}

	loaded := make(map[string]*Command)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		cmd, err := loadFile(filepath.Join(c.dir, entry.Name()), name)
		if err != nil {
			slog.Warn("Skipping invalid command file", "file", entry.Name(), "error", err)
			continue
		}
		loaded[name] = cmd
	}

	c.mu.Lock()
	c.commands = loaded
	c.mu.Unlock()
	return nil
}

func loadFile(path, name string) (*Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read command file: %w", err)
	}
	var file commandFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse command file: %w", err)
	}
	if file.Prompt == "" {
		return nil, fmt.Errorf("command file has no prompt")
	}
	tmpl, err := template.New(name).Parse(file.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Command{Name: name, Description: file.Description, tmpl: tmpl}, nil
}

// List returns every command sorted by name.
func (c *Catalog) List() []Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		out = append(out, *cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports the number of loaded commands.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.commands)
}

// Render expands the named command's prompt around the user's message.
func (c *Catalog) Render(name, message string) (string, error) {
	c.mu.RLock()
	cmd := c.commands[name]
	c.mu.RUnlock()
	if cmd == nil {
		return "", fmt.Errorf("unknown command: %s", name)
	}
	var sb strings.Builder
	if err := cmd.tmpl.Execute(&sb, struct{ Message string }{Message: message}); err != nil {
		return "", fmt.Errorf("failed to render command %s: %w", name, err)
	}
	return sb.String(), nil
}

// Watch reloads the catalog whenever files under the directory change,
// until ctx ends. A missing directory is left unwatched and the catalog
// stays empty.
func (c *Catalog) Watch(ctx context.Context) error {
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		slog.Info("Commands directory missing, not watching", "dir", c.dir)
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch commands directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Chmod == fsnotify.Chmod {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := c.Reload(); err != nil {
						slog.Error("Failed to reload commands", "dir", c.dir, "error", err)
						return
					}
					slog.Info("Reloaded commands", "dir", c.dir, "count", c.Len())
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Commands watcher error", "dir", c.dir, "error", err)
			}
		}
	}()
	return nil
}
