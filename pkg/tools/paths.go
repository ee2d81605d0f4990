package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolvePath joins a model-supplied path with the working directory. Paths
// must stay inside it: absolute paths and traversal via .. are rejected.
// Existence is not checked here; handlers that need the target to exist
// surface that themselves.
func resolvePath(workingDir, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("directory traversal not allowed: %s", path)
	}
	return filepath.Join(workingDir, cleaned), nil
}
