package tools

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePath(t *testing.T) {
	workingDir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "simple relative path",
			path: "main.go",
		},
		{
			name: "nested relative path",
			path: "pkg/tools/executor.go",
		},
		{
			name: "dot path",
			path: ".",
		},
		{
			name: "inner dotdot that stays inside",
			path: "pkg/../main.go",
		},
		{
			name:    "absolute path",
			path:    "/etc/passwd",
			wantErr: true,
			errMsg:  "absolute paths not allowed",
		},
		{
			name:    "parent traversal",
			path:    "../secrets.txt",
			wantErr: true,
			errMsg:  "directory traversal not allowed",
		},
		{
			name:    "bare dotdot",
			path:    "..",
			wantErr: true,
			errMsg:  "directory traversal not allowed",
		},
		{
			name:    "traversal escaping through subdir",
			path:    "pkg/../../outside.txt",
			wantErr: true,
			errMsg:  "directory traversal not allowed",
		},
		{
			name: "dotdot in a file name",
			path: "archive..old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePath(workingDir, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolvePath(%q) error = nil, want error", tt.path)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("resolvePath(%q) error = %v, want containing %q", tt.path, err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePath(%q) error = %v, want nil", tt.path, err)
			}
			if !strings.HasPrefix(got, workingDir) {
				t.Errorf("resolvePath(%q) = %q, want inside %q", tt.path, got, workingDir)
			}
		})
	}
}

func TestResolvePath_Joins(t *testing.T) {
	got, err := resolvePath("/work", "src/main.go")
	if err != nil {
		t.Fatalf("resolvePath() error = %v", err)
	}
	want := filepath.Join("/work", "src", "main.go")
	if got != want {
		t.Errorf("resolvePath() = %q, want %q", got, want)
	}
}
