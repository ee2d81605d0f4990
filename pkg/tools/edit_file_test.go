package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, execCtx *ExecContext, name, content string) string {
	t.Helper()
	path := filepath.Join(execCtx.WorkingDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
	return path
}

func editInput(path string, edits ...map[string]any) map[string]any {
	list := make([]any, len(edits))
	for i, e := range edits {
		list[i] = e
	}
	return map[string]any{"path": path, "edits": list}
}

func TestEditFile_SingleEdit(t *testing.T) {
	execCtx := newTestContext(t)
	fullPath := writeFixture(t, execCtx, "main.go", "func main() {\n\tprintln(\"hi\")\n}\n")

	value, err := callTool(t, execCtx, "edit_file", editInput("main.go",
		map[string]any{"old_text": `println("hi")`, "new_text": `println("bye")`},
	))
	if err != nil {
		t.Fatalf("edit_file error = %v", err)
	}
	res := asMap(t, value)
	if res["success"] != true {
		t.Error("success = false, want true")
	}
	if res["editsApplied"] != 1 {
		t.Errorf("editsApplied = %v, want 1", res["editsApplied"])
	}
	if res["totalReplacements"] != 1 {
		t.Errorf("totalReplacements = %v, want 1", res["totalReplacements"])
	}
	if !strings.Contains(res["newContent"].(string), `println("bye")`) {
		t.Errorf("newContent = %q, want edited text", res["newContent"])
	}
	if !strings.Contains(res["oldContent"].(string), `println("hi")`) {
		t.Errorf("oldContent = %q, want original text", res["oldContent"])
	}

	data, _ := os.ReadFile(fullPath)
	if !strings.Contains(string(data), `println("bye")`) {
		t.Errorf("file on disk = %q, want edited text", data)
	}
}

func TestEditFile_MultipleOccurrences(t *testing.T) {
	execCtx := newTestContext(t)
	writeFixture(t, execCtx, "vars.go", "foo := 1\nfoo += 2\nreturn foo\n")

	value, err := callTool(t, execCtx, "edit_file", editInput("vars.go",
		map[string]any{"old_text": "foo", "new_text": "bar"},
	))
	if err != nil {
		t.Fatalf("edit_file error = %v", err)
	}
	res := asMap(t, value)
	if res["totalReplacements"] != 3 {
		t.Errorf("totalReplacements = %v, want 3", res["totalReplacements"])
	}
	if strings.Contains(res["newContent"].(string), "foo") {
		t.Errorf("newContent still contains foo: %q", res["newContent"])
	}

	details := res["editDetails"].([]map[string]any)
	warnings, ok := details[0]["warnings"].([]string)
	if !ok || len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one warning", details[0]["warnings"])
	}
	if warnings[0] != "Multiple occurrences (3) were replaced" {
		t.Errorf("warning = %q, want multiple occurrences note", warnings[0])
	}
}

func TestEditFile_SequentialOnCurrentBuffer(t *testing.T) {
	execCtx := newTestContext(t)
	writeFixture(t, execCtx, "seq.txt", "alpha\n")

	// The second edit matches text produced by the first one.
	value, err := callTool(t, execCtx, "edit_file", editInput("seq.txt",
		map[string]any{"old_text": "alpha", "new_text": "beta"},
		map[string]any{"old_text": "beta", "new_text": "gamma"},
	))
	if err != nil {
		t.Fatalf("edit_file error = %v", err)
	}
	res := asMap(t, value)
	if res["newContent"] != "gamma\n" {
		t.Errorf("newContent = %q, want gamma", res["newContent"])
	}
	if res["editsApplied"] != 2 || res["totalReplacements"] != 2 {
		t.Errorf("editsApplied/totalReplacements = %v/%v, want 2/2", res["editsApplied"], res["totalReplacements"])
	}

	details := res["editDetails"].([]map[string]any)
	warnings, ok := details[1]["warnings"].([]string)
	if !ok || len(warnings) != 1 {
		t.Fatalf("second edit warnings = %v, want one warning", details[1]["warnings"])
	}
	if warnings[0] != "old_text was not in the original file; it was created by an earlier edit" {
		t.Errorf("warning = %q", warnings[0])
	}
}

func TestEditFile_MissingOldTextAborts(t *testing.T) {
	execCtx := newTestContext(t)
	original := "one\ntwo\nthree\n"
	fullPath := writeFixture(t, execCtx, "abort.txt", original)

	_, err := callTool(t, execCtx, "edit_file", editInput("abort.txt",
		map[string]any{"old_text": "one", "new_text": "ONE"},
		map[string]any{"old_text": "missing", "new_text": "whatever"},
	))
	if err == nil {
		t.Fatal("edit_file error = nil, want error")
	}
	if !strings.Contains(err.Error(), "edit 2 failed: old_text not found: 'missing'") {
		t.Errorf("error = %v, want edit 2 not found", err)
	}

	// Nothing is written when any edit fails, even if earlier edits matched.
	data, _ := os.ReadFile(fullPath)
	if string(data) != original {
		t.Errorf("file on disk = %q, want untouched original", data)
	}
}

func TestEditFile_TruncatesLongSnippet(t *testing.T) {
	execCtx := newTestContext(t)
	writeFixture(t, execCtx, "long.txt", "content\n")

	long := strings.Repeat("z", 80)
	_, err := callTool(t, execCtx, "edit_file", editInput("long.txt",
		map[string]any{"old_text": long, "new_text": "x"},
	))
	if err == nil {
		t.Fatal("edit_file error = nil, want error")
	}
	want := "'" + strings.Repeat("z", 47) + "...'"
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error = %v, want truncated snippet %s", err, want)
	}
}

func TestEditFile_Validation(t *testing.T) {
	execCtx := newTestContext(t)
	writeFixture(t, execCtx, "v.txt", "text\n")

	tests := []struct {
		name   string
		input  map[string]any
		errMsg string
	}{
		{
			name:   "missing path",
			input:  map[string]any{"edits": []any{map[string]any{"old_text": "a", "new_text": "b"}}},
			errMsg: "path parameter is required",
		},
		{
			name:   "no edits",
			input:  map[string]any{"path": "v.txt"},
			errMsg: "edits parameter requires at least one edit",
		},
		{
			name:   "empty old_text",
			input:  editInput("v.txt", map[string]any{"old_text": "", "new_text": "b"}),
			errMsg: "edit 1 failed: old_text must not be empty",
		},
		{
			name:   "missing file",
			input:  editInput("nope.txt", map[string]any{"old_text": "a", "new_text": "b"}),
			errMsg: "failed to read file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callTool(t, execCtx, "edit_file", tt.input)
			if err == nil {
				t.Fatal("edit_file error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("edit_file error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}
