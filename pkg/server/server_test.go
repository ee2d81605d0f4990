package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tandem-dev/tandem/pkg/agent"
	"github.com/tandem-dev/tandem/pkg/commands"
	"github.com/tandem-dev/tandem/pkg/config"
	"github.com/tandem-dev/tandem/pkg/protocol"
	"github.com/tandem-dev/tandem/pkg/session"
	"github.com/tandem-dev/tandem/pkg/store"
	"github.com/tandem-dev/tandem/pkg/store/storetest"
	"github.com/tandem-dev/tandem/pkg/tools"
)

// scriptRunner records turn configs and delegates to run when set.
type scriptRunner struct {
	mu   sync.Mutex
	cfgs []agent.TurnConfig
	run  func(ctx context.Context, cfg agent.TurnConfig) agent.Outcome
}

func (f *scriptRunner) RunTurn(ctx context.Context, cfg agent.TurnConfig) agent.Outcome {
	f.mu.Lock()
	f.cfgs = append(f.cfgs, cfg)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, cfg)
	}
	return agent.OutcomeCompleted
}

func (f *scriptRunner) config(t *testing.T, i int) agent.TurnConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.cfgs) {
		t.Fatalf("runner saw %d turns, want at least %d", len(f.cfgs), i+1)
	}
	return f.cfgs[i]
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            3001,
		CORSOrigin:      "http://localhost:5173",
		ProjectRoot:     "/projects",
		MaxTokens:       4096,
		OpenRouterModel: "anthropic/claude-sonnet-4",
	}
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	noop := func(ctx context.Context, input map[string]any, execCtx *tools.ExecContext) (any, error) {
		return "ok", nil
	}
	defs := []*tools.Definition{
		{Name: "load_tools", Description: "Load tool categories", Category: tools.CategoryMeta, Handler: noop},
		{Name: "read_file", Description: "Read a file", Category: tools.CategoryFileOps, Handler: noop},
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("Register(%s) error = %v", def.Name, err)
		}
	}
	return reg
}

func testCommands(t *testing.T) *commands.Catalog {
	t.Helper()
	dir := t.TempDir()
	content := "description: Code review\nprompt: \"Review this code:\\n\\n{{.Message}}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "review.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write command file: %v", err)
	}
	catalog, err := commands.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return catalog
}

func newTestServer(t *testing.T, runner session.TurnRunner) (*Server, *storetest.Memory) {
	t.Helper()
	st := storetest.New()
	manager := session.NewManager(st, runner)
	return New(testConfig(), manager, st, testRegistry(t), testCommands(t), nil), st
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// waitTurnDone polls the store until the session leaves the running state.
func waitTurnDone(t *testing.T, st *storetest.Memory, id string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := st.GetSession(context.Background(), id)
		if err == nil && (rec.Status == store.StatusCompleted || rec.Status == store.StatusFailed) {
			return rec.Status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("turn did not finish in time")
	return ""
}

func TestChat_StartsTurn(t *testing.T) {
	runner := &scriptRunner{}
	srv, st := newTestServer(t, runner)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	decodeJSON(t, rec, &resp)
	if resp.SessionID == "" {
		t.Fatal("response has no sessionId")
	}
	if resp.WorkingDir != "/projects" {
		t.Errorf("workingDir = %s, want the configured project root", resp.WorkingDir)
	}

	waitTurnDone(t, st, resp.SessionID)
	cfg := runner.config(t, 0)
	if cfg.UserPrompt != "hello" {
		t.Errorf("cfg.UserPrompt = %q", cfg.UserPrompt)
	}
	if cfg.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("cfg.Model = %q, want the configured default", cfg.Model)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("cfg.MaxTokens = %d, want 4096", cfg.MaxTokens)
	}
	if cfg.WorkingDir != "/projects" {
		t.Errorf("cfg.WorkingDir = %q", cfg.WorkingDir)
	}
}

func TestChat_ExplicitWorkingDir(t *testing.T) {
	runner := &scriptRunner{}
	srv, st := newTestServer(t, runner)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/chat", `{"message":"x","workingDir":"/elsewhere"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	decodeJSON(t, rec, &resp)
	if resp.WorkingDir != "/elsewhere" {
		t.Errorf("workingDir = %s, want /elsewhere", resp.WorkingDir)
	}
	waitTurnDone(t, st, resp.SessionID)
	if cfg := runner.config(t, 0); cfg.WorkingDir != "/elsewhere" {
		t.Errorf("cfg.WorkingDir = %q, want /elsewhere", cfg.WorkingDir)
	}
}

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"malformed json", `{"message":`, "invalid request body"},
		{"empty body", "", "invalid request body"},
		{"blank message", `{"message":"   "}`, "message is required"},
		{"unknown command", `{"message":"x","command":"zap"}`, "unknown command: zap"},
	}

	srv, st := newTestServer(t, &scriptRunner{})
	h := srv.Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/chat", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp map[string]string
			decodeJSON(t, rec, &resp)
			if resp["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", resp["error"], tt.wantError)
			}
		})
	}

	// Rejected requests must not leave sessions behind.
	if _, total, err := st.ListSessions(context.Background(), 10, 0); err != nil || total != 0 {
		t.Errorf("sessions after rejected requests = %d (err %v), want 0", total, err)
	}
}

func TestChat_RendersCommand(t *testing.T) {
	runner := &scriptRunner{}
	srv, st := newTestServer(t, runner)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/chat", `{"message":"func main() {}","command":"review"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	decodeJSON(t, rec, &resp)
	waitTurnDone(t, st, resp.SessionID)

	want := "Review this code:\n\nfunc main() {}"
	if cfg := runner.config(t, 0); cfg.UserPrompt != want {
		t.Errorf("cfg.UserPrompt = %q, want %q", cfg.UserPrompt, want)
	}
}

func TestChatContinue(t *testing.T) {
	runner := &scriptRunner{}
	srv, st := newTestServer(t, runner)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/chat", `{"message":"first"}`)
	var created chatResponse
	decodeJSON(t, rec, &created)
	waitTurnDone(t, st, created.SessionID)

	rec = doRequest(t, h, http.MethodPost, "/api/chat/"+created.SessionID, `{"message":"more","model":"openai/gpt-4o"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	decodeJSON(t, rec, &resp)
	if resp.SessionID != created.SessionID {
		t.Errorf("sessionId = %s, want %s", resp.SessionID, created.SessionID)
	}
	waitTurnDone(t, st, created.SessionID)

	cfg := runner.config(t, 1)
	if cfg.UserPrompt != "more" {
		t.Errorf("cfg.UserPrompt = %q", cfg.UserPrompt)
	}
	if cfg.Model != "openai/gpt-4o" {
		t.Errorf("cfg.Model = %q, want the literal requested model", cfg.Model)
	}
}

func TestChatContinue_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, &scriptRunner{})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/chat/missing", `{"message":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["error"] != "session not found" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestChatContinue_Running(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := &scriptRunner{run: func(ctx context.Context, cfg agent.TurnConfig) agent.Outcome {
		close(started)
		<-release
		return agent.OutcomeCompleted
	}}
	srv, st := newTestServer(t, runner)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/chat", `{"message":"go"}`)
	var created chatResponse
	decodeJSON(t, rec, &created)
	<-started

	rec = doRequest(t, h, http.MethodPost, "/api/chat/"+created.SessionID, `{"message":"again"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["error"] != "session is already running" {
		t.Errorf("error = %q", resp["error"])
	}

	close(release)
	waitTurnDone(t, st, created.SessionID)
}

func TestStream(t *testing.T) {
	runner := &scriptRunner{run: func(ctx context.Context, cfg agent.TurnConfig) agent.Outcome {
		cfg.Events.Push(protocol.TextDeltaEvent("hi"))
		cfg.Events.Push(protocol.DoneEvent())
		cfg.Events.Push(protocol.TextDeltaEvent("after the end"))
		return agent.OutcomeCompleted
	}}
	srv, _ := newTestServer(t, runner)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	var created chatResponse
	decodeJSON(t, rec, &created)

	stream := doRequest(t, h, http.MethodGet, "/api/stream/"+created.SessionID, "")
	if stream.Code != http.StatusOK {
		t.Fatalf("status = %d", stream.Code)
	}
	if ct := stream.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Replayed from the start, framed per event, ends at the first done.
	want := "event: text_delta\n" +
		`data: {"type":"text_delta","text":"hi"}` + "\n\n" +
		"event: done\n" +
		`data: {"type":"done"}` + "\n\n"
	if got := stream.Body.String(); got != want {
		t.Errorf("stream body = %q, want %q", got, want)
	}
}

func TestStream_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, &scriptRunner{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/stream/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["error"] != "session not found" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestStop(t *testing.T) {
	started := make(chan struct{})
	runner := &scriptRunner{run: func(ctx context.Context, cfg agent.TurnConfig) agent.Outcome {
		close(started)
		<-ctx.Done()
		return agent.OutcomeAborted
	}}
	srv, st := newTestServer(t, runner)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/stop/missing", "")
	var resp map[string]bool
	decodeJSON(t, rec, &resp)
	if resp["success"] {
		t.Error("stop on a missing session reported success")
	}

	rec = doRequest(t, h, http.MethodPost, "/api/chat", `{"message":"work"}`)
	var created chatResponse
	decodeJSON(t, rec, &created)
	<-started

	rec = doRequest(t, h, http.MethodPost, "/api/stop/"+created.SessionID, "")
	decodeJSON(t, rec, &resp)
	if !resp["success"] {
		t.Fatal("stop on a running session reported failure")
	}
	if status := waitTurnDone(t, st, created.SessionID); status != store.StatusCompleted {
		t.Errorf("status after stop = %s, want completed", status)
	}
}

func TestGetSession(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	ctx := context.Background()
	if err := st.CreateSession(ctx, "s1", "/w", store.StatusCompleted); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	if err := st.UpdateSessionTitle(ctx, "s1", "Fix the parser"); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	if err := st.IncrementSessionTokens(ctx, "s1", 120); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	for _, msg := range []protocol.Message{protocol.NewUserMessage("hi"), protocol.NewAssistantMessage("hello")} {
		if _, err := st.AppendMessage(ctx, "s1", msg); err != nil {
			t.Fatalf("seed error = %v", err)
		}
	}

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/session/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp sessionInfo
	decodeJSON(t, rec, &resp)
	if resp.ID != "s1" || resp.Status != store.StatusCompleted || resp.WorkingDir != "/w" {
		t.Errorf("session = %+v", resp)
	}
	if resp.Title != "Fix the parser" {
		t.Errorf("title = %q", resp.Title)
	}
	if resp.MessageCount != 2 {
		t.Errorf("messageCount = %d, want 2", resp.MessageCount)
	}
	if resp.TotalTokens != 120 {
		t.Errorf("totalTokens = %d, want 120", resp.TotalTokens)
	}

	if rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/session/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status for missing session = %d, want 404", rec.Code)
	}
}

func TestSessionMessages(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	ctx := context.Background()
	if err := st.CreateSession(ctx, "s1", "/w", store.StatusCompleted); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	seed := []protocol.Message{
		protocol.NewUserMessage("hi"),
		{
			Role:      protocol.RoleAssistant,
			ToolCalls: []protocol.ToolCall{protocol.NewToolCall("call_1", "list_dir", "{}")},
		},
		{Role: protocol.RoleTool, Content: "[]", ToolCallID: "call_1"},
		protocol.NewAssistantMessage("empty dir"),
	}
	for _, msg := range seed {
		if _, err := st.AppendMessage(ctx, "s1", msg); err != nil {
			t.Fatalf("seed error = %v", err)
		}
	}

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/session/s1/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var msgs []protocol.Message
	decodeJSON(t, rec, &msgs)
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[2].Role != protocol.RoleUser {
		t.Errorf("tool result row role = %s, want user", msgs[2].Role)
	}
	if results := msgs[2].ToolResultBlocks(); len(results) != 1 || results[0].ToolUseID != "call_1" {
		t.Errorf("tool result blocks = %+v", results)
	}

	if rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/session/missing/messages", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status for missing session = %d, want 404", rec.Code)
	}
}

func TestSessionMessages_EmptyList(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	if err := st.CreateSession(context.Background(), "s1", "/w", store.StatusIdle); err != nil {
		t.Fatalf("seed error = %v", err)
	}

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/session/s1/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want an empty array", got)
	}
}

func TestUpdateSessionTitle(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	ctx := context.Background()
	if err := st.CreateSession(ctx, "s1", "/w", store.StatusIdle); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPatch, "/api/session/s1", `{"title":"Renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got, _ := st.GetSession(ctx, "s1")
	if got.Title != "Renamed" {
		t.Errorf("title = %q, want Renamed", got.Title)
	}

	if rec := doRequest(t, h, http.MethodPatch, "/api/session/s1", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("status without title = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPatch, "/api/session/missing", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("status for missing session = %d, want 404", rec.Code)
	}
}

func TestUpdateWorkingDir(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	ctx := context.Background()
	if err := st.CreateSession(ctx, "s1", "/old", store.StatusIdle); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPatch, "/api/session/s1/cwd", `{"workingDir":"/new"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got, _ := st.GetSession(ctx, "s1")
	if got.WorkingDir != "/new" {
		t.Errorf("workingDir = %q, want /new", got.WorkingDir)
	}

	if rec := doRequest(t, h, http.MethodPatch, "/api/session/s1/cwd", `{"workingDir":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("status for blank workingDir = %d, want 400", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	ctx := context.Background()
	if err := st.CreateSession(ctx, "s1", "/w", store.StatusIdle); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodDelete, "/api/session/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, err := st.GetSession(ctx, "s1"); err == nil {
		t.Error("session still present after delete")
	}

	if rec := doRequest(t, h, http.MethodDelete, "/api/session/s1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status for second delete = %d, want 404", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	ctx := context.Background()
	for _, id := range []string{"s1", "s2", "s3"} {
		if err := st.CreateSession(ctx, id, "/w", store.StatusIdle); err != nil {
			t.Fatalf("seed error = %v", err)
		}
	}
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/sessions?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var page sessionListResponse
	decodeJSON(t, rec, &page)
	if len(page.Sessions) != 2 || page.Total != 3 || !page.HasMore {
		t.Errorf("page = %d sessions, total %d, hasMore %v", len(page.Sessions), page.Total, page.HasMore)
	}
	if page.Limit != 2 || page.Offset != 0 {
		t.Errorf("page limit/offset = %d/%d", page.Limit, page.Offset)
	}
	// Newest first.
	if page.Sessions[0].ID != "s3" || page.Sessions[1].ID != "s2" {
		t.Errorf("page order = %s, %s", page.Sessions[0].ID, page.Sessions[1].ID)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/sessions?limit=2&offset=2", "")
	decodeJSON(t, rec, &page)
	if len(page.Sessions) != 1 || page.HasMore {
		t.Errorf("last page = %d sessions, hasMore %v", len(page.Sessions), page.HasMore)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/sessions?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status for bad limit = %d, want 400", rec.Code)
	}
}

func TestPlanRoundTrip(t *testing.T) {
	srv, st := newTestServer(t, &scriptRunner{})
	if err := st.CreateSession(context.Background(), "s1", "/w", store.StatusIdle); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/session/s1/plan", "")
	var resp map[string]*string
	decodeJSON(t, rec, &resp)
	if resp["plan"] != nil {
		t.Errorf("initial plan = %q, want null", *resp["plan"])
	}

	if rec := doRequest(t, h, http.MethodPut, "/api/session/s1/plan", `{"plan":"1. read files"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodGet, "/api/session/s1/plan", "")
	decodeJSON(t, rec, &resp)
	if resp["plan"] == nil || *resp["plan"] != "1. read files" {
		t.Errorf("plan = %v, want the stored text", resp["plan"])
	}

	if rec := doRequest(t, h, http.MethodPut, "/api/session/s1/plan", `{"plan":null}`); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/session/s1/plan", "")
	decodeJSON(t, rec, &resp)
	if resp["plan"] != nil {
		t.Errorf("cleared plan = %q, want null", *resp["plan"])
	}

	if rec := doRequest(t, h, http.MethodPut, "/api/session/missing/plan", `{"plan":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("status for missing session = %d, want 404", rec.Code)
	}
}

func TestTools(t *testing.T) {
	srv, _ := newTestServer(t, &scriptRunner{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/tools", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Categories []tools.CategoryInfo `json:"categories"`
		Tools      []toolInfo           `json:"tools"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(resp.Categories))
	}
	if resp.Categories[0].Name != tools.CategoryFileOps || resp.Categories[1].Name != tools.CategoryMeta {
		t.Errorf("category order = %s, %s", resp.Categories[0].Name, resp.Categories[1].Name)
	}
	if len(resp.Tools) != 2 || resp.Tools[0].Name != "load_tools" || resp.Tools[1].Name != "read_file" {
		t.Errorf("tools = %+v", resp.Tools)
	}
}

func TestModels(t *testing.T) {
	srv, _ := newTestServer(t, &scriptRunner{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Models []struct {
			ID      string `json:"id"`
			Default bool   `json:"default"`
		} `json:"models"`
		Default string `json:"default"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Default != "anthropic/claude-sonnet-4" {
		t.Errorf("default = %q", resp.Default)
	}
	found := false
	for _, m := range resp.Models {
		if m.ID == "anthropic/claude-sonnet-4" && m.Default {
			found = true
		}
	}
	if !found {
		t.Error("configured default model is not marked in the catalog")
	}
}

func TestCommands(t *testing.T) {
	srv, _ := newTestServer(t, &scriptRunner{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/commands", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Commands []commandInfo `json:"commands"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(resp.Commands))
	}
	if resp.Commands[0].Name != "review" || resp.Commands[0].Description != "Code review" {
		t.Errorf("command = %+v", resp.Commands[0])
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, &scriptRunner{})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodOptions, "/api/chat", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	headers := map[string]string{
		"Access-Control-Allow-Origin":  "http://localhost:5173",
		"Access-Control-Allow-Methods": "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	}
	for key, want := range headers {
		if got := rec.Header().Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	// Every response carries the origin header, not just preflight.
	rec = doRequest(t, h, http.MethodGet, "/health", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin on GET = %q", got)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &scriptRunner{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want ok", resp["status"])
	}
}
