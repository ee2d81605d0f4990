package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tandem-dev/tandem/pkg/llms"
	"github.com/tandem-dev/tandem/pkg/protocol"
	"github.com/tandem-dev/tandem/pkg/session"
	"github.com/tandem-dev/tandem/pkg/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type chatRequest struct {
	Message    string `json:"message"`
	WorkingDir string `json:"workingDir"`
	Model      string `json:"model"`
	Command    string `json:"command"`
}

type chatResponse struct {
	SessionID  string `json:"sessionId"`
	WorkingDir string `json:"workingDir"`
}

// resolvePrompt expands a slash command around the message when one is
// named. An unknown command is a validation error.
func (s *Server) resolvePrompt(req chatRequest) (string, error) {
	if req.Command == "" {
		return req.Message, nil
	}
	return s.commands.Render(req.Command, req.Message)
}

func (s *Server) startTurn(w http.ResponseWriter, r *http.Request, sess *session.Session, req chatRequest, prompt string) {
	err := s.manager.StartTurn(r.Context(), sess, session.TurnRequest{
		Prompt:    prompt,
		Model:     s.cfg.ResolveModel(req.Model),
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.Error("Failed to start turn", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start turn")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: sess.ID, WorkingDir: sess.WorkingDir()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	prompt, err := s.resolvePrompt(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = s.cfg.ProjectRoot
	}
	sess, err := s.manager.Create(r.Context(), workingDir)
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.startTurn(w, r, sess, req, prompt)
}

func (s *Server) handleChatContinue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	prompt, err := s.resolvePrompt(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.manager.PrepareForContinuation(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, session.ErrSessionRunning):
			writeError(w, http.StatusConflict, err.Error())
		default:
			slog.Error("Failed to prepare session", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to prepare session")
		}
		return
	}

	s.startTurn(w, r, sess, req, prompt)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]bool{"success": s.manager.Cancel(id)})
}

type sessionInfo struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	WorkingDir   string    `json:"workingDir"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	TotalTokens  int       `json:"totalTokens"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	count, err := s.store.CountMessages(r.Context(), id)
	if err != nil {
		slog.Error("Failed to count messages", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo{
		ID:           rec.ID,
		Status:       rec.Status,
		WorkingDir:   rec.WorkingDir,
		Title:        rec.Title,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		MessageCount: count,
		TotalTokens:  rec.TotalTokens,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	msgs, err := s.manager.History(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load messages", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []protocol.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Title *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == nil {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := s.manager.UpdateTitle(r.Context(), id, *req.Title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to update title", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUpdateWorkingDir(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		WorkingDir string `json:"workingDir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.WorkingDir) == "" {
		writeError(w, http.StatusBadRequest, "workingDir is required")
		return
	}
	if err := s.manager.UpdateWorkingDir(r.Context(), id, req.WorkingDir); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to update working dir", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.manager.Delete(r.Context(), id)
	if err != nil {
		slog.Error("Failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type sessionSummary struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	WorkingDir   string    `json:"workingDir"`
	Title        string    `json:"title,omitempty"`
	Preview      string    `json:"preview,omitempty"`
	TotalTokens  int       `json:"totalTokens"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type sessionListResponse struct {
	Sessions []sessionSummary `json:"sessions"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
	HasMore  bool             `json:"hasMore"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	summaries, total, err := s.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	sessions := make([]sessionSummary, 0, len(summaries))
	for _, sum := range summaries {
		sessions = append(sessions, sessionSummary{
			ID:           sum.ID,
			Status:       sum.Status,
			WorkingDir:   sum.WorkingDir,
			Title:        sum.Title,
			Preview:      sum.Preview,
			TotalTokens:  sum.TotalTokens,
			MessageCount: sum.MessageCount,
			CreatedAt:    sum.CreatedAt,
			UpdatedAt:    sum.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, sessionListResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		HasMore:  offset+len(sessions) < total,
	})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	var plan *string
	if rec.CurrentPlan != "" {
		plan = &rec.CurrentPlan
	}
	writeJSON(w, http.StatusOK, map[string]*string{"plan": plan})
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Plan *string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.manager.UpdatePlan(r.Context(), id, req.Plan); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to update plan", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update plan")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	defs := s.registry.List()
	list := make([]toolInfo, 0, len(defs))
	for _, def := range defs {
		list = append(list, toolInfo{
			Name:        def.Name,
			Description: def.Description,
			Category:    string(def.Category),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": s.registry.Categories(),
		"tools":      list,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  llms.Catalog(s.cfg.OpenRouterModel, s.cfg.OpenRouterModelFast, s.cfg.OpenRouterModelHeavy),
		"default": s.cfg.OpenRouterModel,
	})
}

type commandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	cmds := s.commands.List()
	list := make([]commandInfo, 0, len(cmds))
	for _, c := range cmds {
		list = append(list, commandInfo{Name: c.Name, Description: c.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": list})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
