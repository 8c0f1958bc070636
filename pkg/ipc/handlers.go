package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/engine"
	"github.com/odvcencio/overseer/pkg/eventlog"
	"github.com/odvcencio/overseer/pkg/gitview"
	"github.com/odvcencio/overseer/pkg/thread"
	"github.com/odvcencio/overseer/pkg/workspace"
)

const (
	maxBodyBytesTiny  int64 = 64 << 10
	maxBodyBytesSmall int64 = 1 << 20
)

// decodeJSONBody decodes a bounded JSON request body. allowEmpty treats a
// missing body as a zero value instead of an error.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64, allowEmpty bool) (int, error) {
	if r == nil || r.Body == nil {
		if allowEmpty {
			return 0, nil
		}
		return http.StatusBadRequest, errors.New("request body required")
	}
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return 0, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body too large (max %d bytes)", maxBytes)
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

// respondJSON writes a 200 JSON response.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondStatusJSON writes a JSON response with an explicit status code.
func respondStatusJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondRaw forwards an already-encoded JSON document.
func respondRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	_, _ = w.Write(raw)
}

// respondError writes a structured JSON error.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
	}
	_ = json.NewEncoder(w).Encode(struct {
		Error     string `json:"error"`
		Status    int    `json:"status"`
		Timestamp string `json:"timestamp"`
	}{
		Error:     message,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// statusForError maps engine and registry sentinels onto HTTP statuses.
// Anything else is treated as a failed backend call.
func statusForError(err error) int {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownWorkspace):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrNoActiveThread), errors.Is(err, engine.ErrNoActiveTurn):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return def
}

// workspaceFromRequest resolves the {workspaceID} route parameter,
// answering 404 itself when the workspace is unknown.
func (s *Server) workspaceFromRequest(w http.ResponseWriter, r *http.Request) (workspace.Workspace, bool) {
	id := chi.URLParam(r, "workspaceID")
	ws, ok := s.manager.Registry().Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Errorf("workspace %s: %w", id, workspace.ErrNotFound))
		return workspace.Workspace{}, false
	}
	return ws, true
}

// --- sessions ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	token, expires, err := s.sessions.Issue("browser")
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	metricSessionsIssued.Inc()
	respondStatusJSON(w, http.StatusCreated, map[string]any{
		"token":     token,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

// --- workspaces ---

func (s *Server) handleListWorkspaces(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]any{"workspaces": s.manager.List()})
}

func (s *Server) handleAddWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Command string `json:"command,omitempty"`
	}
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, false); err != nil {
		respondError(w, status, err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		respondError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}

	ws, err := s.manager.Add(r.Context(), req.Path, req.Command)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondStatusJSON(w, http.StatusCreated, map[string]any{
		"workspace": workspace.Info{Workspace: ws, Connected: s.manager.Connected(ws.ID)},
	})
}

func (s *Server) handleRemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	if err := s.manager.Remove(id); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "removed"})
}

func (s *Server) handleConnectWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	if err := s.manager.Connect(r.Context(), id); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "connected"})
}

func (s *Server) handleWorkspaceEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("event log disabled"))
		return
	}
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), eventlog.DefaultRecentLimit)
	records, err := s.events.Recent(ws.ID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []eventlog.Record{}
	}
	respondJSON(w, map[string]any{"events": records})
}

// --- threads ---

// threadView is a summary plus its live status flags.
type threadView struct {
	thread.Summary
	Status thread.Status `json:"status"`
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}

	if refresh := r.URL.Query().Get("refresh"); refresh == "true" || refresh == "1" {
		// A failed refresh degrades to the local view rather than erroring.
		if err := s.engine.ListThreads(r.Context(), ws.ID); err != nil {
			s.logger.Warn("thread list refresh failed", "workspace_id", ws.ID, "error", err)
		}
	}

	store := s.engine.Store()
	summaries := store.Threads(ws.ID)
	views := make([]threadView, 0, len(summaries))
	for _, sum := range summaries {
		views = append(views, threadView{Summary: sum, Status: store.StatusOf(sum.ID)})
	}
	active, _ := store.ActiveThread(ws.ID)
	respondJSON(w, map[string]any{
		"threads":        views,
		"activeThreadId": active,
	})
}

func (s *Server) handleStartThread(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	threadID, err := s.engine.StartThread(r.Context(), ws.ID)
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondStatusJSON(w, http.StatusCreated, map[string]string{"threadId": threadID})
}

func (s *Server) handleThreadItems(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadID")
	store := s.engine.Store()
	items := store.Items(threadID)
	if items == nil {
		items = []thread.ConversationItem{}
	}
	respondJSON(w, map[string]any{
		"workspaceId": ws.ID,
		"threadId":    threadID,
		"items":       items,
		"status":      store.StatusOf(threadID),
	})
}

func (s *Server) handleResumeThread(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadID")

	var req struct {
		Force bool `json:"force,omitempty"`
	}
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, true); err != nil {
		respondError(w, status, err)
		return
	}

	id, err := s.engine.ResumeThread(r.Context(), ws.ID, threadID, req.Force)
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"threadId": id})
}

func (s *Server) handleArchiveThread(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadID")
	if err := s.engine.ArchiveThread(r.Context(), ws.ID, threadID); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "archived"})
}

// sendMessageRequest carries one outgoing user turn.
type sendMessageRequest struct {
	Text       string `json:"text"`
	Model      string `json:"model,omitempty"`
	Effort     string `json:"effort,omitempty"`
	AccessMode string `json:"accessMode,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadID")
	s.engine.SetActiveThread(ws.ID, threadID)
	s.dispatchMessage(w, r, ws.ID)
}

// handleSendActiveMessage sends on the workspace's active thread, creating
// one when none exists yet.
func (s *Server) handleSendActiveMessage(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	s.dispatchMessage(w, r, ws.ID)
}

func (s *Server) dispatchMessage(w http.ResponseWriter, r *http.Request, workspaceID string) {
	var req sendMessageRequest
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesSmall, false); err != nil {
		respondError(w, status, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	threadID, err := s.engine.SendUserMessage(r.Context(), workspaceID, req.Text, engine.SendOptions{
		Model:      req.Model,
		Effort:     req.Effort,
		AccessMode: req.AccessMode,
	})
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondStatusJSON(w, http.StatusAccepted, map[string]string{"threadId": threadID})
}

func (s *Server) handleStartReview(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadID")

	var req struct {
		Command string `json:"command,omitempty"`
	}
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, true); err != nil {
		respondError(w, status, err)
		return
	}

	s.engine.SetActiveThread(ws.ID, threadID)
	if err := s.engine.StartReview(r.Context(), ws.ID, req.Command); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondStatusJSON(w, http.StatusAccepted, map[string]string{"threadId": threadID})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "threadID")
	s.engine.SetActiveThread(ws.ID, threadID)
	if err := s.engine.InterruptTurn(r.Context(), ws.ID); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "interrupted"})
}

// --- git ---

func (s *Server) gitViewFromRequest(w http.ResponseWriter, r *http.Request) (*gitview.View, bool) {
	ws, ok := s.workspaceFromRequest(w, r)
	if !ok {
		return nil, false
	}
	view, err := gitview.Open(ws.Path)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return nil, false
	}
	return view, true
}

func (s *Server) handleGitStatus(w http.ResponseWriter, r *http.Request) {
	view, ok := s.gitViewFromRequest(w, r)
	if !ok {
		return
	}
	status, err := view.Status()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, status)
}

func (s *Server) handleGitLog(w http.ResponseWriter, r *http.Request) {
	view, ok := s.gitViewFromRequest(w, r)
	if !ok {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), gitview.DefaultLogLimit)
	commits, err := view.Log(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, map[string]any{"commits": commits})
}

func (s *Server) handleGitBranches(w http.ResponseWriter, r *http.Request) {
	view, ok := s.gitViewFromRequest(w, r)
	if !ok {
		return
	}
	branches, err := view.Branches()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, map[string]any{"branches": branches})
}

// handleGitDiff renders one of the three review targets: the uncommitted
// worktree (default), a base branch, or a single commit.
func (s *Server) handleGitDiff(w http.ResponseWriter, r *http.Request) {
	view, ok := s.gitViewFromRequest(w, r)
	if !ok {
		return
	}

	target := r.URL.Query().Get("target")
	var (
		diff string
		err  error
	)
	switch target {
	case "", "uncommitted":
		target = "uncommitted"
		diff, err = view.DiffWorktree()
	case "base":
		base := r.URL.Query().Get("base")
		if base == "" {
			respondError(w, http.StatusBadRequest, errors.New("base parameter is required"))
			return
		}
		diff, err = view.DiffBase(base)
	case "commit":
		rev := r.URL.Query().Get("rev")
		if rev == "" {
			respondError(w, http.StatusBadRequest, errors.New("rev parameter is required"))
			return
		}
		diff, err = view.DiffCommit(rev)
	default:
		respondError(w, http.StatusBadRequest, fmt.Errorf("unknown diff target %q", target))
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, map[string]string{"target": target, "diff": diff})
}

// --- approvals ---

func (s *Server) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	approvals := s.engine.Approvals()
	if approvals == nil {
		approvals = []thread.ApprovalRequest{}
	}
	respondJSON(w, map[string]any{"approvals": approvals})
}

func (s *Server) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	requestID, err := strconv.ParseUint(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request id: %w", err))
		return
	}

	var req struct {
		Decision string `json:"decision"`
	}
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, false); err != nil {
		respondError(w, status, err)
		return
	}
	var approve bool
	switch req.Decision {
	case "accept":
		approve = true
	case "decline":
		approve = false
	default:
		respondError(w, http.StatusBadRequest, fmt.Errorf("decision must be accept or decline, got %q", req.Decision))
		return
	}

	var pending *thread.ApprovalRequest
	for _, ar := range s.engine.Approvals() {
		if ar.WorkspaceID == workspaceID && ar.RequestID == requestID {
			ar := ar
			pending = &ar
			break
		}
	}
	if pending == nil {
		respondError(w, http.StatusNotFound, errors.New("no such pending approval"))
		return
	}

	if err := s.engine.Decide(*pending, approve); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": req.Decision})
}

// --- focus ---

// handleFocus records which workspace and thread the shell is showing.
// Selection clears the thread's unread flag and feeds the notification
// policy's focused-thread suppression.
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID string `json:"workspaceId"`
		ThreadID    string `json:"threadId,omitempty"`
	}
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, false); err != nil {
		respondError(w, status, err)
		return
	}
	if req.WorkspaceID == "" {
		respondError(w, http.StatusBadRequest, errors.New("workspaceId is required"))
		return
	}

	if req.ThreadID != "" {
		s.engine.SetActiveThread(req.WorkspaceID, req.ThreadID)
	}
	if s.observer != nil {
		s.observer.SetFocus(req.WorkspaceID, req.ThreadID)
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

// --- backend passthrough ---

// backendSession resolves the workspace query parameter to a live backend
// session for catalog passthrough calls.
func (s *Server) backendSession(w http.ResponseWriter, r *http.Request) (string, *appserver.Session, bool) {
	id := r.URL.Query().Get("workspace")
	if id == "" {
		respondError(w, http.StatusBadRequest, errors.New("workspace parameter is required"))
		return "", nil, false
	}
	ws, ok := s.manager.Registry().Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Errorf("workspace %s: %w", id, workspace.ErrNotFound))
		return "", nil, false
	}
	sess, ok := s.manager.Session(id)
	if !ok {
		respondError(w, http.StatusServiceUnavailable, engine.ErrUnknownWorkspace)
		return "", nil, false
	}
	return ws.Path, sess, true
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.backendSession(w, r)
	if !ok {
		return
	}
	raw, err := sess.ListModels(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondRaw(w, raw)
}

func (s *Server) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.backendSession(w, r)
	if !ok {
		return
	}
	raw, err := sess.ReadRateLimits(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondRaw(w, raw)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	path, sess, ok := s.backendSession(w, r)
	if !ok {
		return
	}
	raw, err := sess.ListSkills(r.Context(), path)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondRaw(w, raw)
}

// --- web push ---

func (s *Server) handleVAPIDPublicKey(w http.ResponseWriter, _ *http.Request) {
	if s.push == nil {
		respondError(w, http.StatusNotFound, errors.New("web push not configured"))
		return
	}
	respondJSON(w, map[string]string{"publicKey": s.push.VAPIDPublicKey()})
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("event log disabled"))
		return
	}
	// The body is the browser's PushSubscription.toJSON() shape.
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, false); err != nil {
		respondError(w, status, err)
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		respondError(w, http.StatusBadRequest, errors.New("endpoint and keys are required"))
		return
	}

	sub, err := s.events.SaveSubscription(eventlog.PushSubscription{
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondStatusJSON(w, http.StatusCreated, map[string]any{"subscription": sub})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("event log disabled"))
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, false); err != nil {
		respondError(w, status, err)
		return
	}
	if req.Endpoint == "" {
		respondError(w, http.StatusBadRequest, errors.New("endpoint is required"))
		return
	}
	if err := s.events.DeleteSubscription(req.Endpoint); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, map[string]string{"status": "deleted"})
}

// --- event stream snapshots ---

// stateSnapshot is the JSON shape of a full store snapshot on the event
// stream.
type stateSnapshot struct {
	ActiveThreadByWorkspace map[string]string                    `json:"activeThreadByWorkspace"`
	ItemsByThread           map[string][]thread.ConversationItem `json:"itemsByThread"`
	ThreadsByWorkspace      map[string][]thread.Summary          `json:"threadsByWorkspace"`
	StatusByThread          map[string]thread.Status             `json:"statusByThread"`
	Approvals               []thread.ApprovalRequest             `json:"approvals"`
}

func snapshotOf(state thread.State) stateSnapshot {
	approvals := state.Approvals
	if approvals == nil {
		approvals = []thread.ApprovalRequest{}
	}
	return stateSnapshot{
		ActiveThreadByWorkspace: state.ActiveThreadByWorkspace,
		ItemsByThread:           state.ItemsByThread,
		ThreadsByWorkspace:      state.ThreadsByWorkspace,
		StatusByThread:          state.StatusByThread,
		Approvals:               approvals,
	}
}

// broadcastSnapshot mirrors every store dispatch onto the event stream.
func (s *Server) broadcastSnapshot(state thread.State) {
	s.hub.Broadcast(Event{Type: EventTypeSnapshot, Payload: snapshotOf(state)})
}
