package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/codepad/core"
	"pkt.systems/codepad/internal/eventbus"
	"pkt.systems/codepad/internal/logx"
	"pkt.systems/codepad/schema"
)

// Authenticator verifies username, password, and totp.
type Authenticator interface {
	Authenticate(username, password, totp string) error
	ChangePassword(username, currentPassword, totp, newPassword string) error
}

// Server serves the HTTP API and UI.
type Server struct {
	cfg       Config
	service   core.Service
	authStore Authenticator
	sessions  *sessionStore
	bus       *eventbus.Bus
	basePath  string
	baseHref  string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, service core.Service, authStore Authenticator, bus *eventbus.Bus) *Server {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	return &Server{
		cfg:       cfg,
		service:   service,
		authStore: authStore,
		sessions:  newSessionStore(ttl, cfg.SessionFile),
		bus:       bus,
		basePath:  normalizeBasePath(cfg.BasePath),
		baseHref:  buildBaseHref(cfg.BaseURL, cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/me", s.requireSession(s.handleMe))
	mux.HandleFunc("/api/chpasswd", s.requireSession(s.handleChangePassword))

	mux.HandleFunc("/api/projects", s.requireSession(s.handleProjects))
	mux.HandleFunc("/api/projects/", s.requireSession(s.handleProjectByID))

	mux.HandleFunc("/api/editor/open", s.requireSession(s.handleOpen))
	mux.HandleFunc("/api/editor/close", s.requireSession(s.handleClose))
	mux.HandleFunc("/api/editor/session", s.requireSession(s.handleSession))
	mux.HandleFunc("/api/editor/buffer", s.requireSession(s.handleBuffer))
	mux.HandleFunc("/api/editor/undo", s.requireSession(s.handleUndo))
	mux.HandleFunc("/api/editor/redo", s.requireSession(s.handleRedo))
	mux.HandleFunc("/api/editor/save", s.requireSession(s.handleSave))
	mux.HandleFunc("/api/editor/saveas", s.requireSession(s.handleSaveAs))
	mux.HandleFunc("/api/editor/key", s.requireSession(s.handleKey))
	mux.HandleFunc("/api/editor/refresh", s.requireSession(s.handleRefresh))
	mux.HandleFunc("/api/editor/export", s.requireSession(s.handleExport))
	mux.HandleFunc("/api/editor/sandbox-error", s.requireSession(s.handleSandboxError))
	mux.HandleFunc("/api/editor/check", s.requireSession(s.handleCheck))
	mux.HandleFunc("/api/assist", s.requireSession(s.handleAssist))
	mux.HandleFunc("/api/stream", s.requireSession(s.handleStream))

	handler := withRequestLogging(mux, s.lookupSession)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	stat, err := fs.Stat(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	data = applyBaseHref(data, s.baseHref)
	reader := bytes.NewReader(data)
	http.ServeContent(w, r, "index.html", stat.ModTime(), reader)
}

const baseHrefPlaceholder = "<!-- BASE_HREF -->"

func applyBaseHref(data []byte, baseHref string) []byte {
	replacement := ""
	if strings.TrimSpace(baseHref) != "" {
		replacement = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(baseHref))
	}
	return bytes.ReplaceAll(data, []byte(baseHrefPlaceholder), []byte(replacement))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTP     string `json:"totp"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http login decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With("user", payload.Username)
	if err := s.authStore.Authenticate(payload.Username, payload.Password, payload.TOTP); err != nil {
		log.Warn("http login failed", "err", err)
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	token, sess := s.sessions.create(schema.UserID(payload.Username))
	cookie := &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.expiresAt,
	}
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, map[string]any{"username": payload.Username})
	log.Info("http login ok")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := s.sessionToken(r)
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	if token != "" {
		if entry, ok := s.sessions.get(token); ok {
			log = log.With("user", entry.userID, "http_session", entry.id)
		}
		s.sessions.delete(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	log.Info("http logout")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	writeJSON(w, http.StatusOK, map[string]any{"username": userID})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("user", userID, "remote", clientIP(r))
	var payload struct {
		CurrentPassword string `json:"current_password"`
		TOTP            string `json:"totp"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http chpasswd decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.CurrentPassword) == "" {
		writeError(w, http.StatusBadRequest, errors.New("current password is required"))
		return
	}
	if strings.TrimSpace(payload.NewPassword) == "" {
		writeError(w, http.StatusBadRequest, errors.New("new password is required"))
		return
	}
	if payload.NewPassword != payload.ConfirmPassword {
		writeError(w, http.StatusBadRequest, errors.New("passwords do not match"))
		return
	}
	if strings.TrimSpace(payload.TOTP) == "" {
		writeError(w, http.StatusBadRequest, errors.New("totp is required"))
		return
	}
	if err := s.authStore.ChangePassword(string(userID), payload.CurrentPassword, payload.TOTP, payload.NewPassword); err != nil {
		log.Warn("http chpasswd failed", "err", err)
		status := http.StatusInternalServerError
		switch {
		case isPasswordChangeAuthError(err):
			status = http.StatusUnauthorized
		case isPasswordChangeValidationError(err):
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	log.Info("http chpasswd ok")
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	resp, err := s.service.ListProjects(r.Context(), schema.ListProjectsRequest{UserID: userID})
	if err != nil {
		log.Warn("http projects list failed", "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http projects list ok", "count", len(resp.Projects))
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	log := logx.WithUser(r.Context(), userID)
	idText := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid project id"))
		return
	}
	switch r.Method {
	case http.MethodDelete:
		resp, err := s.service.DeleteProject(r.Context(), schema.DeleteProjectRequest{
			UserID:    userID,
			ProjectID: schema.ProjectID(id),
		})
		if err != nil {
			log.Warn("http project delete failed", "project", id, "err", err)
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		log.Info("http project delete ok", "project", id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	var payload struct {
		ProjectID int64 `json:"project_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http open decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.OpenSession(r.Context(), schema.OpenSessionRequest{
		UserID:    userID,
		ProjectID: schema.ProjectID(payload.ProjectID),
	})
	if err != nil {
		log.Warn("http open failed", "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http open ok", "session", resp.Session.ID, "project", payload.ProjectID)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	var payload struct {
		SessionID string `json:"session_id"`
		Force     bool   `json:"force"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http close decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.CloseSession(r.Context(), schema.CloseSessionRequest{
		UserID:    userID,
		SessionID: schema.SessionID(payload.SessionID),
		Force:     payload.Force,
	})
	if err != nil {
		log.Warn("http close failed", "session", payload.SessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http close ok", "session", payload.SessionID)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{
		UserID:    userID,
		SessionID: schema.SessionID(r.URL.Query().Get("session_id")),
	})
	if err != nil {
		log.Warn("http session get failed", "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http session get ok", "session", resp.Session.ID)
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	var payload struct {
		SessionID string `json:"session_id"`
		Buffer    string `json:"buffer"`
		Text      string `json:"text"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http buffer decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.UpdateBuffer(r.Context(), schema.UpdateBufferRequest{
		UserID:    userID,
		SessionID: schema.SessionID(payload.SessionID),
		Buffer:    schema.BufferKind(payload.Buffer),
		Text:      payload.Text,
	})
	if err != nil {
		log.Warn("http buffer failed", "session", payload.SessionID, "buffer", payload.Buffer, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http buffer ok", "session", payload.SessionID, "buffer", payload.Buffer, "len", len(payload.Text))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	sessionID, err := decodeSessionRef(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.Undo(r.Context(), schema.UndoRequest{UserID: userID, SessionID: sessionID})
	if err != nil {
		log.Warn("http undo failed", "session", sessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http undo ok", "session", sessionID, "applied", resp.Applied)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	sessionID, err := decodeSessionRef(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.Redo(r.Context(), schema.RedoRequest{UserID: userID, SessionID: sessionID})
	if err != nil {
		log.Warn("http redo failed", "session", sessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http redo ok", "session", sessionID, "applied", resp.Applied)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	sessionID, err := decodeSessionRef(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.Save(r.Context(), schema.SaveRequest{UserID: userID, SessionID: sessionID})
	if err != nil {
		log.Warn("http save failed", "session", sessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http save ok", "session", sessionID, "status", resp.Session.SaveStatus)
}

func (s *Server) handleSaveAs(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	var payload struct {
		SessionID string `json:"session_id"`
		Name      string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http saveas decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.SaveAs(r.Context(), schema.SaveAsRequest{
		UserID:    userID,
		SessionID: schema.SessionID(payload.SessionID),
		Name:      schema.ProjectName(payload.Name),
	})
	if err != nil {
		log.Warn("http saveas failed", "session", payload.SessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http saveas ok", "session", payload.SessionID, "project", resp.Session.ProjectID)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	var payload struct {
		SessionID string `json:"session_id"`
		Key       string `json:"key"`
		Ctrl      bool   `json:"ctrl"`
		Shift     bool   `json:"shift"`
		Alt       bool   `json:"alt"`
		Meta      bool   `json:"meta"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http key decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.HandleKey(r.Context(), schema.KeyEventRequest{
		UserID:    userID,
		SessionID: schema.SessionID(payload.SessionID),
		Key:       payload.Key,
		Ctrl:      payload.Ctrl,
		Shift:     payload.Shift,
		Alt:       payload.Alt,
		Meta:      payload.Meta,
	})
	if err != nil {
		log.Warn("http key failed", "session", payload.SessionID, "key", payload.Key, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http key ok", "session", payload.SessionID, "key", payload.Key, "action", resp.Action, "handled", resp.Handled)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	sessionID, err := decodeSessionRef(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.RefreshPreview(r.Context(), schema.RefreshPreviewRequest{UserID: userID, SessionID: sessionID})
	if err != nil {
		log.Warn("http refresh failed", "session", sessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http refresh ok", "session", sessionID)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	sessionID := schema.SessionID(r.URL.Query().Get("session_id"))
	resp, err := s.service.ExportDocument(r.Context(), schema.ExportDocumentRequest{UserID: userID, SessionID: sessionID})
	if err != nil {
		log.Warn("http export failed", "session", sessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resp.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, resp.Document)
	log.Info("http export ok", "session", sessionID, "filename", resp.Filename)
}

func (s *Server) handleSandboxError(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	var payload struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
		Line      int    `json:"line"`
		Column    int    `json:"column"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http sandbox-error decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.service.ReportSandboxError(r.Context(), schema.ReportSandboxErrorRequest{
		UserID:    userID,
		SessionID: schema.SessionID(payload.SessionID),
		Error: schema.SandboxError{
			Message: payload.Message,
			Line:    payload.Line,
			Column:  payload.Column,
		},
	})
	if err != nil {
		log.Warn("http sandbox-error failed", "session", payload.SessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	log.Debug("http sandbox-error ok", "session", payload.SessionID, "line", payload.Line)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	sessionID, err := decodeSessionRef(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.CheckDocument(r.Context(), schema.CheckDocumentRequest{UserID: userID, SessionID: sessionID})
	if err != nil {
		log.Warn("http check failed", "session", sessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http check ok", "session", sessionID, "clean", resp.Error == nil)
}

func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	var payload struct {
		SessionID string `json:"session_id"`
		Prompt    string `json:"prompt"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http assist decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.AskAssistant(r.Context(), schema.AssistRequest{
		UserID:    userID,
		SessionID: schema.SessionID(payload.SessionID),
		Prompt:    payload.Prompt,
	})
	if err != nil {
		log.Warn("http assist failed", "session", payload.SessionID, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http assist ok", "session", payload.SessionID, "reply_len", len(resp.Reply))
}

func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, schema.UserID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		token := s.sessionToken(r)
		if token == "" {
			log.Warn("http session missing")
			writeError(w, http.StatusUnauthorized, errors.New("missing session"))
			return
		}
		entry, ok := s.sessions.get(token)
		if !ok {
			log.Warn("http session invalid")
			writeError(w, http.StatusUnauthorized, errors.New("invalid session"))
			return
		}
		log = log.With("user", entry.userID, "http_session", entry.id)
		ctx := logx.ContextWithUserLogger(r.Context(), log, entry.userID)
		next(w, r.WithContext(ctx), entry.userID)
	}
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) lookupSession(r *http.Request) (schema.UserID, string) {
	if s == nil || r == nil {
		return "", ""
	}
	token := s.sessionToken(r)
	if token == "" {
		return "", ""
	}
	entry, ok := s.sessions.get(token)
	if !ok {
		return "", ""
	}
	return entry.userID, entry.id
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func decodeSessionRef(body io.Reader) (schema.SessionID, error) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		return "", err
	}
	return schema.SessionID(payload.SessionID), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeServiceError maps core sentinel errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, schema.ErrSessionNotFound), errors.Is(err, schema.ErrProjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, schema.ErrProjectForbidden):
		status = http.StatusForbidden
	case errors.Is(err, schema.ErrUnsavedChanges), errors.Is(err, schema.ErrSessionNotReady):
		status = http.StatusConflict
	case errors.Is(err, schema.ErrTooManySessions):
		status = http.StatusTooManyRequests
	case errors.Is(err, schema.ErrAssistantUnavailable), errors.Is(err, schema.ErrSandboxUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err)
}

func isPasswordChangeAuthError(err error) bool {
	if err == nil {
		return false
	}
	switch strings.TrimSpace(err.Error()) {
	case "invalid credentials", "invalid totp", "user not found":
		return true
	default:
		return false
	}
}

func isPasswordChangeValidationError(err error) bool {
	if err == nil {
		return false
	}
	switch strings.TrimSpace(err.Error()) {
	case "current password is required", "totp is required", "new password is required", "confirm password is required", "passwords do not match":
		return true
	default:
		return false
	}
}
