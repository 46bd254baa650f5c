package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pkt.systems/codepad/internal/logx"
	"pkt.systems/codepad/schema"
	"pkt.systems/pslog"
)

// service implements the core editor service behavior.
type service struct {
	cfg    schema.EditorConfig
	repo   ProjectRepository
	sink   EventSink
	assist Assistant
	sandbox SandboxRenderer
	logger pslog.Logger

	mu       sync.Mutex
	sessions map[schema.SessionID]*session
}

// NewService constructs the core service implementation.
func NewService(cfg schema.EditorConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeEditorConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Repository == nil {
		return nil, errors.New("project repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:      normalized,
		repo:     deps.Repository,
		sink:     deps.Sink,
		assist:   deps.Assistant,
		sandbox:  deps.Sandbox,
		logger:   logger,
		sessions: make(map[schema.SessionID]*session),
	}, nil
}

func (s *service) OpenSession(ctx context.Context, req schema.OpenSessionRequest) (schema.OpenSessionResponse, error) {
	if ctx == nil {
		return schema.OpenSessionResponse{}, errors.New("missing context")
	}
	if err := schema.ValidateUserID(req.UserID); err != nil {
		return schema.OpenSessionResponse{}, err
	}
	log := logx.WithUser(ctx, req.UserID)

	sess := &session{
		ID:         newSessionID(),
		UserID:     req.UserID,
		Lifecycle:  schema.LifecycleIdle,
		SaveStatus: schema.SaveStatusNone,
		history:    newHistoryEngine(s.cfg.HistoryCapacity),
	}

	s.mu.Lock()
	if s.countSessionsLocked(req.UserID) >= s.cfg.MaxSessionsPerUser {
		s.mu.Unlock()
		log.Warn("editor session open rejected", "reason", "session cap")
		return schema.OpenSessionResponse{}, schema.ErrTooManySessions
	}
	if req.ProjectID == 0 {
		// A fresh scratchpad is editable immediately.
		sess.Buffers = schema.NewBufferSnapshot("", "", "")
		sess.lastCaptured = sess.Buffers
		sess.Lifecycle = schema.LifecycleReady
	} else {
		sess.Lifecycle = schema.LifecycleLoading
	}
	s.sessions[sess.ID] = sess
	snapshot := sess.Snapshot()
	s.mu.Unlock()

	log = logx.WithUserSession(ctx, req.UserID, sess.ID)
	if req.ProjectID != 0 {
		project, err := s.repo.Read(ctx, req.UserID, req.ProjectID)

		s.mu.Lock()
		current, ok := s.sessions[sess.ID]
		if !ok {
			// Closed while the load was in flight.
			s.mu.Unlock()
			return schema.OpenSessionResponse{}, schema.ErrSessionNotFound
		}
		if err != nil {
			current.Lifecycle = schema.LifecycleLoadError
			current.LoadErr = err.Error()
			snapshot = current.Snapshot()
			s.mu.Unlock()
			log.Warn("editor project load failed", "project", req.ProjectID, "err", err)
			s.emitSession(schema.SessionEvent{UserID: req.UserID, Type: schema.SessionEventOpened, Session: snapshot})
			return schema.OpenSessionResponse{Session: snapshot}, nil
		}
		current.ProjectID = project.ID
		current.ProjectName = project.Name
		current.Buffers = schema.NewBufferSnapshot(project.HTML, project.CSS, project.JS)
		current.Dirty = false
		current.Lifecycle = schema.LifecycleReady
		// A freshly loaded project has no prior undo history.
		current.history.Clear()
		current.lastCaptured = current.Buffers
		snapshot = current.Snapshot()
		s.mu.Unlock()
		log.Info("editor session opened", "project", project.ID, "name", project.Name)
	} else {
		log.Info("editor session opened", "project", "new")
	}

	s.emitSession(schema.SessionEvent{UserID: req.UserID, Type: schema.SessionEventOpened, Session: snapshot})
	return schema.OpenSessionResponse{Session: snapshot}, nil
}

func (s *service) CloseSession(ctx context.Context, req schema.CloseSessionRequest) (schema.CloseSessionResponse, error) {
	s.mu.Lock()
	sess, err := s.sessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.CloseSessionResponse{}, err
	}
	if sess.Dirty && !req.Force {
		snapshot := sess.Snapshot()
		s.mu.Unlock()
		return schema.CloseSessionResponse{Session: snapshot}, schema.ErrUnsavedChanges
	}
	sess.stopTimers()
	delete(s.sessions, sess.ID)
	snapshot := sess.Snapshot()
	s.mu.Unlock()

	logx.WithUserSession(ctx, req.UserID, req.SessionID).Info("editor session closed", "forced", req.Force, "dirty", snapshot.Dirty)
	s.emitSession(schema.SessionEvent{UserID: req.UserID, Type: schema.SessionEventClosed, Session: snapshot})
	return schema.CloseSessionResponse{Session: snapshot}, nil
}

func (s *service) GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.sessionLocked(req.UserID, req.SessionID)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	return schema.GetSessionResponse{Session: sess.Snapshot()}, nil
}

func (s *service) UpdateBuffer(ctx context.Context, req schema.UpdateBufferRequest) (schema.UpdateBufferResponse, error) {
	if !req.Buffer.Valid() {
		return schema.UpdateBufferResponse{}, schema.ErrInvalidBuffer
	}
	if s.cfg.MaxBufferBytes > 0 && len(req.Text) > s.cfg.MaxBufferBytes {
		return schema.UpdateBufferResponse{}, schema.ErrInvalidRequest
	}

	s.mu.Lock()
	sess, err := s.readySessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.UpdateBufferResponse{}, err
	}
	sess.setBuffer(req.Buffer, req.Text)
	sess.Dirty = true
	sessionID := sess.ID
	userID := sess.UserID
	snapshot := sess.Snapshot()
	// Two independent timers: history capture settles coarser than the
	// preview refresh.
	sess.captureTimer.Reset(s.cfg.CaptureDebounce, func() { s.settleCapture(sessionID) })
	sess.previewTimer.Reset(s.cfg.PreviewDebounce, func() { s.publishPreview(sessionID) })
	s.mu.Unlock()

	s.emitSession(schema.SessionEvent{UserID: userID, Type: schema.SessionEventDirty, Session: snapshot})
	return schema.UpdateBufferResponse{Session: snapshot}, nil
}

// settleCapture runs when the capture debounce elapses. It pushes the
// previous settled state onto undo history so an undo lands on the state
// before the burst, and records the live buffers as the new settled state.
func (s *service) settleCapture(sessionID schema.SessionID) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Lifecycle != schema.LifecycleReady {
		s.mu.Unlock()
		return
	}
	if !sess.Buffers.Equal(sess.lastCaptured) {
		sess.history.Push(sess.lastCaptured)
		sess.lastCaptured = sess.Buffers
	}
	s.mu.Unlock()
}

// publishPreview runs when the preview debounce elapses. Rebuilding
// identical content is harmless, so there is no de-duplication here.
func (s *service) publishPreview(sessionID schema.SessionID) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Lifecycle != schema.LifecycleReady {
		s.mu.Unlock()
		return
	}
	userID := sess.UserID
	buffers := sess.Buffers
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.OnPreview(schema.PreviewEvent{
			UserID:    userID,
			SessionID: sessionID,
			Document:  BuildPreviewDocument(buffers),
		})
	}
}

func (s *service) Undo(ctx context.Context, req schema.UndoRequest) (schema.UndoResponse, error) {
	return s.restore(ctx, req.UserID, req.SessionID, true)
}

func (s *service) Redo(ctx context.Context, req schema.RedoRequest) (schema.RedoResponse, error) {
	resp, err := s.restore(ctx, req.UserID, req.SessionID, false)
	return schema.RedoResponse(resp), err
}

// restore applies an undo or redo result back into the session. It is a
// distinct entry point that never schedules a history capture, so the
// restoration itself cannot be re-captured as a new edit.
func (s *service) restore(ctx context.Context, userID schema.UserID, sessionID schema.SessionID, undo bool) (schema.UndoResponse, error) {
	s.mu.Lock()
	sess, err := s.readySessionLocked(userID, sessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.UndoResponse{}, err
	}
	live := sess.Buffers
	var restored schema.BufferSnapshot
	var ok bool
	if undo {
		restored, ok = sess.history.Undo(live)
	} else {
		restored, ok = sess.history.Redo(live)
	}
	if !ok {
		// Empty stack: silent no-op.
		snapshot := sess.Snapshot()
		s.mu.Unlock()
		return schema.UndoResponse{Session: snapshot, Applied: false}, nil
	}
	// A pending capture from the preceding burst is superseded; the
	// restored value becomes the settled state, so even a stray fire
	// would compare equal and capture nothing.
	sess.captureTimer.Stop()
	sess.Buffers = restored
	sess.lastCaptured = restored
	sess.Dirty = true
	snapshot := sess.Snapshot()
	sess.previewTimer.Reset(s.cfg.PreviewDebounce, func() { s.publishPreview(sessionID) })
	s.mu.Unlock()

	logx.WithUserSession(ctx, userID, sessionID).Debug("editor restore", "undo", undo)
	s.emitSession(schema.SessionEvent{UserID: userID, Type: schema.SessionEventRestored, Session: snapshot})
	return schema.UndoResponse{Session: snapshot, Applied: true}, nil
}

func (s *service) Save(ctx context.Context, req schema.SaveRequest) (schema.SaveResponse, error) {
	s.mu.Lock()
	sess, err := s.readySessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.SaveResponse{}, err
	}
	if sess.ProjectID == 0 {
		s.mu.Unlock()
		return schema.SaveResponse{}, schema.ErrNameRequired
	}
	if sess.SaveStatus == schema.SaveStatusSaving {
		// A save is already in flight; the second request is a no-op.
		snapshot := sess.Snapshot()
		s.mu.Unlock()
		return schema.SaveResponse{Session: snapshot}, nil
	}
	sess.SaveStatus = schema.SaveStatusSaving
	sess.SaveErr = ""
	sess.savedTimer.Stop()
	projectID := sess.ProjectID
	name := sess.ProjectName
	buffers := sess.Buffers
	saving := sess.Snapshot()
	s.mu.Unlock()

	s.emitSaveStatus(req.UserID, req.SessionID, schema.SaveStatusSaving, "")
	log := logx.WithUserSession(ctx, req.UserID, req.SessionID)

	html, css, js := buffers.HTML, buffers.CSS, buffers.JS
	_, err = s.repo.Update(ctx, req.UserID, projectID, schema.ProjectUpdate{
		Name: &name,
		HTML: &html,
		CSS:  &css,
		JS:   &js,
	})

	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	if !ok {
		s.mu.Unlock()
		return schema.SaveResponse{Session: saving}, nil
	}
	if err != nil {
		// Edits are not lost on a failed save; dirty stays set.
		sess.SaveStatus = schema.SaveStatusSaveFailed
		sess.SaveErr = err.Error()
		snapshot := sess.Snapshot()
		s.mu.Unlock()
		log.Warn("editor save failed", "project", projectID, "err", err)
		s.emitSaveStatus(req.UserID, req.SessionID, schema.SaveStatusSaveFailed, err.Error())
		return schema.SaveResponse{Session: snapshot}, nil
	}
	sess.Dirty = false
	sess.SaveStatus = schema.SaveStatusSaved
	snapshot := s.scheduleSavedRevertLocked(sess)
	s.mu.Unlock()

	log.Info("editor save ok", "project", projectID)
	s.emitSaveStatus(req.UserID, req.SessionID, schema.SaveStatusSaved, "")
	return schema.SaveResponse{Session: snapshot}, nil
}

func (s *service) SaveAs(ctx context.Context, req schema.SaveAsRequest) (schema.SaveAsResponse, error) {
	name, err := schema.NormalizeProjectName(string(req.Name))
	if err != nil {
		return schema.SaveAsResponse{}, err
	}

	s.mu.Lock()
	sess, err := s.readySessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.SaveAsResponse{}, err
	}
	if sess.SaveStatus == schema.SaveStatusSaving {
		snapshot := sess.Snapshot()
		s.mu.Unlock()
		return schema.SaveAsResponse{Session: snapshot}, nil
	}
	sess.SaveStatus = schema.SaveStatusSaving
	sess.SaveErr = ""
	sess.savedTimer.Stop()
	buffers := sess.Buffers
	saving := sess.Snapshot()
	s.mu.Unlock()

	s.emitSaveStatus(req.UserID, req.SessionID, schema.SaveStatusSaving, "")
	log := logx.WithUserSession(ctx, req.UserID, req.SessionID)

	project, err := s.repo.Create(ctx, req.UserID, name, buffers)

	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	if !ok {
		s.mu.Unlock()
		return schema.SaveAsResponse{Session: saving}, nil
	}
	if err != nil {
		// ProjectID stays absent so a retry creates again.
		sess.SaveStatus = schema.SaveStatusSaveFailed
		sess.SaveErr = err.Error()
		snapshot := sess.Snapshot()
		s.mu.Unlock()
		log.Warn("editor create failed", "name", name, "err", err)
		s.emitSaveStatus(req.UserID, req.SessionID, schema.SaveStatusSaveFailed, err.Error())
		return schema.SaveAsResponse{Session: snapshot}, nil
	}
	sess.ProjectID = project.ID
	sess.ProjectName = project.Name
	sess.Dirty = false
	sess.SaveStatus = schema.SaveStatusSaved
	snapshot := s.scheduleSavedRevertLocked(sess)
	s.mu.Unlock()

	log.Info("editor create ok", "project", project.ID, "name", project.Name)
	s.emitSaveStatus(req.UserID, req.SessionID, schema.SaveStatusSaved, "")
	return schema.SaveAsResponse{Session: snapshot}, nil
}

// scheduleSavedRevertLocked arms the timer that reverts a saved status
// back to none after the display window.
func (s *service) scheduleSavedRevertLocked(sess *session) schema.SessionSnapshot {
	sessionID := sess.ID
	userID := sess.UserID
	sess.savedTimer.Reset(s.cfg.SavedDisplay, func() {
		s.mu.Lock()
		current, ok := s.sessions[sessionID]
		if !ok || current.SaveStatus != schema.SaveStatusSaved {
			s.mu.Unlock()
			return
		}
		current.SaveStatus = schema.SaveStatusNone
		s.mu.Unlock()
		s.emitSaveStatus(userID, sessionID, schema.SaveStatusNone, "")
	})
	return sess.Snapshot()
}

func (s *service) RefreshPreview(ctx context.Context, req schema.RefreshPreviewRequest) (schema.RefreshPreviewResponse, error) {
	s.mu.Lock()
	sess, err := s.readySessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.RefreshPreviewResponse{}, err
	}
	// Manual refresh bypasses the debounce.
	sess.previewTimer.Stop()
	buffers := sess.Buffers
	s.mu.Unlock()

	document := BuildPreviewDocument(buffers)
	if s.sink != nil {
		s.sink.OnPreview(schema.PreviewEvent{UserID: req.UserID, SessionID: req.SessionID, Document: document})
	}
	return schema.RefreshPreviewResponse{Document: document}, nil
}

func (s *service) ExportDocument(ctx context.Context, req schema.ExportDocumentRequest) (schema.ExportDocumentResponse, error) {
	s.mu.Lock()
	sess, err := s.readySessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.ExportDocumentResponse{}, err
	}
	buffers := sess.Buffers
	name := sess.ProjectName
	s.mu.Unlock()

	return schema.ExportDocumentResponse{
		Document: BuildPreviewDocument(buffers),
		Filename: exportFilename(name),
	}, nil
}

func (s *service) ReportSandboxError(ctx context.Context, req schema.ReportSandboxErrorRequest) error {
	s.mu.Lock()
	_, err := s.sessionLocked(req.UserID, req.SessionID)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Error.Message) == "" {
		return schema.ErrInvalidRequest
	}
	logx.WithUserSession(ctx, req.UserID, req.SessionID).Debug("sandbox runtime error", "message", req.Error.Message, "line", req.Error.Line, "column", req.Error.Column)
	if s.sink != nil {
		s.sink.OnSandboxError(schema.SandboxErrorEvent{UserID: req.UserID, SessionID: req.SessionID, Error: req.Error})
	}
	return nil
}

func (s *service) CheckDocument(ctx context.Context, req schema.CheckDocumentRequest) (schema.CheckDocumentResponse, error) {
	if s.sandbox == nil {
		return schema.CheckDocumentResponse{}, schema.ErrSandboxUnavailable
	}
	s.mu.Lock()
	sess, err := s.readySessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.CheckDocumentResponse{}, err
	}
	buffers := sess.Buffers
	s.mu.Unlock()

	result, err := s.sandbox.Render(ctx, BuildPreviewDocument(buffers))
	if err != nil {
		return schema.CheckDocumentResponse{}, err
	}
	if result != nil && s.sink != nil {
		s.sink.OnSandboxError(schema.SandboxErrorEvent{UserID: req.UserID, SessionID: req.SessionID, Error: *result})
	}
	return schema.CheckDocumentResponse{Error: result}, nil
}

func (s *service) HandleKey(ctx context.Context, req schema.KeyEventRequest) (schema.KeyEventResponse, error) {
	action, handled := resolveShortcut(req)
	if !handled {
		s.mu.Lock()
		sess, err := s.sessionLocked(req.UserID, req.SessionID)
		if err != nil {
			s.mu.Unlock()
			return schema.KeyEventResponse{}, err
		}
		snapshot := sess.Snapshot()
		s.mu.Unlock()
		return schema.KeyEventResponse{Handled: false, Session: snapshot}, nil
	}

	switch action {
	case schema.ShortcutSave:
		resp, err := s.Save(ctx, schema.SaveRequest{UserID: req.UserID, SessionID: req.SessionID})
		if errors.Is(err, schema.ErrNameRequired) {
			// Unsaved project: the client must collect a name first.
			get, gerr := s.GetSession(ctx, schema.GetSessionRequest{UserID: req.UserID, SessionID: req.SessionID})
			if gerr != nil {
				return schema.KeyEventResponse{}, gerr
			}
			return schema.KeyEventResponse{Handled: true, Action: schema.ShortcutSaveAs, Session: get.Session}, nil
		}
		if err != nil {
			return schema.KeyEventResponse{}, err
		}
		return schema.KeyEventResponse{Handled: true, Action: action, Session: resp.Session}, nil
	case schema.ShortcutUndo:
		resp, err := s.Undo(ctx, schema.UndoRequest{UserID: req.UserID, SessionID: req.SessionID})
		if err != nil {
			return schema.KeyEventResponse{}, err
		}
		return schema.KeyEventResponse{Handled: true, Action: action, Session: resp.Session}, nil
	case schema.ShortcutRedo:
		resp, err := s.Redo(ctx, schema.RedoRequest{UserID: req.UserID, SessionID: req.SessionID})
		if err != nil {
			return schema.KeyEventResponse{}, err
		}
		return schema.KeyEventResponse{Handled: true, Action: action, Session: resp.Session}, nil
	default:
		// SaveAs and Help are dialogs on the client; report the action
		// so the chord's default handling stays suppressed.
		get, err := s.GetSession(ctx, schema.GetSessionRequest{UserID: req.UserID, SessionID: req.SessionID})
		if err != nil {
			return schema.KeyEventResponse{}, err
		}
		return schema.KeyEventResponse{Handled: true, Action: action, Session: get.Session}, nil
	}
}

func (s *service) AskAssistant(ctx context.Context, req schema.AssistRequest) (schema.AssistResponse, error) {
	if s.assist == nil {
		return schema.AssistResponse{}, schema.ErrAssistantUnavailable
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return schema.AssistResponse{}, schema.ErrInvalidRequest
	}
	s.mu.Lock()
	sess, err := s.readySessionLocked(req.UserID, req.SessionID)
	if err != nil {
		s.mu.Unlock()
		return schema.AssistResponse{}, err
	}
	buffers := sess.Buffers
	s.mu.Unlock()

	reply, err := s.assist.Complete(ctx, req.Prompt, buffers)
	if err != nil {
		logx.WithUserSession(ctx, req.UserID, req.SessionID).Warn("assistant request failed", "err", err)
		return schema.AssistResponse{}, err
	}
	return schema.AssistResponse{Reply: reply}, nil
}

func (s *service) ListProjects(ctx context.Context, req schema.ListProjectsRequest) (schema.ListProjectsResponse, error) {
	if err := schema.ValidateUserID(req.UserID); err != nil {
		return schema.ListProjectsResponse{}, err
	}
	projects, err := s.repo.List(ctx, req.UserID)
	if err != nil {
		return schema.ListProjectsResponse{}, err
	}
	return schema.ListProjectsResponse{Projects: projects}, nil
}

func (s *service) DeleteProject(ctx context.Context, req schema.DeleteProjectRequest) (schema.DeleteProjectResponse, error) {
	if err := schema.ValidateUserID(req.UserID); err != nil {
		return schema.DeleteProjectResponse{}, err
	}
	if err := s.repo.Delete(ctx, req.UserID, req.ProjectID); err != nil {
		return schema.DeleteProjectResponse{}, err
	}
	logx.WithUser(ctx, req.UserID).Info("project deleted", "project", req.ProjectID)
	return schema.DeleteProjectResponse{ProjectID: req.ProjectID}, nil
}

// sessionLocked returns the session when it exists and belongs to the
// user. Sessions of other users are reported as not found, never as
// forbidden, to avoid leaking session ids.
func (s *service) sessionLocked(userID schema.UserID, sessionID schema.SessionID) (*session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, schema.ErrSessionNotFound
	}
	return sess, nil
}

// readySessionLocked additionally requires the ready lifecycle state. A
// load-error session stays addressable for GetSession and CloseSession
// only.
func (s *service) readySessionLocked(userID schema.UserID, sessionID schema.SessionID) (*session, error) {
	sess, err := s.sessionLocked(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Lifecycle != schema.LifecycleReady {
		return nil, schema.ErrSessionNotReady
	}
	return sess, nil
}

func (s *service) countSessionsLocked(userID schema.UserID) int {
	count := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			count++
		}
	}
	return count
}

func (s *service) emitSession(event schema.SessionEvent) {
	if s.sink != nil {
		s.sink.OnSessionEvent(event)
	}
}

func (s *service) emitSaveStatus(userID schema.UserID, sessionID schema.SessionID, status schema.SaveStatus, errText string) {
	if s.sink != nil {
		s.sink.OnSaveStatus(schema.SaveStatusEvent{UserID: userID, SessionID: sessionID, Status: status, Err: errText})
	}
}
