package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"pkt.systems/codepad/schema"
)

// fakeRepo is an in-memory ProjectRepository. Create and Update can be
// forced to fail for save lifecycle tests.
type fakeRepo struct {
	mu         sync.Mutex
	nextID     schema.ProjectID
	projects   map[schema.ProjectID]schema.Project
	createErr  error
	updateErr  error
	updateN    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{projects: make(map[schema.ProjectID]schema.Project)}
}

func (r *fakeRepo) Read(ctx context.Context, userID schema.UserID, id schema.ProjectID) (schema.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	project, ok := r.projects[id]
	if !ok {
		return schema.Project{}, schema.ErrProjectNotFound
	}
	if project.OwnerID != userID {
		return schema.Project{}, schema.ErrProjectForbidden
	}
	return project, nil
}

func (r *fakeRepo) Create(ctx context.Context, userID schema.UserID, name schema.ProjectName, buffers schema.BufferSnapshot) (schema.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return schema.Project{}, r.createErr
	}
	r.nextID++
	now := time.Now()
	project := schema.Project{
		ID:        r.nextID,
		OwnerID:   userID,
		Name:      name,
		HTML:      buffers.HTML,
		CSS:       buffers.CSS,
		JS:        buffers.JS,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.projects[project.ID] = project
	return project, nil
}

func (r *fakeRepo) Update(ctx context.Context, userID schema.UserID, id schema.ProjectID, update schema.ProjectUpdate) (schema.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateN++
	if r.updateErr != nil {
		return schema.Project{}, r.updateErr
	}
	project, ok := r.projects[id]
	if !ok {
		return schema.Project{}, schema.ErrProjectNotFound
	}
	if project.OwnerID != userID {
		return schema.Project{}, schema.ErrProjectForbidden
	}
	if update.Name != nil {
		project.Name = *update.Name
	}
	if update.HTML != nil {
		project.HTML = *update.HTML
	}
	if update.CSS != nil {
		project.CSS = *update.CSS
	}
	if update.JS != nil {
		project.JS = *update.JS
	}
	project.UpdatedAt = time.Now()
	r.projects[id] = project
	return project, nil
}

func (r *fakeRepo) Delete(ctx context.Context, userID schema.UserID, id schema.ProjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	project, ok := r.projects[id]
	if !ok {
		return schema.ErrProjectNotFound
	}
	if project.OwnerID != userID {
		return schema.ErrProjectForbidden
	}
	delete(r.projects, id)
	return nil
}

func (r *fakeRepo) List(ctx context.Context, userID schema.UserID) ([]schema.ProjectSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.ProjectSummary, 0, len(r.projects))
	for _, project := range r.projects {
		if project.OwnerID != userID {
			continue
		}
		out = append(out, schema.ProjectSummary{
			ID:        project.ID,
			Name:      project.Name,
			CreatedAt: project.CreatedAt,
			UpdatedAt: project.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// recordingSink collects emitted events and signals preview publishes on
// a channel so tests can wait for debounce settles without sleeping.
type recordingSink struct {
	mu         sync.Mutex
	sessions   []schema.SessionEvent
	previews   []schema.PreviewEvent
	saves      []schema.SaveStatusEvent
	sandboxErr []schema.SandboxErrorEvent
	previewCh  chan schema.PreviewEvent
	saveCh     chan schema.SaveStatusEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		previewCh: make(chan schema.PreviewEvent, 64),
		saveCh:    make(chan schema.SaveStatusEvent, 64),
	}
}

func (s *recordingSink) OnSessionEvent(event schema.SessionEvent) {
	s.mu.Lock()
	s.sessions = append(s.sessions, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnPreview(event schema.PreviewEvent) {
	s.mu.Lock()
	s.previews = append(s.previews, event)
	s.mu.Unlock()
	s.previewCh <- event
}

func (s *recordingSink) OnSaveStatus(event schema.SaveStatusEvent) {
	s.mu.Lock()
	s.saves = append(s.saves, event)
	s.mu.Unlock()
	s.saveCh <- event
}

func (s *recordingSink) OnSandboxError(event schema.SandboxErrorEvent) {
	s.mu.Lock()
	s.sandboxErr = append(s.sandboxErr, event)
	s.mu.Unlock()
}

func (s *recordingSink) previewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.previews)
}

// testConfig keeps debounce windows short so settles happen quickly.
func testConfig() schema.EditorConfig {
	return schema.EditorConfig{
		HistoryCapacity:    10,
		CaptureDebounce:    20 * time.Millisecond,
		PreviewDebounce:    10 * time.Millisecond,
		SavedDisplay:       30 * time.Millisecond,
		MaxSessionsPerUser: 4,
	}
}

func newTestService(t interface{ Fatalf(string, ...any) }, repo ProjectRepository, sink EventSink) Service {
	svc, err := NewService(testConfig(), ServiceDeps{Repository: repo, Sink: sink})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func openReadySession(t interface{ Fatalf(string, ...any) }, svc Service, user schema.UserID) schema.SessionSnapshot {
	resp, err := svc.OpenSession(context.Background(), schema.OpenSessionRequest{UserID: user})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if resp.Session.Lifecycle != schema.LifecycleReady {
		t.Fatalf("expected ready session, got %q", resp.Session.Lifecycle)
	}
	return resp.Session
}

// waitForCapture polls until the session reports undo history or the
// deadline passes.
func waitForCapture(t interface{ Fatalf(string, ...any) }, svc Service, user schema.UserID, id schema.SessionID) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := svc.GetSession(context.Background(), schema.GetSessionRequest{UserID: user, SessionID: id})
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if resp.Session.CanUndo {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("capture never settled")
}
