package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/codepad/core"
	"pkt.systems/codepad/internal/eventbus"
	"pkt.systems/codepad/schema"
)

type stubAuth struct {
	err error
}

func (a *stubAuth) Authenticate(username, password, totp string) error {
	return a.err
}

func (a *stubAuth) ChangePassword(username, currentPassword, totp, newPassword string) error {
	return a.err
}

// stubRepo is a minimal in-memory project repository for handler tests.
type stubRepo struct {
	mu       sync.Mutex
	nextID   schema.ProjectID
	projects map[schema.ProjectID]schema.Project
}

func newStubRepo() *stubRepo {
	return &stubRepo{projects: make(map[schema.ProjectID]schema.Project)}
}

func (r *stubRepo) Read(ctx context.Context, userID schema.UserID, id schema.ProjectID) (schema.Project, error) {
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

func (r *stubRepo) Create(ctx context.Context, userID schema.UserID, name schema.ProjectName, buffers schema.BufferSnapshot) (schema.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	project := schema.Project{
		ID: r.nextID, OwnerID: userID, Name: name,
		HTML: buffers.HTML, CSS: buffers.CSS, JS: buffers.JS,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	r.projects[project.ID] = project
	return project, nil
}

func (r *stubRepo) Update(ctx context.Context, userID schema.UserID, id schema.ProjectID, update schema.ProjectUpdate) (schema.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *stubRepo) Delete(ctx context.Context, userID schema.UserID, id schema.ProjectID) error {
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

func (r *stubRepo) List(ctx context.Context, userID schema.UserID) ([]schema.ProjectSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.ProjectSummary, 0, len(r.projects))
	for _, project := range r.projects {
		if project.OwnerID == userID {
			out = append(out, schema.ProjectSummary{ID: project.ID, Name: project.Name})
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, auth Authenticator) *httptest.Server {
	t.Helper()
	bus := eventbus.New(nil)
	service, err := core.NewService(schema.EditorConfig{
		CaptureDebounce: 10 * time.Millisecond,
		PreviewDebounce: 5 * time.Millisecond,
		SavedDisplay:    20 * time.Millisecond,
	}, core.ServiceDeps{Repository: newStubRepo(), Sink: bus})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := NewServer(Config{SessionCookie: "codepad_session", SessionTTLHours: 1}, service, auth, bus)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func login(t *testing.T, ts *httptest.Server) *http.Cookie {
	t.Helper()
	body := `{"username":"alice","password":"pw","totp":"123456"}`
	resp, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "codepad_session" {
			return cookie
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func doJSON(t *testing.T, ts *httptest.Server, cookie *http.Cookie, method, path string, payload any, target any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if target != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t, &stubAuth{err: errors.New("invalid credentials")})
	resp, err := http.Post(ts.URL+"/api/login", "application/json",
		strings.NewReader(`{"username":"alice","password":"bad","totp":"000000"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAPIRequiresSession(t *testing.T) {
	ts := newTestServer(t, &stubAuth{})
	resp, err := http.Post(ts.URL+"/api/editor/open", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestMeReturnsUsername(t *testing.T) {
	ts := newTestServer(t, &stubAuth{})
	cookie := login(t, ts)

	var me struct {
		Username string `json:"username"`
	}
	resp := doJSON(t, ts, cookie, http.MethodGet, "/api/me", nil, &me)
	if resp.StatusCode != http.StatusOK || me.Username != "alice" {
		t.Fatalf("unexpected me response: status=%d user=%q", resp.StatusCode, me.Username)
	}
}

func TestEditorFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, &stubAuth{})
	cookie := login(t, ts)

	var opened schema.OpenSessionResponse
	if resp := doJSON(t, ts, cookie, http.MethodPost, "/api/editor/open", map[string]any{}, &opened); resp.StatusCode != http.StatusOK {
		t.Fatalf("open status %d", resp.StatusCode)
	}
	sessionID := string(opened.Session.ID)
	if sessionID == "" {
		t.Fatalf("expected session id")
	}

	var edited schema.UpdateBufferResponse
	if resp := doJSON(t, ts, cookie, http.MethodPost, "/api/editor/buffer", map[string]any{
		"session_id": sessionID, "buffer": "html", "text": "<h1>hi</h1>",
	}, &edited); resp.StatusCode != http.StatusOK {
		t.Fatalf("buffer status %d", resp.StatusCode)
	}
	if !edited.Session.Dirty {
		t.Fatalf("expected dirty session after edit")
	}

	// Closing dirty without force is a conflict.
	resp := doJSON(t, ts, cookie, http.MethodPost, "/api/editor/close", map[string]any{"session_id": sessionID}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on dirty close, got %d", resp.StatusCode)
	}

	var saved schema.SaveAsResponse
	if resp := doJSON(t, ts, cookie, http.MethodPost, "/api/editor/saveas", map[string]any{
		"session_id": sessionID, "name": "demo",
	}, &saved); resp.StatusCode != http.StatusOK {
		t.Fatalf("saveas status %d", resp.StatusCode)
	}
	if saved.Session.ProjectID == 0 || saved.Session.Dirty {
		t.Fatalf("unexpected session after saveas: %+v", saved.Session)
	}

	var list schema.ListProjectsResponse
	if resp := doJSON(t, ts, cookie, http.MethodGet, "/api/projects", nil, &list); resp.StatusCode != http.StatusOK {
		t.Fatalf("projects status %d", resp.StatusCode)
	}
	if len(list.Projects) != 1 || list.Projects[0].Name != "demo" {
		t.Fatalf("unexpected projects %+v", list.Projects)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/editor/export?session_id="+sessionID, nil)
	if err != nil {
		t.Fatalf("export request: %v", err)
	}
	req.AddCookie(cookie)
	exportResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer exportResp.Body.Close()
	if exportResp.StatusCode != http.StatusOK {
		t.Fatalf("export status %d", exportResp.StatusCode)
	}
	if cd := exportResp.Header.Get("Content-Disposition"); !strings.Contains(cd, "demo.html") {
		t.Fatalf("unexpected content disposition %q", cd)
	}

	if resp := doJSON(t, ts, cookie, http.MethodPost, "/api/editor/close", map[string]any{"session_id": sessionID}, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("close status %d", resp.StatusCode)
	}

	deleteResp := doJSON(t, ts, cookie, http.MethodDelete, fmt.Sprintf("/api/projects/%d", saved.Session.ProjectID), nil, nil)
	if deleteResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", deleteResp.StatusCode)
	}
}

func TestKeyEndpointRedirectsUnsavedSaveToSaveAs(t *testing.T) {
	ts := newTestServer(t, &stubAuth{})
	cookie := login(t, ts)

	var opened schema.OpenSessionResponse
	doJSON(t, ts, cookie, http.MethodPost, "/api/editor/open", map[string]any{}, &opened)

	var key schema.KeyEventResponse
	resp := doJSON(t, ts, cookie, http.MethodPost, "/api/editor/key", map[string]any{
		"session_id": string(opened.Session.ID), "key": "s", "ctrl": true,
	}, &key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("key status %d", resp.StatusCode)
	}
	if !key.Handled || key.Action != schema.ShortcutSaveAs {
		t.Fatalf("expected save_as redirect, got %+v", key)
	}
}

func TestUnknownSessionMapsToNotFound(t *testing.T) {
	ts := newTestServer(t, &stubAuth{})
	cookie := login(t, ts)

	resp := doJSON(t, ts, cookie, http.MethodPost, "/api/editor/undo", map[string]any{"session_id": "nope"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStreamDeliversSnapshotAndEvents(t *testing.T) {
	ts := newTestServer(t, &stubAuth{})
	cookie := login(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() StreamEvent {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("decode stream event: %v", err)
			}
			return event
		}
	}

	if event := readEvent(); event.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %q", event.Type)
	}

	// An open on a parallel request shows up on the stream.
	var opened schema.OpenSessionResponse
	doJSON(t, ts, cookie, http.MethodPost, "/api/editor/open", map[string]any{}, &opened)

	event := readEvent()
	if event.Type != "session" || event.SessionEvent != string(schema.SessionEventOpened) {
		t.Fatalf("unexpected stream event %+v", event)
	}
	if event.SessionID != opened.Session.ID {
		t.Fatalf("unexpected session id %q", event.SessionID)
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{schema.ErrSessionNotFound, http.StatusNotFound},
		{schema.ErrProjectNotFound, http.StatusNotFound},
		{schema.ErrProjectForbidden, http.StatusForbidden},
		{schema.ErrUnsavedChanges, http.StatusConflict},
		{schema.ErrSessionNotReady, http.StatusConflict},
		{schema.ErrTooManySessions, http.StatusTooManyRequests},
		{schema.ErrAssistantUnavailable, http.StatusServiceUnavailable},
		{schema.ErrSandboxUnavailable, http.StatusServiceUnavailable},
		{schema.ErrInvalidBuffer, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("writeServiceError(%v) = %d, want %d", tc.err, rec.Code, tc.status)
		}
	}
}
