package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pkt.systems/codepad/internal/eventbus"
	"pkt.systems/codepad/internal/logx"
	"pkt.systems/codepad/schema"
)

// StreamEvent is sent to SSE clients. Events are self-contained
// snapshots, so a reconnecting client only needs the snapshot event it
// receives on connect; there is no replay.
type StreamEvent struct {
	Type         string                  `json:"type"`
	SessionEvent string                  `json:"session_event,omitempty"`
	SessionID    schema.SessionID        `json:"session_id,omitempty"`
	Session      *schema.SessionSnapshot `json:"session,omitempty"`
	Document     string                  `json:"document,omitempty"`
	SaveStatus   schema.SaveStatus       `json:"save_status,omitempty"`
	SaveError    string                  `json:"save_error,omitempty"`
	SandboxError *schema.SandboxError    `json:"sandbox_error,omitempty"`
	Projects     []schema.ProjectSummary `json:"projects,omitempty"`
	Timestamp    time.Time               `json:"timestamp"`
}

func streamEventFrom(event eventbus.Event) StreamEvent {
	out := StreamEvent{Timestamp: time.Now()}
	switch event.Type {
	case eventbus.EventSession:
		out.Type = "session"
		out.SessionEvent = string(event.Session.Type)
		out.SessionID = event.Session.Session.ID
		snapshot := event.Session.Session
		out.Session = &snapshot
	case eventbus.EventPreview:
		out.Type = "preview"
		out.SessionID = event.Preview.SessionID
		out.Document = event.Preview.Document
	case eventbus.EventSaveStatus:
		out.Type = "save_status"
		out.SessionID = event.SaveStatus.SessionID
		out.SaveStatus = event.SaveStatus.Status
		out.SaveError = event.SaveStatus.Err
	case eventbus.EventSandboxError:
		out.Type = "sandbox_error"
		out.SessionID = event.SandboxError.SessionID
		sandboxErr := event.SandboxError.Error
		out.SandboxError = &sandboxErr
	}
	return out
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.WithUser(r.Context(), userID)
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snapshot := StreamEvent{Type: "snapshot", Timestamp: time.Now()}
	if resp, err := s.service.ListProjects(ctx, schema.ListProjectsRequest{UserID: userID}); err == nil {
		snapshot.Projects = resp.Projects
	}
	_ = writeSSEvent(w, snapshot)
	flusher.Flush()

	ch, unsubscribe := s.bus.Subscribe(userID)
	defer unsubscribe()

	notify := ctx.Done()
	log.Info("http stream opened")
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				log.Info("http stream closed", "reason", "bus closed")
				return
			}
			_ = writeSSEvent(w, streamEventFrom(event))
			flusher.Flush()
		}
	}
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return err
}
