package core

import "pkt.systems/codepad/schema"

// session tracks the state of a single editor session. All fields are
// guarded by the service mutex; timers re-enter through the service and
// re-validate the session before touching it.
type session struct {
	ID          schema.SessionID
	UserID      schema.UserID
	ProjectID   schema.ProjectID
	ProjectName schema.ProjectName
	Buffers     schema.BufferSnapshot
	Dirty       bool
	Lifecycle   schema.Lifecycle
	SaveStatus  schema.SaveStatus
	LoadErr     string
	SaveErr     string

	history *historyEngine
	// lastCaptured is the most recent settled state known to the capture
	// controller. The capture timer pushes it (not the live buffers)
	// when an edit settles, so undo restores the pre-edit state.
	lastCaptured schema.BufferSnapshot

	captureTimer debounceTimer
	previewTimer debounceTimer
	savedTimer   debounceTimer
}

// Snapshot returns a transport-friendly view of the session.
func (s *session) Snapshot() schema.SessionSnapshot {
	return schema.SessionSnapshot{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		ProjectName: s.ProjectName,
		Buffers:     s.Buffers,
		Dirty:       s.Dirty,
		Lifecycle:   s.Lifecycle,
		SaveStatus:  s.SaveStatus,
		CanUndo:     s.history.CanUndo(),
		CanRedo:     s.history.CanRedo(),
		LoadError:   s.LoadErr,
		SaveError:   s.SaveErr,
	}
}

// setBuffer replaces one buffer text and refreshes the live snapshot.
func (s *session) setBuffer(kind schema.BufferKind, text string) {
	html, css, js := s.Buffers.HTML, s.Buffers.CSS, s.Buffers.JS
	switch kind {
	case schema.BufferHTML:
		html = text
	case schema.BufferCSS:
		css = text
	case schema.BufferJS:
		js = text
	}
	s.Buffers = schema.NewBufferSnapshot(html, css, js)
}

// stopTimers cancels all pending timer callbacks. Called on close so a
// stale fire cannot mutate a discarded session.
func (s *session) stopTimers() {
	s.captureTimer.Stop()
	s.previewTimer.Stop()
	s.savedTimer.Stop()
}
