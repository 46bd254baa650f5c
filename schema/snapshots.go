package schema

import "time"

// Lifecycle describes the load state of an editor session.
type Lifecycle string

const (
	// LifecycleIdle indicates a session that has not started loading.
	LifecycleIdle Lifecycle = "idle"
	// LifecycleLoading indicates a project load is in flight.
	LifecycleLoading Lifecycle = "loading"
	// LifecycleReady indicates the session is editable.
	LifecycleReady Lifecycle = "ready"
	// LifecycleLoadError indicates the project load failed; the session
	// is unusable until closed.
	LifecycleLoadError Lifecycle = "load_error"
)

// SaveStatus describes the persistence state of an editor session.
type SaveStatus string

const (
	// SaveStatusNone indicates no save is in flight or recently finished.
	SaveStatusNone SaveStatus = "none"
	// SaveStatusSaving indicates a create or update is in flight.
	SaveStatusSaving SaveStatus = "saving"
	// SaveStatusSaved indicates the last save succeeded. Reverts to none
	// after the configured display window.
	SaveStatusSaved SaveStatus = "saved"
	// SaveStatusSaveFailed indicates the last save failed. Buffers and
	// the dirty flag are untouched so the user can retry.
	SaveStatusSaveFailed SaveStatus = "save_failed"
)

// BufferSnapshot is an immutable capture of the three source buffers at
// one instant. Timestamp is advisory metadata; equality is structural on
// the three texts only.
type BufferSnapshot struct {
	HTML      string `json:"html"`
	CSS       string `json:"css"`
	JS        string `json:"js"`
	Timestamp int64  `json:"timestamp"`
}

// NewBufferSnapshot captures the given texts with the current time.
func NewBufferSnapshot(html, css, js string) BufferSnapshot {
	return BufferSnapshot{
		HTML:      html,
		CSS:       css,
		JS:        js,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Equal reports structural equality on the buffer texts. Timestamp is
// never part of equality.
func (s BufferSnapshot) Equal(other BufferSnapshot) bool {
	return s.HTML == other.HTML && s.CSS == other.CSS && s.JS == other.JS
}

// SessionSnapshot is a read-only view of editor session state for
// transports.
type SessionSnapshot struct {
	ID          SessionID      `json:"id"`
	ProjectID   ProjectID      `json:"project_id,omitempty"`
	ProjectName ProjectName    `json:"project_name"`
	Buffers     BufferSnapshot `json:"buffers"`
	Dirty       bool           `json:"dirty"`
	Lifecycle   Lifecycle      `json:"lifecycle"`
	SaveStatus  SaveStatus     `json:"save_status"`
	CanUndo     bool           `json:"can_undo"`
	CanRedo     bool           `json:"can_redo"`
	LoadError   string         `json:"load_error,omitempty"`
	SaveError   string         `json:"save_error,omitempty"`
}
