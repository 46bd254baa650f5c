package schema

// SessionEventType describes session lifecycle or state changes.
type SessionEventType string

const (
	// SessionEventOpened indicates a session was opened.
	SessionEventOpened SessionEventType = "opened"
	// SessionEventClosed indicates a session was closed.
	SessionEventClosed SessionEventType = "closed"
	// SessionEventDirty indicates the dirty flag or buffers changed.
	SessionEventDirty SessionEventType = "dirty"
	// SessionEventRestored indicates buffers were overwritten by undo or redo.
	SessionEventRestored SessionEventType = "restored"
)

// SessionEvent represents a change to an editor session.
type SessionEvent struct {
	UserID  UserID
	Type    SessionEventType
	Session SessionSnapshot
}

// PreviewEvent carries a freshly built preview document for a session.
type PreviewEvent struct {
	UserID    UserID
	SessionID SessionID
	Document  string
}

// SaveStatusEvent reports a save status transition for a session.
type SaveStatusEvent struct {
	UserID    UserID
	SessionID SessionID
	Status    SaveStatus
	Err       string
}

// SandboxError is a runtime error reported by the preview sandbox.
// Line and Column are zero when unknown.
type SandboxError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// SandboxErrorEvent relays a sandbox runtime error to the session owner.
type SandboxErrorEvent struct {
	UserID    UserID
	SessionID SessionID
	Error     SandboxError
}
