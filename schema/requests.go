package schema

// Session lifecycle.

// OpenSessionRequest describes a request to open an editor session.
// ProjectID zero opens a fresh, unsaved session.
type OpenSessionRequest struct {
	UserID    UserID
	ProjectID ProjectID
}

// OpenSessionResponse reports the opened session.
type OpenSessionResponse struct {
	Session SessionSnapshot
}

// CloseSessionRequest describes a request to close an editor session.
// Closing a dirty session requires Force; this is the confirmation gate
// for navigating away with unsaved changes.
type CloseSessionRequest struct {
	UserID    UserID
	SessionID SessionID
	Force     bool
}

// CloseSessionResponse reports the final session snapshot.
type CloseSessionResponse struct {
	Session SessionSnapshot
}

// GetSessionRequest describes a request for the current session snapshot.
type GetSessionRequest struct {
	UserID    UserID
	SessionID SessionID
}

// GetSessionResponse reports the session snapshot.
type GetSessionResponse struct {
	Session SessionSnapshot
}

// Buffer edits and history.

// UpdateBufferRequest describes a single buffer mutation.
type UpdateBufferRequest struct {
	UserID    UserID
	SessionID SessionID
	Buffer    BufferKind
	Text      string
}

// UpdateBufferResponse reports the session snapshot after the edit.
type UpdateBufferResponse struct {
	Session SessionSnapshot
}

// UndoRequest describes an undo request.
type UndoRequest struct {
	UserID    UserID
	SessionID SessionID
}

// UndoResponse reports the session after the undo. Applied is false when
// the undo stack was empty and nothing changed.
type UndoResponse struct {
	Session SessionSnapshot
	Applied bool
}

// RedoRequest describes a redo request.
type RedoRequest struct {
	UserID    UserID
	SessionID SessionID
}

// RedoResponse reports the session after the redo. Applied is false when
// the redo stack was empty and nothing changed.
type RedoResponse struct {
	Session SessionSnapshot
	Applied bool
}

// Persistence.

// SaveRequest describes a save of an already-created project.
type SaveRequest struct {
	UserID    UserID
	SessionID SessionID
}

// SaveResponse reports the session after the save attempt.
type SaveResponse struct {
	Session SessionSnapshot
}

// SaveAsRequest describes first-time persistence under a new name.
type SaveAsRequest struct {
	UserID    UserID
	SessionID SessionID
	Name      ProjectName
}

// SaveAsResponse reports the session after the create attempt.
type SaveAsResponse struct {
	Session SessionSnapshot
}

// Preview.

// RefreshPreviewRequest forces an immediate preview publish, bypassing
// the debounce timer.
type RefreshPreviewRequest struct {
	UserID    UserID
	SessionID SessionID
}

// RefreshPreviewResponse carries the published document.
type RefreshPreviewResponse struct {
	Document string
}

// ExportDocumentRequest requests the combined document for download.
type ExportDocumentRequest struct {
	UserID    UserID
	SessionID SessionID
}

// ExportDocumentResponse carries the combined document and a suggested
// file name.
type ExportDocumentResponse struct {
	Document string
	Filename string
}

// ReportSandboxErrorRequest relays a runtime error from the preview
// sandbox to the session owner's event stream.
type ReportSandboxErrorRequest struct {
	UserID    UserID
	SessionID SessionID
	Error     SandboxError
}

// CheckDocumentRequest runs the combined document in the headless
// sandbox and reports the first runtime error, if any.
type CheckDocumentRequest struct {
	UserID    UserID
	SessionID SessionID
}

// CheckDocumentResponse reports the sandbox result. Error is nil when
// the document ran cleanly.
type CheckDocumentResponse struct {
	Error *SandboxError
}

// Keyboard shortcuts.

// KeyEventRequest describes one keyboard event for the shortcut router.
type KeyEventRequest struct {
	UserID    UserID
	SessionID SessionID
	Key       string
	Ctrl      bool
	Shift     bool
	Alt       bool
	Meta      bool
}

// KeyEventResponse reports the dispatched action. Handled is false for
// unrecognized chords, in which case default handling must not be
// suppressed.
type KeyEventResponse struct {
	Handled bool
	Action  ShortcutAction
	Session SessionSnapshot
}

// Assistant.

// AssistRequest describes a chat request to the AI assistant, carrying
// the session buffers as context.
type AssistRequest struct {
	UserID    UserID
	SessionID SessionID
	Prompt    string
}

// AssistResponse carries the assistant's reply text.
type AssistResponse struct {
	Reply string
}

// Projects.

// ListProjectsRequest describes a request to list the user's projects.
type ListProjectsRequest struct {
	UserID UserID
}

// ListProjectsResponse reports project summaries, newest first.
type ListProjectsResponse struct {
	Projects []ProjectSummary
}

// DeleteProjectRequest describes a request to delete a project.
type DeleteProjectRequest struct {
	UserID    UserID
	ProjectID ProjectID
}

// DeleteProjectResponse reports the deleted project id.
type DeleteProjectResponse struct {
	ProjectID ProjectID
}
