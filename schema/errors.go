package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates an invalid user identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidProjectName indicates an invalid project name.
	ErrInvalidProjectName = errors.New("invalid project name")
	// ErrInvalidBuffer indicates an unknown buffer kind.
	ErrInvalidBuffer = errors.New("invalid buffer")
	// ErrProjectNotFound indicates a project could not be found.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectForbidden indicates a project belongs to another user.
	ErrProjectForbidden = errors.New("project forbidden")
	// ErrSessionNotFound indicates a requested editor session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotReady indicates the session is not in the ready state.
	ErrSessionNotReady = errors.New("session not ready")
	// ErrUnsavedChanges indicates a close was attempted on a dirty
	// session without force.
	ErrUnsavedChanges = errors.New("unsaved changes")
	// ErrNameRequired indicates a save was attempted on an unsaved
	// project; the caller must supply a name via save-as.
	ErrNameRequired = errors.New("project name required")
	// ErrTooManySessions indicates the per-user session cap was reached.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrAssistantUnavailable indicates no assistant backend is configured.
	ErrAssistantUnavailable = errors.New("assistant not configured")
	// ErrSandboxUnavailable indicates no sandbox renderer is configured.
	ErrSandboxUnavailable = errors.New("sandbox not configured")
)
