package schema

import "time"

// UserID identifies a user in the system.
type UserID string

// SessionID identifies an editor session.
type SessionID string

// ProjectID identifies a stored project. Zero means "new, unsaved project".
type ProjectID int64

// ProjectName is the user-facing name of a project.
type ProjectName string

// BufferKind names one of the three editable source buffers.
type BufferKind string

const (
	// BufferHTML is the HTML source buffer.
	BufferHTML BufferKind = "html"
	// BufferCSS is the CSS source buffer.
	BufferCSS BufferKind = "css"
	// BufferJS is the JavaScript source buffer.
	BufferJS BufferKind = "js"
)

// Valid reports whether the buffer kind is one of html, css, js.
func (k BufferKind) Valid() bool {
	switch k {
	case BufferHTML, BufferCSS, BufferJS:
		return true
	default:
		return false
	}
}

// Project is a stored scratchpad project.
type Project struct {
	ID        ProjectID   `json:"id"`
	OwnerID   UserID      `json:"owner_id"`
	Name      ProjectName `json:"name"`
	HTML      string      `json:"html"`
	CSS       string      `json:"css"`
	JS        string      `json:"js"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ProjectSummary is a listing view of a project without buffer contents.
type ProjectSummary struct {
	ID        ProjectID   `json:"id"`
	Name      ProjectName `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ProjectUpdate carries the fields an update may change. Nil fields are
// left untouched.
type ProjectUpdate struct {
	Name *ProjectName
	HTML *string
	CSS  *string
	JS   *string
}
