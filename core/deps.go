package core

import (
	"context"

	"pkt.systems/codepad/schema"
	"pkt.systems/pslog"
)

// ProjectRepository persists projects. Implementations enforce ownership:
// reads and writes on behalf of a user that does not own the project
// return schema.ErrProjectForbidden.
type ProjectRepository interface {
	Read(ctx context.Context, userID schema.UserID, id schema.ProjectID) (schema.Project, error)
	Create(ctx context.Context, userID schema.UserID, name schema.ProjectName, buffers schema.BufferSnapshot) (schema.Project, error)
	Update(ctx context.Context, userID schema.UserID, id schema.ProjectID, update schema.ProjectUpdate) (schema.Project, error)
	Delete(ctx context.Context, userID schema.UserID, id schema.ProjectID) error
	List(ctx context.Context, userID schema.UserID) ([]schema.ProjectSummary, error)
}

// Assistant answers a chat prompt with the session buffers as context.
type Assistant interface {
	Complete(ctx context.Context, prompt string, buffers schema.BufferSnapshot) (string, error)
}

// SandboxRenderer executes a combined preview document and reports the
// first runtime error it produced, or nil when the document ran cleanly.
type SandboxRenderer interface {
	Render(ctx context.Context, document string) (*schema.SandboxError, error)
}

// ServiceDeps carries the collaborators for NewService. Repository is
// required; the rest are optional.
type ServiceDeps struct {
	Repository ProjectRepository
	Sink       EventSink
	Assistant  Assistant
	Sandbox    SandboxRenderer
	Logger     pslog.Logger
}
