package core

import (
	"context"

	"pkt.systems/codepad/schema"
)

// Service is the editor session controller. One instance serves all
// users; each editor session is owned by exactly one user.
type Service interface {
	OpenSession(ctx context.Context, req schema.OpenSessionRequest) (schema.OpenSessionResponse, error)
	CloseSession(ctx context.Context, req schema.CloseSessionRequest) (schema.CloseSessionResponse, error)
	GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error)

	UpdateBuffer(ctx context.Context, req schema.UpdateBufferRequest) (schema.UpdateBufferResponse, error)
	Undo(ctx context.Context, req schema.UndoRequest) (schema.UndoResponse, error)
	Redo(ctx context.Context, req schema.RedoRequest) (schema.RedoResponse, error)

	Save(ctx context.Context, req schema.SaveRequest) (schema.SaveResponse, error)
	SaveAs(ctx context.Context, req schema.SaveAsRequest) (schema.SaveAsResponse, error)

	RefreshPreview(ctx context.Context, req schema.RefreshPreviewRequest) (schema.RefreshPreviewResponse, error)
	ExportDocument(ctx context.Context, req schema.ExportDocumentRequest) (schema.ExportDocumentResponse, error)
	ReportSandboxError(ctx context.Context, req schema.ReportSandboxErrorRequest) error
	CheckDocument(ctx context.Context, req schema.CheckDocumentRequest) (schema.CheckDocumentResponse, error)

	HandleKey(ctx context.Context, req schema.KeyEventRequest) (schema.KeyEventResponse, error)
	AskAssistant(ctx context.Context, req schema.AssistRequest) (schema.AssistResponse, error)

	ListProjects(ctx context.Context, req schema.ListProjectsRequest) (schema.ListProjectsResponse, error)
	DeleteProject(ctx context.Context, req schema.DeleteProjectRequest) (schema.DeleteProjectResponse, error)
}
