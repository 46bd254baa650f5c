package core

import "pkt.systems/codepad/schema"

// EventSink receives editor events emitted by the core service.
type EventSink interface {
	OnSessionEvent(event schema.SessionEvent)
	OnPreview(event schema.PreviewEvent)
	OnSaveStatus(event schema.SaveStatusEvent)
	OnSandboxError(event schema.SandboxErrorEvent)
}
