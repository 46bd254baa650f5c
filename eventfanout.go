package codepad

import (
	"pkt.systems/codepad/core"
	"pkt.systems/codepad/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnSessionEvent(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSessionEvent(event)
	}
}

func (f eventFanout) OnPreview(event schema.PreviewEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPreview(event)
	}
}

func (f eventFanout) OnSaveStatus(event schema.SaveStatusEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSaveStatus(event)
	}
}

func (f eventFanout) OnSandboxError(event schema.SandboxErrorEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSandboxError(event)
	}
}
