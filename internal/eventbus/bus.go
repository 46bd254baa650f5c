package eventbus

import (
	"context"
	"sync"

	"pkt.systems/codepad/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventSession carries session lifecycle and dirty-state updates.
	EventSession EventType = "session"
	// EventPreview carries a rebuilt preview document.
	EventPreview EventType = "preview"
	// EventSaveStatus carries save status transitions.
	EventSaveStatus EventType = "save_status"
	// EventSandboxError carries runtime errors from the preview sandbox.
	EventSandboxError EventType = "sandbox_error"
)

// Event represents a UI-facing event emitted by the core service.
type Event struct {
	Type         EventType
	Session      schema.SessionEvent
	Preview      schema.PreviewEvent
	SaveStatus   schema.SaveStatusEvent
	SandboxError schema.SandboxErrorEvent
}

// Bus fanouts events to per-user subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.UserID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.UserID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the user and returns a channel + cancel.
func (b *Bus) Subscribe(userID schema.UserID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	userSubs := b.subs[userID]
	if userSubs == nil {
		userSubs = make(map[chan Event]struct{})
		b.subs[userID] = userSubs
	}
	userSubs[ch] = struct{}{}
	count := len(userSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("user", userID).Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		if subs := b.subs[userID]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, userID)
			}
		}
		// Closed under the lock so publish can never hit a closed channel.
		close(ch)
		b.mu.Unlock()
		if b.log != nil {
			b.log.With("user", userID).Debug("eventbus unsubscribe")
		}
	}
}

// OnSessionEvent publishes a session event.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(event.UserID, Event{Type: EventSession, Session: event})
}

// OnPreview publishes a preview document event.
func (b *Bus) OnPreview(event schema.PreviewEvent) {
	b.publish(event.UserID, Event{Type: EventPreview, Preview: event})
}

// OnSaveStatus publishes a save status event.
func (b *Bus) OnSaveStatus(event schema.SaveStatusEvent) {
	b.publish(event.UserID, Event{Type: EventSaveStatus, SaveStatus: event})
}

// OnSandboxError publishes a sandbox runtime error event.
func (b *Bus) OnSandboxError(event schema.SandboxErrorEvent) {
	b.publish(event.UserID, Event{Type: EventSandboxError, SandboxError: event})
}

func (b *Bus) publish(userID schema.UserID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs[userID] {
		// Non-blocking send under the lock: a full subscriber drops the
		// event rather than stalling the core service.
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("user", userID).Trace("eventbus dropped", "count", dropped)
	}
}
