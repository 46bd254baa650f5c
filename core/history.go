package core

import "pkt.systems/codepad/schema"

// historyEngine holds two bounded stacks of buffer snapshots. Pushing a
// new state always invalidates the redo stack: redoing after a fresh
// edit would jump onto a branch that no longer matches the edit history.
// Each stack evicts its oldest entry when the capacity is exceeded.
type historyEngine struct {
	undoStack []schema.BufferSnapshot
	redoStack []schema.BufferSnapshot
	capacity  int
}

func newHistoryEngine(capacity int) *historyEngine {
	if capacity <= 0 {
		capacity = schema.DefaultHistoryCapacity
	}
	return &historyEngine{capacity: capacity}
}

// Push appends a captured snapshot to the undo stack and clears redo.
func (h *historyEngine) Push(snapshot schema.BufferSnapshot) {
	h.undoStack = pushBounded(h.undoStack, snapshot, h.capacity)
	h.redoStack = h.redoStack[:0]
}

// Undo moves the current state onto the redo stack and returns the most
// recently captured snapshot. Reports false when there is nothing to undo.
func (h *historyEngine) Undo(current schema.BufferSnapshot) (schema.BufferSnapshot, bool) {
	if len(h.undoStack) == 0 {
		return schema.BufferSnapshot{}, false
	}
	h.redoStack = pushBounded(h.redoStack, current, h.capacity)
	top := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	return top, true
}

// Redo moves the current state onto the undo stack and returns the next
// snapshot. Reports false when there is nothing to redo.
func (h *historyEngine) Redo(current schema.BufferSnapshot) (schema.BufferSnapshot, bool) {
	if len(h.redoStack) == 0 {
		return schema.BufferSnapshot{}, false
	}
	h.undoStack = pushBounded(h.undoStack, current, h.capacity)
	top := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	return top, true
}

func (h *historyEngine) CanUndo() bool {
	return len(h.undoStack) > 0
}

func (h *historyEngine) CanRedo() bool {
	return len(h.redoStack) > 0
}

// Clear empties both stacks. Called when a different project is loaded
// into the session so history never leaks across projects.
func (h *historyEngine) Clear() {
	h.undoStack = h.undoStack[:0]
	h.redoStack = h.redoStack[:0]
}

func pushBounded(stack []schema.BufferSnapshot, snapshot schema.BufferSnapshot, capacity int) []schema.BufferSnapshot {
	stack = append(stack, snapshot)
	if len(stack) > capacity {
		overflow := len(stack) - capacity
		stack = append(stack[:0], stack[overflow:]...)
	}
	return stack
}
