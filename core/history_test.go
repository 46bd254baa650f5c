package core

import (
	"testing"

	"pkt.systems/codepad/schema"
)

func snap(html string) schema.BufferSnapshot {
	return schema.NewBufferSnapshot(html, "", "")
}

func TestHistoryUndoRedoRoundTrip(t *testing.T) {
	h := newHistoryEngine(10)
	h.Push(snap("a"))
	h.Push(snap("b"))

	current := snap("c")
	restored, ok := h.Undo(current)
	if !ok || restored.HTML != "b" {
		t.Fatalf("expected undo to b, got %q ok=%v", restored.HTML, ok)
	}
	restored, ok = h.Undo(restored)
	if !ok || restored.HTML != "a" {
		t.Fatalf("expected undo to a, got %q ok=%v", restored.HTML, ok)
	}
	if h.CanUndo() {
		t.Fatalf("expected empty undo stack")
	}

	restored, ok = h.Redo(restored)
	if !ok || restored.HTML != "b" {
		t.Fatalf("expected redo to b, got %q ok=%v", restored.HTML, ok)
	}
	restored, ok = h.Redo(restored)
	if !ok || restored.HTML != "c" {
		t.Fatalf("expected redo to c, got %q ok=%v", restored.HTML, ok)
	}
	if h.CanRedo() {
		t.Fatalf("expected empty redo stack")
	}
}

func TestHistoryUndoOnEmptyStack(t *testing.T) {
	h := newHistoryEngine(4)
	if _, ok := h.Undo(snap("live")); ok {
		t.Fatalf("expected undo on empty stack to report false")
	}
	if _, ok := h.Redo(snap("live")); ok {
		t.Fatalf("expected redo on empty stack to report false")
	}
}

func TestHistoryPushClearsRedo(t *testing.T) {
	h := newHistoryEngine(10)
	h.Push(snap("a"))
	if _, ok := h.Undo(snap("b")); !ok {
		t.Fatalf("undo failed")
	}
	if !h.CanRedo() {
		t.Fatalf("expected redo available after undo")
	}
	h.Push(snap("c"))
	if h.CanRedo() {
		t.Fatalf("expected redo cleared by push")
	}
}

func TestHistoryCapacityEvictsOldest(t *testing.T) {
	h := newHistoryEngine(3)
	for _, v := range []string{"a", "b", "c", "d"} {
		h.Push(snap(v))
	}
	if len(h.undoStack) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(h.undoStack))
	}
	if h.undoStack[0].HTML != "b" {
		t.Fatalf("expected oldest entry b, got %q", h.undoStack[0].HTML)
	}
}

func TestHistoryClear(t *testing.T) {
	h := newHistoryEngine(4)
	h.Push(snap("a"))
	if _, ok := h.Undo(snap("b")); !ok {
		t.Fatalf("undo failed")
	}
	h.Clear()
	if h.CanUndo() || h.CanRedo() {
		t.Fatalf("expected cleared stacks")
	}
}
