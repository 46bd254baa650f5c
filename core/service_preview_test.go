package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"pkt.systems/codepad/schema"
)

func TestPreviewDebounceCoalescesBurst(t *testing.T) {
	sink := newRecordingSink()
	svc := newTestService(t, newFakeRepo(), sink)
	sess := openReadySession(t, svc, "alice")

	edit(t, svc, "alice", sess.ID, schema.BufferHTML, "<p>1</p>")
	edit(t, svc, "alice", sess.ID, schema.BufferHTML, "<p>12</p>")
	edit(t, svc, "alice", sess.ID, schema.BufferHTML, "<p>123</p>")

	select {
	case event := <-sink.previewCh:
		if !strings.Contains(event.Document, "<p>123</p>") {
			t.Fatalf("expected final content in preview, got %q", event.Document)
		}
		if event.SessionID != sess.ID {
			t.Fatalf("unexpected session id %q", event.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("preview never published")
	}

	// No trailing publishes from the superseded edits.
	time.Sleep(4 * testConfig().PreviewDebounce)
	if got := sink.previewCount(); got != 1 {
		t.Fatalf("expected 1 coalesced preview, got %d", got)
	}
}

func TestRefreshPreviewBypassesDebounce(t *testing.T) {
	sink := newRecordingSink()
	svc := newTestService(t, newFakeRepo(), sink)
	sess := openReadySession(t, svc, "alice")
	ctx := context.Background()

	edit(t, svc, "alice", sess.ID, schema.BufferHTML, "<p>now</p>")
	resp, err := svc.RefreshPreview(ctx, schema.RefreshPreviewRequest{UserID: "alice", SessionID: sess.ID})
	if err != nil {
		t.Fatalf("refresh preview: %v", err)
	}
	if !strings.Contains(resp.Document, "<p>now</p>") {
		t.Fatalf("expected current content, got %q", resp.Document)
	}

	select {
	case <-sink.previewCh:
	case <-time.After(time.Second):
		t.Fatalf("refresh did not publish a preview event")
	}
}

func TestBuildPreviewDocumentStructure(t *testing.T) {
	doc := BuildPreviewDocument(schema.NewBufferSnapshot("<p>hi</p>", "p { color: red }", "console.log(1)"))
	if !strings.HasPrefix(doc, "<!DOCTYPE html>") {
		t.Fatalf("expected doctype prefix")
	}
	for _, want := range []string{"<p>hi</p>", "p { color: red }", "console.log(1)", "postMessage", "try {"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q", want)
		}
	}
	styleIdx := strings.Index(doc, "p { color: red }")
	bodyIdx := strings.Index(doc, "<p>hi</p>")
	scriptIdx := strings.Index(doc, "console.log(1)")
	if !(styleIdx < bodyIdx && bodyIdx < scriptIdx) {
		t.Fatalf("unexpected section order: style=%d body=%d script=%d", styleIdx, bodyIdx, scriptIdx)
	}
}

func TestBuildPreviewDocumentEscapesClosingTags(t *testing.T) {
	doc := BuildPreviewDocument(schema.NewBufferSnapshot("", "a { content: \"</style>\" }", "var s = \"</script>\";"))
	if strings.Count(doc, "</style>") != 1 {
		t.Fatalf("user CSS terminated the style element early")
	}
	if strings.Count(doc, "</script>") != 1 {
		t.Fatalf("user JS terminated the script element early")
	}
}

func TestExportDocument(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), nil)
	sess := openReadySession(t, svc, "alice")
	ctx := context.Background()

	if _, err := svc.SaveAs(ctx, schema.SaveAsRequest{UserID: "alice", SessionID: sess.ID, Name: "My Cool Page"}); err != nil {
		t.Fatalf("save as: %v", err)
	}
	resp, err := svc.ExportDocument(ctx, schema.ExportDocumentRequest{UserID: "alice", SessionID: sess.ID})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if resp.Filename != "my-cool-page.html" {
		t.Fatalf("unexpected filename %q", resp.Filename)
	}
	if !strings.HasPrefix(resp.Document, "<!DOCTYPE html>") {
		t.Fatalf("expected full document")
	}
}

func TestExportFilename(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"", "untitled.html"},
		{"   ", "untitled.html"},
		{"My Page", "my-page.html"},
		{"demo_v2.1", "demo-v2-1.html"},
		{"---", "untitled.html"},
		{"Ünïcode!", "ncode.html"},
	}
	for _, tc := range cases {
		if got := exportFilename(schema.ProjectName(tc.name)); got != tc.want {
			t.Fatalf("exportFilename(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestReportSandboxErrorForwardsToSink(t *testing.T) {
	sink := newRecordingSink()
	svc := newTestService(t, newFakeRepo(), sink)
	sess := openReadySession(t, svc, "alice")
	ctx := context.Background()

	err := svc.ReportSandboxError(ctx, schema.ReportSandboxErrorRequest{
		UserID:    "alice",
		SessionID: sess.ID,
		Error:     schema.SandboxError{Message: "boom", Line: 3, Column: 7},
	})
	if err != nil {
		t.Fatalf("report sandbox error: %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.sandboxErr) != 1 {
		t.Fatalf("expected 1 sandbox error event, got %d", len(sink.sandboxErr))
	}
	got := sink.sandboxErr[0]
	if got.Error.Message != "boom" || got.Error.Line != 3 || got.Error.Column != 7 {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestReportSandboxErrorRejectsEmptyMessage(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), nil)
	sess := openReadySession(t, svc, "alice")

	err := svc.ReportSandboxError(context.Background(), schema.ReportSandboxErrorRequest{
		UserID:    "alice",
		SessionID: sess.ID,
		Error:     schema.SandboxError{Message: "   "},
	})
	if err == nil {
		t.Fatalf("expected rejection of empty message")
	}
}
