package core

import (
	"strings"

	"pkt.systems/codepad/schema"
)

// The preview document is a complete standalone HTML page. The error
// bridge forwards the first runtime error per render to the host page
// via postMessage; a clean run is silent. This is the whole protocol
// with the sandbox: inbound one document string, outbound at most one
// error event {message, line, column}.
const previewErrorBridge = `(function () {
  var reported = false;
  function report(message, line, column) {
    if (reported) return;
    reported = true;
    if (window.parent && window.parent !== window) {
      window.parent.postMessage({
        codepad: "sandbox-error",
        message: String(message),
        line: line || 0,
        column: column || 0
      }, "*");
    }
  }
  window.addEventListener("error", function (event) {
    report(event.message, event.lineno, event.colno);
  });
  window.__codepadReport = report;
})();`

// BuildPreviewDocument combines the three buffers into one renderable
// document: fixed skeleton, CSS in a style block, HTML as the body
// content, and JS in a script block wrapped in try/catch so thrown
// errors reach the error bridge.
func BuildPreviewDocument(buffers schema.BufferSnapshot) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<style>\n")
	b.WriteString(escapeStyleClose(buffers.CSS))
	b.WriteString("\n</style>\n</head>\n<body>\n")
	b.WriteString(buffers.HTML)
	b.WriteString("\n<script>\n")
	b.WriteString(previewErrorBridge)
	b.WriteString("\ntry {\n")
	b.WriteString(escapeScriptClose(buffers.JS))
	b.WriteString("\n} catch (err) {\n  window.__codepadReport(err && err.message ? err.message : String(err), err && err.lineNumber, err && err.columnNumber);\n}\n</script>\n</body>\n</html>\n")
	return b.String()
}

// escapeScriptClose keeps user JS from terminating the wrapping script
// element early.
func escapeScriptClose(js string) string {
	return strings.ReplaceAll(js, "</script", "<\\/script")
}

// escapeStyleClose keeps user CSS from terminating the style element early.
func escapeStyleClose(css string) string {
	return strings.ReplaceAll(css, "</style", "<\\/style")
}

// exportFilename derives a download name for the combined document.
func exportFilename(name schema.ProjectName) string {
	trimmed := strings.TrimSpace(string(name))
	if trimmed == "" {
		return "untitled.html"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(trimmed) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "untitled.html"
	}
	return slug + ".html"
}
