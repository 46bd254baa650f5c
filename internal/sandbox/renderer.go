// Package sandbox runs a combined preview document in headless Chrome
// and reports the first runtime error it raises. Used by the document
// check operation; the in-browser preview iframe does its own error
// reporting.
package sandbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"pkt.systems/codepad/internal/appconfig"
	"pkt.systems/codepad/schema"
	"pkt.systems/pslog"
)

// Renderer executes documents in a shared headless browser allocator.
// Each Render call gets its own tab.
type Renderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	settle      time.Duration
	log         pslog.Logger
	closeOnce   sync.Once
}

// New starts the browser allocator. Returns nil (sandbox disabled) when
// the config disables it.
func New(cfg appconfig.SandboxConfig, logger pslog.Logger) (*Renderer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger != nil {
		logger.Info("sandbox renderer enabled", "timeout", timeout)
	}
	return &Renderer{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		timeout:     timeout,
		settle:      250 * time.Millisecond,
		log:         logger,
	}, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(r.allocCancel)
}

// Render loads the document in a fresh tab and returns the first
// uncaught exception, or nil when the document ran cleanly.
func (r *Renderer) Render(ctx context.Context, document string) (*schema.SandboxError, error) {
	if r == nil {
		return nil, schema.ErrSandboxUnavailable
	}
	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var (
		mu       sync.Mutex
		captured *schema.SandboxError
	)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		exc, ok := ev.(*runtime.EventExceptionThrown)
		if !ok || exc.ExceptionDetails == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if captured != nil {
			return
		}
		captured = &schema.SandboxError{
			Message: exceptionMessage(exc.ExceptionDetails),
			Line:    int(exc.ExceptionDetails.LineNumber),
			Column:  int(exc.ExceptionDetails.ColumnNumber),
		}
	})

	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return setDocumentContent(ctx, document)
		}),
		chromedp.Sleep(r.settle),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errors.New("sandbox render timed out")
		}
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if captured != nil && r.log != nil {
		r.log.Debug("sandbox caught error", "line", captured.Line, "message", captured.Message)
	}
	return captured, nil
}

func setDocumentContent(ctx context.Context, document string) error {
	// document.write keeps inline scripts executing in load order, which
	// is what the iframe preview does in the browser.
	expr := "document.open(); document.write(" + jsString(document) + "); document.close();"
	_, exc, err := runtime.Evaluate(expr).Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return exc
	}
	return nil
}

func exceptionMessage(details *runtime.ExceptionDetails) string {
	if details.Exception != nil && details.Exception.Description != "" {
		// Keep the first line; the rest is a stack trace.
		desc := details.Exception.Description
		if idx := strings.IndexByte(desc, '\n'); idx >= 0 {
			desc = desc[:idx]
		}
		return desc
	}
	return details.Text
}

func jsString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
