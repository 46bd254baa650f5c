package schema

import (
	"errors"
	"time"
)

// EditorConfig defines defaults and limits for the editor core service.
type EditorConfig struct {
	// HistoryCapacity bounds each undo/redo stack.
	HistoryCapacity int
	// CaptureDebounce is the quiet period before a snapshot is captured
	// into undo history.
	CaptureDebounce time.Duration
	// PreviewDebounce is the quiet period before the preview document is
	// rebuilt. Shorter than CaptureDebounce so preview feedback stays
	// responsive while history capture remains coarse.
	PreviewDebounce time.Duration
	// SavedDisplay is how long the "saved" status is shown before it
	// reverts to none.
	SavedDisplay time.Duration
	// MaxSessionsPerUser caps concurrently open editor sessions per user.
	MaxSessionsPerUser int
	// MaxBufferBytes caps a single buffer's size. Zero disables the cap.
	MaxBufferBytes int
}

const (
	// DefaultHistoryCapacity is the default undo/redo stack bound.
	DefaultHistoryCapacity = 50
	// DefaultCaptureDebounce is the default history capture quiet period.
	DefaultCaptureDebounce = 500 * time.Millisecond
	// DefaultPreviewDebounce is the default preview rebuild quiet period.
	DefaultPreviewDebounce = 300 * time.Millisecond
	// DefaultSavedDisplay is the default saved-status display window.
	DefaultSavedDisplay = 3 * time.Second
	// DefaultMaxSessionsPerUser is the default per-user session cap.
	DefaultMaxSessionsPerUser = 8
	// DefaultMaxBufferBytes is the default single-buffer size cap.
	DefaultMaxBufferBytes = 1 << 20
)

// NormalizeEditorConfig applies defaults and validates the config.
func NormalizeEditorConfig(cfg EditorConfig) (EditorConfig, error) {
	if cfg.HistoryCapacity < 0 {
		return EditorConfig{}, errors.New("history capacity must not be negative")
	}
	if cfg.HistoryCapacity == 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.CaptureDebounce <= 0 {
		cfg.CaptureDebounce = DefaultCaptureDebounce
	}
	if cfg.PreviewDebounce <= 0 {
		cfg.PreviewDebounce = DefaultPreviewDebounce
	}
	if cfg.SavedDisplay <= 0 {
		cfg.SavedDisplay = DefaultSavedDisplay
	}
	if cfg.MaxSessionsPerUser <= 0 {
		cfg.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if cfg.MaxBufferBytes < 0 {
		cfg.MaxBufferBytes = 0
	}
	if cfg.MaxBufferBytes == 0 {
		cfg.MaxBufferBytes = DefaultMaxBufferBytes
	}
	return cfg, nil
}
