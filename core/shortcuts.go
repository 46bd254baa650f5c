package core

import (
	"strings"

	"pkt.systems/codepad/schema"
)

// chord is a normalized keyboard combination. Ctrl and Meta are folded
// into one primary modifier so the same bindings work on both platforms.
type chord struct {
	key     string
	primary bool
	shift   bool
	alt     bool
}

// shortcutBindings is the fixed chord-to-action dispatch table.
var shortcutBindings = map[chord]schema.ShortcutAction{
	{key: "s", primary: true}:              schema.ShortcutSave,
	{key: "s", primary: true, shift: true}: schema.ShortcutSaveAs,
	{key: "z", primary: true}:              schema.ShortcutUndo,
	{key: "z", primary: true, shift: true}: schema.ShortcutRedo,
	{key: "y", primary: true}:              schema.ShortcutRedo,
	{key: "/", primary: true}:              schema.ShortcutHelp,
}

// resolveShortcut maps a key event to an editor action. Reports false
// for unrecognized chords; the caller must not suppress default handling
// for those.
func resolveShortcut(req schema.KeyEventRequest) (schema.ShortcutAction, bool) {
	if req.Alt {
		return schema.ShortcutNone, false
	}
	c := chord{
		key:     strings.ToLower(req.Key),
		primary: req.Ctrl || req.Meta,
		shift:   req.Shift,
	}
	action, ok := shortcutBindings[c]
	if !ok {
		return schema.ShortcutNone, false
	}
	return action, true
}
