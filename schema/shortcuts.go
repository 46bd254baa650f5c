package schema

// ShortcutAction names an editor action dispatched by a keyboard chord.
type ShortcutAction string

const (
	// ShortcutNone indicates no action was dispatched.
	ShortcutNone ShortcutAction = ""
	// ShortcutSave saves the current project.
	ShortcutSave ShortcutAction = "save"
	// ShortcutSaveAs prompts for a name and creates the project.
	ShortcutSaveAs ShortcutAction = "save_as"
	// ShortcutUndo restores the previous captured snapshot.
	ShortcutUndo ShortcutAction = "undo"
	// ShortcutRedo restores the next captured snapshot.
	ShortcutRedo ShortcutAction = "redo"
	// ShortcutHelp shows the shortcut reference.
	ShortcutHelp ShortcutAction = "help"
)
