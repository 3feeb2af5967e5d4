package schema

import "time"

// NotebookEventType describes a structural or metadata change.
type NotebookEventType string

const (
	// NotebookCellInserted indicates a cell was added.
	NotebookCellInserted NotebookEventType = "cell.inserted"
	// NotebookCellDeleted indicates a cell was removed.
	NotebookCellDeleted NotebookEventType = "cell.deleted"
	// NotebookCellMoved indicates a cell changed position.
	NotebookCellMoved NotebookEventType = "cell.moved"
	// NotebookCellUpdated indicates a cell was edited.
	NotebookCellUpdated NotebookEventType = "cell.updated"
	// NotebookMetadata indicates name, description or tags changed.
	NotebookMetadata NotebookEventType = "metadata"
	// NotebookSettingsChanged indicates settings changed.
	NotebookSettingsChanged NotebookEventType = "settings"
	// NotebookReplaced indicates the whole notebook was loaded or imported.
	NotebookReplaced NotebookEventType = "replaced"
	// NotebookOutputsCleared indicates clear-outputs ran.
	NotebookOutputsCleared NotebookEventType = "outputs.cleared"
	// NotebookSaved indicates the notebook was persisted.
	NotebookSaved NotebookEventType = "saved"
	// NotebookHistory indicates an undo or redo was applied.
	NotebookHistory NotebookEventType = "history"
	// NotebookSelection indicates the active cell or selection changed.
	NotebookSelection NotebookEventType = "selection"
)

// NotebookEvent reports a change to the notebook.
type NotebookEvent struct {
	NotebookID NotebookID
	Type       NotebookEventType
	CellIDs    []CellID
	UpdatedAt  time.Time
}

// CellRunPhase marks the start or end of a cell run.
type CellRunPhase string

const (
	// CellRunStarted indicates the cell entered running.
	CellRunStarted CellRunPhase = "started"
	// CellRunFinished indicates the cell reached a terminal status.
	CellRunFinished CellRunPhase = "finished"
)

// CellRunEvent reports scheduler progress for one cell.
type CellRunEvent struct {
	NotebookID NotebookID
	CellID     CellID
	Phase      CellRunPhase
	Status     CellStatus
	Cell       Cell
}

// KernelEvent reports kernel status and the variables snapshot.
type KernelEvent struct {
	NotebookID NotebookID
	Kernel     KernelInfo
}

// NoticeLevel is the severity of a user notification.
type NoticeLevel string

const (
	// NoticeInfo is a neutral notification.
	NoticeInfo NoticeLevel = "info"
	// NoticeSuccess confirms a completed command.
	NoticeSuccess NoticeLevel = "success"
	// NoticeWarning reports a rejected or degraded command.
	NoticeWarning NoticeLevel = "warning"
	// NoticeError reports a failed command.
	NoticeError NoticeLevel = "error"
)

// Notice is a transient user notification.
type Notice struct {
	NotebookID NotebookID
	Level      NoticeLevel
	Title      string
	Message    string
}
