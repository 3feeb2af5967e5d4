package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidCellType indicates an unknown cell type.
	ErrInvalidCellType = errors.New("invalid cell type")
	// ErrInvalidExecutionMode indicates an unknown execution mode.
	ErrInvalidExecutionMode = errors.New("invalid execution mode")
	// ErrInvalidNotebook indicates a serialized notebook failed validation.
	ErrInvalidNotebook = errors.New("invalid notebook")
	// ErrNotebookNotFound indicates a stored notebook could not be found.
	ErrNotebookNotFound = errors.New("notebook not found")
	// ErrCellNotFound indicates a requested cell could not be found.
	ErrCellNotFound = errors.New("cell not found")
	// ErrNoKernel indicates no kernel is selected.
	ErrNoKernel = errors.New("no kernel selected")
	// ErrKernelNotFound indicates the requested kernel is not registered.
	ErrKernelNotFound = errors.New("kernel not found")
	// ErrNotRunnable indicates the cell type cannot be executed.
	ErrNotRunnable = errors.New("cell type is not runnable")
	// ErrSessionBusy indicates a run is already in flight.
	ErrSessionBusy = errors.New("session is busy")
	// ErrNotRunning indicates there is nothing to interrupt.
	ErrNotRunning = errors.New("nothing is running")
	// ErrInterrupted indicates a run was cancelled by an interrupt.
	ErrInterrupted = errors.New("interrupted")
	// ErrNothingToUndo indicates the undo history is empty.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo indicates the redo history is empty.
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrNothingSelected indicates a bulk command needs a selection.
	ErrNothingSelected = errors.New("no cells selected")
	// ErrInvalidSplit indicates the split offset is outside the content.
	ErrInvalidSplit = errors.New("invalid split offset")
	// ErrClipboardEmpty indicates paste found nothing to paste.
	ErrClipboardEmpty = errors.New("clipboard is empty")
	// ErrNoClipboard indicates no clipboard is configured.
	ErrNoClipboard = errors.New("no clipboard configured")
	// ErrNoStore indicates persistence is not configured.
	ErrNoStore = errors.New("notebook store not configured")
)
