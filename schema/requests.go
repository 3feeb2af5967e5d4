package schema

// Notebook lifecycle.

// LoadNotebookRequest loads a stored notebook into the session.
type LoadNotebookRequest struct {
	NotebookID NotebookID
}

// LoadNotebookResponse returns the loaded notebook.
type LoadNotebookResponse struct {
	Notebook Notebook
}

// ImportNotebookRequest replaces the session notebook with serialized data.
type ImportNotebookRequest struct {
	Data []byte
}

// ImportNotebookResponse returns the imported notebook.
type ImportNotebookResponse struct {
	Notebook Notebook
}

// ExportNotebookResponse returns the serialized notebook.
type ExportNotebookResponse struct {
	Data []byte
}

// UpdateMetadataRequest edits name, description or tags.
type UpdateMetadataRequest struct {
	Name        *string
	Description *string
	Tags        []string
	SetTags     bool
}

// UpdateSettingsRequest replaces the notebook settings.
type UpdateSettingsRequest struct {
	Settings NotebookSettings
}

// Cell editing.

// InsertCellRequest inserts a new cell. When Cell is set it is inserted as
// given, except that a missing or colliding id is replaced.
type InsertCellRequest struct {
	Type     CellType
	Content  *string
	Cell     *Cell
	TargetID CellID
	Position Position
}

// InsertCellResponse returns the inserted cell.
type InsertCellResponse struct {
	Cell  Cell
	Index int
}

// DeleteCellRequest removes a cell.
type DeleteCellRequest struct {
	CellID CellID
}

// DeleteCellResponse reports whether a cell was removed.
type DeleteCellResponse struct {
	Deleted bool
}

// MoveCellRequest moves a cell one step.
type MoveCellRequest struct {
	CellID    CellID
	Direction Direction
}

// MoveCellResponse reports whether the cell moved.
type MoveCellResponse struct {
	Moved bool
	Index int
}

// UpdateCellRequest edits content and metadata of a cell.
type UpdateCellRequest struct {
	CellID   CellID
	Content  *string
	Metadata map[string]any
}

// UpdateCellResponse returns the updated cell.
type UpdateCellResponse struct {
	Cell Cell
}

// ToggleCellTypeRequest cycles the cell type.
type ToggleCellTypeRequest struct {
	CellID CellID
}

// ToggleCellTypeResponse returns the converted cell.
type ToggleCellTypeResponse struct {
	Cell Cell
}

// SplitCellRequest splits a cell at a rune offset.
type SplitCellRequest struct {
	CellID CellID
	Offset int
}

// SplitCellResponse returns both halves.
type SplitCellResponse struct {
	Head Cell
	Tail Cell
}

// MergeCellsRequest merges cells into the first one in document order.
type MergeCellsRequest struct {
	CellIDs []CellID
}

// MergeCellsResponse returns the merged cell and the removed ids.
type MergeCellsResponse struct {
	Cell    Cell
	Removed []CellID
}

// Selection.

// SelectionOp describes how SelectCells changes the selection.
type SelectionOp string

const (
	// SelectionAdd adds ids to the selection.
	SelectionAdd SelectionOp = "add"
	// SelectionRemove removes ids from the selection.
	SelectionRemove SelectionOp = "remove"
	// SelectionToggle flips membership of each id.
	SelectionToggle SelectionOp = "toggle"
	// SelectionReplace makes ids the whole selection.
	SelectionReplace SelectionOp = "replace"
	// SelectionClear empties the selection.
	SelectionClear SelectionOp = "clear"
)

// SelectCellsRequest changes the multi-cell selection.
type SelectCellsRequest struct {
	Op      SelectionOp
	CellIDs []CellID
}

// SetActiveCellRequest focuses a cell. An empty id clears focus.
type SetActiveCellRequest struct {
	CellID CellID
}

// Execution.

// RunScope selects the cells a batch run targets.
type RunScope string

const (
	// RunScopeAll targets every code cell.
	RunScopeAll RunScope = "all"
	// RunScopeSelected targets selected code cells.
	RunScopeSelected RunScope = "selected"
	// RunScopeCells targets the listed cells.
	RunScopeCells RunScope = "cells"
)

// RunCellRequest runs a single cell.
type RunCellRequest struct {
	CellID CellID
}

// RunCellsRequest runs a batch of cells in document order.
type RunCellsRequest struct {
	Scope   RunScope
	CellIDs []CellID
}

// CellRunResult is the outcome of one cell in a run.
type CellRunResult struct {
	CellID         CellID
	Status         CellStatus
	ExecutionCount int
	Error          *ExecError
}

// RunResponse lists outcomes in completion order.
type RunResponse struct {
	Results []CellRunResult
}

// Kernel.

// SelectKernelRequest makes a registered kernel current.
type SelectKernelRequest struct {
	KernelID KernelID
}

// History.

// HistoryResponse names the mutation that was undone or redone.
type HistoryResponse struct {
	Label string
}
