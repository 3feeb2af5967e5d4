package schema

import (
	"strings"

	"github.com/google/uuid"
)

// NotebookID identifies a notebook.
type NotebookID string

// CellID identifies a cell within a notebook.
type CellID string

// KernelID identifies an execution back-end.
type KernelID string

// NewNotebookID returns a fresh random notebook id.
func NewNotebookID() NotebookID {
	return NotebookID(uuid.NewString())
}

// NewCellID returns a fresh random cell id.
func NewCellID() CellID {
	return CellID(uuid.NewString())
}

// CellType is the tagged variant of a cell.
type CellType string

const (
	// CellCode is an executable code cell.
	CellCode CellType = "code"
	// CellMarkdown is a prose cell.
	CellMarkdown CellType = "markdown"
	// CellRaw is an uninterpreted text cell.
	CellRaw CellType = "raw"
	// CellSQL is a query cell bound to a data source.
	CellSQL CellType = "sql"
)

// CellTypes lists every cell type in display order.
var CellTypes = []CellType{CellCode, CellMarkdown, CellRaw, CellSQL}

// Valid reports whether t is a known cell type.
func (t CellType) Valid() bool {
	switch t {
	case CellCode, CellMarkdown, CellRaw, CellSQL:
		return true
	default:
		return false
	}
}

// Runnable reports whether cells of type t can be sent to a kernel.
func (t CellType) Runnable() bool {
	switch t {
	case CellCode:
		return true
	case CellMarkdown, CellRaw, CellSQL:
		return false
	default:
		return false
	}
}

// Next returns the type produced by toggling a cell of type t.
// The cycle is code, markdown, raw, code; sql re-enters at code.
func (t CellType) Next() CellType {
	switch t {
	case CellCode:
		return CellMarkdown
	case CellMarkdown:
		return CellRaw
	case CellRaw:
		return CellCode
	case CellSQL:
		return CellCode
	default:
		return CellCode
	}
}

// ParseCellType normalizes a user-supplied cell type.
func ParseCellType(value string) (CellType, error) {
	t := CellType(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", ErrInvalidCellType
	}
	return t, nil
}

// CellStatus is the execution state of a cell.
type CellStatus string

const (
	// CellIdle indicates a cell has not run since creation or the last clear.
	CellIdle CellStatus = "idle"
	// CellRunning indicates the cell is executing.
	CellRunning CellStatus = "running"
	// CellSuccess indicates the last run completed.
	CellSuccess CellStatus = "success"
	// CellError indicates the last run failed.
	CellError CellStatus = "error"
	// CellCancelled indicates the last run was interrupted.
	CellCancelled CellStatus = "cancelled"
)

// Terminal reports whether s ends a run.
func (s CellStatus) Terminal() bool {
	switch s {
	case CellSuccess, CellError, CellCancelled:
		return true
	default:
		return false
	}
}

// KernelStatus is the state of the current kernel.
type KernelStatus string

const (
	// KernelIdle indicates the kernel is ready.
	KernelIdle KernelStatus = "idle"
	// KernelBusy indicates a run is in flight.
	KernelBusy KernelStatus = "busy"
	// KernelErrored indicates the last run failed.
	KernelErrored KernelStatus = "error"
)

// ExecutionMode selects how batch runs are scheduled.
type ExecutionMode string

const (
	// ExecutionSequential runs cells one at a time in document order.
	ExecutionSequential ExecutionMode = "sequential"
	// ExecutionParallel runs cells concurrently against the batch-start variables.
	ExecutionParallel ExecutionMode = "parallel"
)

// ParseExecutionMode normalizes an execution mode value.
func ParseExecutionMode(value string) (ExecutionMode, error) {
	switch mode := ExecutionMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case ExecutionSequential, ExecutionParallel:
		return mode, nil
	case "":
		return ExecutionSequential, nil
	default:
		return "", ErrInvalidExecutionMode
	}
}

// Position places an inserted cell relative to its target.
type Position string

const (
	// PositionAbove inserts before the target.
	PositionAbove Position = "above"
	// PositionBelow inserts after the target.
	PositionBelow Position = "below"
)

// Direction is a single-step move.
type Direction string

const (
	// DirectionUp swaps with the previous cell.
	DirectionUp Direction = "up"
	// DirectionDown swaps with the next cell.
	DirectionDown Direction = "down"
)
