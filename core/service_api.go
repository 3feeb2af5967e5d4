package core

import (
	"context"

	"pkt.systems/cellbook/schema"
)

// Service is the transport-agnostic API of one notebook session. All notebook
// and kernel state is mutated through these actions.
type Service interface {
	Snapshot(ctx context.Context) (schema.SessionSnapshot, error)
	Notebook(ctx context.Context) (schema.Notebook, error)
	LoadNotebook(ctx context.Context, req schema.LoadNotebookRequest) (schema.LoadNotebookResponse, error)
	ImportNotebook(ctx context.Context, req schema.ImportNotebookRequest) (schema.ImportNotebookResponse, error)
	ExportNotebook(ctx context.Context) (schema.ExportNotebookResponse, error)
	UpdateMetadata(ctx context.Context, req schema.UpdateMetadataRequest) (schema.Notebook, error)
	UpdateSettings(ctx context.Context, req schema.UpdateSettingsRequest) (schema.Notebook, error)
	Save(ctx context.Context) error
	Close(ctx context.Context) error

	InsertCell(ctx context.Context, req schema.InsertCellRequest) (schema.InsertCellResponse, error)
	DeleteCell(ctx context.Context, req schema.DeleteCellRequest) (schema.DeleteCellResponse, error)
	MoveCell(ctx context.Context, req schema.MoveCellRequest) (schema.MoveCellResponse, error)
	UpdateCell(ctx context.Context, req schema.UpdateCellRequest) (schema.UpdateCellResponse, error)
	ToggleCellType(ctx context.Context, req schema.ToggleCellTypeRequest) (schema.ToggleCellTypeResponse, error)
	SplitCell(ctx context.Context, req schema.SplitCellRequest) (schema.SplitCellResponse, error)
	MergeCells(ctx context.Context, req schema.MergeCellsRequest) (schema.MergeCellsResponse, error)

	SetActiveCell(ctx context.Context, req schema.SetActiveCellRequest) error
	SelectCells(ctx context.Context, req schema.SelectCellsRequest) ([]schema.CellID, error)

	RunCell(ctx context.Context, req schema.RunCellRequest) (schema.RunResponse, error)
	RunCells(ctx context.Context, req schema.RunCellsRequest) (schema.RunResponse, error)
	Interrupt(ctx context.Context) error
	ClearOutputs(ctx context.Context) error

	ListKernels(ctx context.Context) ([]schema.KernelInfo, error)
	SelectKernel(ctx context.Context, req schema.SelectKernelRequest) (schema.KernelInfo, error)
	RestartKernel(ctx context.Context) (schema.KernelInfo, error)

	Undo(ctx context.Context) (schema.HistoryResponse, error)
	Redo(ctx context.Context) (schema.HistoryResponse, error)

	Notify(ctx context.Context, notice schema.Notice)
}
