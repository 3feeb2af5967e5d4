package command

import (
	"context"
	"encoding/json"
	"fmt"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/schema"
)

// Copy writes the cell to the clipboard and reports the outcome.
func (h *Handler) Copy(ctx context.Context, id schema.CellID) schema.Notice {
	return h.finish(ctx, "Copy failed")(h.copyCell(ctx, id))
}

// Paste appends the clipboard cell under a fresh id.
func (h *Handler) Paste(ctx context.Context) schema.Notice {
	return h.finish(ctx, "Paste failed")(h.paste(ctx))
}

// MergeSelected merges the selected cells into the first in document order.
func (h *Handler) MergeSelected(ctx context.Context) schema.Notice {
	return h.finish(ctx, "Merge failed")(h.mergeSelected(ctx))
}

// SelectAll selects every cell.
func (h *Handler) SelectAll(ctx context.Context) schema.Notice {
	return h.finish(ctx, "Select failed")(h.selectAll(ctx))
}

func (h *Handler) finish(ctx context.Context, title string) func(outcome, error) schema.Notice {
	return func(out outcome, err error) schema.Notice {
		if err != nil {
			return h.fail(ctx, title, err)
		}
		return h.report(ctx, out)
	}
}

func (h *Handler) copyCell(ctx context.Context, id schema.CellID) (outcome, error) {
	if h.cfg.Clipboard == nil {
		return outcome{}, schema.ErrNoClipboard
	}
	nb, err := h.service.Notebook(ctx)
	if err != nil {
		return outcome{}, err
	}
	cell, ok := nb.Cell(id)
	if !ok {
		return outcome{}, schema.ErrCellNotFound
	}
	data, err := json.Marshal(cell)
	if err != nil {
		return outcome{}, fmt.Errorf("encode cell: %w", err)
	}
	if err := h.cfg.Clipboard.Write(ctx, data); err != nil {
		return outcome{}, fmt.Errorf("write clipboard: %w", err)
	}
	logx.WithCell(ctx, nb.ID, id).Debug("command cell copied", "bytes", len(data))
	return success("Cell copied", fmt.Sprintf("%s cell copied", cell.Type)), nil
}

func (h *Handler) paste(ctx context.Context) (outcome, error) {
	if h.cfg.Clipboard == nil {
		return outcome{}, schema.ErrNoClipboard
	}
	data, err := h.cfg.Clipboard.Read(ctx)
	if err != nil {
		return outcome{}, err
	}
	var cell schema.Cell
	if err := json.Unmarshal(data, &cell); err != nil {
		return outcome{}, fmt.Errorf("%w: clipboard does not hold a cell", schema.ErrInvalidRequest)
	}
	if !cell.Type.Valid() {
		return outcome{}, schema.ErrInvalidCellType
	}
	cell.ID = ""
	resp, err := h.service.InsertCell(ctx, schema.InsertCellRequest{Cell: &cell})
	if err != nil {
		return outcome{}, err
	}
	_ = h.service.SetActiveCell(ctx, schema.SetActiveCellRequest{CellID: resp.Cell.ID})
	return success("Cell pasted", fmt.Sprintf("%s cell %d pasted", resp.Cell.Type, resp.Index+1)), nil
}

func (h *Handler) mergeSelected(ctx context.Context) (outcome, error) {
	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		return outcome{}, err
	}
	if len(snap.SelectedCellIDs) == 0 {
		return outcome{}, schema.ErrNothingSelected
	}
	resp, err := h.service.MergeCells(ctx, schema.MergeCellsRequest{CellIDs: snap.SelectedCellIDs})
	if err != nil {
		return outcome{}, err
	}
	return success("Cells merged", fmt.Sprintf("%d cells merged", len(resp.Removed)+1)), nil
}

func (h *Handler) selectAll(ctx context.Context) (outcome, error) {
	nb, err := h.service.Notebook(ctx)
	if err != nil {
		return outcome{}, err
	}
	selected, err := h.service.SelectCells(ctx, schema.SelectCellsRequest{Op: schema.SelectionReplace, CellIDs: nb.CellIDs()})
	if err != nil {
		return outcome{}, err
	}
	return info("All selected", fmt.Sprintf("%d selected", len(selected))), nil
}
