package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/schema"
)

// Cell editing.

func (s *service) InsertCell(ctx context.Context, req schema.InsertCellRequest) (schema.InsertCellResponse, error) {
	if ctx == nil {
		return schema.InsertCellResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	now := s.now()
	var cell schema.Cell
	if req.Cell != nil {
		cell = req.Cell.Normalized()
		if !cell.Type.Valid() {
			s.mu.Unlock()
			return schema.InsertCellResponse{}, schema.ErrInvalidCellType
		}
		if cell.ID == "" || s.nb.CellIndex(cell.ID) >= 0 {
			cell.ID = schema.NewCellID()
		}
		if cell.Status == "" || cell.Status == schema.CellRunning {
			cell.Status = schema.CellIdle
		}
		if cell.Timestamp.IsZero() {
			cell.Timestamp = now
		}
	} else {
		cellType := req.Type
		if cellType == "" {
			cellType = schema.CellCode
		}
		if !cellType.Valid() {
			s.mu.Unlock()
			return schema.InsertCellResponse{}, schema.ErrInvalidCellType
		}
		cell = s.cfg.Templates.NewCell(cellType, now)
		if req.Content != nil {
			cell.Content = *req.Content
		}
	}
	index := len(s.nb.Cells)
	if target := s.nb.CellIndex(req.TargetID); target >= 0 {
		index = target
		if req.Position != schema.PositionAbove {
			index = target + 1
		}
	}
	event := s.commitLocked(edit{
		label: "insert cell",
		redo:  opInsertAt(cell, index),
		undo:  opDelete(cell.ID),
	}, schema.NotebookCellInserted, cell.ID)
	log := logx.WithCell(ctx, s.nb.ID, cell.ID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session cell inserted", "type", cell.Type, "index", index)
	return schema.InsertCellResponse{Cell: cell.Clone(), Index: index}, nil
}

func (s *service) DeleteCell(ctx context.Context, req schema.DeleteCellRequest) (schema.DeleteCellResponse, error) {
	if ctx == nil {
		return schema.DeleteCellResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	log := logx.WithCell(ctx, s.nb.ID, req.CellID)
	index := s.nb.CellIndex(req.CellID)
	if index < 0 {
		s.nb = schema.DeleteCell(s.nb, req.CellID, s.now())
		s.dirty = true
		event := s.eventLocked(schema.NotebookCellDeleted)
		auto := s.autosaveEnabledLocked()
		s.mu.Unlock()
		s.afterChange(event, auto)
		log.Debug("session cell delete skipped", "reason", "not found")
		return schema.DeleteCellResponse{Deleted: false}, nil
	}
	cell := s.nb.Cells[index]
	if cell.Status == schema.CellRunning {
		s.mu.Unlock()
		return schema.DeleteCellResponse{}, schema.ErrSessionBusy
	}
	event := s.commitLocked(edit{
		label: "delete cell",
		redo:  opDelete(cell.ID),
		undo:  opInsertAt(cell, index),
	}, schema.NotebookCellDeleted, cell.ID)
	s.pruneSelectionLocked()
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session cell deleted", "index", index)
	return schema.DeleteCellResponse{Deleted: true}, nil
}

func (s *service) MoveCell(ctx context.Context, req schema.MoveCellRequest) (schema.MoveCellResponse, error) {
	if ctx == nil {
		return schema.MoveCellResponse{}, errors.New("missing context")
	}
	var opposite schema.Direction
	switch req.Direction {
	case schema.DirectionUp:
		opposite = schema.DirectionDown
	case schema.DirectionDown:
		opposite = schema.DirectionUp
	default:
		return schema.MoveCellResponse{}, schema.ErrInvalidRequest
	}
	s.mu.Lock()
	index := s.nb.CellIndex(req.CellID)
	if index < 0 {
		s.mu.Unlock()
		return schema.MoveCellResponse{}, schema.ErrCellNotFound
	}
	other := index - 1
	if req.Direction == schema.DirectionDown {
		other = index + 1
	}
	if other < 0 || other >= len(s.nb.Cells) {
		s.mu.Unlock()
		return schema.MoveCellResponse{Moved: false, Index: index}, nil
	}
	event := s.commitLocked(edit{
		label: "move cell " + string(req.Direction),
		redo:  opMove(req.CellID, req.Direction),
		undo:  opMove(req.CellID, opposite),
	}, schema.NotebookCellMoved, req.CellID)
	log := logx.WithCell(ctx, s.nb.ID, req.CellID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session cell moved", "from", index, "to", other)
	return schema.MoveCellResponse{Moved: true, Index: other}, nil
}

func (s *service) UpdateCell(ctx context.Context, req schema.UpdateCellRequest) (schema.UpdateCellResponse, error) {
	if ctx == nil {
		return schema.UpdateCellResponse{}, errors.New("missing context")
	}
	if req.Content == nil && len(req.Metadata) == 0 {
		return schema.UpdateCellResponse{}, schema.ErrInvalidRequest
	}
	s.mu.Lock()
	cell, ok := s.nb.Cell(req.CellID)
	if !ok {
		s.mu.Unlock()
		return schema.UpdateCellResponse{}, schema.ErrCellNotFound
	}
	redo := schema.CellPatch{Content: req.Content, Metadata: maps.Clone(req.Metadata)}
	undo := schema.CellPatch{}
	if req.Content != nil {
		content := cell.Content
		undo.Content = &content
	}
	if len(req.Metadata) > 0 {
		undo.Metadata = make(map[string]any, len(req.Metadata))
		for key := range req.Metadata {
			undo.Metadata[key] = cell.Metadata[key]
		}
	}
	event := s.commitLocked(edit{
		label: "edit cell",
		redo:  opUpdate(cell.ID, redo),
		undo:  opUpdate(cell.ID, undo),
	}, schema.NotebookCellUpdated, cell.ID)
	updated, _ := s.nb.Cell(cell.ID)
	log := logx.WithCell(ctx, s.nb.ID, cell.ID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Debug("session cell updated", "content", req.Content != nil, "metadata_keys", len(req.Metadata))
	return schema.UpdateCellResponse{Cell: updated.Clone()}, nil
}

func (s *service) ToggleCellType(ctx context.Context, req schema.ToggleCellTypeRequest) (schema.ToggleCellTypeResponse, error) {
	if ctx == nil {
		return schema.ToggleCellTypeResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	cell, ok := s.nb.Cell(req.CellID)
	if !ok {
		s.mu.Unlock()
		return schema.ToggleCellTypeResponse{}, schema.ErrCellNotFound
	}
	if cell.Status == schema.CellRunning {
		s.mu.Unlock()
		return schema.ToggleCellTypeResponse{}, schema.ErrSessionBusy
	}
	toggled := s.cfg.Templates.Toggle(cell, s.now())
	prevType, prevContent := cell.Type, cell.Content
	event := s.commitLocked(edit{
		label: "toggle cell type",
		redo:  opUpdate(cell.ID, schema.CellPatch{Type: &toggled.Type, Content: &toggled.Content}),
		undo:  opUpdate(cell.ID, schema.CellPatch{Type: &prevType, Content: &prevContent}),
	}, schema.NotebookCellUpdated, cell.ID)
	updated, _ := s.nb.Cell(cell.ID)
	log := logx.WithCell(ctx, s.nb.ID, cell.ID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session cell type toggled", "from", prevType, "to", toggled.Type)
	return schema.ToggleCellTypeResponse{Cell: updated.Clone()}, nil
}

func (s *service) SplitCell(ctx context.Context, req schema.SplitCellRequest) (schema.SplitCellResponse, error) {
	if ctx == nil {
		return schema.SplitCellResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	index := s.nb.CellIndex(req.CellID)
	if index < 0 {
		s.mu.Unlock()
		return schema.SplitCellResponse{}, schema.ErrCellNotFound
	}
	cell := s.nb.Cells[index]
	if cell.Status == schema.CellRunning {
		s.mu.Unlock()
		return schema.SplitCellResponse{}, schema.ErrSessionBusy
	}
	runes := []rune(cell.Content)
	if req.Offset < 0 || req.Offset > len(runes) {
		s.mu.Unlock()
		return schema.SplitCellResponse{}, schema.ErrInvalidSplit
	}
	now := s.now()
	head := string(runes[:req.Offset])
	original := cell.Content
	tail := schema.Cell{
		ID:        schema.NewCellID(),
		Type:      cell.Type,
		Content:   string(runes[req.Offset:]),
		Status:    schema.CellIdle,
		Timestamp: now,
		Metadata:  maps.Clone(cell.Metadata),
	}
	event := s.commitLocked(edit{
		label: "split cell",
		redo:  opSequence(opUpdate(cell.ID, schema.CellPatch{Content: &head}), opInsertAt(tail, index+1)),
		undo:  opSequence(opDelete(tail.ID), opUpdate(cell.ID, schema.CellPatch{Content: &original})),
	}, schema.NotebookCellInserted, cell.ID, tail.ID)
	headCell, _ := s.nb.Cell(cell.ID)
	log := logx.WithCell(ctx, s.nb.ID, cell.ID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session cell split", "offset", req.Offset, "tail", tail.ID)
	return schema.SplitCellResponse{Head: headCell.Clone(), Tail: tail.Clone()}, nil
}

func (s *service) MergeCells(ctx context.Context, req schema.MergeCellsRequest) (schema.MergeCellsResponse, error) {
	if ctx == nil {
		return schema.MergeCellsResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	wanted := make(map[schema.CellID]struct{}, len(req.CellIDs))
	for _, id := range req.CellIDs {
		if s.nb.CellIndex(id) < 0 {
			s.mu.Unlock()
			return schema.MergeCellsResponse{}, schema.ErrCellNotFound
		}
		wanted[id] = struct{}{}
	}
	type indexed struct {
		cell  schema.Cell
		index int
	}
	var targets []indexed
	for i, cell := range s.nb.Cells {
		if _, ok := wanted[cell.ID]; !ok {
			continue
		}
		if cell.Status == schema.CellRunning {
			s.mu.Unlock()
			return schema.MergeCellsResponse{}, schema.ErrSessionBusy
		}
		targets = append(targets, indexed{cell: cell.Clone(), index: i})
	}
	if len(targets) < 2 {
		s.mu.Unlock()
		return schema.MergeCellsResponse{}, fmt.Errorf("%w: merge needs at least two cells", schema.ErrInvalidRequest)
	}
	first := targets[0].cell
	parts := make([]string, len(targets))
	redoOps := []notebookOp{nil}
	undoOps := []notebookOp{opUpdate(first.ID, schema.CellPatch{Content: &first.Content})}
	removed := make([]schema.CellID, 0, len(targets)-1)
	for i, target := range targets {
		parts[i] = target.cell.Content
		if i == 0 {
			continue
		}
		removed = append(removed, target.cell.ID)
		redoOps = append(redoOps, opDelete(target.cell.ID))
		undoOps = append(undoOps, opInsertAt(target.cell, target.index))
	}
	merged := strings.Join(parts, "\n")
	redoOps[0] = opUpdate(first.ID, schema.CellPatch{Content: &merged})
	event := s.commitLocked(edit{
		label: "merge cells",
		redo:  opSequence(redoOps...),
		undo:  opSequence(undoOps...),
	}, schema.NotebookCellUpdated, append([]schema.CellID{first.ID}, removed...)...)
	if s.active != "" && s.nb.CellIndex(s.active) < 0 {
		s.active = first.ID
	}
	s.pruneSelectionLocked()
	cell, _ := s.nb.Cell(first.ID)
	log := logx.WithCell(ctx, s.nb.ID, first.ID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session cells merged", "removed", len(removed))
	return schema.MergeCellsResponse{Cell: cell.Clone(), Removed: removed}, nil
}

// Selection.

func (s *service) SetActiveCell(ctx context.Context, req schema.SetActiveCellRequest) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	s.mu.Lock()
	if req.CellID != "" && s.nb.CellIndex(req.CellID) < 0 {
		s.mu.Unlock()
		return schema.ErrCellNotFound
	}
	s.active = req.CellID
	event := s.eventLocked(schema.NotebookSelection, req.CellID)
	s.mu.Unlock()
	s.emitNotebook(event)
	return nil
}

func (s *service) SelectCells(ctx context.Context, req schema.SelectCellsRequest) ([]schema.CellID, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	s.mu.Lock()
	if req.Op != schema.SelectionClear {
		for _, id := range req.CellIDs {
			if s.nb.CellIndex(id) < 0 {
				s.mu.Unlock()
				return nil, schema.ErrCellNotFound
			}
		}
	}
	switch req.Op {
	case schema.SelectionAdd:
		for _, id := range req.CellIDs {
			s.selected[id] = struct{}{}
		}
	case schema.SelectionRemove:
		for _, id := range req.CellIDs {
			delete(s.selected, id)
		}
	case schema.SelectionToggle:
		for _, id := range req.CellIDs {
			if _, ok := s.selected[id]; ok {
				delete(s.selected, id)
			} else {
				s.selected[id] = struct{}{}
			}
		}
	case schema.SelectionReplace:
		s.selected = make(map[schema.CellID]struct{}, len(req.CellIDs))
		for _, id := range req.CellIDs {
			s.selected[id] = struct{}{}
		}
	case schema.SelectionClear:
		s.selected = make(map[schema.CellID]struct{})
	default:
		s.mu.Unlock()
		return nil, schema.ErrInvalidRequest
	}
	selection := s.selectionLocked()
	event := s.eventLocked(schema.NotebookSelection, selection...)
	s.mu.Unlock()
	s.emitNotebook(event)
	return selection, nil
}

// History.

func (s *service) Undo(ctx context.Context) (schema.HistoryResponse, error) {
	return s.replay(ctx, true)
}

func (s *service) Redo(ctx context.Context) (schema.HistoryResponse, error) {
	return s.replay(ctx, false)
}

func (s *service) replay(ctx context.Context, undo bool) (schema.HistoryResponse, error) {
	if ctx == nil {
		return schema.HistoryResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return schema.HistoryResponse{}, schema.ErrSessionBusy
	}
	var (
		e  edit
		ok bool
		op notebookOp
	)
	if undo {
		e, ok = s.history.Undo()
		op = e.undo
	} else {
		e, ok = s.history.Redo()
		op = e.redo
	}
	if !ok {
		s.mu.Unlock()
		if undo {
			return schema.HistoryResponse{}, schema.ErrNothingToUndo
		}
		return schema.HistoryResponse{}, schema.ErrNothingToRedo
	}
	s.nb = op(s.nb, s.now())
	s.pruneSelectionLocked()
	s.dirty = true
	event := s.eventLocked(schema.NotebookHistory)
	log := logx.WithNotebook(ctx, s.nb.ID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session history replayed", "undo", undo, "label", e.label)
	return schema.HistoryResponse{Label: e.label}, nil
}
