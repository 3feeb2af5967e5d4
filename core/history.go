package core

import (
	"time"

	"pkt.systems/cellbook/schema"
)

const defaultHistoryMax = 200

type notebookOp func(nb schema.Notebook, now time.Time) schema.Notebook

// edit is one undoable mutation: redo re-applies it, undo inverts it.
type edit struct {
	label string
	redo  notebookOp
	undo  notebookOp
}

// history is a bounded command log of inverse mutation pairs.
type history struct {
	done   []edit
	undone []edit
	max    int
}

func newHistory(max int) *history {
	if max <= 0 {
		max = defaultHistoryMax
	}
	return &history{max: max}
}

// Record appends e and drops the redo stack.
func (h *history) Record(e edit) {
	if h == nil || e.redo == nil || e.undo == nil {
		return
	}
	h.done = append(h.done, e)
	if len(h.done) > h.max {
		h.done = append([]edit(nil), h.done[len(h.done)-h.max:]...)
	}
	h.undone = nil
}

// Undo pops the last edit onto the redo stack.
func (h *history) Undo() (edit, bool) {
	if h == nil || len(h.done) == 0 {
		return edit{}, false
	}
	e := h.done[len(h.done)-1]
	h.done = h.done[:len(h.done)-1]
	h.undone = append(h.undone, e)
	return e, true
}

// Redo pops the last undone edit back onto the undo stack.
func (h *history) Redo() (edit, bool) {
	if h == nil || len(h.undone) == 0 {
		return edit{}, false
	}
	e := h.undone[len(h.undone)-1]
	h.undone = h.undone[:len(h.undone)-1]
	h.done = append(h.done, e)
	return e, true
}

// Reset drops all history.
func (h *history) Reset() {
	if h == nil {
		return
	}
	h.done = nil
	h.undone = nil
}

func (h *history) CanUndo() bool { return h != nil && len(h.done) > 0 }

func (h *history) CanRedo() bool { return h != nil && len(h.undone) > 0 }

// Notebook operations used as inverse pairs.

func opInsertAt(cell schema.Cell, index int) notebookOp {
	cell = cell.Clone()
	return func(nb schema.Notebook, now time.Time) schema.Notebook {
		return schema.InsertCellAt(nb, cell, index, now)
	}
}

func opDelete(id schema.CellID) notebookOp {
	return func(nb schema.Notebook, now time.Time) schema.Notebook {
		return schema.DeleteCell(nb, id, now)
	}
}

func opMove(id schema.CellID, direction schema.Direction) notebookOp {
	return func(nb schema.Notebook, now time.Time) schema.Notebook {
		return schema.MoveCell(nb, id, direction, now)
	}
}

func opUpdate(id schema.CellID, patch schema.CellPatch) notebookOp {
	return func(nb schema.Notebook, now time.Time) schema.Notebook {
		return schema.UpdateCell(nb, id, patch, now)
	}
}

func opMetadata(patch schema.MetadataPatch) notebookOp {
	return func(nb schema.Notebook, now time.Time) schema.Notebook {
		return schema.UpdateMetadata(nb, patch, now)
	}
}

func opSettings(settings schema.NotebookSettings) notebookOp {
	return func(nb schema.Notebook, now time.Time) schema.Notebook {
		out := nb.Clone()
		out.Settings = settings
		out.UpdatedAt = now
		return out
	}
}

// opSequence applies ops in order.
func opSequence(ops ...notebookOp) notebookOp {
	return func(nb schema.Notebook, now time.Time) schema.Notebook {
		for _, op := range ops {
			nb = op(nb, now)
		}
		return nb
	}
}
