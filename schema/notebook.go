package schema

import (
	"slices"
	"time"
)

// Notebook is an ordered collection of cells plus metadata.
type Notebook struct {
	ID          NotebookID       `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Tags        []string         `json:"tags"`
	Cells       []Cell           `json:"cells"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Settings    NotebookSettings `json:"settings"`
}

// NotebookSettings holds per-notebook editor and execution preferences.
type NotebookSettings struct {
	AutoSave        bool          `json:"autoSave"`
	ExecutionMode   ExecutionMode `json:"executionMode"`
	FontSize        int           `json:"fontSize"`
	TabSize         int           `json:"tabSize"`
	WordWrap        bool          `json:"wordWrap"`
	ShowLineNumbers bool          `json:"showLineNumbers"`
}

// DefaultNotebookSettings returns the settings new notebooks start with.
func DefaultNotebookSettings() NotebookSettings {
	return NotebookSettings{
		AutoSave:        true,
		ExecutionMode:   ExecutionSequential,
		FontSize:        14,
		TabSize:         4,
		WordWrap:        true,
		ShowLineNumbers: true,
	}
}

// NotebookSummary is the listing view of a stored notebook.
type NotebookSummary struct {
	ID        NotebookID `json:"id"`
	Name      string     `json:"name"`
	Cells     int        `json:"cells"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewNotebook returns an empty notebook.
func NewNotebook(name string, settings NotebookSettings, now time.Time) Notebook {
	if name == "" {
		name = "Untitled"
	}
	return Notebook{
		ID:        NewNotebookID(),
		Name:      name,
		Tags:      []string{},
		Cells:     []Cell{},
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  settings,
	}
}

// Summary returns the listing view of nb.
func (nb Notebook) Summary() NotebookSummary {
	return NotebookSummary{ID: nb.ID, Name: nb.Name, Cells: len(nb.Cells), UpdatedAt: nb.UpdatedAt}
}

// Clone returns a deep copy of the notebook.
func (nb Notebook) Clone() Notebook {
	out := nb
	if nb.Tags != nil {
		out.Tags = slices.Clone(nb.Tags)
	}
	if nb.Cells != nil {
		out.Cells = make([]Cell, len(nb.Cells))
		for i, cell := range nb.Cells {
			out.Cells[i] = cell.Clone()
		}
	}
	return out
}

// CellIndex returns the position of the cell or -1.
func (nb Notebook) CellIndex(id CellID) int {
	for i, cell := range nb.Cells {
		if cell.ID == id {
			return i
		}
	}
	return -1
}

// Cell returns the cell with the given id.
func (nb Notebook) Cell(id CellID) (Cell, bool) {
	idx := nb.CellIndex(id)
	if idx < 0 {
		return Cell{}, false
	}
	return nb.Cells[idx], true
}

// CellIDs returns every cell id in document order.
func (nb Notebook) CellIDs() []CellID {
	ids := make([]CellID, len(nb.Cells))
	for i, cell := range nb.Cells {
		ids[i] = cell.ID
	}
	return ids
}

// InsertOptions positions an inserted cell.
type InsertOptions struct {
	TargetID CellID
	Position Position
}

// InsertCell places cell before or after the target, or appends when the
// target does not resolve.
func InsertCell(nb Notebook, cell Cell, opts InsertOptions, now time.Time) Notebook {
	idx := len(nb.Cells)
	if opts.TargetID != "" {
		if target := nb.CellIndex(opts.TargetID); target >= 0 {
			idx = target
			if opts.Position != PositionAbove {
				idx = target + 1
			}
		}
	}
	return InsertCellAt(nb, cell, idx, now)
}

// InsertCellAt places cell at index, clamped to the notebook bounds.
func InsertCellAt(nb Notebook, cell Cell, index int, now time.Time) Notebook {
	out := nb.Clone()
	if index < 0 {
		index = 0
	}
	if index > len(out.Cells) {
		index = len(out.Cells)
	}
	cells := make([]Cell, 0, len(out.Cells)+1)
	cells = append(cells, out.Cells[:index]...)
	cells = append(cells, cell.Normalized())
	cells = append(cells, out.Cells[index:]...)
	out.Cells = cells
	out.UpdatedAt = now
	return out
}

// DeleteCell removes the cell by id. Unknown ids only bump UpdatedAt.
func DeleteCell(nb Notebook, id CellID, now time.Time) Notebook {
	out := nb.Clone()
	if idx := out.CellIndex(id); idx >= 0 {
		out.Cells = append(out.Cells[:idx:idx], out.Cells[idx+1:]...)
	}
	out.UpdatedAt = now
	return out
}

// MoveCell swaps the cell with its neighbour. At either boundary, or for an
// unknown id, nb is returned unchanged.
func MoveCell(nb Notebook, id CellID, direction Direction, now time.Time) Notebook {
	idx := nb.CellIndex(id)
	if idx < 0 {
		return nb
	}
	other := idx - 1
	if direction == DirectionDown {
		other = idx + 1
	}
	if other < 0 || other >= len(nb.Cells) {
		return nb
	}
	out := nb.Clone()
	out.Cells[idx], out.Cells[other] = out.Cells[other], out.Cells[idx]
	out.UpdatedAt = now
	return out
}

// CellPatch lists the fields UpdateCell merges into a cell. Nil fields are
// left untouched; metadata keys merge, a nil value removes the key.
type CellPatch struct {
	Type           *CellType
	Content        *string
	Status         *CellStatus
	Output         *CellOutput
	ClearOutput    bool
	ClearExecution bool
	ExecutionTime  *int64
	ExecutionCount *int
	Timestamp      *time.Time
	Metadata       map[string]any
}

// UpdateCell merges patch into the matching cell. A content change bumps the
// cell timestamp unless the patch sets one.
func UpdateCell(nb Notebook, id CellID, patch CellPatch, now time.Time) Notebook {
	out := nb.Clone()
	out.UpdatedAt = now
	idx := out.CellIndex(id)
	if idx < 0 {
		return out
	}
	out.Cells[idx] = patch.Apply(out.Cells[idx], now)
	return out
}

// Apply merges the patch into cell.
func (p CellPatch) Apply(cell Cell, now time.Time) Cell {
	next := cell.Clone()
	if p.Type != nil {
		next.Type = *p.Type
	}
	if p.Content != nil {
		next.Content = *p.Content
		next.Timestamp = now
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.ClearOutput {
		next.Output = nil
	}
	if p.Output != nil {
		output := p.Output.Normalized()
		next.Output = &output
	}
	if p.ClearExecution {
		next.ExecutionTime = nil
		next.ExecutionCount = nil
	}
	if p.ExecutionTime != nil {
		v := *p.ExecutionTime
		next.ExecutionTime = &v
	}
	if p.ExecutionCount != nil {
		v := *p.ExecutionCount
		next.ExecutionCount = &v
	}
	if p.Timestamp != nil {
		next.Timestamp = *p.Timestamp
	}
	if len(p.Metadata) > 0 {
		if next.Metadata == nil {
			next.Metadata = make(map[string]any, len(p.Metadata))
		}
		for key, value := range p.Metadata {
			if value == nil {
				delete(next.Metadata, key)
				continue
			}
			next.Metadata[key] = NormalizeValue(value)
		}
		if len(next.Metadata) == 0 {
			next.Metadata = nil
		}
	}
	return next
}

// MetadataPatch lists notebook metadata changes.
type MetadataPatch struct {
	Name        *string
	Description *string
	Tags        []string
	SetTags     bool
}

// UpdateMetadata applies patch to the notebook metadata.
func UpdateMetadata(nb Notebook, patch MetadataPatch, now time.Time) Notebook {
	out := nb.Clone()
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Description != nil {
		out.Description = *patch.Description
	}
	if patch.SetTags {
		out.Tags = append([]string{}, patch.Tags...)
	}
	out.UpdatedAt = now
	return out
}
