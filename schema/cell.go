package schema

import (
	"maps"
	"slices"
	"time"
)

// Cell is one unit of content inside a notebook.
type Cell struct {
	ID             CellID         `json:"id"`
	Type           CellType       `json:"type"`
	Content        string         `json:"content"`
	Status         CellStatus     `json:"status"`
	Output         *CellOutput    `json:"output,omitempty"`
	ExecutionTime  *int64         `json:"executionTime,omitempty"`
	ExecutionCount *int           `json:"executionCount,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CellOutput is the structured result of the last run.
type CellOutput struct {
	Text   string     `json:"text,omitempty"`
	Error  *ExecError `json:"error,omitempty"`
	Images []Image    `json:"images,omitempty"`
	Tables []Table    `json:"tables,omitempty"`
	HTML   string     `json:"html,omitempty"`
}

// ExecError describes a failed run.
type ExecError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Image references an image produced by a run.
type Image struct {
	MIME string `json:"mime,omitempty"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Table is a tabular result.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Empty reports whether the output carries nothing to show.
func (o *CellOutput) Empty() bool {
	if o == nil {
		return true
	}
	return o.Text == "" && o.Error == nil && len(o.Images) == 0 && len(o.Tables) == 0 && o.HTML == ""
}

// Templates maps cell types to the content a new cell starts with.
type Templates map[CellType]string

// DefaultTemplates returns the built-in cell templates.
func DefaultTemplates() Templates {
	return Templates{
		CellCode:     "// Write your code here",
		CellMarkdown: "## New section\n\nWrite your notes here.",
		CellRaw:      "Raw text",
		CellSQL:      "SELECT *\nFROM my_table\nLIMIT 10;",
	}
}

// For returns the template for the cell type, falling back to the built-in one.
func (t Templates) For(cellType CellType) string {
	if value, ok := t[cellType]; ok {
		return value
	}
	return DefaultTemplates()[cellType]
}

// NewCell creates an idle cell of the given type with its template content.
func (t Templates) NewCell(cellType CellType, now time.Time) Cell {
	if !cellType.Valid() {
		cellType = CellCode
	}
	return Cell{
		ID:        NewCellID(),
		Type:      cellType,
		Content:   t.For(cellType),
		Status:    CellIdle,
		Timestamp: now,
	}
}

// Toggle cycles the cell type and resets content to the new type's template.
func (t Templates) Toggle(cell Cell, now time.Time) Cell {
	next := cell.Clone()
	next.Type = cell.Type.Next()
	next.Content = t.For(next.Type)
	next.Timestamp = now
	return next
}

// NewCell creates an idle cell using the built-in templates.
func NewCell(cellType CellType, now time.Time) Cell {
	return DefaultTemplates().NewCell(cellType, now)
}

// WithContent replaces the content and bumps the timestamp.
// Status and output are left untouched.
func (c Cell) WithContent(content string, now time.Time) Cell {
	next := c.Clone()
	next.Content = content
	next.Timestamp = now
	return next
}

// Toggled returns the cell converted to the next type using the built-in templates.
func (c Cell) Toggled(now time.Time) Cell {
	return DefaultTemplates().Toggle(c, now)
}

// Clone returns a deep copy of the cell.
func (c Cell) Clone() Cell {
	out := c
	if c.Output != nil {
		output := c.Output.Clone()
		out.Output = &output
	}
	if c.ExecutionTime != nil {
		v := *c.ExecutionTime
		out.ExecutionTime = &v
	}
	if c.ExecutionCount != nil {
		v := *c.ExecutionCount
		out.ExecutionCount = &v
	}
	if c.Metadata != nil {
		out.Metadata = maps.Clone(c.Metadata)
	}
	return out
}

// Clone returns a deep copy of the output.
func (o CellOutput) Clone() CellOutput {
	out := o
	if o.Error != nil {
		e := *o.Error
		out.Error = &e
	}
	if o.Images != nil {
		out.Images = slices.Clone(o.Images)
	}
	if o.Tables != nil {
		out.Tables = make([]Table, len(o.Tables))
		for i, table := range o.Tables {
			var rows [][]any
			if table.Rows != nil {
				rows = make([][]any, len(table.Rows))
				for j, row := range table.Rows {
					rows[j] = slices.Clone(row)
				}
			}
			out.Tables[i] = Table{Columns: slices.Clone(table.Columns), Rows: rows}
		}
	}
	return out
}

// Normalized returns a deep copy whose metadata values and table cells are in
// the shape produced by decoding JSON, so the cell survives a save and load
// unchanged.
func (c Cell) Normalized() Cell {
	out := c.Clone()
	out.Metadata = normalizeMetadata(out.Metadata)
	if out.Output != nil {
		output := out.Output.Normalized()
		out.Output = &output
	}
	return out
}

// Normalized returns a deep copy with every table cell in its JSON shape.
func (o CellOutput) Normalized() CellOutput {
	out := o.Clone()
	for _, table := range out.Tables {
		for _, row := range table.Rows {
			for i, value := range row {
				row[i] = NormalizeValue(value)
			}
		}
	}
	return out
}

func normalizeMetadata(metadata map[string]any) map[string]any {
	for key, value := range metadata {
		metadata[key] = NormalizeValue(value)
	}
	return metadata
}
