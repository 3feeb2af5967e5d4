package schema

import (
	"sort"
	"time"
)

// NotebookTemplate pre-populates a new notebook.
type NotebookTemplate struct {
	Name        string
	Description string
	Cells       []TemplateCell
}

// TemplateCell is one cell of a notebook template.
type TemplateCell struct {
	Type    CellType
	Content string
}

// NotebookTemplates lists the built-in notebook templates by name.
var NotebookTemplates = map[string]NotebookTemplate{
	"empty": {
		Name:        "empty",
		Description: "A notebook with no cells.",
	},
	"basic": {
		Name:        "basic",
		Description: "A heading and one code cell.",
		Cells: []TemplateCell{
			{Type: CellMarkdown, Content: "# Untitled notebook\n\nDescribe what this notebook does."},
			{Type: CellCode, Content: "greeting = \"hello\""},
		},
	},
	"analysis": {
		Name:        "analysis",
		Description: "Load, query and summarize a data set.",
		Cells: []TemplateCell{
			{Type: CellMarkdown, Content: "# Analysis\n\n## Inputs"},
			{Type: CellCode, Content: "values = [3, 1, 4, 1, 5, 9]"},
			{Type: CellSQL, Content: "SELECT *\nFROM my_table\nLIMIT 10;"},
			{Type: CellMarkdown, Content: "## Summary"},
			{Type: CellCode, Content: "total = sum(values)\ncount = len(values)\ntotal / count"},
		},
	},
}

// TemplateNames returns the template names in sorted order.
func TemplateNames() []string {
	names := make([]string, 0, len(NotebookTemplates))
	for name := range NotebookTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewNotebookFromTemplate builds a notebook whose cells come from the named
// template. Unknown names yield ErrInvalidRequest.
func NewNotebookFromTemplate(template, name string, settings NotebookSettings, now time.Time) (Notebook, error) {
	tpl, ok := NotebookTemplates[template]
	if !ok {
		return Notebook{}, ErrInvalidRequest
	}
	nb := NewNotebook(name, settings, now)
	for _, tc := range tpl.Cells {
		cell := NewCell(tc.Type, now)
		cell.Content = tc.Content
		nb.Cells = append(nb.Cells, cell)
	}
	return nb, nil
}
