// Package format renders notebook state as plain text for terminals.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/cellbook/internal/markdown"
	"pkt.systems/cellbook/schema"
)

const previewWidth = 48

// CellTitle labels a cell by position and type, with its execution count
// once it has run.
func CellTitle(index int, cell schema.Cell) string {
	title := fmt.Sprintf("[%d] %s", index+1, cell.Type)
	if cell.ExecutionCount != nil {
		title += fmt.Sprintf(" In [%d]", *cell.ExecutionCount)
	}
	return title
}

// Cell renders the content of a cell followed by its output.
func Cell(cell schema.Cell) string {
	var b strings.Builder
	switch cell.Type {
	case schema.CellMarkdown:
		b.WriteString(markdown.Render(cell.Content))
	default:
		b.WriteString(cell.Content)
	}
	if out := Output(cell.Output); out != "" {
		b.WriteString("\n---\n")
		b.WriteString(out)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Output renders the structured output of a run.
func Output(out *schema.CellOutput) string {
	if out.Empty() {
		return ""
	}
	var parts []string
	if text := strings.TrimRight(out.Text, "\n"); text != "" {
		parts = append(parts, text)
	}
	for _, table := range out.Tables {
		parts = append(parts, Table(table))
	}
	for _, image := range out.Images {
		parts = append(parts, imageLine(image))
	}
	if out.HTML != "" {
		parts = append(parts, fmt.Sprintf("<html %d bytes>", len(out.HTML)))
	}
	if out.Error != nil {
		parts = append(parts, ExecError(out.Error))
	}
	return strings.Join(parts, "\n")
}

// ExecError renders a failed run as "Name: message".
func ExecError(err *schema.ExecError) string {
	if err == nil {
		return ""
	}
	line := err.Message
	if err.Name != "" {
		line = err.Name + ": " + err.Message
	}
	return line
}

func imageLine(image schema.Image) string {
	if image.URL != "" {
		return fmt.Sprintf("<image %s>", image.URL)
	}
	return fmt.Sprintf("<image %s %d bytes>", image.MIME, len(image.Data))
}

// Table renders rows in aligned columns.
func Table(table schema.Table) string {
	widths := make([]int, len(table.Columns))
	cells := make([][]string, 0, len(table.Rows)+1)
	cells = append(cells, table.Columns)
	for _, row := range table.Rows {
		line := make([]string, len(table.Columns))
		for i := range line {
			if i < len(row) {
				line[i] = fmt.Sprint(row[i])
			}
		}
		cells = append(cells, line)
	}
	for _, row := range cells {
		for i, value := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(value))
		}
	}
	var b strings.Builder
	for r, row := range cells {
		for i, value := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(value)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(value)))
			}
		}
		if r < len(cells)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Cells renders one summary line per cell. The active cell is marked with
// ">" and selected cells with "*".
func Cells(snap schema.SessionSnapshot) string {
	if len(snap.Notebook.Cells) == 0 {
		return "(empty notebook)"
	}
	lines := make([]string, 0, len(snap.Notebook.Cells))
	for i, cell := range snap.Notebook.Cells {
		marker := " "
		if cell.ID == snap.ActiveCellID {
			marker = ">"
		}
		if snap.Selected(cell.ID) {
			marker += "*"
		} else {
			marker += " "
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s  %s", marker, CellTitle(i, cell), shortID(cell.ID), cell.Status, preview(cell.Content)))
	}
	return strings.Join(lines, "\n")
}

// Kernels renders the kernel list, marking the current one.
func Kernels(kernels []schema.KernelInfo) string {
	if len(kernels) == 0 {
		return "(no kernels)"
	}
	lines := make([]string, 0, len(kernels))
	for _, kernel := range kernels {
		marker := " "
		if kernel.Current {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s (%s) %s", marker, kernel.ID, kernel.Name, kernel.Language, kernel.Status))
	}
	return strings.Join(lines, "\n")
}

// Variables renders "name: type = repr" lines sorted by name.
func Variables(vars map[string]schema.Variable) string {
	names := schema.VariableNames(vars)
	if len(names) == 0 {
		return "(no variables)"
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		v := vars[name]
		lines = append(lines, fmt.Sprintf("%s: %s = %s", name, v.Type, v.Repr))
	}
	return strings.Join(lines, "\n")
}

func shortID(id schema.CellID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

func preview(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	if utf8.RuneCountInString(line) <= previewWidth {
		return line
	}
	runes := []rune(line)
	return string(runes[:previewWidth-1]) + "…"
}
