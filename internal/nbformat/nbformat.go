// Package nbformat encodes and decodes the JSON notebook document.
//
// The document's top-level shape is the schema.Notebook entity. Decode
// validates the minimum needed to accept a document (top-level object,
// "cells" array, string "name" and "id") and repairs cell ids so that every
// id in the result is unique.
package nbformat

import (
	"encoding/json"
	"fmt"

	"pkt.systems/cellbook/schema"
)

// Encode returns the indented JSON document for nb.
func Encode(nb schema.Notebook) ([]byte, error) {
	if nb.Cells == nil {
		nb.Cells = []schema.Cell{}
	}
	return json.MarshalIndent(nb, "", "  ")
}

// Decode parses and validates a notebook document. Errors wrap
// schema.ErrInvalidNotebook.
func Decode(data []byte) (schema.Notebook, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return schema.Notebook{}, invalid("parse: %v", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return schema.Notebook{}, invalid("document must be an object")
	}
	if _, ok := obj["cells"].([]any); !ok {
		return schema.Notebook{}, invalid("cells must be a list")
	}
	if _, ok := obj["name"].(string); !ok {
		return schema.Notebook{}, invalid("name must be a string")
	}
	if _, ok := obj["id"].(string); !ok {
		return schema.Notebook{}, invalid("id must be a string")
	}

	var nb schema.Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return schema.Notebook{}, invalid("decode: %v", err)
	}
	if nb.ID == "" {
		nb.ID = schema.NewNotebookID()
	}
	if _, ok := obj["settings"]; !ok {
		nb.Settings = schema.DefaultNotebookSettings()
	}
	mode, err := schema.ParseExecutionMode(string(nb.Settings.ExecutionMode))
	if err != nil {
		return schema.Notebook{}, invalid("settings: %v", err)
	}
	nb.Settings.ExecutionMode = mode

	seen := make(map[schema.CellID]struct{}, len(nb.Cells))
	for i := range nb.Cells {
		cell := &nb.Cells[i]
		if !cell.Type.Valid() {
			return schema.Notebook{}, invalid("cell %d: unknown type %q", i, cell.Type)
		}
		if _, dup := seen[cell.ID]; cell.ID == "" || dup {
			cell.ID = schema.NewCellID()
		}
		seen[cell.ID] = struct{}{}
		switch cell.Status {
		case schema.CellIdle, schema.CellSuccess, schema.CellError, schema.CellCancelled:
		case "", schema.CellRunning:
			cell.Status = schema.CellIdle
		default:
			return schema.Notebook{}, invalid("cell %d: unknown status %q", i, cell.Status)
		}
	}
	return nb, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", schema.ErrInvalidNotebook, fmt.Sprintf(format, args...))
}
