package core

import (
	"context"

	"pkt.systems/cellbook/schema"
)

// NotebookStore persists notebooks. Load reports ok=false for unknown ids.
type NotebookStore interface {
	Save(ctx context.Context, nb schema.Notebook) error
	Load(ctx context.Context, id schema.NotebookID) (schema.Notebook, bool, error)
	List(ctx context.Context) ([]schema.NotebookSummary, error)
}
