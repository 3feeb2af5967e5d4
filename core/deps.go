package core

import (
	"time"

	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// ServiceDeps captures optional dependencies for a notebook session.
type ServiceDeps struct {
	Kernels   KernelProvider
	Store     NotebookStore
	EventSink EventSink
	Logger    pslog.Logger
	// Notebook seeds the session; a new empty notebook is created when nil.
	Notebook *schema.Notebook
	// Now overrides the clock.
	Now func() time.Time
}
