package schema

// SessionSnapshot is a read-only view of the session aggregate.
type SessionSnapshot struct {
	Notebook        Notebook
	Kernels         []KernelInfo
	CurrentKernel   KernelID
	KernelStatus    KernelStatus
	ActiveCellID    CellID
	SelectedCellIDs []CellID
	ExecutionCount  int
	IsExecuting     bool
	CanUndo         bool
	CanRedo         bool
	Dirty           bool
}

// Selected reports whether id is in the selection.
func (s SessionSnapshot) Selected(id CellID) bool {
	for _, selected := range s.SelectedCellIDs {
		if selected == id {
			return true
		}
	}
	return false
}

// CurrentKernelInfo returns the current kernel view.
func (s SessionSnapshot) CurrentKernelInfo() (KernelInfo, bool) {
	for _, kernel := range s.Kernels {
		if kernel.ID == s.CurrentKernel {
			return kernel, true
		}
	}
	return KernelInfo{}, false
}
