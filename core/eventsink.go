package core

import "pkt.systems/cellbook/schema"

// EventSink receives notebook, run, kernel and notice events from a session.
type EventSink interface {
	OnNotebookEvent(event schema.NotebookEvent)
	OnCellRun(event schema.CellRunEvent)
	OnKernelEvent(event schema.KernelEvent)
	OnNotice(notice schema.Notice)
}

// EventFanout forwards every event to each non-nil sink.
type EventFanout []EventSink

// OnNotebookEvent forwards a notebook event.
func (f EventFanout) OnNotebookEvent(event schema.NotebookEvent) {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		sink.OnNotebookEvent(event)
	}
}

// OnCellRun forwards a run event.
func (f EventFanout) OnCellRun(event schema.CellRunEvent) {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		sink.OnCellRun(event)
	}
}

// OnKernelEvent forwards a kernel event.
func (f EventFanout) OnKernelEvent(event schema.KernelEvent) {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		sink.OnKernelEvent(event)
	}
}

// OnNotice forwards a notice.
func (f EventFanout) OnNotice(notice schema.Notice) {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		sink.OnNotice(notice)
	}
}
