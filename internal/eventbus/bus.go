package eventbus

import (
	"context"
	"sync"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventNotebook carries notebook structure changes.
	EventNotebook EventType = "notebook"
	// EventCellRun carries cell run start and finish.
	EventCellRun EventType = "cell_run"
	// EventKernel carries kernel status and variables.
	EventKernel EventType = "kernel"
	// EventNotice carries user notifications.
	EventNotice EventType = "notice"
)

// Event represents a UI-facing event emitted by a session.
type Event struct {
	Type     EventType
	Notebook schema.NotebookEvent
	CellRun  schema.CellRunEvent
	Kernel   schema.KernelEvent
	Notice   schema.Notice
}

// NotebookID returns the notebook the event belongs to.
func (e Event) NotebookID() schema.NotebookID {
	switch e.Type {
	case EventNotebook:
		return e.Notebook.NotebookID
	case EventCellRun:
		return e.CellRun.NotebookID
	case EventKernel:
		return e.Kernel.NotebookID
	case EventNotice:
		return e.Notice.NotebookID
	}
	return ""
}

var _ core.EventSink = (*Bus)(nil)

// Bus fans events out to per-notebook subscribers. Publishing never blocks;
// events for a full subscriber are dropped.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.NotebookID]map[chan Event]struct{}
	all   map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.NotebookID]map[chan Event]struct{}),
		all:   make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for one notebook and returns a channel
// and cancel func. An empty id subscribes to every notebook.
func (b *Bus) Subscribe(notebookID schema.NotebookID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	subs := b.all
	if notebookID != "" {
		subs = b.subs[notebookID]
		if subs == nil {
			subs = make(map[chan Event]struct{})
			b.subs[notebookID] = subs
		}
	}
	subs[ch] = struct{}{}
	count := len(subs)
	b.mu.Unlock()
	log := b.log.With("notebook", notebookID)
	log.Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if notebookID == "" {
				delete(b.all, ch)
			} else if subs := b.subs[notebookID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, notebookID)
				}
			}
			close(ch)
			b.mu.Unlock()
			log.Debug("eventbus unsubscribe")
		})
	}
}

// OnNotebookEvent publishes a notebook event.
func (b *Bus) OnNotebookEvent(event schema.NotebookEvent) {
	b.publish(Event{Type: EventNotebook, Notebook: event})
}

// OnCellRun publishes a cell run event.
func (b *Bus) OnCellRun(event schema.CellRunEvent) {
	b.publish(Event{Type: EventCellRun, CellRun: event})
}

// OnKernelEvent publishes a kernel event.
func (b *Bus) OnKernelEvent(event schema.KernelEvent) {
	b.publish(Event{Type: EventKernel, Kernel: event})
}

// OnNotice publishes a notice.
func (b *Bus) OnNotice(notice schema.Notice) {
	b.publish(Event{Type: EventNotice, Notice: notice})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	notebookID := event.NotebookID()
	dropped := 0
	b.mu.Lock()
	for sub := range b.subs[notebookID] {
		if !trySend(sub, event) {
			dropped++
		}
	}
	for sub := range b.all {
		if !trySend(sub, event) {
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("notebook", notebookID).Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}

func trySend(ch chan Event, event Event) bool {
	select {
	case ch <- event:
		return true
	default:
		return false
	}
}
