package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/internal/nbformat"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// service implements one notebook session.
type service struct {
	cfg    schema.ServiceConfig
	store  NotebookStore
	sink   EventSink
	logger pslog.Logger
	now    func() time.Time

	mu          sync.Mutex
	nb          schema.Notebook
	kernels     *kernelRegistry
	active      schema.CellID
	selected    map[schema.CellID]struct{}
	execCount   int
	executing   bool
	inflight    int
	inflightErr bool // a cell of the running batch failed
	runCancel   context.CancelFunc
	history     *history
	dirty       bool

	autosave *debouncer
}

// NewService constructs a notebook session. The kernel list is read once
// from deps.Kernels.
func NewService(ctx context.Context, cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	kernels, err := newKernelRegistry(ctx, deps.Kernels, cfg.DefaultKernel)
	if err != nil {
		return nil, err
	}
	var nb schema.Notebook
	if deps.Notebook != nil {
		nb = deps.Notebook.Clone()
	} else {
		nb = schema.NewNotebook("", cfg.Settings, now())
	}
	s := &service{
		cfg:       cfg,
		store:     deps.Store,
		sink:      deps.EventSink,
		logger:    logger,
		now:       now,
		nb:        nb,
		kernels:   kernels,
		selected:  make(map[schema.CellID]struct{}),
		execCount: maxExecutionCount(nb),
		history:   newHistory(cfg.UndoLimit),
	}
	s.autosave = newDebouncer(cfg.AutosaveQuiet, s.autosaveNow)
	logger.Debug("session created", "notebook", nb.ID, "kernels", len(kernels.order), "kernel", kernels.current)
	return s, nil
}

func maxExecutionCount(nb schema.Notebook) int {
	count := 0
	for _, cell := range nb.Cells {
		if cell.ExecutionCount != nil && *cell.ExecutionCount > count {
			count = *cell.ExecutionCount
		}
	}
	return count
}

func (s *service) Snapshot(ctx context.Context) (schema.SessionSnapshot, error) {
	if ctx == nil {
		return schema.SessionSnapshot{}, errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.SessionSnapshot{
		Notebook:        s.nb.Clone(),
		Kernels:         s.kernels.list(),
		CurrentKernel:   s.kernels.current,
		KernelStatus:    s.kernels.status(),
		ActiveCellID:    s.active,
		SelectedCellIDs: s.selectionLocked(),
		ExecutionCount:  s.execCount,
		IsExecuting:     s.executing,
		CanUndo:         s.history.CanUndo(),
		CanRedo:         s.history.CanRedo(),
		Dirty:           s.dirty,
	}, nil
}

func (s *service) Notebook(ctx context.Context) (schema.Notebook, error) {
	if ctx == nil {
		return schema.Notebook{}, errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nb.Clone(), nil
}

func (s *service) LoadNotebook(ctx context.Context, req schema.LoadNotebookRequest) (schema.LoadNotebookResponse, error) {
	if ctx == nil {
		return schema.LoadNotebookResponse{}, errors.New("missing context")
	}
	log := logx.WithNotebook(ctx, req.NotebookID)
	if s.store == nil {
		return schema.LoadNotebookResponse{}, schema.ErrNoStore
	}
	if req.NotebookID == "" {
		return schema.LoadNotebookResponse{}, schema.ErrInvalidRequest
	}
	nb, ok, err := s.store.Load(ctx, req.NotebookID)
	if err != nil {
		log.Warn("session notebook load failed", "err", err)
		return schema.LoadNotebookResponse{}, err
	}
	if !ok {
		return schema.LoadNotebookResponse{}, schema.ErrNotebookNotFound
	}
	if err := s.replaceNotebook(nb, false); err != nil {
		return schema.LoadNotebookResponse{}, err
	}
	log.Info("session notebook loaded", "cells", len(nb.Cells))
	return schema.LoadNotebookResponse{Notebook: nb.Clone()}, nil
}

func (s *service) ImportNotebook(ctx context.Context, req schema.ImportNotebookRequest) (schema.ImportNotebookResponse, error) {
	if ctx == nil {
		return schema.ImportNotebookResponse{}, errors.New("missing context")
	}
	nb, err := nbformat.Decode(req.Data)
	if err != nil {
		pslog.Ctx(ctx).Warn("session notebook import rejected", "err", err, "bytes", len(req.Data))
		return schema.ImportNotebookResponse{}, err
	}
	if err := s.replaceNotebook(nb, true); err != nil {
		return schema.ImportNotebookResponse{}, err
	}
	logx.WithNotebook(ctx, nb.ID).Info("session notebook imported", "cells", len(nb.Cells))
	return schema.ImportNotebookResponse{Notebook: nb.Clone()}, nil
}

// replaceNotebook swaps the whole notebook and drops history and selection.
func (s *service) replaceNotebook(nb schema.Notebook, dirty bool) error {
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return schema.ErrSessionBusy
	}
	s.nb = nb.Clone()
	s.history.Reset()
	s.selected = make(map[schema.CellID]struct{})
	s.active = ""
	s.execCount = max(s.execCount, maxExecutionCount(nb))
	s.dirty = dirty
	event := s.eventLocked(schema.NotebookReplaced)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	if !dirty {
		s.autosave.Cancel()
		s.emitNotebook(event)
		return nil
	}
	s.afterChange(event, auto)
	return nil
}

func (s *service) ExportNotebook(ctx context.Context) (schema.ExportNotebookResponse, error) {
	if ctx == nil {
		return schema.ExportNotebookResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	nb := s.nb.Clone()
	s.mu.Unlock()
	data, err := nbformat.Encode(nb)
	if err != nil {
		logx.WithNotebook(ctx, nb.ID).Warn("session notebook export failed", "err", err)
		return schema.ExportNotebookResponse{}, err
	}
	return schema.ExportNotebookResponse{Data: data}, nil
}

func (s *service) UpdateMetadata(ctx context.Context, req schema.UpdateMetadataRequest) (schema.Notebook, error) {
	if ctx == nil {
		return schema.Notebook{}, errors.New("missing context")
	}
	if req.Name == nil && req.Description == nil && !req.SetTags {
		return schema.Notebook{}, schema.ErrInvalidRequest
	}
	s.mu.Lock()
	prev := s.nb
	name, description := prev.Name, prev.Description
	undo := schema.MetadataPatch{Name: &name, Description: &description, Tags: append([]string(nil), prev.Tags...), SetTags: req.SetTags}
	redo := schema.MetadataPatch{Name: req.Name, Description: req.Description, Tags: req.Tags, SetTags: req.SetTags}
	event := s.commitLocked(edit{label: "edit metadata", redo: opMetadata(redo), undo: opMetadata(undo)}, schema.NotebookMetadata)
	nb := s.nb.Clone()
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	logx.WithNotebook(ctx, nb.ID).Info("session metadata updated", "name", nb.Name, "tags", len(nb.Tags))
	return nb, nil
}

func (s *service) UpdateSettings(ctx context.Context, req schema.UpdateSettingsRequest) (schema.Notebook, error) {
	if ctx == nil {
		return schema.Notebook{}, errors.New("missing context")
	}
	settings := req.Settings
	mode, err := schema.ParseExecutionMode(string(settings.ExecutionMode))
	if err != nil {
		return schema.Notebook{}, err
	}
	settings.ExecutionMode = mode
	if settings.FontSize <= 0 || settings.TabSize <= 0 {
		return schema.Notebook{}, schema.ErrInvalidRequest
	}
	s.mu.Lock()
	prev := s.nb.Settings
	event := s.commitLocked(edit{label: "edit settings", redo: opSettings(settings), undo: opSettings(prev)}, schema.NotebookSettingsChanged)
	nb := s.nb.Clone()
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	logx.WithNotebook(ctx, nb.ID).Info("session settings updated", "autosave", settings.AutoSave, "execution_mode", settings.ExecutionMode)
	return nb, nil
}

func (s *service) Save(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	if s.store == nil {
		return schema.ErrNoStore
	}
	s.autosave.Cancel()
	s.mu.Lock()
	nb := s.nb.Clone()
	s.mu.Unlock()
	log := logx.WithNotebook(ctx, nb.ID)
	if err := s.store.Save(ctx, nb); err != nil {
		log.Warn("session save failed", "err", err)
		return fmt.Errorf("save notebook: %w", err)
	}
	s.markSaved(nb)
	log.Info("session saved", "cells", len(nb.Cells))
	return nil
}

func (s *service) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.autosave.Close()
	pslog.Ctx(ctx).Debug("session closed")
	return nil
}

func (s *service) Notify(ctx context.Context, notice schema.Notice) {
	s.mu.Lock()
	if notice.NotebookID == "" {
		notice.NotebookID = s.nb.ID
	}
	s.mu.Unlock()
	if ctx != nil {
		logx.WithNotebook(ctx, notice.NotebookID).Debug("session notice", "level", notice.Level, "title", notice.Title)
	}
	if s.sink != nil {
		s.sink.OnNotice(notice)
	}
}

// commitLocked applies e, records it for undo and returns the change event.
// Callers hold s.mu.
func (s *service) commitLocked(e edit, eventType schema.NotebookEventType, ids ...schema.CellID) schema.NotebookEvent {
	s.nb = e.redo(s.nb, s.now())
	s.history.Record(e)
	s.dirty = true
	return s.eventLocked(eventType, ids...)
}

func (s *service) eventLocked(eventType schema.NotebookEventType, ids ...schema.CellID) schema.NotebookEvent {
	return schema.NotebookEvent{
		NotebookID: s.nb.ID,
		Type:       eventType,
		CellIDs:    ids,
		UpdatedAt:  s.nb.UpdatedAt,
	}
}

func (s *service) autosaveEnabledLocked() bool {
	return s.store != nil && s.nb.Settings.AutoSave
}

// afterChange publishes event and (re)arms the autosave timer.
func (s *service) afterChange(event schema.NotebookEvent, autosave bool) {
	s.emitNotebook(event)
	if autosave {
		s.autosave.Touch()
		return
	}
	s.autosave.Cancel()
}

func (s *service) autosaveNow() {
	s.mu.Lock()
	nb := s.nb.Clone()
	s.mu.Unlock()
	log := s.logger.With("notebook", nb.ID)
	ctx := logx.ContextWithNotebookLogger(context.Background(), log, nb.ID)
	if err := s.store.Save(ctx, nb); err != nil {
		log.Warn("session autosave failed", "err", err)
		s.Notify(ctx, schema.Notice{
			NotebookID: nb.ID,
			Level:      schema.NoticeWarning,
			Title:      "Autosave failed",
			Message:    err.Error(),
		})
		return
	}
	s.markSaved(nb)
	log.Debug("session autosave complete", "cells", len(nb.Cells))
}

func (s *service) markSaved(nb schema.Notebook) {
	s.mu.Lock()
	if s.nb.ID == nb.ID && s.nb.UpdatedAt.Equal(nb.UpdatedAt) {
		s.dirty = false
	}
	s.mu.Unlock()
	s.emitNotebook(schema.NotebookEvent{NotebookID: nb.ID, Type: schema.NotebookSaved, UpdatedAt: nb.UpdatedAt})
}

func (s *service) selectionLocked() []schema.CellID {
	out := make([]schema.CellID, 0, len(s.selected))
	for _, cell := range s.nb.Cells {
		if _, ok := s.selected[cell.ID]; ok {
			out = append(out, cell.ID)
		}
	}
	return out
}

// pruneSelectionLocked drops selection entries whose cells are gone.
func (s *service) pruneSelectionLocked() {
	for id := range s.selected {
		if s.nb.CellIndex(id) < 0 {
			delete(s.selected, id)
		}
	}
	if s.active != "" && s.nb.CellIndex(s.active) < 0 {
		s.active = ""
	}
}

func (s *service) emitNotebook(event schema.NotebookEvent) {
	if s.sink != nil {
		s.sink.OnNotebookEvent(event)
	}
}

func (s *service) emitCellRun(event schema.CellRunEvent) {
	if s.sink != nil {
		s.sink.OnCellRun(event)
	}
}

func (s *service) emitKernel(event schema.KernelEvent) {
	if s.sink != nil {
		s.sink.OnKernelEvent(event)
	}
}
