package core

import (
	"context"
	"errors"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

func (s *service) RunCell(ctx context.Context, req schema.RunCellRequest) (schema.RunResponse, error) {
	if ctx == nil {
		return schema.RunResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	cell, ok := s.nb.Cell(req.CellID)
	s.mu.Unlock()
	if !ok {
		return schema.RunResponse{}, schema.ErrCellNotFound
	}
	if !cell.Type.Runnable() {
		return schema.RunResponse{}, schema.ErrNotRunnable
	}
	return s.run(ctx, []schema.CellID{cell.ID}, false)
}

func (s *service) RunCells(ctx context.Context, req schema.RunCellsRequest) (schema.RunResponse, error) {
	if ctx == nil {
		return schema.RunResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	var wanted map[schema.CellID]struct{}
	switch req.Scope {
	case schema.RunScopeAll, "":
	case schema.RunScopeSelected:
		if len(s.selected) == 0 {
			s.mu.Unlock()
			return schema.RunResponse{}, schema.ErrNothingSelected
		}
		wanted = make(map[schema.CellID]struct{}, len(s.selected))
		for id := range s.selected {
			wanted[id] = struct{}{}
		}
	case schema.RunScopeCells:
		wanted = make(map[schema.CellID]struct{}, len(req.CellIDs))
		for _, id := range req.CellIDs {
			if s.nb.CellIndex(id) < 0 {
				s.mu.Unlock()
				return schema.RunResponse{}, schema.ErrCellNotFound
			}
			wanted[id] = struct{}{}
		}
	default:
		s.mu.Unlock()
		return schema.RunResponse{}, schema.ErrInvalidRequest
	}
	// Document order, code cells only.
	var ids []schema.CellID
	for _, cell := range s.nb.Cells {
		if !cell.Type.Runnable() {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[cell.ID]; !ok {
				continue
			}
		}
		ids = append(ids, cell.ID)
	}
	parallel := s.nb.Settings.ExecutionMode == schema.ExecutionParallel
	s.mu.Unlock()
	return s.run(ctx, ids, parallel)
}

// run executes ids as one batch. Only one batch may be in flight.
func (s *service) run(ctx context.Context, ids []schema.CellID, parallel bool) (schema.RunResponse, error) {
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return schema.RunResponse{}, schema.ErrSessionBusy
	}
	entry := s.kernels.currentEntry()
	if entry == nil {
		s.mu.Unlock()
		return schema.RunResponse{}, schema.ErrNoKernel
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.executing = true
	s.runCancel = cancel
	nbID := s.nb.ID
	snapshot := s.kernels.values(entry.spec.ID)
	s.mu.Unlock()

	log := logx.WithKernel(logx.WithNotebook(ctx, nbID), entry.spec.ID, entry.spec.Language)
	log.Info("session run start", "cells", len(ids), "parallel", parallel)
	runCtx = pslog.ContextWithLogger(runCtx, log)

	var results []schema.CellRunResult
	if parallel && len(ids) > 1 {
		results = s.runParallel(runCtx, entry, ids, snapshot)
	} else {
		results = s.runSequential(runCtx, entry, ids)
	}
	interrupted := runCtx.Err() != nil && ctx.Err() == nil

	s.mu.Lock()
	s.executing = false
	s.runCancel = nil
	kernelEvent := schema.KernelEvent{NotebookID: nbID, Kernel: s.kernels.info(entry.spec.ID)}
	s.mu.Unlock()
	cancel()
	s.emitKernel(kernelEvent)
	log.Info("session run complete", "results", len(results), "interrupted", interrupted)
	return schema.RunResponse{Results: results}, nil
}

func (s *service) runSequential(ctx context.Context, entry *kernelEntry, ids []schema.CellID) []schema.CellRunResult {
	results := make([]schema.CellRunResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		result, ok := s.runOne(ctx, entry, id, nil)
		if ok {
			results = append(results, result)
		}
	}
	return results
}

// runParallel starts up to MaxParallel cells at once. Every cell sees the
// batch-start snapshot; results merge in completion order.
func (s *service) runParallel(ctx context.Context, entry *kernelEntry, ids []schema.CellID, snapshot map[string]any) []schema.CellRunResult {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]schema.CellRunResult, 0, len(ids))
	)
	g.SetLimit(s.cfg.MaxParallel)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, ok := s.runOne(ctx, entry, id, snapshot)
			if ok {
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runOne drives one cell through running to a terminal status. vars nil
// means read the kernel's current variables. ok is false when the cell was
// not started.
func (s *service) runOne(ctx context.Context, entry *kernelEntry, id schema.CellID, vars map[string]any) (schema.CellRunResult, bool) {
	if ctx.Err() != nil {
		return schema.CellRunResult{}, false
	}
	kernelID := entry.spec.ID
	s.mu.Lock()
	cell, ok := s.nb.Cell(id)
	if !ok || !cell.Type.Runnable() {
		s.mu.Unlock()
		return schema.CellRunResult{}, false
	}
	if vars == nil {
		vars = s.kernels.values(kernelID)
	} else {
		vars = maps.Clone(vars)
	}
	start := s.now()
	running := schema.CellRunning
	s.nb = schema.UpdateCell(s.nb, id, schema.CellPatch{Status: &running}, start)
	s.kernels.setStatus(kernelID, schema.KernelBusy)
	s.inflight++
	nbID := s.nb.ID
	started, _ := s.nb.Cell(id)
	kernelEvent := schema.KernelEvent{NotebookID: nbID, Kernel: s.kernels.info(kernelID)}
	s.mu.Unlock()
	s.emitCellRun(schema.CellRunEvent{NotebookID: nbID, CellID: id, Phase: schema.CellRunStarted, Status: running, Cell: started})
	s.emitKernel(kernelEvent)

	log := logx.WithCell(ctx, nbID, id)
	log.Debug("session cell run start", "bytes", len(cell.Content))

	execCtx := ctx
	if s.cfg.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.cfg.ExecuteTimeout)
		defer cancel()
	}
	res, err := entry.kernel.Execute(execCtx, ExecuteRequest{
		Code:     cell.Content,
		Language: entry.spec.Language,
		Context: ExecuteContext{
			KernelID:    kernelID,
			NotebookID:  nbID,
			CellID:      id,
			Variables:   vars,
			DataSources: s.cfg.DataSources,
		},
	})

	s.mu.Lock()
	finish := s.now()
	s.inflight--
	result := schema.CellRunResult{CellID: id}
	patch := schema.CellPatch{Timestamp: &finish}
	switch {
	case err == nil && res.Error == nil:
		elapsed := finish.Sub(start).Milliseconds()
		s.execCount++
		count := s.execCount
		status := schema.CellSuccess
		patch.Status = &status
		patch.ClearOutput = true
		patch.Output = res.CellOutput()
		patch.ExecutionTime = &elapsed
		patch.ExecutionCount = &count
		s.kernels.merge(kernelID, res.Variables)
		result.Status = status
		result.ExecutionCount = count
	case err != nil && ctx.Err() != nil:
		status := schema.CellCancelled
		patch.Status = &status
		execErr := &schema.ExecError{Name: "Interrupted", Message: schema.ErrInterrupted.Error()}
		patch.Output = &schema.CellOutput{Text: res.Output, Error: execErr}
		result.Status = status
		result.Error = execErr
	default:
		status := schema.CellError
		patch.Status = &status
		execErr := res.Error
		if err != nil {
			execErr = kernelExecError(err)
		}
		out := res.CellOutput()
		if out == nil {
			out = &schema.CellOutput{}
		}
		out.Error = execErr
		patch.Output = out
		s.inflightErr = true
		result.Status = status
		result.Error = execErr
	}
	s.nb = schema.UpdateCell(s.nb, id, patch, finish)
	if s.inflight == 0 {
		kernelStatus := schema.KernelIdle
		if s.inflightErr {
			kernelStatus = schema.KernelErrored
		}
		s.inflightErr = false
		s.kernels.setStatus(kernelID, kernelStatus)
	}
	s.dirty = true
	finished, _ := s.nb.Cell(id)
	kernelEvent = schema.KernelEvent{NotebookID: nbID, Kernel: s.kernels.info(kernelID)}
	event := s.eventLocked(schema.NotebookCellUpdated, id)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()

	s.emitCellRun(schema.CellRunEvent{NotebookID: nbID, CellID: id, Phase: schema.CellRunFinished, Status: result.Status, Cell: finished})
	s.emitKernel(kernelEvent)
	s.afterChange(event, auto)
	switch result.Status {
	case schema.CellSuccess:
		log.Info("session cell run complete", "execution_count", result.ExecutionCount, "ms", *patch.ExecutionTime)
	case schema.CellCancelled:
		log.Info("session cell run interrupted")
	default:
		log.Warn("session cell run failed", "err", result.Error.Message, "kind", KernelErrorKindOf(err))
	}
	return result, true
}

func kernelExecError(err error) *schema.ExecError {
	kind := KernelErrorKindOf(err)
	name := "KernelError"
	switch kind {
	case KernelErrorTimeout:
		name = "Timeout"
	case KernelErrorUnavailable:
		name = "KernelUnavailable"
	}
	return &schema.ExecError{Name: name, Message: err.Error(), Details: string(kind)}
}

func (s *service) Interrupt(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	s.mu.Lock()
	if !s.executing || s.runCancel == nil {
		s.mu.Unlock()
		return schema.ErrNotRunning
	}
	cancel := s.runCancel
	log := logx.WithNotebook(ctx, s.nb.ID)
	s.mu.Unlock()
	cancel()
	log.Info("session run interrupted")
	return nil
}

func (s *service) ClearOutputs(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return schema.ErrSessionBusy
	}
	now := s.now()
	idle := schema.CellIdle
	reset := schema.CellPatch{Status: &idle, ClearOutput: true, ClearExecution: true, Timestamp: &now}
	nb := s.nb.Clone()
	for i := range nb.Cells {
		nb.Cells[i] = reset.Apply(nb.Cells[i], now)
	}
	nb.UpdatedAt = now
	s.nb = nb
	s.execCount = 0
	s.dirty = true
	event := s.eventLocked(schema.NotebookOutputsCleared)
	log := logx.WithNotebook(ctx, s.nb.ID)
	auto := s.autosaveEnabledLocked()
	s.mu.Unlock()
	s.afterChange(event, auto)
	log.Info("session outputs cleared")
	return nil
}
