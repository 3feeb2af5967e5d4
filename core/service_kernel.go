package core

import (
	"context"
	"errors"

	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/schema"
)

func (s *service) ListKernels(ctx context.Context) ([]schema.KernelInfo, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kernels.list(), nil
}

func (s *service) SelectKernel(ctx context.Context, req schema.SelectKernelRequest) (schema.KernelInfo, error) {
	if ctx == nil {
		return schema.KernelInfo{}, errors.New("missing context")
	}
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return schema.KernelInfo{}, schema.ErrSessionBusy
	}
	if err := s.kernels.use(req.KernelID); err != nil {
		s.mu.Unlock()
		return schema.KernelInfo{}, err
	}
	info := s.kernels.info(req.KernelID)
	event := schema.KernelEvent{NotebookID: s.nb.ID, Kernel: info}
	log := logx.WithKernel(logx.WithNotebook(ctx, s.nb.ID), info.ID, info.Language)
	s.mu.Unlock()
	s.emitKernel(event)
	log.Info("session kernel selected")
	return info, nil
}

// RestartKernel drops the current kernel's variables and clears an error
// status.
func (s *service) RestartKernel(ctx context.Context) (schema.KernelInfo, error) {
	if ctx == nil {
		return schema.KernelInfo{}, errors.New("missing context")
	}
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return schema.KernelInfo{}, schema.ErrSessionBusy
	}
	entry := s.kernels.currentEntry()
	if entry == nil {
		s.mu.Unlock()
		return schema.KernelInfo{}, schema.ErrNoKernel
	}
	s.kernels.reset(entry.spec.ID)
	info := s.kernels.info(entry.spec.ID)
	event := schema.KernelEvent{NotebookID: s.nb.ID, Kernel: info}
	log := logx.WithKernel(logx.WithNotebook(ctx, s.nb.ID), info.ID, info.Language)
	s.mu.Unlock()
	s.emitKernel(event)
	log.Info("session kernel restarted")
	return info, nil
}
