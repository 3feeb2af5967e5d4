package kernelgrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// Config controls the gateway server and client setup.
type Config struct {
	SocketPath string
	// KeepaliveInterval enables shutdown when no Ping arrives for
	// KeepaliveMisses intervals. Zero disables it.
	KeepaliveInterval time.Duration
	KeepaliveMisses   int
}

// Server serves the kernels of a local provider.
type Server struct {
	cfg      Config
	provider core.KernelProvider
	logger   pslog.Logger

	mu      sync.Mutex
	order   []schema.KernelID
	kernels map[schema.KernelID]core.Kernel

	lastPingUnix int64
}

// NewServer constructs a gateway server.
func NewServer(cfg Config, provider core.KernelProvider, logger pslog.Logger) *Server {
	return &Server{cfg: cfg, provider: provider, logger: logger, kernels: map[schema.KernelID]core.Kernel{}}
}

// ListenAndServe serves on the Unix socket until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.SocketPath == "" {
		return errors.New("kernel socket path is required")
	}
	if s.provider == nil {
		return errors.New("kernel provider is required")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.cfg.KeepaliveInterval > 0 && s.cfg.KeepaliveMisses <= 0 {
		s.cfg.KeepaliveMisses = 3
	}
	if err := s.loadKernels(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&gatewayServiceDesc, s)
	s.logger.Info("kernel grpc listening", "socket", s.cfg.SocketPath, "kernels", len(s.order))

	errCh := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setLastPing(time.Now())
	if s.cfg.KeepaliveInterval > 0 {
		go s.keepaliveLoop(runCtx, cancel)
	}
	go func() {
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-runCtx.Done():
		grpcServer.GracefulStop()
		<-errCh
		s.logger.Info("kernel grpc stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) loadKernels(ctx context.Context) error {
	kernels, err := s.provider.Kernels(ctx)
	if err != nil {
		return fmt.Errorf("list kernels: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kernel := range kernels {
		if kernel == nil {
			continue
		}
		id := kernel.Spec().ID
		if _, ok := s.kernels[id]; ok {
			return fmt.Errorf("duplicate kernel id %q", id)
		}
		s.order = append(s.order, id)
		s.kernels[id] = kernel
	}
	return nil
}

// Execute runs one cell on the named kernel.
func (s *Server) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req executeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode execute request: %v", err)
	}
	s.mu.Lock()
	kernel := s.kernels[schema.KernelID(req.KernelID)]
	s.mu.Unlock()
	if kernel == nil {
		return nil, status.Errorf(codes.NotFound, "kernel %q not found", req.KernelID)
	}
	log := s.logger.With("kernel", req.KernelID, "notebook", req.NotebookID, "cell", req.CellID)
	log.Debug("kernel grpc execute start", "bytes", len(req.Code))
	started := time.Now()
	res, err := kernel.Execute(ctx, req.core())
	if err != nil {
		log.Warn("kernel grpc execute failed", "err", err)
		return nil, toStatus(err)
	}
	out, err := toStruct(toWireResult(res))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode execute result: %v", err)
	}
	log.Debug("kernel grpc execute complete", "ms", time.Since(started).Milliseconds(), "failed", res.Error != nil)
	return out, nil
}

// ListKernels describes the served kernels.
func (s *Server) ListKernels(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	list := kernelList{Kernels: make([]kernelSpec, 0, len(s.order))}
	for _, id := range s.order {
		spec := s.kernels[id].Spec()
		list.Kernels = append(list.Kernels, kernelSpec{ID: string(spec.ID), Name: spec.Name, Language: spec.Language})
	}
	s.mu.Unlock()
	return toStruct(list)
}

// Ping updates the keepalive timer.
func (s *Server) Ping(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.setLastPing(time.Now())
	s.logger.Trace("kernel grpc ping")
	return toStruct(pingResponse{OK: true})
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	switch core.KernelErrorKindOf(err) {
	case core.KernelErrorUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	case core.KernelErrorTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case core.KernelErrorCanceled:
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (s *Server) setLastPing(ts time.Time) {
	atomic.StoreInt64(&s.lastPingUnix, ts.UnixNano())
}

func (s *Server) lastPing() time.Time {
	val := atomic.LoadInt64(&s.lastPingUnix)
	if val == 0 {
		return time.Time{}
	}
	return time.Unix(0, val)
}

func (s *Server) keepaliveLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := s.lastPing()
			if last.IsZero() {
				continue
			}
			if time.Since(last) > time.Duration(s.cfg.KeepaliveMisses)*s.cfg.KeepaliveInterval {
				s.logger.Warn("kernel grpc keepalive missed; shutting down", "last_ping", last.Format(time.RFC3339Nano), "interval", s.cfg.KeepaliveInterval, "misses", s.cfg.KeepaliveMisses)
				cancel()
				return
			}
		}
	}
}
