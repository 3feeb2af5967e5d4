package cellbook

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/internal/appconfig"
	"pkt.systems/cellbook/internal/kernelgrpc"
	"pkt.systems/pslog"
)

// Server runs a long-lived component until stopped.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// KernelServer is the subset of kernelgrpc.Server a gateway needs.
type KernelServer interface {
	ListenAndServe(ctx context.Context) error
}

// GatewayConfig configures the kernel gateway.
type GatewayConfig struct {
	Gateway kernelgrpc.Config
	Enabled []string
}

// GatewayConfigFrom derives gateway settings from the application config.
func GatewayConfigFrom(cfg appconfig.Config) GatewayConfig {
	remote := cfg.Kernels.Remote
	return GatewayConfig{
		Gateway: kernelgrpc.Config{
			SocketPath:        remote.SocketPath,
			KeepaliveInterval: time.Duration(remote.KeepaliveIntervalSeconds) * time.Second,
			KeepaliveMisses:   remote.KeepaliveMisses,
		},
		Enabled: cfg.Kernels.Enabled,
	}
}

// NewGateway serves the enabled built-in kernels over the gateway socket.
func NewGateway(cfg GatewayConfig, logger pslog.Logger, extra ...core.Kernel) (Server, error) {
	if cfg.Gateway.SocketPath == "" {
		return nil, errors.New("kernel socket path is required")
	}
	kernels, err := BuiltinKernels(cfg.Enabled)
	if err != nil {
		return nil, err
	}
	kernels = append(kernels, extra...)
	if len(kernels) == 0 {
		return nil, errors.New("no kernels enabled")
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	srv := kernelgrpc.NewServer(cfg.Gateway, core.StaticKernelProvider(kernels), logger)
	return &gatewayServer{cfg: cfg, server: srv}, nil
}

type gatewayServer struct {
	cfg    GatewayConfig
	server KernelServer
	logger pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	err     error
	done    chan struct{}
	started bool
}

func (s *gatewayServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("gateway start rejected", "reason", "already started")
		return errors.New("gateway already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info("gateway start", "socket", s.cfg.Gateway.SocketPath, "kernels", s.cfg.Enabled, "keepalive", s.cfg.Gateway.KeepaliveInterval)
	go func() {
		err := s.server.ListenAndServe(s.ctx)
		if err != nil {
			log.Error("gateway failed", "err", err)
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
	return nil
}

func (s *gatewayServer) Wait() error {
	s.mu.Lock()
	done := s.done
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("gateway not started")
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *gatewayServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("gateway stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("gateway stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("gateway stopped")
		return nil
	}
}
