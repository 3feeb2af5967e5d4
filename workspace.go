// Package cellbook composes notebook sessions, their kernels and storage
// from an application config.
package cellbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/internal/appconfig"
	"pkt.systems/cellbook/internal/command"
	"pkt.systems/cellbook/internal/eventbus"
	"pkt.systems/cellbook/internal/kernelgrpc"
	"pkt.systems/cellbook/internal/kernels/exprkernel"
	"pkt.systems/cellbook/internal/kernels/gokernel"
	"pkt.systems/cellbook/internal/kernels/jskernel"
	"pkt.systems/cellbook/internal/persist"
	"pkt.systems/cellbook/internal/persist/sqlstore"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

// WorkspaceDeps captures optional dependencies of a workspace.
type WorkspaceDeps struct {
	Logger pslog.Logger
	// Notebook seeds the session; a new notebook is created when nil.
	Notebook *schema.Notebook
	// Kernels are served next to the configured built-in kernels.
	Kernels []core.Kernel
	// EventSink receives session events next to the workspace bus.
	EventSink core.EventSink
	// Store replaces the configured notebook store.
	Store core.NotebookStore
	// Ephemeral opens the session without any store. Save is rejected and
	// autosave stays off.
	Ephemeral bool
	Now   func() time.Time
}

// Workspace is one notebook session with everything it needs wired in.
type Workspace struct {
	service core.Service
	handler *command.Handler
	bus     *eventbus.Bus
	store   core.NotebookStore
	remote  *kernelgrpc.Client
	closers []io.Closer
	log     pslog.Logger

	stopPing context.CancelFunc
	pingDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open builds a workspace from cfg.
func Open(ctx context.Context, cfg appconfig.Config, deps WorkspaceDeps) (*Workspace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	serviceCfg, err := cfg.ServiceConfig()
	if err != nil {
		return nil, err
	}
	w := &Workspace{bus: eventbus.New(logger), log: logger}

	kernels, err := BuiltinKernels(cfg.Kernels.Enabled)
	if err != nil {
		return nil, err
	}
	kernels = append(kernels, deps.Kernels...)
	providers := core.MultiKernelProvider{core.StaticKernelProvider(kernels)}
	if cfg.Kernels.Remote.Enabled {
		client, err := kernelgrpc.Dial(ctx, cfg.Kernels.Remote.SocketPath)
		if err != nil {
			return nil, fmt.Errorf("dial kernel gateway: %w", err)
		}
		w.remote = client
		w.closers = append(w.closers, client)
		providers = append(providers, client)
	}

	store := deps.Store
	if store == nil && !deps.Ephemeral {
		store, err = w.openStore(ctx, cfg, logger)
		if err != nil {
			_ = w.closeResources()
			return nil, err
		}
	}
	w.store = store

	var sink core.EventSink = w.bus
	if deps.EventSink != nil {
		sink = core.EventFanout{deps.EventSink, w.bus}
	}
	service, err := core.NewService(ctx, serviceCfg, core.ServiceDeps{
		Kernels:   providers,
		Store:     store,
		EventSink: sink,
		Logger:    logger,
		Notebook:  deps.Notebook,
		Now:       deps.Now,
	})
	if err != nil {
		_ = w.closeResources()
		return nil, err
	}
	w.service = service
	w.handler = command.NewHandler(service, command.HandlerConfig{
		Clipboard:           command.NewMemoryClipboard(),
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	})
	if w.remote != nil && cfg.Kernels.Remote.KeepaliveIntervalSeconds > 0 {
		w.startPing(time.Duration(cfg.Kernels.Remote.KeepaliveIntervalSeconds) * time.Second / 2)
	}
	snap, _ := service.Snapshot(ctx)
	logger.Info("workspace open", "notebook", snap.Notebook.ID, "kernels", len(snap.Kernels), "storage", cfg.Storage.Driver, "remote", w.remote != nil)
	return w, nil
}

func (w *Workspace) openStore(ctx context.Context, cfg appconfig.Config, logger pslog.Logger) (core.NotebookStore, error) {
	switch cfg.Storage.Driver {
	case appconfig.StorageSQLite:
		store, err := sqlstore.Open(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, store)
		return store, nil
	case appconfig.StorageFile, "":
		return persist.NewStoreWithLogger(cfg.StateDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// BuiltinKernels constructs the named in-process kernels in order.
func BuiltinKernels(enabled []string) ([]core.Kernel, error) {
	kernels := make([]core.Kernel, 0, len(enabled))
	for _, name := range enabled {
		switch schema.KernelID(name) {
		case exprkernel.ID:
			kernels = append(kernels, exprkernel.New())
		case jskernel.ID:
			kernels = append(kernels, jskernel.New())
		case gokernel.ID:
			kernels = append(kernels, gokernel.New())
		default:
			return nil, fmt.Errorf("unknown kernel %q", name)
		}
	}
	return kernels, nil
}

func (w *Workspace) startPing(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.stopPing = cancel
	w.pingDone = make(chan struct{})
	go func() {
		defer close(w.pingDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, interval)
				if err := w.remote.Ping(pingCtx); err != nil && ctx.Err() == nil {
					w.log.Warn("workspace kernel gateway ping failed", "err", err)
				}
				pingCancel()
			}
		}
	}()
}

// Service returns the notebook session.
func (w *Workspace) Service() core.Service { return w.service }

// Handler returns the slash command handler bound to the session.
func (w *Workspace) Handler() *command.Handler { return w.handler }

// Bus returns the event bus carrying session events.
func (w *Workspace) Bus() *eventbus.Bus { return w.bus }

// Store returns the notebook store.
func (w *Workspace) Store() core.NotebookStore { return w.store }

// Close flushes the session and releases the store and kernel gateway.
func (w *Workspace) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		var errs []error
		if w.service != nil {
			if err := w.service.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := w.closeResources(); err != nil {
			errs = append(errs, err)
		}
		w.closeErr = errors.Join(errs...)
		if w.closeErr != nil {
			w.log.Warn("workspace close failed", "err", w.closeErr)
		} else {
			w.log.Info("workspace closed")
		}
	})
	return w.closeErr
}

func (w *Workspace) closeResources() error {
	if w.stopPing != nil {
		w.stopPing()
		<-w.pingDone
	}
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}
