package cellbook

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/cellbook/internal/kernelgrpc"
)

type fakeKernelServer struct {
	started chan struct{}
	err     error
}

func (f *fakeKernelServer) ListenAndServe(ctx context.Context) error {
	close(f.started)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func TestGatewayStopCancelsServer(t *testing.T) {
	fake := &fakeKernelServer{started: make(chan struct{})}
	srv := &gatewayServer{server: fake}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-fake.started
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestGatewayWaitReturnsServerError(t *testing.T) {
	boom := errors.New("boom")
	srv := &gatewayServer{server: &fakeKernelServer{started: make(chan struct{}), err: boom}}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := srv.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected repeated Wait to return boom, got %v", err)
	}
}

func TestGatewayNotStarted(t *testing.T) {
	srv := &gatewayServer{}
	if err := srv.Wait(); err == nil {
		t.Fatal("expected Wait to fail before Start")
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}

func TestNewGatewayValidates(t *testing.T) {
	if _, err := NewGateway(GatewayConfig{Enabled: []string{"expr"}}, nil); err == nil {
		t.Fatal("expected missing socket error")
	}
	socket := filepath.Join(t.TempDir(), "kernel.sock")
	if _, err := NewGateway(GatewayConfig{Gateway: kernelgrpc.Config{SocketPath: socket}}, nil); err == nil {
		t.Fatal("expected no kernels error")
	}
	if _, err := NewGateway(GatewayConfig{Gateway: kernelgrpc.Config{SocketPath: socket}, Enabled: []string{"cobol"}}, nil); err == nil {
		t.Fatal("expected unknown kernel error")
	}
}
