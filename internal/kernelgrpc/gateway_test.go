package kernelgrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/internal/kernels/exprkernel"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

type blockingKernel struct {
	started chan struct{}
}

func (k blockingKernel) Spec() core.KernelSpec {
	return core.KernelSpec{ID: "block", Name: "Block", Language: "none"}
}

func (k blockingKernel) Execute(ctx context.Context, _ core.ExecuteRequest) (core.ExecuteResult, error) {
	close(k.started)
	<-ctx.Done()
	return core.ExecuteResult{}, ctx.Err()
}

func startGateway(t *testing.T, cfg Config, kernels ...core.Kernel) (string, <-chan error) {
	t.Helper()
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(t.TempDir(), "kernel.sock")
	}
	srv := NewServer(cfg, core.StaticKernelProvider(kernels), pslog.Ctx(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		errCh <- srv.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("gateway did not stop")
		}
	})
	waitForSocketReady(t, cfg.SocketPath, time.Second)
	return cfg.SocketPath, errCh
}

func dialGateway(t *testing.T, socket string) *Client {
	t.Helper()
	client, err := Dial(context.Background(), socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func remoteByID(t *testing.T, client *Client, id schema.KernelID) core.Kernel {
	t.Helper()
	kernels, err := client.Kernels(context.Background())
	if err != nil {
		t.Fatalf("kernels: %v", err)
	}
	for _, kernel := range kernels {
		if kernel.Spec().ID == id {
			return kernel
		}
	}
	t.Fatalf("kernel %q not listed", id)
	return nil
}

func TestGatewayListsPrefixedKernels(t *testing.T) {
	socket, _ := startGateway(t, Config{}, exprkernel.New())
	client := dialGateway(t, socket)

	kernel := remoteByID(t, client, RemotePrefix+exprkernel.ID)
	spec := kernel.Spec()
	if spec.Language != "expr" {
		t.Fatalf("expected expr language, got %q", spec.Language)
	}
	if spec.Name != "Expr (remote)" {
		t.Fatalf("unexpected name %q", spec.Name)
	}
}

func TestGatewayExecute(t *testing.T) {
	socket, _ := startGateway(t, Config{}, exprkernel.New())
	client := dialGateway(t, socket)
	kernel := remoteByID(t, client, RemotePrefix+exprkernel.ID)

	res, err := kernel.Execute(context.Background(), core.ExecuteRequest{
		Code:    "y = x + 2\ny",
		Context: core.ExecuteContext{NotebookID: "nb", CellID: "c1", Variables: map[string]any{"x": 40}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Error != nil {
		t.Fatalf("unexpected exec error: %+v", res.Error)
	}
	if res.Output != "42\n" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if got := fmt.Sprint(res.Variables["y"]); got != "42" {
		t.Fatalf("expected y=42, got %s", got)
	}
}

func TestGatewayExecErrorRoundTrip(t *testing.T) {
	socket, _ := startGateway(t, Config{}, exprkernel.New())
	client := dialGateway(t, socket)
	kernel := remoteByID(t, client, RemotePrefix+exprkernel.ID)

	res, err := kernel.Execute(context.Background(), core.ExecuteRequest{Code: "1 +"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Error == nil || res.Error.Name != "ExprError" {
		t.Fatalf("expected ExprError, got %+v", res.Error)
	}
}

func TestGatewayUnknownKernel(t *testing.T) {
	socket, _ := startGateway(t, Config{}, exprkernel.New())
	client := dialGateway(t, socket)
	kernel := &remoteKernel{client: client, remoteID: "missing", spec: core.KernelSpec{ID: RemotePrefix + "missing"}}

	_, err := kernel.Execute(context.Background(), core.ExecuteRequest{Code: "1"})
	if core.KernelErrorKindOf(err) != core.KernelErrorExecute {
		t.Fatalf("expected execute kind, got %v (%v)", core.KernelErrorKindOf(err), err)
	}
}

func TestGatewayExecuteCanceled(t *testing.T) {
	started := make(chan struct{})
	socket, _ := startGateway(t, Config{}, blockingKernel{started: started})
	client := dialGateway(t, socket)
	kernel := remoteByID(t, client, RemotePrefix+"block")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := kernel.Execute(ctx, core.ExecuteRequest{Code: "wait"})
		errCh <- err
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("remote kernel did not start")
	}
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("execute did not return after cancel")
	}
}

func TestServerRejectsDuplicateKernels(t *testing.T) {
	srv := NewServer(Config{SocketPath: filepath.Join(t.TempDir(), "kernel.sock")},
		core.StaticKernelProvider{exprkernel.New(), exprkernel.New()}, pslog.Ctx(context.Background()))
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected duplicate kernel error")
	}
}

func TestServerKeepaliveExpires(t *testing.T) {
	_, errCh := startGateway(t, Config{
		KeepaliveInterval: 20 * time.Millisecond,
		KeepaliveMisses:   2,
	}, exprkernel.New())

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("server exited with error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not exit after keepalive misses")
	}
}

func TestServerKeepalivePingKeepsAlive(t *testing.T) {
	socket, errCh := startGateway(t, Config{
		KeepaliveInterval: 50 * time.Millisecond,
		KeepaliveMisses:   2,
	}, exprkernel.New())
	client := dialGateway(t, socket)

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := client.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
		select {
		case err := <-errCh:
			t.Fatalf("server exited early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWrapKernelError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want core.KernelErrorKind
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), core.KernelErrorUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), core.KernelErrorTimeout},
		{"canceled", status.Error(codes.Canceled, "stop"), core.KernelErrorCanceled},
		{"not found", status.Error(codes.NotFound, "missing"), core.KernelErrorExecute},
		{"other", status.Error(codes.PermissionDenied, "no"), core.KernelErrorUnknown},
		{"ctx", context.DeadlineExceeded, core.KernelErrorTimeout},
		{"plain", errors.New("boom"), core.KernelErrorUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := core.KernelErrorKindOf(wrapKernelError("op", tc.err)); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestToStatus(t *testing.T) {
	if got := status.Code(toStatus(context.Canceled)); got != codes.Canceled {
		t.Fatalf("expected Canceled, got %v", got)
	}
	if got := status.Code(toStatus(core.NewKernelError(core.KernelErrorUnavailable, "x", errors.New("down")))); got != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", got)
	}
	if got := status.Code(toStatus(errors.New("boom"))); got != codes.Internal {
		t.Fatalf("expected Internal, got %v", got)
	}
}

func waitForSocketReady(t *testing.T, socketPath string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			_ = conn.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket not ready: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
