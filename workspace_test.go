package cellbook

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/cellbook/internal/appconfig"
	"pkt.systems/cellbook/internal/eventbus"
	"pkt.systems/cellbook/internal/kernelgrpc"
	"pkt.systems/cellbook/schema"
)

func testConfig(t *testing.T) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	dir := t.TempDir()
	cfg.StateDir = dir
	cfg.Storage.SQLitePath = filepath.Join(dir, "notebooks.db")
	cfg.Kernels.Remote.SocketPath = filepath.Join(dir, "kernel.sock")
	cfg.Notebook.AutoSave = false
	return cfg
}

func openWorkspace(t *testing.T, cfg appconfig.Config) *Workspace {
	t.Helper()
	ws, err := Open(context.Background(), cfg, WorkspaceDeps{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(context.Background()) })
	return ws
}

func runSingle(t *testing.T, ws *Workspace, code string) schema.Cell {
	t.Helper()
	ctx := context.Background()
	resp, err := ws.Service().InsertCell(ctx, schema.InsertCellRequest{Content: &code})
	if err != nil {
		t.Fatalf("InsertCell: %v", err)
	}
	if _, err := ws.Service().RunCell(ctx, schema.RunCellRequest{CellID: resp.Cell.ID}); err != nil {
		t.Fatalf("RunCell: %v", err)
	}
	nb, err := ws.Service().Notebook(ctx)
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	cell, _ := nb.Cell(resp.Cell.ID)
	return cell
}

func TestWorkspaceBuiltinKernels(t *testing.T) {
	ws := openWorkspace(t, testConfig(t))
	kernels, err := ws.Service().ListKernels(context.Background())
	if err != nil {
		t.Fatalf("ListKernels: %v", err)
	}
	ids := make([]string, 0, len(kernels))
	for _, kernel := range kernels {
		ids = append(ids, string(kernel.ID))
	}
	if got := strings.Join(ids, ","); got != "expr,javascript,go" {
		t.Fatalf("unexpected kernels %s", got)
	}
	cell := runSingle(t, ws, "1 + 1")
	if cell.Status != schema.CellSuccess || cell.Output == nil || cell.Output.Text != "2\n" {
		t.Fatalf("unexpected cell %+v output %+v", cell, cell.Output)
	}
}

func TestWorkspaceSaveRoundTripStores(t *testing.T) {
	for _, driver := range []string{appconfig.StorageFile, appconfig.StorageSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Storage.Driver = driver
			ws := openWorkspace(t, cfg)
			ctx := context.Background()
			runSingle(t, ws, "x = 2")
			if err := ws.Service().Save(ctx); err != nil {
				t.Fatalf("Save: %v", err)
			}
			nb, _ := ws.Service().Notebook(ctx)
			if err := ws.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}

			reopened := openWorkspace(t, cfg)
			resp, err := reopened.Service().LoadNotebook(ctx, schema.LoadNotebookRequest{NotebookID: nb.ID})
			if err != nil {
				t.Fatalf("LoadNotebook: %v", err)
			}
			if len(resp.Notebook.Cells) != 1 || resp.Notebook.Cells[0].Content != "x = 2" {
				t.Fatalf("unexpected loaded cells %+v", resp.Notebook.Cells)
			}
			list, err := reopened.Store().List(ctx)
			if err != nil || len(list) == 0 {
				t.Fatalf("expected stored summaries, got %v (%v)", list, err)
			}
		})
	}
}

func TestWorkspaceRejectsUnknownKernel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kernels.Enabled = []string{"expr", "cobol"}
	if _, err := Open(context.Background(), cfg, WorkspaceDeps{}); err == nil {
		t.Fatal("expected unknown kernel error")
	}
}

func TestWorkspaceHandlerPublishesNotices(t *testing.T) {
	ws := openWorkspace(t, testConfig(t))
	events, cancel := ws.Bus().Subscribe("")
	defer cancel()

	if !ws.Handler().Handle(context.Background(), "/version") {
		t.Fatal("expected /version to be handled")
	}
	deadline := time.After(time.Second)
	for {
		select {
		case event := <-events:
			if event.Type == eventbus.EventNotice && event.Notice.Title == "Version" {
				return
			}
		case <-deadline:
			t.Fatal("notice not published")
		}
	}
}

func TestWorkspaceRemoteKernels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kernels.Enabled = []string{"expr"}
	cfg.Kernels.Remote.Enabled = true
	cfg.Kernels.Remote.KeepaliveIntervalSeconds = 1

	gateway, err := NewGateway(GatewayConfigFrom(cfg), nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if err := gateway.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = gateway.Stop(context.Background()) })
	waitForSocket(t, cfg.Kernels.Remote.SocketPath)

	ws := openWorkspace(t, cfg)
	ctx := context.Background()
	remoteID := schema.KernelID(kernelgrpc.RemotePrefix + "expr")
	if _, err := ws.Service().SelectKernel(ctx, schema.SelectKernelRequest{KernelID: remoteID}); err != nil {
		t.Fatalf("SelectKernel: %v", err)
	}
	cell := runSingle(t, ws, "6 * 7")
	if cell.Output == nil || cell.Output.Text != "42\n" {
		t.Fatalf("unexpected remote output %+v", cell.Output)
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		conn, err := net.Dial("unix", path)
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
