package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/cellbook/schema"
)

// echoKernel echoes the code, fails on "fail" and assigns "set" as x = 1.
func echoKernel() *fakeKernel {
	return newFakeKernel("echo", func(_ context.Context, req ExecuteRequest) (ExecuteResult, error) {
		switch req.Code {
		case "fail":
			return ExecuteResult{Error: &schema.ExecError{Name: "Error", Message: "boom"}}, nil
		case "set":
			return ExecuteResult{Variables: map[string]any{"x": 1}}, nil
		case "read":
			return ExecuteResult{Output: fmt.Sprint(req.Context.Variables["x"])}, nil
		}
		return ExecuteResult{Output: req.Code}, nil
	})
}

func runCell(t *testing.T, svc Service, id schema.CellID) schema.CellRunResult {
	t.Helper()
	resp, err := svc.RunCell(context.Background(), schema.RunCellRequest{CellID: id})
	if err != nil {
		t.Fatalf("run cell: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(resp.Results))
	}
	return resp.Results[0]
}

func TestRunCellExecutionCounts(t *testing.T) {
	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{echoKernel()}})
	failing := insertCode(t, svc, "fail")
	ok := insertCode(t, svc, "hello")

	result := runCell(t, svc, failing.ID)
	if result.Status != schema.CellError || result.Error == nil || result.Error.Message != "boom" {
		t.Fatalf("expected error result, got %+v", result)
	}
	cell := cellByID(t, svc, failing.ID)
	if cell.ExecutionCount != nil {
		t.Fatalf("expected no execution count after failure, got %d", *cell.ExecutionCount)
	}
	if cell.Output == nil || cell.Output.Error == nil {
		t.Fatalf("expected error output on failed cell")
	}
	snap, _ := svc.Snapshot(context.Background())
	if snap.KernelStatus != schema.KernelErrored {
		t.Fatalf("expected kernel error status, got %s", snap.KernelStatus)
	}

	result = runCell(t, svc, ok.ID)
	if result.Status != schema.CellSuccess || result.ExecutionCount != 1 {
		t.Fatalf("expected first success to be count 1, got %+v", result)
	}
	cell = cellByID(t, svc, ok.ID)
	if cell.Output == nil || cell.Output.Text != "hello" {
		t.Fatalf("expected echoed output, got %+v", cell.Output)
	}
	if cell.ExecutionTime == nil || *cell.ExecutionTime < 0 {
		t.Fatalf("expected execution time")
	}
	if result = runCell(t, svc, ok.ID); result.ExecutionCount != 2 {
		t.Fatalf("expected count 2, got %d", result.ExecutionCount)
	}
	snap, _ = svc.Snapshot(context.Background())
	if snap.ExecutionCount != 2 || snap.KernelStatus != schema.KernelIdle || snap.IsExecuting {
		t.Fatalf("unexpected snapshot count=%d status=%s executing=%v", snap.ExecutionCount, snap.KernelStatus, snap.IsExecuting)
	}
}

func TestRunCellRejections(t *testing.T) {
	ctx := context.Background()
	bare := newTestService(t, schema.ServiceConfig{}, ServiceDeps{})
	cell := insertCode(t, bare, "1")
	if _, err := bare.RunCell(ctx, schema.RunCellRequest{CellID: cell.ID}); !errors.Is(err, schema.ErrNoKernel) {
		t.Fatalf("expected ErrNoKernel, got %v", err)
	}

	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{echoKernel()}})
	md, err := svc.InsertCell(ctx, schema.InsertCellRequest{Type: schema.CellMarkdown})
	if err != nil {
		t.Fatalf("insert markdown: %v", err)
	}
	if _, err := svc.RunCell(ctx, schema.RunCellRequest{CellID: md.Cell.ID}); !errors.Is(err, schema.ErrNotRunnable) {
		t.Fatalf("expected ErrNotRunnable, got %v", err)
	}
	if _, err := svc.RunCell(ctx, schema.RunCellRequest{CellID: "missing"}); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound, got %v", err)
	}
	if _, err := svc.RunCells(ctx, schema.RunCellsRequest{Scope: schema.RunScopeSelected}); !errors.Is(err, schema.ErrNothingSelected) {
		t.Fatalf("expected ErrNothingSelected, got %v", err)
	}
	if got := cellByID(t, svc, md.Cell.ID); got.Status != schema.CellIdle {
		t.Fatalf("expected markdown cell untouched, got %s", got.Status)
	}
}

func TestRunCellsSequentialOrder(t *testing.T) {
	kernel := newFakeKernel("slow", func(_ context.Context, req ExecuteRequest) (ExecuteResult, error) {
		if req.Code == "a" {
			time.Sleep(50 * time.Millisecond)
		}
		return ExecuteResult{Output: req.Code}, nil
	})
	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{kernel}})
	a := insertCode(t, svc, "a")
	if _, err := svc.InsertCell(context.Background(), schema.InsertCellRequest{Type: schema.CellMarkdown}); err != nil {
		t.Fatalf("insert markdown: %v", err)
	}
	b := insertCode(t, svc, "b")

	resp, err := svc.RunCells(context.Background(), schema.RunCellsRequest{Scope: schema.RunScopeAll})
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].CellID != a.ID || resp.Results[1].CellID != b.ID {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
	calls := kernel.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two kernel calls, got %d", len(calls))
	}
	if calls[1].started.Before(calls[0].finished) {
		t.Fatalf("expected b to start after a finished")
	}
	if resp.Results[0].ExecutionCount != 1 || resp.Results[1].ExecutionCount != 2 {
		t.Fatalf("expected counts 1 and 2, got %d and %d", resp.Results[0].ExecutionCount, resp.Results[1].ExecutionCount)
	}
}

func TestVariablesChainAcrossCells(t *testing.T) {
	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{echoKernel()}})
	set := insertCode(t, svc, "set")
	read := insertCode(t, svc, "read")
	if _, err := svc.RunCells(context.Background(), schema.RunCellsRequest{CellIDs: []schema.CellID{read.ID, set.ID}, Scope: schema.RunScopeCells}); err != nil {
		t.Fatalf("run cells: %v", err)
	}
	if got := cellByID(t, svc, read.ID); got.Output == nil || got.Output.Text != "1" {
		t.Fatalf("expected read cell to see x, got %+v", got.Output)
	}
	kernels, err := svc.ListKernels(context.Background())
	if err != nil {
		t.Fatalf("list kernels: %v", err)
	}
	variable, ok := kernels[0].Variables["x"]
	if !ok || variable.Type != "number" || variable.Repr != "1" {
		t.Fatalf("unexpected variable %+v", variable)
	}
}

// blockingKernel blocks every run until its context ends.
func blockingKernel(started chan<- schema.CellID) *fakeKernel {
	return newFakeKernel("block", func(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
		started <- req.Context.CellID
		<-ctx.Done()
		return ExecuteResult{Output: "partial"}, ctx.Err()
	})
}

func TestInterruptCancelsRun(t *testing.T) {
	ctx := context.Background()
	started := make(chan schema.CellID, 4)
	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{blockingKernel(started)}})
	if err := svc.Interrupt(ctx); !errors.Is(err, schema.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	a := insertCode(t, svc, "a")
	b := insertCode(t, svc, "b")

	type outcome struct {
		resp schema.RunResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := svc.RunCells(ctx, schema.RunCellsRequest{Scope: schema.RunScopeAll})
		done <- outcome{resp, err}
	}()
	select {
	case id := <-started:
		if id != a.ID {
			t.Fatalf("expected a to start first, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for run start")
	}

	if got := cellByID(t, svc, a.ID); got.Status != schema.CellRunning {
		t.Fatalf("expected running status, got %s", got.Status)
	}
	if _, err := svc.RunCell(ctx, schema.RunCellRequest{CellID: b.ID}); !errors.Is(err, schema.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if _, err := svc.DeleteCell(ctx, schema.DeleteCellRequest{CellID: a.ID}); !errors.Is(err, schema.ErrSessionBusy) {
		t.Fatalf("expected delete of running cell to fail, got %v", err)
	}
	if err := svc.ClearOutputs(ctx); !errors.Is(err, schema.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy from clear, got %v", err)
	}
	if _, err := svc.Undo(ctx); !errors.Is(err, schema.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy from undo, got %v", err)
	}
	snap, _ := svc.Snapshot(ctx)
	if !snap.IsExecuting || snap.KernelStatus != schema.KernelBusy {
		t.Fatalf("expected busy session, got executing=%v status=%s", snap.IsExecuting, snap.KernelStatus)
	}

	if err := svc.Interrupt(ctx); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	var out outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for interrupted run")
	}
	if out.err != nil {
		t.Fatalf("run: %v", out.err)
	}
	if len(out.resp.Results) != 1 || out.resp.Results[0].Status != schema.CellCancelled {
		t.Fatalf("expected one cancelled result, got %+v", out.resp.Results)
	}
	if got := cellByID(t, svc, a.ID); got.Status != schema.CellCancelled || got.Output == nil || got.Output.Error.Name != "Interrupted" {
		t.Fatalf("expected cancelled cell with interrupt error, got %+v", got)
	}
	if got := cellByID(t, svc, b.ID); got.Status != schema.CellIdle {
		t.Fatalf("expected b never started, got %s", got.Status)
	}
	snap, _ = svc.Snapshot(ctx)
	if snap.IsExecuting || snap.KernelStatus != schema.KernelIdle || snap.ExecutionCount != 0 {
		t.Fatalf("unexpected snapshot after interrupt: %+v", snap)
	}
}

func TestRunCellsParallel(t *testing.T) {
	var arrived atomic.Int32
	all := make(chan struct{})
	var once sync.Once
	kernel := newFakeKernel("par", func(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
		if arrived.Add(1) == 3 {
			once.Do(func() { close(all) })
		}
		select {
		case <-all:
		case <-time.After(2 * time.Second):
			return ExecuteResult{}, errors.New("cells did not run concurrently")
		}
		seen := fmt.Sprint(req.Context.Variables["x"])
		return ExecuteResult{Output: seen, Variables: map[string]any{"x": req.Code}}, nil
	})
	settings := schema.DefaultNotebookSettings()
	settings.ExecutionMode = schema.ExecutionParallel
	svc := newTestService(t, schema.ServiceConfig{Settings: settings}, ServiceDeps{Kernels: StaticKernelProvider{kernel}})
	ids := []schema.CellID{insertCode(t, svc, "1").ID, insertCode(t, svc, "2").ID, insertCode(t, svc, "3").ID}

	resp, err := svc.RunCells(context.Background(), schema.RunCellsRequest{Scope: schema.RunScopeAll})
	if err != nil {
		t.Fatalf("run parallel: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected three results, got %d", len(resp.Results))
	}
	counts := map[int]bool{}
	for _, result := range resp.Results {
		if result.Status != schema.CellSuccess {
			t.Fatalf("expected success, got %+v", result)
		}
		counts[result.ExecutionCount] = true
	}
	for _, want := range []int{1, 2, 3} {
		if !counts[want] {
			t.Fatalf("expected distinct counts 1..3, got %v", counts)
		}
	}
	for _, id := range ids {
		if got := cellByID(t, svc, id); got.Output == nil || got.Output.Text != "<nil>" {
			t.Fatalf("expected every cell to see the batch-start snapshot, got %+v", got.Output)
		}
	}
}

func TestRunCellsParallelKeepsEarlyError(t *testing.T) {
	var arrived atomic.Int32
	all := make(chan struct{})
	var once sync.Once
	kernel := newFakeKernel("par", func(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
		if arrived.Add(1) == 3 {
			once.Do(func() { close(all) })
		}
		select {
		case <-all:
		case <-time.After(2 * time.Second):
			return ExecuteResult{}, errors.New("cells did not run concurrently")
		}
		if req.Code == "fail" {
			return ExecuteResult{Error: &schema.ExecError{Name: "Error", Message: "boom"}}, nil
		}
		time.Sleep(30 * time.Millisecond)
		return ExecuteResult{Output: req.Code}, nil
	})
	settings := schema.DefaultNotebookSettings()
	settings.ExecutionMode = schema.ExecutionParallel
	svc := newTestService(t, schema.ServiceConfig{Settings: settings}, ServiceDeps{Kernels: StaticKernelProvider{kernel}})
	insertCode(t, svc, "fail")
	insertCode(t, svc, "slow")
	insertCode(t, svc, "slower")

	resp, err := svc.RunCells(context.Background(), schema.RunCellsRequest{Scope: schema.RunScopeAll})
	if err != nil {
		t.Fatalf("run parallel: %v", err)
	}
	if len(resp.Results) != 3 || resp.Results[0].Status != schema.CellError {
		t.Fatalf("expected the failing cell to finish first, got %+v", resp.Results)
	}
	snap, _ := svc.Snapshot(context.Background())
	if snap.KernelStatus != schema.KernelErrored {
		t.Fatalf("expected kernel errored after batch, got %s", snap.KernelStatus)
	}
}

func TestClearOutputsResetsCounter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{echoKernel()}})
	cell := insertCode(t, svc, "x")
	runCell(t, svc, cell.ID)
	runCell(t, svc, cell.ID)

	if err := svc.ClearOutputs(ctx); err != nil {
		t.Fatalf("clear outputs: %v", err)
	}
	got := cellByID(t, svc, cell.ID)
	if got.Status != schema.CellIdle || got.Output != nil || got.ExecutionCount != nil || got.ExecutionTime != nil {
		t.Fatalf("expected cleared cell, got %+v", got)
	}
	if got.Content != "x" {
		t.Fatalf("expected content kept, got %q", got.Content)
	}
	if result := runCell(t, svc, cell.ID); result.ExecutionCount != 1 {
		t.Fatalf("expected counter reset to 1, got %d", result.ExecutionCount)
	}
}

func TestExecuteTimeout(t *testing.T) {
	started := make(chan schema.CellID, 1)
	svc := newTestService(t, schema.ServiceConfig{ExecuteTimeout: 20 * time.Millisecond}, ServiceDeps{Kernels: StaticKernelProvider{blockingKernel(started)}})
	cell := insertCode(t, svc, "loop")
	result := runCell(t, svc, cell.ID)
	if result.Status != schema.CellError || result.Error == nil || result.Error.Name != "Timeout" {
		t.Fatalf("expected timeout error, got %+v", result)
	}
	if got := cellByID(t, svc, cell.ID); got.Output == nil || got.Output.Text != "partial" {
		t.Fatalf("expected partial output kept, got %+v", got.Output)
	}
}

func TestRunEventsBracketEachCell(t *testing.T) {
	rec := &recordingSink{}
	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{echoKernel()}, EventSink: rec.sink()})
	cell := insertCode(t, svc, "x")
	runCell(t, svc, cell.ID)
	runs := rec.Runs()
	if len(runs) != 2 {
		t.Fatalf("expected start and finish events, got %d", len(runs))
	}
	if runs[0].Phase != schema.CellRunStarted || runs[0].Cell.Status != schema.CellRunning {
		t.Fatalf("unexpected start event %+v", runs[0])
	}
	if runs[1].Phase != schema.CellRunFinished || runs[1].Status != schema.CellSuccess {
		t.Fatalf("unexpected finish event %+v", runs[1])
	}
}

func TestSelectAndRestartKernel(t *testing.T) {
	ctx := context.Background()
	second := newFakeKernel("second", nil)
	svc := newTestService(t, schema.ServiceConfig{}, ServiceDeps{Kernels: StaticKernelProvider{echoKernel(), second}})
	cell := insertCode(t, svc, "set")
	runCell(t, svc, cell.ID)

	if _, err := svc.SelectKernel(ctx, schema.SelectKernelRequest{KernelID: "missing"}); !errors.Is(err, schema.ErrKernelNotFound) {
		t.Fatalf("expected ErrKernelNotFound, got %v", err)
	}
	info, err := svc.RestartKernel(ctx)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if info.ID != "echo" || len(info.Variables) != 0 || info.Status != schema.KernelIdle {
		t.Fatalf("expected restarted echo kernel, got %+v", info)
	}
	info, err = svc.SelectKernel(ctx, schema.SelectKernelRequest{KernelID: "second"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !info.Current {
		t.Fatalf("expected selected kernel to be current")
	}
	snap, _ := svc.Snapshot(ctx)
	current, ok := snap.CurrentKernelInfo()
	if snap.CurrentKernel != "second" || !ok || current.ID != "second" {
		t.Fatalf("expected current kernel second, got %s", snap.CurrentKernel)
	}
}
