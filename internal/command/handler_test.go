package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/internal/kernels/exprkernel"
	"pkt.systems/cellbook/internal/sessionprefs"
	"pkt.systems/cellbook/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type noticeSink struct {
	mu      sync.Mutex
	notices []schema.Notice
}

func (s *noticeSink) OnNotebookEvent(schema.NotebookEvent) {}
func (s *noticeSink) OnCellRun(schema.CellRunEvent)        {}
func (s *noticeSink) OnKernelEvent(schema.KernelEvent)     {}

func (s *noticeSink) OnNotice(notice schema.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
}

func (s *noticeSink) last(t *testing.T) schema.Notice {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		t.Fatal("expected a notice")
	}
	return s.notices[len(s.notices)-1]
}

type harness struct {
	svc     core.Service
	handler *Handler
	sink    *noticeSink
}

func newHarness(t *testing.T, cfg HandlerConfig) *harness {
	t.Helper()
	sink := &noticeSink{}
	settings := schema.DefaultNotebookSettings()
	settings.AutoSave = false
	svc, err := core.NewService(context.Background(), schema.ServiceConfig{
		StateDir: t.TempDir(),
		Settings: settings,
	}, core.ServiceDeps{
		Kernels:   core.StaticKernelProvider{exprkernel.New()},
		EventSink: sink,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return &harness{svc: svc, handler: NewHandler(svc, cfg), sink: sink}
}

func (h *harness) run(t *testing.T, input string) schema.Notice {
	t.Helper()
	if !h.handler.Handle(context.Background(), input) {
		t.Fatalf("expected %q to be handled", input)
	}
	return h.sink.last(t)
}

func (h *harness) notebook(t *testing.T) schema.Notebook {
	t.Helper()
	nb, err := h.svc.Notebook(context.Background())
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	return nb
}

func contents(nb schema.Notebook) []string {
	out := make([]string, len(nb.Cells))
	for i, cell := range nb.Cells {
		out[i] = cell.Content
	}
	return out
}

func TestHandleIgnoresPlainInput(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	if h.handler.Handle(context.Background(), "x = 1") {
		t.Fatal("plain input must not be handled")
	}
}

func TestHandleUnknownCommandBecomesNotice(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	notice := h.run(t, "/frobnicate")
	if notice.Level != schema.NoticeError || !strings.Contains(notice.Message, "unknown command") {
		t.Fatalf("unexpected notice %+v", notice)
	}
	notice = h.run(t, "/")
	if notice.Level != schema.NoticeError {
		t.Fatalf("expected error notice for empty command, got %+v", notice)
	}
}

func TestHandleAddAndPositions(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	if notice := h.run(t, "/add code x = 1"); notice.Level != schema.NoticeSuccess {
		t.Fatalf("unexpected notice %+v", notice)
	}
	h.run(t, "/add markdown # Title")
	h.run(t, "/focus 1")
	h.run(t, "/add raw above top")
	h.run(t, "/add y = 2")

	nb := h.notebook(t)
	got := contents(nb)
	want := []string{"top", "x = 1", "# Title", "y = 2"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected cells %q", got)
	}
	if nb.Cells[0].Type != schema.CellRaw || nb.Cells[3].Type != schema.CellCode {
		t.Fatalf("unexpected types %s %s", nb.Cells[0].Type, nb.Cells[3].Type)
	}
}

func TestHandleAddUsesTemplate(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add sql")
	nb := h.notebook(t)
	if nb.Cells[0].Content != schema.DefaultTemplates()[schema.CellSQL] {
		t.Fatalf("expected sql template, got %q", nb.Cells[0].Content)
	}
}

func TestHandleRunReportsOutput(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add x = 40")
	h.run(t, "/add x + 2")

	notice := h.run(t, "/run all")
	if notice.Level != schema.NoticeSuccess || !strings.Contains(notice.Message, "ran 2 cells: 2 success") {
		t.Fatalf("unexpected run notice %+v", notice)
	}
	notice = h.run(t, "/run 2")
	if notice.Title != "Out [3]" || notice.Message != "42" {
		t.Fatalf("unexpected single run notice %+v", notice)
	}
	notice = h.run(t, "/vars")
	if !strings.Contains(notice.Message, "x: number = 40") {
		t.Fatalf("unexpected variables %q", notice.Message)
	}
}

func TestHandleRunClipsLongOutput(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	lines := make([]string, 0, 25)
	for i := 1; i <= 25; i++ {
		lines = append(lines, fmt.Sprint(i))
	}
	content := strings.Join(lines, "\n")
	if _, err := h.svc.InsertCell(context.Background(), schema.InsertCellRequest{Content: &content}); err != nil {
		t.Fatalf("InsertCell: %v", err)
	}
	prefs := sessionprefs.New()
	ctx := sessionprefs.WithContext(context.Background(), prefs)

	h.handler.Handle(ctx, "/run 1")
	notice := h.sink.last(t)
	if !strings.HasSuffix(notice.Message, "… 5 more lines") {
		t.Fatalf("expected clipped output, got %q", notice.Message)
	}

	h.handler.Handle(ctx, "/fulloutput")
	if !prefs.FullOutput() {
		t.Fatal("expected full output to be enabled")
	}
	h.handler.Handle(ctx, "/run 1")
	if got := h.sink.last(t).Message; !strings.HasSuffix(got, "24\n25") {
		t.Fatalf("expected full output, got %q", got)
	}

	notice = h.run(t, "/fulloutput")
	if notice.Level != schema.NoticeWarning {
		t.Fatalf("expected warning without prefs, got %+v", notice)
	}
}

func TestHandleRunFailureIsWarning(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add 1 +")
	notice := h.run(t, "/run")
	if notice.Level != schema.NoticeWarning || notice.Title != "Run failed" {
		t.Fatalf("unexpected notice %+v", notice)
	}
	if !strings.Contains(notice.Message, "ExprError") {
		t.Fatalf("expected error name in message, got %q", notice.Message)
	}
}

func TestHandleRejectionsAreWarnings(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	cases := []string{"/run", "/rm 3", "/undo", "/split", "/mode turbo", "/merge", "/paste"}
	for _, input := range cases {
		notice := h.run(t, input)
		if notice.Level != schema.NoticeWarning {
			t.Fatalf("%s: expected warning, got %+v", input, notice)
		}
	}
}

func TestHandleEditUndoRedo(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add a")
	h.run(t, `/edit 1 line1\nline2`)
	if got := h.notebook(t).Cells[0].Content; got != "line1\nline2" {
		t.Fatalf("unexpected content %q", got)
	}
	if notice := h.run(t, "/undo"); !strings.HasPrefix(notice.Message, "undid ") {
		t.Fatalf("unexpected undo notice %+v", notice)
	}
	if got := h.notebook(t).Cells[0].Content; got != "a" {
		t.Fatalf("undo did not restore content, got %q", got)
	}
	h.run(t, "/redo")
	if got := h.notebook(t).Cells[0].Content; got != "line1\nline2" {
		t.Fatalf("redo did not reapply content, got %q", got)
	}
}

func TestHandleMoveAtBoundary(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add a")
	h.run(t, "/add b")
	if notice := h.run(t, "/up 1"); notice.Level != schema.NoticeInfo {
		t.Fatalf("boundary move should be informational, got %+v", notice)
	}
	h.run(t, "/down 1")
	if got := strings.Join(contents(h.notebook(t)), ","); got != "b,a" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestCopyPasteAssignsFreshID(t *testing.T) {
	h := newHarness(t, HandlerConfig{Clipboard: NewMemoryClipboard()})
	h.run(t, "/add x = 1")
	original := h.notebook(t).Cells[0]

	if notice := h.handler.Copy(context.Background(), original.ID); notice.Level != schema.NoticeSuccess {
		t.Fatalf("unexpected copy notice %+v", notice)
	}
	if notice := h.handler.Paste(context.Background()); notice.Level != schema.NoticeSuccess {
		t.Fatalf("unexpected paste notice %+v", notice)
	}
	nb := h.notebook(t)
	if len(nb.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(nb.Cells))
	}
	if nb.Cells[1].ID == original.ID || nb.Cells[1].Content != original.Content {
		t.Fatalf("unexpected pasted cell %+v", nb.Cells[1])
	}
}

func TestCopyWithoutClipboard(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add x")
	notice := h.run(t, "/copy")
	if notice.Level != schema.NoticeWarning || notice.Message != schema.ErrNoClipboard.Error() {
		t.Fatalf("unexpected notice %+v", notice)
	}
}

func TestPasteEmptyClipboard(t *testing.T) {
	h := newHarness(t, HandlerConfig{Clipboard: NewMemoryClipboard()})
	notice := h.handler.Paste(context.Background())
	if notice.Level != schema.NoticeWarning || notice.Message != schema.ErrClipboardEmpty.Error() {
		t.Fatalf("unexpected notice %+v", notice)
	}
}

func TestSelectAllAndMerge(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add a")
	h.run(t, "/add b")
	h.run(t, "/add c")
	first := h.notebook(t).Cells[0].ID

	if notice := h.handler.SelectAll(context.Background()); notice.Message != "3 selected" {
		t.Fatalf("unexpected select notice %+v", notice)
	}
	if notice := h.handler.MergeSelected(context.Background()); notice.Level != schema.NoticeSuccess {
		t.Fatalf("unexpected merge notice %+v", notice)
	}
	nb := h.notebook(t)
	if len(nb.Cells) != 1 || nb.Cells[0].ID != first || nb.Cells[0].Content != "a\nb\nc" {
		t.Fatalf("unexpected merge result %+v", nb.Cells)
	}
}

func TestHandleSelectToggleAndNone(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add a")
	h.run(t, "/add b")
	if notice := h.run(t, "/select 1 2"); notice.Message != "2 selected" {
		t.Fatalf("unexpected notice %+v", notice)
	}
	if notice := h.run(t, "/select 2"); notice.Message != "1 selected" {
		t.Fatalf("unexpected notice %+v", notice)
	}
	h.run(t, "/select none")
	snap, _ := h.svc.Snapshot(context.Background())
	if len(snap.SelectedCellIDs) != 0 {
		t.Fatalf("expected empty selection, got %v", snap.SelectedCellIDs)
	}
}

func TestHandleSettingsCommands(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/mode parallel")
	h.run(t, "/autosave on")
	h.run(t, "/name Quarterly report")
	nb := h.notebook(t)
	if nb.Settings.ExecutionMode != schema.ExecutionParallel || !nb.Settings.AutoSave {
		t.Fatalf("unexpected settings %+v", nb.Settings)
	}
	if nb.Name != "Quarterly report" {
		t.Fatalf("unexpected name %q", nb.Name)
	}
}

func TestHandleKernelCommands(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	notice := h.run(t, "/kernel")
	if !strings.Contains(notice.Message, "* expr") {
		t.Fatalf("expected current expr kernel, got %q", notice.Message)
	}
	if notice := h.run(t, "/kernel missing"); notice.Level != schema.NoticeWarning {
		t.Fatalf("expected warning, got %+v", notice)
	}
	if notice := h.run(t, "/restart"); notice.Level != schema.NoticeSuccess {
		t.Fatalf("unexpected restart notice %+v", notice)
	}
}

func TestResolveReferences(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	h.run(t, "/add a")
	h.run(t, "/add b")
	nb := h.notebook(t)
	ctx := context.Background()

	if id, err := h.handler.resolve(ctx, "#2"); err != nil || id != nb.Cells[1].ID {
		t.Fatalf("resolve #2: %v %v", id, err)
	}
	if id, err := h.handler.resolve(ctx, string(nb.Cells[0].ID)); err != nil || id != nb.Cells[0].ID {
		t.Fatalf("resolve id: %v %v", id, err)
	}
	if id, err := h.handler.resolve(ctx, ""); err != nil || id != nb.Cells[1].ID {
		t.Fatalf("resolve active: %v %v", id, err)
	}
	if _, err := h.handler.resolve(ctx, "9"); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestResolveExactIDBeforePrefix(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	ctx := context.Background()
	for _, id := range []schema.CellID{"cell-10", "cell-1", "cell-2"} {
		cell := schema.NewCell(schema.CellCode, time.Now())
		cell.ID = id
		if _, err := h.svc.InsertCell(ctx, schema.InsertCellRequest{Cell: &cell}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if id, err := h.handler.resolve(ctx, "cell-1"); err != nil || id != "cell-1" {
		t.Fatalf("expected exact match cell-1, got %q %v", id, err)
	}
	if id, err := h.handler.resolve(ctx, "cell-2"); err != nil || id != "cell-2" {
		t.Fatalf("expected cell-2, got %q %v", id, err)
	}
	if _, err := h.handler.resolve(ctx, "cell-"); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ambiguous prefix to be rejected, got %v", err)
	}
}

func TestParse(t *testing.T) {
	cmd, ok := Parse("  /ADD markdown below # Heading text")
	if !ok {
		t.Fatal("expected command")
	}
	if cmd.Name != "add" || cmd.Arg(0) != "markdown" || cmd.Arg(1) != "below" || cmd.Arg(9) != "" {
		t.Fatalf("unexpected parse %+v", cmd)
	}
	if got := cmd.After(2); got != "# Heading text" {
		t.Fatalf("unexpected remainder %q", got)
	}
	if _, ok := Parse("no slash"); ok {
		t.Fatal("plain text parsed as command")
	}
	if got := unescape(`a\tb\\n`); got != "a\tb\\n" {
		t.Fatalf("unexpected unescape %q", got)
	}
	if got := unescape(`keep \d`); got != `keep \d` {
		t.Fatalf("invalid escapes must be kept, got %q", got)
	}
}
