package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/internal/format"
	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/internal/sessionprefs"
	"pkt.systems/cellbook/internal/version"
	"pkt.systems/cellbook/schema"
)

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	// Clipboard backs /copy and /paste. Both are rejected when nil.
	Clipboard           Clipboard
	DisableAuditLogging bool
}

// Handler routes slash commands to service operations. Every outcome is
// reported to the session as a notice; nothing is returned to the caller.
type Handler struct {
	service core.Service
	cfg     HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(service core.Service, cfg HandlerConfig) *Handler {
	return &Handler{service: service, cfg: cfg}
}

var errUsage = errors.New("usage")

func usage(text string) error {
	return fmt.Errorf("%w: %s", errUsage, text)
}

// rejections are user-input errors reported at warning level.
var rejections = []error{
	errUsage,
	schema.ErrInvalidRequest,
	schema.ErrInvalidCellType,
	schema.ErrInvalidExecutionMode,
	schema.ErrInvalidNotebook,
	schema.ErrCellNotFound,
	schema.ErrNoKernel,
	schema.ErrKernelNotFound,
	schema.ErrNotRunnable,
	schema.ErrSessionBusy,
	schema.ErrNotRunning,
	schema.ErrNothingToUndo,
	schema.ErrNothingToRedo,
	schema.ErrNothingSelected,
	schema.ErrInvalidSplit,
	schema.ErrClipboardEmpty,
	schema.ErrNoClipboard,
}

// outcome is what a command reports back.
type outcome struct {
	level   schema.NoticeLevel
	title   string
	message string
}

func success(title, message string) outcome {
	return outcome{level: schema.NoticeSuccess, title: title, message: message}
}

func info(title, message string) outcome {
	return outcome{level: schema.NoticeInfo, title: title, message: message}
}

// Handle executes input when it is a slash command and reports whether it
// was one.
func (h *Handler) Handle(ctx context.Context, input string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd, ok := Parse(input)
	if !ok {
		return false
	}
	log := logx.Ctx(ctx).With("command", cmd.Name, "args", len(cmd.Args))
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log.Info("command slash request")
	out, err := h.dispatch(ctx, cmd)
	if err != nil {
		h.fail(ctx, titleFor(cmd.Name), err)
		return true
	}
	h.report(ctx, out)
	log.Info("command slash completed")
	return true
}

func (h *Handler) dispatch(ctx context.Context, cmd Command) (outcome, error) {
	switch cmd.Name {
	case "":
		return outcome{}, errors.New("invalid command")
	case "help":
		return info("Help", strings.Join(helpLines(), "\n")), nil
	case "add":
		return h.handleAdd(ctx, cmd)
	case "rm", "delete":
		return h.handleDelete(ctx, cmd)
	case "up", "down":
		return h.handleMove(ctx, cmd)
	case "edit":
		return h.handleEdit(ctx, cmd)
	case "toggle":
		return h.handleToggle(ctx, cmd)
	case "split":
		return h.handleSplit(ctx, cmd)
	case "merge":
		return h.mergeSelected(ctx)
	case "select":
		return h.handleSelect(ctx, cmd)
	case "focus":
		return h.handleFocus(ctx, cmd)
	case "copy":
		return h.handleCopy(ctx, cmd)
	case "paste":
		return h.paste(ctx)
	case "run":
		return h.handleRun(ctx, cmd)
	case "interrupt", "stop":
		if err := h.service.Interrupt(ctx); err != nil {
			return outcome{}, err
		}
		return info("Interrupted", "run interrupted"), nil
	case "clear":
		if err := h.service.ClearOutputs(ctx); err != nil {
			return outcome{}, err
		}
		return success("Outputs cleared", "all outputs cleared"), nil
	case "undo":
		resp, err := h.service.Undo(ctx)
		if err != nil {
			return outcome{}, err
		}
		return info("Undo", "undid "+resp.Label), nil
	case "redo":
		resp, err := h.service.Redo(ctx)
		if err != nil {
			return outcome{}, err
		}
		return info("Redo", "redid "+resp.Label), nil
	case "kernel", "kernels":
		return h.handleKernel(ctx, cmd)
	case "restart":
		kernel, err := h.service.RestartKernel(ctx)
		if err != nil {
			return outcome{}, err
		}
		return success("Kernel restarted", fmt.Sprintf("%s restarted", kernel.Name)), nil
	case "cells", "ls":
		return h.handleCells(ctx)
	case "show":
		return h.handleShow(ctx, cmd)
	case "vars":
		return h.handleVars(ctx)
	case "save":
		if err := h.service.Save(ctx); err != nil {
			return outcome{}, err
		}
		return success("Saved", "notebook saved"), nil
	case "name":
		return h.handleName(ctx, cmd)
	case "mode":
		return h.handleMode(ctx, cmd)
	case "autosave":
		return h.handleAutosave(ctx, cmd)
	case "fulloutput":
		return h.handleFullOutput(ctx)
	case "version":
		return info("Version", "cellbook "+version.Current()), nil
	default:
		return outcome{}, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
}

func (h *Handler) report(ctx context.Context, out outcome) schema.Notice {
	notice := schema.Notice{Level: out.level, Title: out.title, Message: out.message}
	h.service.Notify(ctx, notice)
	return notice
}

func (h *Handler) fail(ctx context.Context, title string, err error) schema.Notice {
	level := schema.NoticeError
	for _, rejection := range rejections {
		if errors.Is(err, rejection) {
			level = schema.NoticeWarning
			break
		}
	}
	if level == schema.NoticeWarning {
		logx.Ctx(ctx).Warn("command slash rejected", "title", title, "err", err)
	} else {
		logx.Ctx(ctx).Warn("command slash failed", "title", title, "err", err)
	}
	return h.report(ctx, outcome{level: level, title: title, message: err.Error()})
}

func (h *Handler) handleAdd(ctx context.Context, cmd Command) (outcome, error) {
	req := schema.InsertCellRequest{Type: schema.CellCode}
	consumed := 0
	if cellType, err := schema.ParseCellType(cmd.Arg(0)); err == nil {
		req.Type = cellType
		consumed++
	}
	switch cmd.Arg(consumed) {
	case "above":
		req.Position = schema.PositionAbove
		consumed++
	case "below":
		req.Position = schema.PositionBelow
		consumed++
	}
	if content := cmd.After(consumed); content != "" {
		text := unescape(content)
		req.Content = &text
	}
	if req.Position != "" {
		snap, err := h.service.Snapshot(ctx)
		if err != nil {
			return outcome{}, err
		}
		req.TargetID = snap.ActiveCellID
	}
	resp, err := h.service.InsertCell(ctx, req)
	if err != nil {
		return outcome{}, err
	}
	_ = h.service.SetActiveCell(ctx, schema.SetActiveCellRequest{CellID: resp.Cell.ID})
	return success("Cell added", fmt.Sprintf("%s cell %d added", resp.Cell.Type, resp.Index+1)), nil
}

func (h *Handler) handleDelete(ctx context.Context, cmd Command) (outcome, error) {
	id, err := h.resolve(ctx, cmd.Arg(0))
	if err != nil {
		return outcome{}, err
	}
	resp, err := h.service.DeleteCell(ctx, schema.DeleteCellRequest{CellID: id})
	if err != nil {
		return outcome{}, err
	}
	if !resp.Deleted {
		return info("Nothing deleted", "cell already removed"), nil
	}
	return success("Cell deleted", "cell deleted"), nil
}

func (h *Handler) handleMove(ctx context.Context, cmd Command) (outcome, error) {
	id, err := h.resolve(ctx, cmd.Arg(0))
	if err != nil {
		return outcome{}, err
	}
	direction := schema.DirectionUp
	if cmd.Name == "down" {
		direction = schema.DirectionDown
	}
	resp, err := h.service.MoveCell(ctx, schema.MoveCellRequest{CellID: id, Direction: direction})
	if err != nil {
		return outcome{}, err
	}
	if !resp.Moved {
		return info("Cell not moved", fmt.Sprintf("cell %d is already at the %s", resp.Index+1, edge(direction))), nil
	}
	return success("Cell moved", fmt.Sprintf("cell moved to %d", resp.Index+1)), nil
}

func edge(direction schema.Direction) string {
	if direction == schema.DirectionUp {
		return "top"
	}
	return "bottom"
}

func (h *Handler) handleEdit(ctx context.Context, cmd Command) (outcome, error) {
	if len(cmd.Args) == 0 {
		return outcome{}, usage("/edit <cell> <content>")
	}
	id, err := h.resolve(ctx, cmd.Args[0])
	if err != nil {
		return outcome{}, err
	}
	content := unescape(cmd.After(1))
	if _, err := h.service.UpdateCell(ctx, schema.UpdateCellRequest{CellID: id, Content: &content}); err != nil {
		return outcome{}, err
	}
	return success("Cell updated", fmt.Sprintf("%d characters", len([]rune(content)))), nil
}

func (h *Handler) handleToggle(ctx context.Context, cmd Command) (outcome, error) {
	id, err := h.resolve(ctx, cmd.Arg(0))
	if err != nil {
		return outcome{}, err
	}
	resp, err := h.service.ToggleCellType(ctx, schema.ToggleCellTypeRequest{CellID: id})
	if err != nil {
		return outcome{}, err
	}
	return success("Cell type changed", fmt.Sprintf("cell is now %s", resp.Cell.Type)), nil
}

func (h *Handler) handleSplit(ctx context.Context, cmd Command) (outcome, error) {
	if len(cmd.Args) < 2 {
		return outcome{}, usage("/split <cell> <offset>")
	}
	id, err := h.resolve(ctx, cmd.Args[0])
	if err != nil {
		return outcome{}, err
	}
	offset, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return outcome{}, usage("/split <cell> <offset>")
	}
	if _, err := h.service.SplitCell(ctx, schema.SplitCellRequest{CellID: id, Offset: offset}); err != nil {
		return outcome{}, err
	}
	return success("Cell split", fmt.Sprintf("split at %d", offset)), nil
}

func (h *Handler) handleSelect(ctx context.Context, cmd Command) (outcome, error) {
	switch cmd.Arg(0) {
	case "":
		return outcome{}, usage("/select all|none|<cell>...")
	case "all":
		return h.selectAll(ctx)
	case "none":
		if _, err := h.service.SelectCells(ctx, schema.SelectCellsRequest{Op: schema.SelectionClear}); err != nil {
			return outcome{}, err
		}
		return info("Selection cleared", "no cells selected"), nil
	}
	ids := make([]schema.CellID, 0, len(cmd.Args))
	for _, arg := range cmd.Args {
		id, err := h.resolve(ctx, arg)
		if err != nil {
			return outcome{}, err
		}
		ids = append(ids, id)
	}
	selected, err := h.service.SelectCells(ctx, schema.SelectCellsRequest{Op: schema.SelectionToggle, CellIDs: ids})
	if err != nil {
		return outcome{}, err
	}
	return info("Selection changed", fmt.Sprintf("%d selected", len(selected))), nil
}

func (h *Handler) handleFocus(ctx context.Context, cmd Command) (outcome, error) {
	if len(cmd.Args) == 0 {
		return outcome{}, usage("/focus <cell>")
	}
	id, err := h.resolve(ctx, cmd.Args[0])
	if err != nil {
		return outcome{}, err
	}
	if err := h.service.SetActiveCell(ctx, schema.SetActiveCellRequest{CellID: id}); err != nil {
		return outcome{}, err
	}
	return info("Active cell", string(id)), nil
}

func (h *Handler) handleCopy(ctx context.Context, cmd Command) (outcome, error) {
	id, err := h.resolve(ctx, cmd.Arg(0))
	if err != nil {
		return outcome{}, err
	}
	return h.copyCell(ctx, id)
}

func (h *Handler) handleRun(ctx context.Context, cmd Command) (outcome, error) {
	arg := cmd.Arg(0)
	var (
		resp schema.RunResponse
		err  error
	)
	switch arg {
	case "all":
		resp, err = h.service.RunCells(ctx, schema.RunCellsRequest{Scope: schema.RunScopeAll})
	case "selected":
		resp, err = h.service.RunCells(ctx, schema.RunCellsRequest{Scope: schema.RunScopeSelected})
	default:
		var id schema.CellID
		id, err = h.resolve(ctx, arg)
		if err != nil {
			return outcome{}, err
		}
		resp, err = h.service.RunCell(ctx, schema.RunCellRequest{CellID: id})
	}
	if err != nil {
		return outcome{}, err
	}
	return h.runOutcome(ctx, arg, resp), nil
}

func (h *Handler) runOutcome(ctx context.Context, arg string, resp schema.RunResponse) outcome {
	counts := map[schema.CellStatus]int{}
	for _, result := range resp.Results {
		counts[result.Status]++
	}
	level := schema.NoticeSuccess
	if counts[schema.CellError] > 0 || counts[schema.CellCancelled] > 0 {
		level = schema.NoticeWarning
	}
	if arg != "all" && arg != "selected" && len(resp.Results) == 1 {
		result := resp.Results[0]
		message := string(result.Status)
		if nb, err := h.service.Notebook(ctx); err == nil {
			if cell, ok := nb.Cell(result.CellID); ok {
				if text := format.Output(cell.Output); text != "" {
					message = text
					if prefs := sessionprefs.FromContext(ctx); prefs != nil {
						message = prefs.Clip(text)
					}
				}
			}
		}
		return outcome{level: level, title: runTitle(result), message: message}
	}
	message := fmt.Sprintf("ran %d cells: %d success, %d error, %d cancelled",
		len(resp.Results), counts[schema.CellSuccess], counts[schema.CellError], counts[schema.CellCancelled])
	return outcome{level: level, title: "Run complete", message: message}
}

func runTitle(result schema.CellRunResult) string {
	switch result.Status {
	case schema.CellSuccess:
		return fmt.Sprintf("Out [%d]", result.ExecutionCount)
	case schema.CellCancelled:
		return "Run cancelled"
	default:
		return "Run failed"
	}
}

func (h *Handler) handleKernel(ctx context.Context, cmd Command) (outcome, error) {
	if len(cmd.Args) == 0 {
		kernels, err := h.service.ListKernels(ctx)
		if err != nil {
			return outcome{}, err
		}
		return info("Kernels", format.Kernels(kernels)), nil
	}
	kernel, err := h.service.SelectKernel(ctx, schema.SelectKernelRequest{KernelID: schema.KernelID(cmd.Args[0])})
	if err != nil {
		return outcome{}, err
	}
	return success("Kernel selected", fmt.Sprintf("%s (%s)", kernel.Name, kernel.Language)), nil
}

func (h *Handler) handleCells(ctx context.Context) (outcome, error) {
	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		return outcome{}, err
	}
	return info(snap.Notebook.Name, format.Cells(snap)), nil
}

func (h *Handler) handleShow(ctx context.Context, cmd Command) (outcome, error) {
	id, err := h.resolve(ctx, cmd.Arg(0))
	if err != nil {
		return outcome{}, err
	}
	nb, err := h.service.Notebook(ctx)
	if err != nil {
		return outcome{}, err
	}
	cell, ok := nb.Cell(id)
	if !ok {
		return outcome{}, schema.ErrCellNotFound
	}
	return info(format.CellTitle(nb.CellIndex(id), cell), format.Cell(cell)), nil
}

func (h *Handler) handleVars(ctx context.Context) (outcome, error) {
	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		return outcome{}, err
	}
	kernel, ok := snap.CurrentKernelInfo()
	if !ok {
		return outcome{}, schema.ErrNoKernel
	}
	return info("Variables", format.Variables(kernel.Variables)), nil
}

func (h *Handler) handleFullOutput(ctx context.Context) (outcome, error) {
	prefs := sessionprefs.FromContext(ctx)
	if prefs == nil {
		return outcome{}, usage("/fulloutput is only available in an interactive session")
	}
	if prefs.ToggleFullOutput() {
		return info("Full output", "run output is shown in full"), nil
	}
	return info("Full output", fmt.Sprintf("run output is clipped to %d lines", sessionprefs.DefaultOutputLines)), nil
}

func (h *Handler) handleName(ctx context.Context, cmd Command) (outcome, error) {
	name := cmd.Remainder
	if name == "" {
		return outcome{}, usage("/name <notebook name>")
	}
	nb, err := h.service.UpdateMetadata(ctx, schema.UpdateMetadataRequest{Name: &name})
	if err != nil {
		return outcome{}, err
	}
	return success("Notebook renamed", nb.Name), nil
}

func (h *Handler) handleMode(ctx context.Context, cmd Command) (outcome, error) {
	if len(cmd.Args) == 0 {
		return outcome{}, usage("/mode sequential|parallel")
	}
	mode, err := schema.ParseExecutionMode(cmd.Args[0])
	if err != nil {
		return outcome{}, err
	}
	return h.updateSettings(ctx, "Execution mode", func(settings *schema.NotebookSettings) {
		settings.ExecutionMode = mode
	}, string(mode))
}

func (h *Handler) handleAutosave(ctx context.Context, cmd Command) (outcome, error) {
	var enabled bool
	switch cmd.Arg(0) {
	case "on", "true":
		enabled = true
	case "off", "false":
	default:
		return outcome{}, usage("/autosave on|off")
	}
	return h.updateSettings(ctx, "Autosave", func(settings *schema.NotebookSettings) {
		settings.AutoSave = enabled
	}, cmd.Arg(0))
}

func (h *Handler) updateSettings(ctx context.Context, title string, apply func(*schema.NotebookSettings), message string) (outcome, error) {
	nb, err := h.service.Notebook(ctx)
	if err != nil {
		return outcome{}, err
	}
	settings := nb.Settings
	apply(&settings)
	if _, err := h.service.UpdateSettings(ctx, schema.UpdateSettingsRequest{Settings: settings}); err != nil {
		return outcome{}, err
	}
	return success(title, message), nil
}

// resolve maps a user cell reference to an id. An empty reference names the
// active cell; digits are a 1-based position; anything else is an id or a
// unique id prefix.
func (h *Handler) resolve(ctx context.Context, ref string) (schema.CellID, error) {
	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		if snap.ActiveCellID == "" {
			return "", fmt.Errorf("%w: no active cell", schema.ErrCellNotFound)
		}
		return snap.ActiveCellID, nil
	}
	cells := snap.Notebook.Cells
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(cells) {
			return "", fmt.Errorf("%w: position %d", schema.ErrCellNotFound, n)
		}
		return cells[n-1].ID, nil
	}
	for _, cell := range cells {
		if string(cell.ID) == ref {
			return cell.ID, nil
		}
	}
	var match schema.CellID
	for _, cell := range cells {
		if strings.HasPrefix(string(cell.ID), ref) {
			if match != "" {
				return "", fmt.Errorf("%w: %q is ambiguous", schema.ErrCellNotFound, ref)
			}
			match = cell.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", schema.ErrCellNotFound, ref)
	}
	return match, nil
}

func titleFor(name string) string {
	if name == "" {
		return "Command failed"
	}
	return "/" + name + " failed"
}

func helpLines() []string {
	return []string{
		"/add [code|markdown|raw|sql] [above|below] [content]",
		"/rm [cell]  /up [cell]  /down [cell]",
		"/edit <cell> <content>  /toggle [cell]  /split <cell> <offset>",
		"/select all|none|<cell>...  /focus <cell>  /merge",
		"/copy [cell]  /paste",
		"/run [cell|all|selected]  /interrupt  /clear",
		"/undo  /redo",
		"/kernel [id]  /restart  /vars",
		"/cells  /show [cell]",
		"/name <name>  /mode sequential|parallel  /autosave on|off",
		"/save  /fulloutput  /version  /help",
		"cells are referenced by position (1, #2), id or id prefix; the active cell is the default",
	}
}
