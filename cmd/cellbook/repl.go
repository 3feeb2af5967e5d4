package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook"
	"pkt.systems/cellbook/internal/eventbus"
	"pkt.systems/cellbook/internal/logx"
	"pkt.systems/cellbook/internal/sessionprefs"
	"pkt.systems/cellbook/schema"
)

func newReplCmd(opts *rootOptions) *cobra.Command {
	var notebookID string
	var file string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Edit and run a notebook interactively with slash commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := cellbook.WorkspaceDeps{}
			if file != "" {
				nb, err := readNotebook(file)
				if err != nil {
					return err
				}
				deps.Notebook = &nb
			}
			ws, err := opts.open(cmd, deps)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if notebookID != "" {
				if _, err := ws.Service().LoadNotebook(ctx, schema.LoadNotebookRequest{NotebookID: schema.NotebookID(notebookID)}); err != nil {
					closeWorkspace(cmd, ws)
					return err
				}
			}
			return runRepl(ctx, ws, cmd.InOrStdin(), cmd.OutOrStdout(), func() { closeWorkspace(cmd, ws) })
		},
	}
	cmd.Flags().StringVarP(&notebookID, "notebook", "n", "", "stored notebook id to open")
	cmd.Flags().StringVarP(&file, "file", "f", "", "notebook file to open")
	return cmd
}

// runRepl feeds input lines to the workspace until EOF or /quit. Slash
// commands go to the handler; any other line becomes a code cell that is
// run right away.
func runRepl(ctx context.Context, ws *cellbook.Workspace, in io.Reader, out io.Writer, closeFn func()) error {
	events, cancel := ws.Bus().Subscribe("")
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for event := range events {
			if event.Type == eventbus.EventNotice {
				printNotice(out, event.Notice)
			}
		}
	}()

	snap, err := ws.Service().Snapshot(ctx)
	if err == nil {
		ctx = logx.ContextWithNotebook(ctx, snap.Notebook.ID)
	}
	ctx = sessionprefs.WithContext(ctx, sessionprefs.New())
	handler := ws.Handler()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if handler.Handle(ctx, line) {
			continue
		}
		content := line
		resp, err := ws.Service().InsertCell(ctx, schema.InsertCellRequest{Type: schema.CellCode, Content: &content})
		if err != nil {
			ws.Service().Notify(ctx, schema.Notice{Level: schema.NoticeError, Title: "Add failed", Message: err.Error()})
			continue
		}
		_ = ws.Service().SetActiveCell(ctx, schema.SetActiveCellRequest{CellID: resp.Cell.ID})
		handler.Handle(ctx, "/run "+string(resp.Cell.ID))
	}
	scanErr := scanner.Err()

	closeFn()
	cancel()
	<-printed
	return scanErr
}

func printNotice(w io.Writer, notice schema.Notice) {
	prefix := ""
	switch notice.Level {
	case schema.NoticeWarning:
		prefix = "warning: "
	case schema.NoticeError:
		prefix = "error: "
	}
	message := strings.TrimRight(notice.Message, "\n")
	switch {
	case message == "":
		_, _ = fmt.Fprintf(w, "%s%s\n", prefix, notice.Title)
	case strings.Contains(message, "\n"):
		_, _ = fmt.Fprintf(w, "%s%s\n%s\n", prefix, notice.Title, message)
	default:
		_, _ = fmt.Fprintf(w, "%s%s: %s\n", prefix, notice.Title, message)
	}
}
