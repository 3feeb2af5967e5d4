package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook"
	"pkt.systems/cellbook/internal/format"
	"pkt.systems/cellbook/internal/nbformat"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

func newNewCmd(opts *rootOptions) *cobra.Command {
	var template string
	var output string
	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a notebook from a template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			serviceCfg, err := cfg.ServiceConfig()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			nb, err := schema.NewNotebookFromTemplate(template, name, serviceCfg.Settings, time.Now())
			if err != nil {
				return err
			}
			if output != "" {
				data, err := nbformat.Encode(nb)
				if err != nil {
					return err
				}
				if err := writeFile(output, data); err != nil {
					return err
				}
				pslog.Ctx(cmd.Context()).Info("notebook written", "path", output, "template", template)
				_, err = fmt.Fprintln(cmd.OutOrStdout(), nb.ID)
				return err
			}
			ws, err := openWorkspace(cmd, cfg, cellbook.WorkspaceDeps{Notebook: &nb})
			if err != nil {
				return err
			}
			defer closeWorkspace(cmd, ws)
			if err := ws.Service().Save(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), nb.ID)
			return err
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "basic", "notebook template ("+strings.Join(schema.TemplateNames(), ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the notebook to a file instead of the store")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var kernel string
	var mode string
	var write bool
	cmd := &cobra.Command{
		Use:   "run NOTEBOOK.json",
		Short: "Run every code cell of a notebook file and print the outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			nb, err := readNotebook(path)
			if err != nil {
				return err
			}
			if mode != "" {
				parsed, err := schema.ParseExecutionMode(mode)
				if err != nil {
					return err
				}
				nb.Settings.ExecutionMode = parsed
			}
			ws, err := opts.open(cmd, cellbook.WorkspaceDeps{Notebook: &nb, Ephemeral: true})
			if err != nil {
				return err
			}
			defer closeWorkspace(cmd, ws)
			svc := ws.Service()
			ctx := cmd.Context()
			if kernel != "" {
				if _, err := svc.SelectKernel(ctx, schema.SelectKernelRequest{KernelID: schema.KernelID(kernel)}); err != nil {
					return err
				}
			}
			resp, err := svc.RunCells(ctx, schema.RunCellsRequest{Scope: schema.RunScopeAll})
			if err != nil {
				return err
			}
			ran, err := svc.Notebook(ctx)
			if err != nil {
				return err
			}
			failed := printRun(cmd.OutOrStdout(), ran, resp)
			if write {
				export, err := svc.ExportNotebook(ctx)
				if err != nil {
					return err
				}
				if err := writeFile(path, export.Data); err != nil {
					return err
				}
				pslog.Ctx(ctx).Info("notebook written", "path", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d cells failed", failed, len(resp.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kernel, "kernel", "k", "", "kernel id (defaults to session.default_kernel)")
	cmd.Flags().StringVar(&mode, "mode", "", "execution mode override (sequential, parallel)")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write outputs back to the notebook file")
	return cmd
}

func printRun(w io.Writer, nb schema.Notebook, resp schema.RunResponse) int {
	failed := 0
	for _, result := range resp.Results {
		if result.Status != schema.CellSuccess {
			failed++
		}
		cell, ok := nb.Cell(result.CellID)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintln(w, format.CellTitle(nb.CellIndex(cell.ID), cell))
		if text := format.Output(cell.Output); text != "" {
			_, _ = fmt.Fprintln(w, text)
		}
	}
	return failed
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export NOTEBOOK_ID",
		Short: "Export a stored notebook as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open(cmd, cellbook.WorkspaceDeps{})
			if err != nil {
				return err
			}
			defer closeWorkspace(cmd, ws)
			ctx := cmd.Context()
			if _, err := ws.Service().LoadNotebook(ctx, schema.LoadNotebookRequest{NotebookID: schema.NotebookID(args[0])}); err != nil {
				return err
			}
			export, err := ws.Service().ExportNotebook(ctx)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(export.Data)
				return err
			}
			return writeFile(output, export.Data)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import NOTEBOOK.json",
		Short: "Import a notebook file into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			ws, err := opts.open(cmd, cellbook.WorkspaceDeps{})
			if err != nil {
				return err
			}
			defer closeWorkspace(cmd, ws)
			ctx := cmd.Context()
			resp, err := ws.Service().ImportNotebook(ctx, schema.ImportNotebookRequest{Data: data})
			if err != nil {
				return err
			}
			if err := ws.Service().Save(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Notebook.ID)
			return err
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List stored notebooks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open(cmd, cellbook.WorkspaceDeps{})
			if err != nil {
				return err
			}
			defer closeWorkspace(cmd, ws)
			summaries, err := ws.Store().List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tCELLS\tUPDATED")
			for _, summary := range summaries {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", summary.ID, summary.Name, summary.Cells, summary.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}
