package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook"
	"pkt.systems/cellbook/internal/appconfig"
	"pkt.systems/cellbook/internal/nbformat"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

func (o *rootOptions) load() (appconfig.Config, error) {
	return appconfig.Load(o.configPath)
}

func (o *rootOptions) open(cmd *cobra.Command, deps cellbook.WorkspaceDeps) (*cellbook.Workspace, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return openWorkspace(cmd, cfg, deps)
}

func openWorkspace(cmd *cobra.Command, cfg appconfig.Config, deps cellbook.WorkspaceDeps) (*cellbook.Workspace, error) {
	if deps.Logger == nil {
		deps.Logger = pslog.Ctx(cmd.Context())
	}
	return cellbook.Open(cmd.Context(), cfg, deps)
}

func closeWorkspace(cmd *cobra.Command, ws *cellbook.Workspace) {
	if err := ws.Close(context.Background()); err != nil {
		pslog.Ctx(cmd.Context()).Warn("workspace close failed", "err", err)
	}
}

func readNotebook(path string) (schema.Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.Notebook{}, err
	}
	nb, err := nbformat.Decode(data)
	if err != nil {
		return schema.Notebook{}, fmt.Errorf("%s: %w", path, err)
	}
	return nb, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
