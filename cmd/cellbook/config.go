package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook/internal/appconfig"
	"pkt.systems/pslog"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := appconfig.WriteDefault(opts.configPath, overwrite)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config wrote", "path", path)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
