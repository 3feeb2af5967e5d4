package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/cellbook"
	"pkt.systems/pslog"
)

func newKernelCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kernel",
		Short: "Inspect and serve kernels",
	}
	cmd.AddCommand(newKernelServeCmd(opts))
	cmd.AddCommand(newKernelListCmd(opts))
	return cmd
}

func newKernelServeCmd(opts *rootOptions) *cobra.Command {
	var socket string
	var keepalive time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in kernels over the gateway socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			gatewayCfg := cellbook.GatewayConfigFrom(cfg)
			if socket != "" {
				gatewayCfg.Gateway.SocketPath = socket
			}
			if cmd.Flags().Changed("keepalive") {
				gatewayCfg.Gateway.KeepaliveInterval = keepalive
			}
			server, err := cellbook.NewGateway(gatewayCfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := server.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("gateway stop failed", "err", err)
				}
			}()
			return server.Wait()
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "unix socket path (default kernels.remote.socket_path)")
	cmd.Flags().DurationVar(&keepalive, "keepalive", 0, "exit when no client pings within this interval times the miss limit")
	return cmd
}

func newKernelListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the kernels a session would offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.open(cmd, cellbook.WorkspaceDeps{Ephemeral: true})
			if err != nil {
				return err
			}
			defer closeWorkspace(cmd, ws)
			kernels, err := ws.Service().ListKernels(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tLANGUAGE")
			for _, kernel := range kernels {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", kernel.ID, kernel.Name, kernel.Language)
			}
			return tw.Flush()
		},
	}
}
