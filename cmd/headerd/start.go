package main

import (
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/yourusername/compressedheaders/internal/node"
	"github.com/yourusername/compressedheaders/internal/rpc"
)

var log = logging.Logger("headerd")

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "start",
		Short:        "Syncs headers from bitcoind and serves the compact encoding",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadNodeConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed(logLevelFlag) {
				if err := setAllLoggers(cfg.Node.LogLevel); err != nil {
					return err
				}
			}

			creds, err := cfg.Credentials()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			source, err := rpc.NewClient(ctx, creds, cfg.RPC.Timeout)
			if err != nil {
				return err
			}
			defer source.Close()

			nd, err := node.New(ctx, cfg, source)
			if err != nil {
				return err
			}
			if err := nd.Start(ctx); err != nil {
				_ = nd.Stop(ctx)
				return err
			}
			log.Infow("syncing", "rpc", creds.Host)
			return nd.Run(ctx)
		},
	}
	cmd.Flags().AddFlagSet(nodeFlags())
	return cmd
}
