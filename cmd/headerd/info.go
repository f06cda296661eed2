package main

import (
	"fmt"

	"github.com/spf13/cobra"

	headergrpc "github.com/yourusername/compressedheaders/internal/grpc"
)

func infoCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "info",
		Short:        "Queries a running node over gRPC",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := headergrpc.Dial(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.GetInfo(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store bytes:    %d\n", info.StoreBytes)
			fmt.Fprintf(out, "synced headers: %d\n", info.SyncedHeaders)
			fmt.Fprintf(out, "tip height:     %d\n", info.TipHeight)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "grpc.address", "127.0.0.1:9090", "gRPC address of the node")
	return cmd
}
