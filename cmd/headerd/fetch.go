package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/compressedheaders/internal/config"
	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/internal/lightclient"
)

func fetchCmd() *cobra.Command {
	var (
		url      string
		network  string
		from, to uint64
	)
	cmd := &cobra.Command{
		Use:          "fetch",
		Short:        "Downloads headers from a range server and prints their ids",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []lightclient.Option
			if network != "" {
				n, err := config.ParseNetwork(network)
				if err != nil {
					return err
				}
				genesis, err := n.Genesis()
				if err != nil {
					return err
				}
				opts = append(opts, lightclient.WithGenesis(genesis))
			}
			client := lightclient.New(url, opts...)

			if !cmd.Flags().Changed("to") {
				height, err := client.Height(cmd.Context())
				if err != nil {
					return err
				}
				to = height
			}
			if to <= from {
				return fmt.Errorf("cmd: empty height range [%d, %d)", from, to)
			}

			headers, err := client.Headers(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := range headers {
				fmt.Fprintf(out, "%d %s\n", from+uint64(i), crypto.DisplayHex(crypto.HashBlockHeader(&headers[i])))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:3000/bitcoin-headers", "Range server URL")
	cmd.Flags().StringVar(&network, "network", "", "Checks the genesis header against this network")
	cmd.Flags().Uint64Var(&from, "from", 0, "First height")
	cmd.Flags().Uint64Var(&to, "to", 0, "Height after the last one; defaults to the server's height")
	return cmd
}
