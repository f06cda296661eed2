package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().AddFlagSet(logFlags())
	rootCmd.AddCommand(
		startCmd(),
		configCmd(),
		fetchCmd(),
		infoCmd(),
	)
	rootCmd.SetHelpCommand(&cobra.Command{})
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "headerd [start || config || fetch || info]",
	Short: "Serves bitcoin block headers in a compact encoding over byte ranges",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return parseLogFlags(cmd)
	},
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}
