package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/yourusername/compressedheaders/internal/config"
)

var errConfigExists = errors.New("config file already exists, use --force to overwrite")

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [init || show]",
		Short: "Manages the node config file",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(configInitCmd(), configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:          "init",
		Short:        "Writes a config file with defaults and the given flags applied",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString(configFlag)
			expanded, err := homedir.Expand(path)
			if err != nil {
				return err
			}
			if _, err := os.Stat(expanded); err == nil && !force {
				return fmt.Errorf("%s: %w", expanded, errConfigExists)
			}

			cfg := config.DefaultConfig()
			if err := applyNodeFlags(cmd, cfg); err != nil {
				return err
			}
			if err := config.SaveConfig(expanded, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", expanded)
			return nil
		},
	}
	cmd.Flags().AddFlagSet(nodeFlags())
	cmd.Flags().BoolVar(&force, "force", false, "Overwrites an existing config file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "show",
		Short:        "Prints the effective config",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadNodeConfig(cmd)
			if err != nil {
				return err
			}
			return cfg.Encode(cmd.OutOrStdout())
		},
	}
	cmd.Flags().AddFlagSet(nodeFlags())
	return cmd
}
