package main

import (
	"fmt"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/yourusername/compressedheaders/internal/config"
)

const (
	configFlag         = "config"
	logLevelFlag       = "log.level"
	logLevelModuleFlag = "log.level.module"

	networkFlag     = "network"
	rpcHostFlag     = "rpc.host"
	rpcUserFlag     = "rpc.user"
	rpcPasswordFlag = "rpc.password"
	rpcConfFlag     = "rpc.bitcoinconf"
	serverAddrFlag  = "server.address"
	serverPortFlag  = "server.port"
	grpcFlag        = "grpc"
	grpcAddrFlag    = "grpc.address"
	p2pFlag         = "p2p"
	p2pListenFlag   = "p2p.listen"
	metricsFlag     = "metrics"
	metricsAddrFlag = "metrics.address"
)

func logFlags() *flag.FlagSet {
	flags := &flag.FlagSet{}
	flags.String(
		logLevelFlag,
		"",
		`DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL
and their lower-case forms. Overrides the config file`,
	)
	flags.StringSlice(
		logLevelModuleFlag,
		nil,
		"<module>:<level>, e.g. blockchain:debug",
	)
	return flags
}

func parseLogFlags(cmd *cobra.Command) error {
	if level := cmd.Flag(logLevelFlag).Value.String(); level != "" {
		if err := setAllLoggers(level); err != nil {
			return err
		}
	}

	modules, err := cmd.Flags().GetStringSlice(logLevelModuleFlag)
	if err != nil {
		return err
	}
	for _, ll := range modules {
		module, level, ok := strings.Cut(ll, ":")
		if !ok {
			return fmt.Errorf("cmd: %s arg must be in form <module>:<level>, e.g. blockchain:debug", logLevelModuleFlag)
		}
		if err := logging.SetLogLevel(module, level); err != nil {
			return err
		}
	}
	return nil
}

func setAllLoggers(level string) error {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("cmd: while parsing '%s': %w", logLevelFlag, err)
	}
	logging.SetAllLoggers(lvl)
	return nil
}

func nodeFlags() *flag.FlagSet {
	flags := &flag.FlagSet{}
	flags.String(configFlag, config.DefaultPath, "Path to the TOML config; defaults apply when it does not exist")
	flags.String(networkFlag, "", "mainnet, signet or regtest")
	flags.String(rpcHostFlag, "", "bitcoind JSON-RPC endpoint, e.g. http://localhost:8332")
	flags.String(rpcUserFlag, "", "bitcoind RPC user")
	flags.String(rpcPasswordFlag, "", "bitcoind RPC password")
	flags.String(rpcConfFlag, "", "bitcoin.conf to read RPC credentials from")
	flags.String(serverAddrFlag, "", "Range server listen address")
	flags.String(serverPortFlag, "", "Range server port")
	flags.Bool(grpcFlag, false, "Enables the gRPC header service")
	flags.String(grpcAddrFlag, "", "gRPC listen address. Depends on '--grpc'")
	flags.Bool(p2pFlag, false, "Enables the libp2p range protocol")
	flags.String(p2pListenFlag, "", "libp2p listen multiaddr. Depends on '--p2p'")
	flags.Bool(metricsFlag, false, "Enables the prometheus endpoint")
	flags.String(metricsAddrFlag, "", "Prometheus listen address. Depends on '--metrics'")
	return flags
}

// loadNodeConfig reads the config file, if any, and applies the flags that
// were set on top of it.
func loadNodeConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, err
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if _, statErr := os.Stat(expanded); statErr == nil {
		cfg, err = config.LoadConfig(expanded)
		if err != nil {
			return nil, err
		}
	} else if cmd.Flags().Changed(configFlag) {
		return nil, fmt.Errorf("cmd: config %s: %w", path, statErr)
	}
	return cfg, applyNodeFlags(cmd, cfg)
}

// applyNodeFlags overrides cfg with every node flag set on cmd.
func applyNodeFlags(cmd *cobra.Command, cfg *config.Config) (err error) {
	flags := cmd.Flags()
	if flags.Changed(networkFlag) {
		value, _ := flags.GetString(networkFlag)
		if cfg.Node.Network, err = config.ParseNetwork(value); err != nil {
			return err
		}
	}
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	setString(rpcHostFlag, &cfg.RPC.Host)
	setString(rpcUserFlag, &cfg.RPC.Username)
	setString(rpcPasswordFlag, &cfg.RPC.Password)
	setString(rpcConfFlag, &cfg.RPC.BitcoinConf)
	setString(serverAddrFlag, &cfg.Server.Address)
	setString(serverPortFlag, &cfg.Server.Port)
	setBool(grpcFlag, &cfg.GRPC.Enabled)
	setString(grpcAddrFlag, &cfg.GRPC.Address)
	setBool(p2pFlag, &cfg.P2P.Enabled)
	setString(p2pListenFlag, &cfg.P2P.ListenAddr)
	setBool(metricsFlag, &cfg.Metrics.Enabled)
	setString(metricsAddrFlag, &cfg.Metrics.Address)

	return cfg.Validate()
}
