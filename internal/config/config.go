// Package config holds the node configuration and its TOML encoding.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"

	"github.com/yourusername/compressedheaders/internal/blockchain"
	"github.com/yourusername/compressedheaders/internal/rpc"
	"github.com/yourusername/compressedheaders/internal/server"
)

var log = logging.Logger("config")

// DefaultPath is where `config init` writes and `start` reads.
const DefaultPath = "~/.compressedheaders/config.toml"

// ErrNoCredentials is returned when neither the config nor bitcoin.conf
// provide an RPC user.
var ErrNoCredentials = errors.New("config: cannot find rpcuser and rpcpassword")

// Config is main configuration structure for a node.
type Config struct {
	Node    NodeConfig
	RPC     RPCConfig
	Server  ServerConfig
	GRPC    GRPCConfig
	P2P     P2PConfig
	Metrics MetricsConfig
	Sync    SyncConfig
}

// NodeConfig selects the chain and logging.
type NodeConfig struct {
	Network  Network
	LogLevel string
}

// RPCConfig locates bitcoind. Empty Username means the credentials are read
// from BitcoinConf, or from the standard bitcoin.conf locations when that is
// empty too.
type RPCConfig struct {
	Host        string
	Username    string
	Password    string
	BitcoinConf string
	Timeout     time.Duration
}

// ServerConfig configures the HTTP range server.
type ServerConfig struct {
	Address     string
	Port        string
	Path        string
	CORSOrigins []string
}

// GRPCConfig configures the gRPC header service.
type GRPCConfig struct {
	Enabled bool
	Address string
}

// P2PConfig configures the libp2p range protocol.
type P2PConfig struct {
	Enabled    bool
	ListenAddr string
	NATPortMap bool
	// Peers are full multiaddrs, /p2p component included, dialed on start.
	Peers []string
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Address string
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	TipPause     time.Duration
	ErrorPause   time.Duration
	ConfirmDepth uint64
	RewindDepth  uint64
}

// DefaultConfig provides a default Config.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Network:  Mainnet,
			LogLevel: "info",
		},
		RPC: RPCConfig{
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Address: "127.0.0.1",
			Port:    "3000",
			Path:    server.DefaultPath,
		},
		GRPC: GRPCConfig{
			Address: "127.0.0.1:9090",
		},
		P2P: P2PConfig{
			ListenAddr: "/ip4/0.0.0.0/tcp/4001",
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9100",
		},
		Sync: SyncConfig{
			TipPause:     time.Minute,
			ErrorPause:   30 * time.Second,
			ConfirmDepth: blockchain.ConfirmDepth,
			RewindDepth:  blockchain.RewindDepth,
		},
	}
}

// Validate checks the values that cannot be defaulted.
func (cfg *Config) Validate() error {
	if _, err := cfg.Node.Network.Params(); err != nil {
		return err
	}
	if _, err := logging.LevelFromString(cfg.Node.LogLevel); err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	if cfg.Server.Port == "" {
		return errors.New("config: server port is empty")
	}
	if cfg.Sync.TipPause <= 0 || cfg.Sync.ErrorPause <= 0 {
		return fmt.Errorf("config: pauses must be positive, got tip %v error %v",
			cfg.Sync.TipPause, cfg.Sync.ErrorPause)
	}
	if cfg.GRPC.Enabled && cfg.GRPC.Address == "" {
		return errors.New("config: grpc enabled without address")
	}
	if cfg.P2P.Enabled && cfg.P2P.ListenAddr == "" {
		return errors.New("config: p2p enabled without listen address")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		return errors.New("config: metrics enabled without address")
	}
	return nil
}

// ServerAddr returns the host:port of the range server.
func (cfg *Config) ServerAddr() string {
	return cfg.Server.Address + ":" + cfg.Server.Port
}

// SyncOptions converts the sync section into syncer options.
func (cfg *Config) SyncOptions() []blockchain.Option {
	return []blockchain.Option{
		blockchain.WithTipPause(cfg.Sync.TipPause),
		blockchain.WithErrorPause(cfg.Sync.ErrorPause),
		blockchain.WithConfirmDepth(cfg.Sync.ConfirmDepth),
		blockchain.WithRewindDepth(cfg.Sync.RewindDepth),
	}
}

// Credentials resolves the bitcoind endpoint and user. Values set in the
// config win over bitcoin.conf.
func (cfg *Config) Credentials() (rpc.Credentials, error) {
	params, err := cfg.Node.Network.Params()
	if err != nil {
		return rpc.Credentials{}, err
	}
	creds := rpc.Credentials{
		Host:     cfg.RPC.Host,
		Username: cfg.RPC.Username,
		Password: cfg.RPC.Password,
	}

	if creds.Username == "" {
		path := cfg.RPC.BitcoinConf
		if path == "" {
			path, err = FindBitcoinConf()
			if err != nil {
				return rpc.Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
			}
		}
		conf, err := ReadBitcoinConf(path, cfg.Node.Network)
		if err != nil {
			return rpc.Credentials{}, err
		}
		creds.Username, creds.Password = conf.RPCUser, conf.RPCPassword
		if creds.Host == "" {
			creds.Host = conf.Host(params.RPCPort)
		}
	}

	if creds.Username == "" {
		return rpc.Credentials{}, ErrNoCredentials
	}
	if creds.Host == "" {
		creds.Host = cfg.Node.Network.DefaultHost()
	}
	return creds, nil
}

// SaveConfig saves Config 'cfg' under the given 'path', creating parent
// directories.
func SaveConfig(path string, cfg *Config) error {
	path, err := homedir.Expand(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return cfg.Encode(f)
}

// LoadConfig loads Config from the given 'path'. Fields missing from the file
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	path, err := homedir.Expand(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := cfg.Decode(f); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Encode encodes a given Config into w.
func (cfg *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Decode decodes a Config from a given reader r.
func (cfg *Config) Decode(r io.Reader) error {
	_, err := toml.NewDecoder(r).Decode(cfg)
	return err
}
