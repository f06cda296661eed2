package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yourusername/compressedheaders/internal/crypto"
)

// Network names a bitcoin chain.
type Network string

const (
	Mainnet Network = "mainnet"
	Signet  Network = "signet"
	Regtest Network = "regtest"
)

// ErrUnsupportedNetwork is returned for chains whose headers change bits
// inside a difficulty epoch. The compact record carries bits once per epoch,
// so such a chain cannot be stored.
var ErrUnsupportedNetwork = errors.New("config: network changes bits within an epoch")

// unsupported maps names of known chains that cannot be served.
var unsupported = map[Network]bool{
	"testnet":  true,
	"testnet3": true,
	"testnet4": true,
}

// NetworkParams are the per chain values the node needs.
type NetworkParams struct {
	// GenesisHash is the display identifier of the chain's first header
	GenesisHash string
	// RPCPort is bitcoind's default JSON-RPC port
	RPCPort int
	// ConfSection is the bitcoin.conf section holding the chain's settings
	ConfSection string
}

var networks = map[Network]NetworkParams{
	Mainnet: {
		GenesisHash: "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
		RPCPort:     8332,
		ConfSection: "main",
	},
	Signet: {
		GenesisHash: "00000008819873e925422c1ff0f99f7cc9bbb232af63a077a480a3633bee1ef6",
		RPCPort:     38332,
		ConfSection: "signet",
	},
	Regtest: {
		GenesisHash: "0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206",
		RPCPort:     18443,
		ConfSection: "regtest",
	},
}

// ParseNetwork validates a network name.
func ParseNetwork(name string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(name)))
	if unsupported[n] {
		return "", fmt.Errorf("%w: %q mines min-difficulty blocks", ErrUnsupportedNetwork, name)
	}
	if _, ok := networks[n]; !ok {
		return "", fmt.Errorf("config: unknown network %q", name)
	}
	return n, nil
}

// Params returns the chain parameters of n.
func (n Network) Params() (NetworkParams, error) {
	if unsupported[n] {
		return NetworkParams{}, fmt.Errorf("%w: %q mines min-difficulty blocks", ErrUnsupportedNetwork, string(n))
	}
	p, ok := networks[n]
	if !ok {
		return NetworkParams{}, fmt.Errorf("config: unknown network %q", string(n))
	}
	return p, nil
}

// Genesis returns the genesis identifier of n in internal byte order.
func (n Network) Genesis() (chainhash.Hash, error) {
	p, err := n.Params()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return crypto.HashFromDisplay(p.GenesisHash)
}

// DefaultHost is the RPC endpoint of a local bitcoind for n.
func (n Network) DefaultHost() string {
	p, err := n.Params()
	if err != nil {
		p = networks[Mainnet]
	}
	return fmt.Sprintf("http://localhost:%d", p.RPCPort)
}
