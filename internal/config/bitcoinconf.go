package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ErrNoBitcoinConf is returned when no bitcoin.conf exists at the standard
// locations.
var ErrNoBitcoinConf = errors.New("config: bitcoin.conf not found")

// bitcoinConfPaths are the default bitcoin.conf locations relative to the
// home directory, per OS.
var bitcoinConfPaths = []string{
	filepath.Join("Library", "Application Support", "Bitcoin", "bitcoin.conf"),
	filepath.Join(".bitcoin", "bitcoin.conf"),
	filepath.Join("AppData", "Roaming", "Bitcoin", "bitcoin.conf"),
}

// BitcoinConf holds the RPC settings found in a bitcoin.conf.
type BitcoinConf struct {
	RPCUser     string
	RPCPassword string
	RPCHost     string
	RPCConnect  string
	RPCPort     string
}

// Host returns the RPC endpoint described by the file, or "" when it does
// not set one. rpchost wins over rpcconnect and rpcport.
func (c BitcoinConf) Host(defaultPort int) string {
	if c.RPCHost != "" {
		if strings.Contains(c.RPCHost, "://") {
			return c.RPCHost
		}
		return "http://" + c.RPCHost
	}
	if c.RPCConnect == "" && c.RPCPort == "" {
		return ""
	}
	host, port := c.RPCConnect, c.RPCPort
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = fmt.Sprint(defaultPort)
	}
	return fmt.Sprintf("http://%s:%s", host, port)
}

// FindBitcoinConf returns the first bitcoin.conf found under the home
// directory.
func FindBitcoinConf() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("config: locating home directory: %w", err)
	}
	for _, rel := range bitcoinConfPaths {
		path := filepath.Join(home, rel)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNoBitcoinConf
}

// ReadBitcoinConf parses the file at path for network's RPC settings.
func ReadBitcoinConf(path string, network Network) (BitcoinConf, error) {
	path, err := homedir.Expand(filepath.Clean(path))
	if err != nil {
		return BitcoinConf{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return BitcoinConf{}, err
	}
	defer f.Close()

	conf, err := ParseBitcoinConf(f, network)
	if err != nil {
		return BitcoinConf{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	log.Infow("found bitcoin.conf", "path", path)
	return conf, nil
}

// ParseBitcoinConf reads key=value lines. Keys outside any section apply to
// every network; keys in the network's section, or prefixed with it as in
// "regtest.rpcport", override them.
func ParseBitcoinConf(r io.Reader, network Network) (BitcoinConf, error) {
	params, err := network.Params()
	if err != nil {
		return BitcoinConf{}, err
	}

	var (
		global  = map[string]string{}
		scoped  = map[string]string{}
		section string
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		if prefix, rest, ok := strings.Cut(key, "."); ok {
			if prefix == params.ConfSection {
				scoped[rest] = value
			}
			continue
		}
		switch section {
		case "":
			global[key] = value
		case params.ConfSection:
			scoped[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return BitcoinConf{}, err
	}

	get := func(key string) string {
		if v, ok := scoped[key]; ok {
			return v
		}
		return global[key]
	}
	return BitcoinConf{
		RPCUser:     get("rpcuser"),
		RPCPassword: get("rpcpassword"),
		RPCHost:     get("rpchost"),
		RPCConnect:  get("rpcconnect"),
		RPCPort:     get("rpcport"),
	}, nil
}
