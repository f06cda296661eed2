// Package rpc talks to a bitcoind JSON-RPC endpoint.
package rpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	logging "github.com/ipfs/go-log/v2"

	"github.com/yourusername/compressedheaders/internal/crypto"
)

var log = logging.Logger("rpc")

// ErrMalformedResponse is returned when the node answered with a result that
// does not describe the requested header.
var ErrMalformedResponse = errors.New("rpc: malformed response")

// HeaderSource looks up block headers by identifier.
type HeaderSource interface {
	GetBlockHeader(ctx context.Context, hash chainhash.Hash) (*BlockHeaderRPC, error)
}

// Credentials identify the node and the RPC user.
type Credentials struct {
	Host     string
	Username string
	Password string
}

// Client is a HeaderSource backed by bitcoind.
type Client struct {
	rpc     *gethrpc.Client
	host    string
	timeout time.Duration
}

var _ HeaderSource = (*Client)(nil)

// NewClient prepares a client for creds. No connection is made until the
// first call.
func NewClient(ctx context.Context, creds Credentials, timeout time.Duration) (*Client, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
	c, err := gethrpc.DialOptions(ctx, creds.Host,
		gethrpc.WithHeader("Authorization", "Basic "+auth),
		gethrpc.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", creds.Host, err)
	}
	log.Debugw("rpc client ready", "host", creds.Host, "user", creds.Username)
	return &Client{rpc: c, host: creds.Host, timeout: timeout}, nil
}

// GetBlockHeader calls getblockheader for hash.
func (c *Client) GetBlockHeader(ctx context.Context, hash chainhash.Hash) (*BlockHeaderRPC, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	want := crypto.DisplayHex(hash)
	var res BlockHeaderRPC
	if err := c.rpc.CallContext(ctx, &res, "getblockheader", want); err != nil {
		return nil, fmt.Errorf("rpc: getblockheader %s: %w", want, err)
	}
	if res.Hash != want {
		return nil, fmt.Errorf("%w: asked for %s, got %q", ErrMalformedResponse, want, res.Hash)
	}
	return &res, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}
