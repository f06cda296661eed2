// Package lightclient fetches and decodes headers from a range server.
package lightclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	logging "github.com/ipfs/go-log/v2"

	"github.com/yourusername/compressedheaders/internal/compact"
	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/pkg/types"
)

var log = logging.Logger("lightclient")

const defaultTimeout = 30 * time.Second

var (
	// ErrUnexpectedStatus is returned for any response other than 200
	ErrUnexpectedStatus = errors.New("lightclient: unexpected status")
	// ErrShortResponse is returned when a body is not the requested size
	ErrShortResponse = errors.New("lightclient: response length mismatch")
	// ErrGenesisMismatch is returned when height 0 is not the expected genesis
	ErrGenesisMismatch = errors.New("lightclient: unexpected genesis")
)

// Client reads the compact encoding from a range server.
type Client struct {
	url     string
	http    *http.Client
	genesis *chainhash.Hash
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithGenesis makes the client reject a chain that does not start at genesis.
func WithGenesis(genesis chainhash.Hash) Option {
	return func(c *Client) {
		c.genesis = &genesis
	}
}

// New returns a client for the resource at url, e.g.
// http://localhost:8080/bitcoin-headers.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Length returns the size of the remote store.
func (c *Client) Length(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	total := resp.Header.Get("X-Total-Length")
	if total == "" {
		total = resp.Header.Get("Content-Length")
	}
	length, err := strconv.ParseUint(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing length %q: %w", total, err)
	}
	return length, nil
}

// Height returns the number of headers in the remote store.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	length, err := c.Length(ctx)
	if err != nil {
		return 0, err
	}
	return compact.Headers(length), nil
}

// Range fetches bytes [start, end) of the remote store.
func (c *Client) Range(ctx context.Context, start, end uint64) ([]byte, error) {
	if start >= end {
		return nil, fmt.Errorf("lightclient: empty range [%d, %d)", start, end)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s for [%d, %d)", ErrUnexpectedStatus, resp.Status, start, end)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(end-start)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != end-start {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortResponse, len(data), end-start)
	}
	return data, nil
}

// Headers fetches and decodes headers [from, to). Decoding starts at the
// epoch containing from, since compact records need its full record; full
// records of later epochs must link to the decoded chain.
func (c *Client) Headers(ctx context.Context, from, to uint64) ([]types.BlockHeader, error) {
	if from >= to {
		return nil, nil
	}
	start := compact.EpochStart(from)
	data, err := c.Range(ctx, compact.Offset(start), compact.Offset(to))
	if err != nil {
		return nil, err
	}

	headers, err := compact.DecodeFrom(start, data)
	if err != nil {
		return nil, fmt.Errorf("decoding [%d, %d): %w", start, to, err)
	}
	if start == 0 && c.genesis != nil {
		if id := crypto.HashBlockHeader(&headers[0]); id != *c.genesis {
			return nil, fmt.Errorf("%w: %s", ErrGenesisMismatch, crypto.DisplayHex(id))
		}
	}

	log.Debugw("fetched headers", "from", from, "to", to, "bytes", len(data))
	return headers[from-start:], nil
}
