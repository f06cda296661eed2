// Package headertest provides synthetic header chains and a scripted node for
// tests.
package headertest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/internal/rpc"
	"github.com/yourusername/compressedheaders/pkg/types"
)

// GenesisHex is the mainnet genesis header in wire form.
const GenesisHex = "0100000000000000000000000000000000000000000000000000000000000000" +
	"000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
	"4b1e5e4a29ab5f49ffff001d1dac2b7c"

// GenesisHash is the display identifier of the mainnet genesis header.
const GenesisHash = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"

// ErrUnknownHeader is returned by Node for hashes it never served.
var ErrUnknownHeader = errors.New("headertest: unknown header")

// Genesis returns the mainnet genesis header.
func Genesis() types.BlockHeader {
	raw, err := hex.DecodeString(GenesisHex)
	if err != nil {
		panic(err)
	}
	h, err := types.DeserializeHeader(raw)
	if err != nil {
		panic(err)
	}
	return h
}

// NewChain returns n chained headers starting with the mainnet genesis. Bits
// change at every epoch boundary so that epoch context matters when decoding.
func NewChain(n int) []types.BlockHeader {
	if n == 0 {
		return nil
	}
	chain := []types.BlockHeader{Genesis()}
	return Extend(chain, n-1, 0)
}

// Extend appends n headers to chain. salt changes the merkle roots, which lets
// tests build competing branches from the same parent.
func Extend(chain []types.BlockHeader, n int, salt byte) []types.BlockHeader {
	for i := 0; i < n; i++ {
		parent := chain[len(chain)-1]
		height := uint32(len(chain))

		h := types.BlockHeader{
			Version:   types.Uint32Bytes(0x20000000),
			PrevBlock: crypto.HashBlockHeader(&parent),
			Time:      types.Uint32Bytes(parent.Timestamp() + 600),
			Bits:      parent.Bits,
			Nonce:     types.Uint32Bytes(height * 7919),
		}
		if height%2016 == 0 {
			h.Bits = types.Uint32Bytes(parent.TargetBits() - 1)
		}
		h.MerkleRoot[0] = salt
		h.MerkleRoot[1] = byte(height)
		h.MerkleRoot[2] = byte(height >> 8)
		h.MerkleRoot[3] = byte(height >> 16)
		h.MerkleRoot[31] = 0x4d

		chain = append(chain, h)
	}
	return chain
}

// IDs returns the identifiers of chain in order.
func IDs(chain []types.BlockHeader) []chainhash.Hash {
	ids := make([]chainhash.Hash, len(chain))
	for i := range chain {
		ids[i] = crypto.HashBlockHeader(&chain[i])
	}
	return ids
}

// Node is a scripted rpc.HeaderSource serving a mutable best chain. Headers
// that were replaced by a reorg are still served, without a next hash, the way
// bitcoind reports stale blocks.
type Node struct {
	mu     sync.Mutex
	chain  []types.BlockHeader
	ids    []chainhash.Hash
	index  map[chainhash.Hash]int
	stale  map[chainhash.Hash]staleHeader
	fails  int
	calls  int
	failed int
}

type staleHeader struct {
	header types.BlockHeader
	height uint64
}

var _ rpc.HeaderSource = (*Node)(nil)

// NewNode serves chain as the best chain.
func NewNode(chain []types.BlockHeader) *Node {
	n := &Node{stale: make(map[chainhash.Hash]staleHeader)}
	n.setChain(append([]types.BlockHeader(nil), chain...))
	return n
}

func (n *Node) setChain(chain []types.BlockHeader) {
	n.chain = chain
	n.ids = IDs(chain)
	n.index = make(map[chainhash.Hash]int, len(chain))
	for i, id := range n.ids {
		n.index[id] = i
	}
}

// FailNext makes the next n calls return a transport error.
func (n *Node) FailNext(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fails = count
}

// Calls returns the number of lookups served, including failures.
func (n *Node) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// Failed returns the number of lookups that returned an injected error.
func (n *Node) Failed() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failed
}

// Chain returns a copy of the best chain.
func (n *Node) Chain() []types.BlockHeader {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.BlockHeader(nil), n.chain...)
}

// Mine extends the best chain by count headers.
func (n *Node) Mine(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setChain(Extend(n.chain, count, 0))
}

// Reorg replaces everything above fork with count new headers.
func (n *Node) Reorg(fork, count int, salt byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := fork + 1; i < len(n.chain); i++ {
		n.stale[n.ids[i]] = staleHeader{header: n.chain[i], height: uint64(i)}
	}
	n.setChain(Extend(n.chain[:fork+1:fork+1], count, salt))
}

// GetBlockHeader implements rpc.HeaderSource.
func (n *Node) GetBlockHeader(_ context.Context, hash chainhash.Hash) (*rpc.BlockHeaderRPC, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls++
	if n.fails > 0 {
		n.fails--
		n.failed++
		return nil, fmt.Errorf("headertest: injected transport failure")
	}

	if i, ok := n.index[hash]; ok {
		var next *chainhash.Hash
		if i+1 < len(n.chain) {
			next = &n.ids[i+1]
		}
		return rpc.FromHeader(&n.chain[i], uint64(i), next), nil
	}
	if s, ok := n.stale[hash]; ok {
		return rpc.FromHeader(&s.header, s.height, nil), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownHeader, hash)
}
