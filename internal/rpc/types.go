package rpc

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/pkg/types"
)

// BlockHeaderRPC is the result of bitcoind's getblockheader call. Hash fields
// are display-order hex. NextBlockHash is empty at the tip and
// PreviousBlockHash is empty for genesis.
type BlockHeaderRPC struct {
	Hash              string  `json:"hash"`
	Confirmations     int64   `json:"confirmations"`
	Height            uint64  `json:"height"`
	Version           int32   `json:"version"`
	VersionHex        string  `json:"versionHex"`
	MerkleRoot        string  `json:"merkleroot"`
	Time              uint32  `json:"time"`
	MedianTime        uint32  `json:"mediantime"`
	Nonce             uint32  `json:"nonce"`
	Bits              string  `json:"bits"`
	Difficulty        float64 `json:"difficulty"`
	ChainWork         string  `json:"chainwork"`
	NTx               int     `json:"nTx,omitempty"`
	PreviousBlockHash string  `json:"previousblockhash,omitempty"`
	NextBlockHash     string  `json:"nextblockhash,omitempty"`
}

// AtTip reports whether the node knows no successor of this header.
func (r *BlockHeaderRPC) AtTip() bool {
	return r.NextBlockHash == ""
}

// Next parses the successor's hash.
func (r *BlockHeaderRPC) Next() (chainhash.Hash, error) {
	return crypto.HashFromDisplay(r.NextBlockHash)
}

// ToHeader maps the response into a wire-order header. Every hex field must
// have its exact size; nothing is padded or truncated.
func (r *BlockHeaderRPC) ToHeader() (types.BlockHeader, error) {
	var h types.BlockHeader

	version, err := crypto.ReversedHex(r.VersionHex, 4)
	if err != nil {
		return h, fmt.Errorf("versionHex: %w", err)
	}
	copy(h.Version[:], version)

	if r.PreviousBlockHash != "" {
		if h.PrevBlock, err = crypto.HashFromDisplay(r.PreviousBlockHash); err != nil {
			return h, fmt.Errorf("previousblockhash: %w", err)
		}
	}

	if h.MerkleRoot, err = crypto.HashFromDisplay(r.MerkleRoot); err != nil {
		return h, fmt.Errorf("merkleroot: %w", err)
	}

	bits, err := crypto.ReversedHex(r.Bits, 4)
	if err != nil {
		return h, fmt.Errorf("bits: %w", err)
	}
	copy(h.Bits[:], bits)

	h.Time = types.Uint32Bytes(r.Time)
	h.Nonce = types.Uint32Bytes(r.Nonce)
	return h, nil
}

// FromHeader builds the response bitcoind would return for h at height.
// next is nil at the tip.
func FromHeader(h *types.BlockHeader, height uint64, next *chainhash.Hash) *BlockHeaderRPC {
	r := &BlockHeaderRPC{
		Hash:       crypto.DisplayHex(crypto.HashBlockHeader(h)),
		Height:     height,
		Version:    int32(binary.LittleEndian.Uint32(h.Version[:])),
		VersionHex: crypto.ReversedToHex(h.Version[:]),
		MerkleRoot: crypto.DisplayHex(h.MerkleRoot),
		Time:       h.Timestamp(),
		MedianTime: h.Timestamp(),
		Nonce:      binary.LittleEndian.Uint32(h.Nonce[:]),
		Bits:       crypto.ReversedToHex(h.Bits[:]),
	}
	if !h.IsGenesis() {
		r.PreviousBlockHash = crypto.DisplayHex(h.PrevBlock)
	}
	if next != nil {
		r.NextBlockHash = crypto.DisplayHex(*next)
	}
	return r
}
