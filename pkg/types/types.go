package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// HeaderSize is the length of a serialized block header
	HeaderSize = 80

	// CompactSize is the length of a header with prev hash and bits dropped
	CompactSize = 44

	prevHashOffset   = 4
	merkleRootOffset = 36
	timeOffset       = 68
	bitsOffset       = 72
	nonceOffset      = 76
)

// ErrInvalidLength is returned when a buffer does not have the size of the
// encoding it is decoded as.
var ErrInvalidLength = errors.New("types: invalid length")

// BlockHeader is a bitcoin block header. Every field is kept in wire byte
// order, so Serialize is a plain concatenation.
type BlockHeader struct {
	Version    [4]byte        // Block version, little-endian
	PrevBlock  chainhash.Hash // Previous header hash, internal order
	MerkleRoot chainhash.Hash // Merkle root, internal order
	Time       [4]byte        // Unix seconds, little-endian
	Bits       [4]byte        // Compact difficulty target, little-endian
	Nonce      [4]byte        // PoW nonce, little-endian
}

// Serialize converts BlockHeader to its 80 byte wire form
func (h *BlockHeader) Serialize() [HeaderSize]byte {
	var buf [HeaderSize]byte

	copy(buf[:prevHashOffset], h.Version[:])
	copy(buf[prevHashOffset:merkleRootOffset], h.PrevBlock[:])
	copy(buf[merkleRootOffset:timeOffset], h.MerkleRoot[:])
	copy(buf[timeOffset:bitsOffset], h.Time[:])
	copy(buf[bitsOffset:nonceOffset], h.Bits[:])
	copy(buf[nonceOffset:], h.Nonce[:])

	return buf
}

// DeserializeHeader is the inverse of Serialize.
func DeserializeHeader(data []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(data) != HeaderSize {
		return h, fmt.Errorf("%w: header is %d bytes, want %d", ErrInvalidLength, len(data), HeaderSize)
	}

	copy(h.Version[:], data[:prevHashOffset])
	copy(h.PrevBlock[:], data[prevHashOffset:merkleRootOffset])
	copy(h.MerkleRoot[:], data[merkleRootOffset:timeOffset])
	copy(h.Time[:], data[timeOffset:bitsOffset])
	copy(h.Bits[:], data[bitsOffset:nonceOffset])
	copy(h.Nonce[:], data[nonceOffset:])

	return h, nil
}

// ToCompact drops the prev hash and bits byte ranges from the wire form.
func (h *BlockHeader) ToCompact() [CompactSize]byte {
	full := h.Serialize()

	var buf [CompactSize]byte
	n := copy(buf[:], full[:prevHashOffset])
	n += copy(buf[n:], full[merkleRootOffset:bitsOffset])
	copy(buf[n:], full[nonceOffset:])

	return buf
}

// FromCompact rebuilds a header from its compact form, reinserting the prev
// hash and bits at their canonical offsets.
func FromCompact(data []byte, prev chainhash.Hash, bits [4]byte) (BlockHeader, error) {
	if len(data) != CompactSize {
		return BlockHeader{}, fmt.Errorf("%w: compact header is %d bytes, want %d", ErrInvalidLength, len(data), CompactSize)
	}

	var full [HeaderSize]byte
	copy(full[:prevHashOffset], data[:4])
	copy(full[prevHashOffset:merkleRootOffset], prev[:])
	copy(full[merkleRootOffset:bitsOffset], data[4:40])
	copy(full[bitsOffset:nonceOffset], bits[:])
	copy(full[nonceOffset:], data[40:])

	return DeserializeHeader(full[:])
}

// Timestamp returns the header time as an integer
func (h *BlockHeader) Timestamp() uint32 {
	return binary.LittleEndian.Uint32(h.Time[:])
}

// TargetBits returns the compact difficulty target as an integer
func (h *BlockHeader) TargetBits() uint32 {
	return binary.LittleEndian.Uint32(h.Bits[:])
}

// IsGenesis reports whether the header has no parent
func (h *BlockHeader) IsGenesis() bool {
	return h.PrevBlock == chainhash.Hash{}
}

// Uint32Bytes encodes v in the header's little-endian field layout.
func Uint32Bytes(v uint32) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}
