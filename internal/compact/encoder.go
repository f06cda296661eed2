package compact

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/pkg/types"
)

// Encoder turns a contiguous run of headers, starting at genesis, into
// records. It keeps the reconstruction context a decoder will need.
type Encoder struct {
	next uint64
	prev chainhash.Hash
	bits [4]byte
}

// NewEncoder returns an encoder positioned at height 0.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Next is the height of the next header Encode expects.
func (e *Encoder) Next() uint64 {
	return e.next
}

// Prev is the identifier of the last encoded header.
func (e *Encoder) Prev() chainhash.Hash {
	return e.prev
}

// Encode validates that h extends the encoded chain and returns its record.
// The encoder state is only advanced on success.
func (e *Encoder) Encode(h *types.BlockHeader) ([]byte, error) {
	if h.PrevBlock != e.prev {
		return nil, fmt.Errorf("%w: height %d references %s, want %s",
			ErrBrokenChain, e.next, crypto.DisplayHex(h.PrevBlock), crypto.DisplayHex(e.prev))
	}

	var record []byte
	if IsFull(e.next) {
		full := h.Serialize()
		record = full[:]
		e.bits = h.Bits
	} else {
		if h.Bits != e.bits {
			return nil, fmt.Errorf("%w: height %d has bits %08x, epoch has %08x",
				ErrBitsChanged, e.next, h.TargetBits(), binary.LittleEndian.Uint32(e.bits[:]))
		}
		compact := h.ToCompact()
		record = compact[:]
	}

	e.prev = crypto.HashBlockHeader(h)
	e.next++
	return record, nil
}
