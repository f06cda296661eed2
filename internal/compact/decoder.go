package compact

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/pkg/types"
)

// Decoder is the inverse of Encoder. It must start at an epoch boundary,
// where the full record carries the context for the records that follow.
type Decoder struct {
	next    uint64
	prev    chainhash.Hash
	bits    [4]byte
	started bool
}

// NewDecoder returns a decoder for records starting at height.
func NewDecoder(height uint64) (*Decoder, error) {
	if !IsFull(height) {
		return nil, fmt.Errorf("%w: height %d", ErrNotEpochStart, height)
	}
	return &Decoder{next: height}, nil
}

// Next is the height of the next record Decode expects.
func (d *Decoder) Next() uint64 {
	return d.next
}

// Prev is the identifier of the last decoded header.
func (d *Decoder) Prev() chainhash.Hash {
	return d.prev
}

// Decode reads one record from the front of data and returns the header
// together with the number of bytes consumed.
func (d *Decoder) Decode(data []byte) (types.BlockHeader, int, error) {
	size := RecordSize(d.next)
	if uint64(len(data)) < size {
		return types.BlockHeader{}, 0, fmt.Errorf("%w: height %d needs %d bytes, have %d",
			ErrTruncated, d.next, size, len(data))
	}

	var (
		h   types.BlockHeader
		err error
	)
	if IsFull(d.next) {
		h, err = types.DeserializeHeader(data[:size])
		if err == nil && d.started && h.PrevBlock != d.prev {
			err = fmt.Errorf("%w: height %d", ErrBrokenChain, d.next)
		}
	} else {
		h, err = types.FromCompact(data[:size], d.prev, d.bits)
	}
	if err != nil {
		return types.BlockHeader{}, 0, err
	}

	if IsFull(d.next) {
		d.bits = h.Bits
	}
	d.prev = crypto.HashBlockHeader(&h)
	d.started = true
	d.next++
	return h, int(size), nil
}

// DecodeAll decodes a buffer of records starting at height 0.
func DecodeAll(data []byte) ([]types.BlockHeader, error) {
	return DecodeFrom(0, data)
}

// DecodeFrom decodes a buffer of records whose first record is the header at
// height, which must open an epoch.
func DecodeFrom(height uint64, data []byte) ([]types.BlockHeader, error) {
	d, err := NewDecoder(height)
	if err != nil {
		return nil, err
	}

	headers := make([]types.BlockHeader, 0, Headers(Offset(height)+uint64(len(data)))-height)
	for len(data) > 0 {
		h, n, err := d.Decode(data)
		if err != nil {
			return headers, err
		}
		headers = append(headers, h)
		data = data[n:]
	}
	return headers, nil
}
