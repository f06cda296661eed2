package compact

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/pkg/types"
)

// DefaultCacheSize is the number of header identifiers a Reader remembers.
const DefaultCacheSize = 4 * EpochLength

// Source is a read-only view over encoded records.
type Source interface {
	ReadRange(start, end uint64) ([]byte, error)
	Len() uint64
}

// Reader decodes single headers by height out of a Source. Decoding a compact
// record requires the identifier of its predecessor, so identifiers of
// decoded headers are cached to avoid re-walking the epoch on every lookup.
type Reader struct {
	src  Source
	ids  *lru.Cache[uint64, chainhash.Hash]
	bits *lru.Cache[uint64, [4]byte]
}

// NewReader wraps src. cacheSize bounds the identifier cache.
func NewReader(src Source, cacheSize int) (*Reader, error) {
	ids, err := lru.New[uint64, chainhash.Hash](cacheSize)
	if err != nil {
		return nil, err
	}
	bits, err := lru.New[uint64, [4]byte](64)
	if err != nil {
		return nil, err
	}
	return &Reader{src: src, ids: ids, bits: bits}, nil
}

// Height returns the number of headers readable from the source.
func (r *Reader) Height() uint64 {
	return Headers(r.src.Len())
}

// HeaderAt returns the header at height.
func (r *Reader) HeaderAt(height uint64) (types.BlockHeader, error) {
	if height >= r.Height() {
		return types.BlockHeader{}, fmt.Errorf("%w: %d, have %d headers", ErrOutOfRange, height, r.Height())
	}

	off := Offset(height)
	if IsFull(height) {
		data, err := r.src.ReadRange(off, off+FullRecordSize)
		if err != nil {
			return types.BlockHeader{}, err
		}
		h, err := types.DeserializeHeader(data)
		if err != nil {
			return types.BlockHeader{}, err
		}
		r.bits.Add(height/EpochLength, h.Bits)
		r.ids.Add(height, crypto.HashBlockHeader(&h))
		return h, nil
	}

	prev, okPrev := r.ids.Get(height - 1)
	bits, okBits := r.bits.Get(height / EpochLength)
	if okPrev && okBits {
		data, err := r.src.ReadRange(off, off+CompactRecordSize)
		if err != nil {
			return types.BlockHeader{}, err
		}
		h, err := types.FromCompact(data, prev, bits)
		if err != nil {
			return types.BlockHeader{}, err
		}
		r.ids.Add(height, crypto.HashBlockHeader(&h))
		return h, nil
	}

	return r.walk(height)
}

// walk decodes the epoch containing height up to and including height.
func (r *Reader) walk(height uint64) (types.BlockHeader, error) {
	start := EpochStart(height)
	data, err := r.src.ReadRange(Offset(start), Offset(height)+RecordSize(height))
	if err != nil {
		return types.BlockHeader{}, err
	}

	d, err := NewDecoder(start)
	if err != nil {
		return types.BlockHeader{}, err
	}

	var h types.BlockHeader
	for len(data) > 0 {
		cur := d.Next()
		var n int
		h, n, err = d.Decode(data)
		if err != nil {
			return types.BlockHeader{}, err
		}
		r.ids.Add(cur, d.Prev())
		data = data[n:]
	}
	r.bits.Add(start/EpochLength, d.bits)
	return h, nil
}

// IDAt returns the identifier of the header at height.
func (r *Reader) IDAt(height uint64) (chainhash.Hash, error) {
	if id, ok := r.ids.Get(height); ok {
		return id, nil
	}
	h, err := r.HeaderAt(height)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return crypto.HashBlockHeader(&h), nil
}
