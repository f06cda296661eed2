package crypto

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yourusername/compressedheaders/pkg/types"
)

// HashBlockHeader computes the identifier of a block header in internal byte
// order. Use DisplayHex to render it the way nodes print it.
func HashBlockHeader(header *types.BlockHeader) chainhash.Hash {
	serialized := header.Serialize()
	return chainhash.DoubleHashH(serialized[:])
}
