package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrInvalidHex is returned for hex text that is not exactly the expected
// number of bytes, or that contains non-hex characters.
var ErrInvalidHex = errors.New("crypto: invalid hex")

// All conversions between display order (big-endian hex, as printed by nodes)
// and wire order happen in this file.

// ReversedHex decodes display-order hex of exactly size bytes and returns the
// bytes in wire order.
func ReversedHex(s string, size int) ([]byte, error) {
	if len(s) != size*2 {
		return nil, fmt.Errorf("%w: %q has %d chars, want %d", ErrInvalidHex, s, len(s), size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	reverse(b)
	return b, nil
}

// ReversedToHex is the inverse of ReversedHex.
func ReversedToHex(b []byte) string {
	r := make([]byte, len(b))
	copy(r, b)
	reverse(r)
	return hex.EncodeToString(r)
}

// HashFromDisplay parses a 64 character display hash.
func HashFromDisplay(s string) (chainhash.Hash, error) {
	var h chainhash.Hash
	b, err := ReversedHex(s, chainhash.HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// MustHashFromDisplay is HashFromDisplay for compile-time constants.
func MustHashFromDisplay(s string) chainhash.Hash {
	h, err := HashFromDisplay(s)
	if err != nil {
		panic(err)
	}
	return h
}

// DisplayHex renders a hash in display order.
func DisplayHex(h chainhash.Hash) string {
	return h.String()
}

// DisplayLess reports whether a sorts before b when both are compared in
// display order, i.e. a has more leading zeros in its printed form.
func DisplayLess(a, b chainhash.Hash) bool {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
