package types

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mainnet genesis header in wire form
const genesisHex = "01000000" +
	"0000000000000000000000000000000000000000000000000000000000000000" +
	"3ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a" +
	"29ab5f49" + "ffff001d" + "1dac2b7c"

func sampleHeader() BlockHeader {
	h := BlockHeader{
		Version: Uint32Bytes(0x20000000),
		Time:    Uint32Bytes(1700000000),
		Bits:    Uint32Bytes(0x17034219),
		Nonce:   Uint32Bytes(0xdeadbeef),
	}
	for i := range h.PrevBlock {
		h.PrevBlock[i] = byte(i)
		h.MerkleRoot[i] = byte(255 - i)
	}
	return h
}

func TestSerializeLayout(t *testing.T) {
	raw, err := hex.DecodeString(genesisHex)
	require.NoError(t, err)

	h, err := DeserializeHeader(raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(1231006505), h.Timestamp())
	assert.Equal(t, uint32(0x1d00ffff), h.TargetBits())
	assert.Equal(t, [4]byte{1, 0, 0, 0}, h.Version)
	assert.True(t, h.IsGenesis())

	out := h.Serialize()
	assert.Equal(t, raw, out[:])
}

func TestRoundTrip(t *testing.T) {
	h := sampleHeader()
	buf := h.Serialize()

	got, err := DeserializeHeader(buf[:])
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDeserializeWrongLength(t *testing.T) {
	for _, n := range []int{0, 44, 79, 81} {
		_, err := DeserializeHeader(make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidLength, "length %d", n)
	}
}

func TestCompactRoundTrip(t *testing.T) {
	h := sampleHeader()
	compact := h.ToCompact()

	full := h.Serialize()
	assert.Equal(t, full[:4], compact[:4], "version")
	assert.Equal(t, full[36:72], compact[4:40], "merkle root and time")
	assert.Equal(t, full[76:], compact[40:], "nonce")

	got, err := FromCompact(compact[:], h.PrevBlock, h.Bits)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestFromCompactUsesContext(t *testing.T) {
	h := sampleHeader()
	compact := h.ToCompact()

	other := chainhash.Hash{0xaa}
	got, err := FromCompact(compact[:], other, Uint32Bytes(1))
	require.NoError(t, err)
	assert.Equal(t, other, got.PrevBlock)
	assert.Equal(t, uint32(1), got.TargetBits())
	assert.Equal(t, h.MerkleRoot, got.MerkleRoot)
	assert.Equal(t, h.Nonce, got.Nonce)
}

func TestFromCompactWrongLength(t *testing.T) {
	_, err := FromCompact(make([]byte, 43), chainhash.Hash{}, [4]byte{})
	assert.ErrorIs(t, err, ErrInvalidLength)
}
