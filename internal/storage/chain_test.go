package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/compressedheaders/internal/headertest"
)

func newChainStorage(t *testing.T) *ChainStorage {
	s, err := NewChainStorage()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChainStorageSaveAndGet(t *testing.T) {
	s := newChainStorage(t)
	chain := headertest.NewChain(300)

	for i := range chain {
		require.NoError(t, s.SaveHeader(uint64(i), &chain[i]))
	}
	require.Equal(t, uint64(len(chain)), s.Len())

	for _, height := range []uint64{0, 1, 255, 256, 299} {
		h, err := s.GetHeader(height)
		require.NoError(t, err)
		assert.Equal(t, chain[height], h)
	}

	_, err := s.GetHeader(300)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainStorageRejectsGaps(t *testing.T) {
	s := newChainStorage(t)
	chain := headertest.NewChain(3)

	require.NoError(t, s.SaveHeader(0, &chain[0]))
	assert.ErrorIs(t, s.SaveHeader(2, &chain[2]), ErrNotContiguous)
	assert.ErrorIs(t, s.SaveHeader(0, &chain[0]), ErrNotContiguous)
}

func TestChainStorageTruncate(t *testing.T) {
	s := newChainStorage(t)
	chain := headertest.NewChain(10)
	for i := range chain {
		require.NoError(t, s.SaveHeader(uint64(i), &chain[i]))
	}

	require.NoError(t, s.Truncate(6))
	assert.Equal(t, uint64(6), s.Len())
	_, err := s.GetHeader(6)
	assert.ErrorIs(t, err, ErrNotFound)

	fork := headertest.Extend(chain[:6:6], 2, 7)
	require.NoError(t, s.SaveHeader(6, &fork[6]))
	h, err := s.GetHeader(6)
	require.NoError(t, err)
	assert.Equal(t, fork[6], h)

	// truncating above the end is a no-op
	require.NoError(t, s.Truncate(100))
	assert.Equal(t, uint64(7), s.Len())
}
