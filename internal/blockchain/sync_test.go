package blockchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/compressedheaders/internal/compact"
	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/internal/headertest"
	"github.com/yourusername/compressedheaders/internal/rpc"
	"github.com/yourusername/compressedheaders/internal/storage"
)

type testSyncer struct {
	*Syncer
	chain *storage.ChainStorage
	store *storage.CompactStore
}

func newTestSyncer(t *testing.T, source rpc.HeaderSource, opts ...Option) *testSyncer {
	t.Helper()
	chain, err := storage.NewChainStorage()
	require.NoError(t, err)
	t.Cleanup(func() { chain.Close() })

	store := storage.NewCompactStore()
	genesis := crypto.MustHashFromDisplay(headertest.GenesisHash)
	s, err := NewSyncer(source, chain, store, genesis, opts...)
	require.NoError(t, err)
	return &testSyncer{Syncer: s, chain: chain, store: store}
}

// stepToTip steps until the syncer reports the tip at height.
func stepToTip(t *testing.T, s *testSyncer, height uint64) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		state, _ := s.Step(context.Background())
		if state == AtTip && s.TipHeight() == height {
			return
		}
	}
	t.Fatalf("tip %d not reached, at %d", height, s.TipHeight())
}

// stepToHeight steps until height is accepted and checks it was not the tip.
func stepToHeight(t *testing.T, s *testSyncer, height uint64) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		state, _ := s.Step(context.Background())
		if s.TipHeight() == height {
			require.Equal(t, Advanced, state)
			return
		}
	}
	t.Fatalf("height %d not reached, at %d", height, s.TipHeight())
}

func decodeStore(t *testing.T, store *storage.CompactStore) []chainhash.Hash {
	t.Helper()
	headers, err := compact.DecodeAll(store.Snapshot())
	require.NoError(t, err)
	return headertest.IDs(headers)
}

func TestSyncEndToEnd(t *testing.T) {
	// one full epoch, ten headers of the next, and enough on top to confirm them
	chain := headertest.NewChain(compact.EpochLength + 10 + ConfirmDepth)
	node := headertest.NewNode(chain)
	s := newTestSyncer(t, node)

	stepToTip(t, s, uint64(len(chain)-1))

	assert.Equal(t, uint64(80+2015*44+80+9*44), s.store.Len())
	assert.Equal(t, uint64(compact.EpochLength+10), s.Synced())
	assert.Equal(t, headertest.IDs(chain[:compact.EpochLength+10]), decodeStore(t, s.store))
	assert.Equal(t, uint64(len(chain)), s.chain.Len())
}

func TestCheckpointFlushBeforeTip(t *testing.T) {
	chain := headertest.NewChain(1200)
	node := headertest.NewNode(chain)
	s := newTestSyncer(t, node)

	stepToHeight(t, s, 999)
	assert.Zero(t, s.Synced())
	assert.Zero(t, s.store.Len())

	stepToHeight(t, s, CheckpointInterval)
	assert.Equal(t, uint64(CheckpointInterval-ConfirmDepth+1), s.Synced())
	assert.Equal(t, compact.Offset(995), s.store.Len())
	assert.Equal(t, headertest.IDs(chain[:995]), decodeStore(t, s.store))

	// nothing more until the tip
	stepToHeight(t, s, 1198)
	assert.Equal(t, uint64(995), s.Synced())
	assert.Equal(t, compact.Offset(995), s.store.Len())

	stepToTip(t, s, 1199)
	assert.Equal(t, uint64(1194), s.Synced())
}

func TestCheckpointInterval(t *testing.T) {
	chain := headertest.NewChain(50)
	node := headertest.NewNode(chain)
	s := newTestSyncer(t, node, WithCheckpointInterval(10))

	for _, tt := range []struct {
		height, synced uint64
	}{
		{9, 0},
		{10, 5},
		{19, 5},
		{20, 15},
		{40, 35},
		{48, 35},
	} {
		stepToHeight(t, s, tt.height)
		assert.Equal(t, tt.synced, s.Synced(), "height %d", tt.height)
		assert.Equal(t, compact.Offset(tt.synced), s.store.Len(), "height %d", tt.height)
	}

	_, err := NewSyncer(node, nil, nil, chainhash.Hash{}, WithCheckpointInterval(0))
	assert.Error(t, err)
}

func TestStepStates(t *testing.T) {
	chain := headertest.NewChain(3)
	node := headertest.NewNode(chain)
	s := newTestSyncer(t, node, WithTipPause(time.Minute))
	ctx := context.Background()

	ids := headertest.IDs(chain)

	state, pause := s.Step(ctx)
	assert.Equal(t, Advanced, state)
	assert.Zero(t, pause)
	assert.Equal(t, ids[1], s.Cursor())

	state, _ = s.Step(ctx)
	assert.Equal(t, Advanced, state)
	assert.Equal(t, ids[2], s.Cursor())

	state, pause = s.Step(ctx)
	assert.Equal(t, AtTip, state)
	assert.Equal(t, time.Minute, pause)
	assert.Equal(t, uint64(2), s.TipHeight())
	// rewind is clamped at genesis on short chains
	assert.Equal(t, ids[0], s.Cursor())
	assert.Equal(t, "at-tip", s.State().String())
}

func TestRewindCursor(t *testing.T) {
	chain := headertest.NewChain(200)
	node := headertest.NewNode(chain)
	s := newTestSyncer(t, node)

	stepToTip(t, s, 199)
	assert.Equal(t, headertest.IDs(chain)[199-RewindDepth], s.Cursor())
}

func TestErrorBackoffKeepsCursor(t *testing.T) {
	chain := headertest.NewChain(5)
	node := headertest.NewNode(chain)
	s := newTestSyncer(t, node, WithErrorPause(10*time.Second))
	ctx := context.Background()

	node.FailNext(2)
	for i := 0; i < 2; i++ {
		state, pause := s.Step(ctx)
		assert.Equal(t, ErrorBackoff, state)
		assert.Equal(t, 10*time.Second, pause)
		assert.Equal(t, headertest.IDs(chain)[0], s.Cursor())
	}

	state, _ := s.Step(ctx)
	assert.Equal(t, Advanced, state)
	assert.Equal(t, 2, node.Failed())
}

func TestConfirmDepthHoldsBackRecentHeaders(t *testing.T) {
	node := headertest.NewNode(headertest.NewChain(10))
	s := newTestSyncer(t, node)

	stepToTip(t, s, 9)
	assert.Equal(t, uint64(4), s.Synced())
	assert.Equal(t, compact.Offset(4), s.store.Len())

	node.Mine(5)
	stepToTip(t, s, 14)
	assert.Equal(t, uint64(9), s.Synced())
	assert.Equal(t, headertest.IDs(node.Chain()[:9]), decodeStore(t, s.store))
}

func TestShortChainNotFlushed(t *testing.T) {
	node := headertest.NewNode(headertest.NewChain(ConfirmDepth))
	s := newTestSyncer(t, node)

	stepToTip(t, s, ConfirmDepth-1)
	assert.Zero(t, s.store.Len())
}

func TestShallowReorgIsFollowed(t *testing.T) {
	node := headertest.NewNode(headertest.NewChain(30))
	s := newTestSyncer(t, node)

	stepToTip(t, s, 29)
	before := s.store.Snapshot()
	require.Equal(t, uint64(24), s.Synced())

	node.Reorg(25, 6, 1)
	stepToTip(t, s, 31)

	best := node.Chain()
	stored, err := s.chain.GetHeader(26)
	require.NoError(t, err)
	assert.Equal(t, best[26], stored)

	ids := decodeStore(t, s.store)
	assert.Equal(t, headertest.IDs(best[:26]), ids)
	assert.Equal(t, before, s.store.Snapshot()[:len(before)], "flushed bytes are never rewritten")
}

func TestParentMismatchWalksBack(t *testing.T) {
	chain := headertest.NewChain(20)
	node := headertest.NewNode(chain)
	s := newTestSyncer(t, node)
	ctx := context.Background()

	// sync up to height 15 with the cursor pointing at 16
	for s.TipHeight() < 15 || s.chain.Len() < 16 {
		state, _ := s.Step(ctx)
		require.Equal(t, Advanced, state)
	}

	// the node reorgs from 12 and the syncer is sent into the new branch
	node.Reorg(12, 10, 2)
	best := node.Chain()
	s.cursor = crypto.HashBlockHeader(&best[16])

	state, _ := s.Step(ctx)
	assert.Equal(t, Fetching, state)
	assert.Equal(t, best[16].PrevBlock, s.Cursor())
	assert.Equal(t, uint64(15), s.chain.Len())

	stepToTip(t, s, uint64(len(best)-1))
	for _, height := range []uint64{13, 15, 16} {
		h, err := s.chain.GetHeader(height)
		require.NoError(t, err)
		assert.Equal(t, best[height], h, "height %d", height)
	}
}

func TestDeepReorgNeverRewritesStore(t *testing.T) {
	node := headertest.NewNode(headertest.NewChain(30))
	s := newTestSyncer(t, node)

	stepToTip(t, s, 29)
	before := s.store.Snapshot()

	node.Reorg(10, 25, 3)

	var sawBackoff bool
	for i := 0; i < 50; i++ {
		if state, _ := s.Step(context.Background()); state == ErrorBackoff {
			sawBackoff = true
			break
		}
	}
	assert.True(t, sawBackoff)
	assert.Equal(t, before, s.store.Snapshot())
	assert.Equal(t, uint64(24), s.Synced())
}

func TestMinHashTracksGenesis(t *testing.T) {
	node := headertest.NewNode(headertest.NewChain(50))
	s := newTestSyncer(t, node)

	stepToTip(t, s, 49)
	min, ok := s.MinHash()
	require.True(t, ok)
	assert.Equal(t, headertest.GenesisHash, min.String())
}

type wrongSource struct{}

func (wrongSource) GetBlockHeader(context.Context, chainhash.Hash) (*rpc.BlockHeaderRPC, error) {
	chain := headertest.NewChain(2)
	return rpc.FromHeader(&chain[1], 1, nil), nil
}

func TestHashMismatchBacksOff(t *testing.T) {
	s := newTestSyncer(t, wrongSource{})

	state, _ := s.Step(context.Background())
	assert.Equal(t, ErrorBackoff, state)
	assert.Zero(t, s.chain.Len())
}

func TestRunRecoversFromErrors(t *testing.T) {
	mock := clock.NewMock()
	node := headertest.NewNode(headertest.NewChain(20))
	node.FailNext(3)
	s := newTestSyncer(t, node, WithClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return s.Synced() == 14 && node.Failed() == 3
	}, 5*time.Second, time.Millisecond)

	cancel()
	mock.Add(time.Minute)
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNewSyncerValidates(t *testing.T) {
	chain, err := storage.NewChainStorage()
	require.NoError(t, err)
	defer chain.Close()

	_, err = NewSyncer(headertest.NewNode(nil), chain, storage.NewCompactStore(), chainhash.Hash{},
		WithTipPause(0))
	assert.Error(t, err)

	store := storage.NewCompactStore()
	store.Append([]byte{1})
	_, err = NewSyncer(headertest.NewNode(nil), chain, store, chainhash.Hash{})
	assert.Error(t, err)
}
