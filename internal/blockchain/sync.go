// Package blockchain follows a node's best chain header by header and commits
// confirmed headers to the compact store.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	logging "github.com/ipfs/go-log/v2"

	"github.com/yourusername/compressedheaders/internal/compact"
	"github.com/yourusername/compressedheaders/internal/crypto"
	"github.com/yourusername/compressedheaders/internal/rpc"
	"github.com/yourusername/compressedheaders/internal/storage"
	"github.com/yourusername/compressedheaders/pkg/types"
)

var log = logging.Logger("blockchain")

var (
	// ErrDeepReorg is returned when the node's chain diverges from headers
	// that are already in the compact store. The store is never rewritten, so
	// the syncer keeps retrying until the node returns to the stored branch.
	ErrDeepReorg = errors.New("blockchain: reorg below confirmed height")

	// ErrHashMismatch is returned when a response does not hash to the
	// identifier it was requested by.
	ErrHashMismatch = errors.New("blockchain: header does not match requested hash")

	errDiverged = errors.New("blockchain: parent mismatch")
	errGap      = errors.New("blockchain: height gap")
)

// State is the syncer's position in its fetch loop.
type State int

const (
	// Fetching means a lookup of the cursor hash is due
	Fetching State = iota
	// Advanced means a header was accepted and the cursor moved to its successor
	Advanced
	// AtTip means the node knows no successor; the cursor was rewound
	AtTip
	// ErrorBackoff means the last lookup failed; the cursor is unchanged
	ErrorBackoff
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Advanced:
		return "advanced"
	case AtTip:
		return "at-tip"
	case ErrorBackoff:
		return "error-backoff"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Syncer walks the node's chain forward from genesis by following each
// header's next hash. Every header is kept in a working chain; headers that
// are ConfirmDepth below the observed height are encoded into the compact
// store. The Syncer is the store's only writer.
type Syncer struct {
	source  rpc.HeaderSource
	chain   *storage.ChainStorage
	store   *storage.CompactStore
	encoder *compact.Encoder
	params  Parameters

	genesis chainhash.Hash
	cursor  chainhash.Hash
	state   State

	minHash chainhash.Hash
	haveMin bool
	lastTip uint64
	started time.Time

	tip     atomic.Uint64
	flushed atomic.Uint64
}

// NewSyncer creates a syncer that starts at genesis. store must be empty.
func NewSyncer(
	source rpc.HeaderSource,
	chain *storage.ChainStorage,
	store *storage.CompactStore,
	genesis chainhash.Hash,
	opts ...Option,
) (*Syncer, error) {
	params := DefaultParameters()
	for _, opt := range opts {
		opt(&params)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if store.Len() != 0 || chain.Len() != 0 {
		return nil, errors.New("blockchain: syncer needs empty storage")
	}

	return &Syncer{
		source:  source,
		chain:   chain,
		store:   store,
		encoder: compact.NewEncoder(),
		params:  params,
		genesis: genesis,
		cursor:  genesis,
		started: params.clock.Now(),
	}, nil
}

// Run drives Step until ctx is done. Errors from the node never end the loop.
func (s *Syncer) Run(ctx context.Context) error {
	log.Infow("sync started", "genesis", crypto.DisplayHex(s.genesis))
	for {
		_, pause := s.Step(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if pause == 0 {
			continue
		}

		timer := s.params.clock.Timer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Step performs one lookup of the cursor hash and returns the resulting state
// together with the pause to wait before the next step.
func (s *Syncer) Step(ctx context.Context) (State, time.Duration) {
	res, err := s.source.GetBlockHeader(ctx, s.cursor)
	if err != nil {
		s.params.metrics.RPCError()
		return s.backoff(err)
	}

	h, err := res.ToHeader()
	if err != nil {
		return s.backoff(fmt.Errorf("decoding %s: %w", res.Hash, err))
	}
	id := crypto.HashBlockHeader(&h)
	if id != s.cursor {
		return s.backoff(fmt.Errorf("%w: want %s, got %s", ErrHashMismatch,
			crypto.DisplayHex(s.cursor), crypto.DisplayHex(id)))
	}

	height := res.Height
	switch err := s.accept(height, &h); {
	case errors.Is(err, errDiverged):
		// fetch the node's parent, walking back until the chains reconnect
		s.cursor = h.PrevBlock
		return s.setState(Fetching), 0
	case errors.Is(err, errGap):
		log.Warnw("height gap, resuming from stored tip", "height", height, "stored", s.chain.Len())
		s.cursor = s.resumeCursor()
		return s.setState(Fetching), 0
	case err != nil:
		return s.backoff(err)
	}

	s.observe(height, id)

	if res.AtTip() {
		if height != s.lastTip {
			log.Infow("reached tip", "height", height, "hash", res.Hash)
			s.lastTip = height
		}
		s.flush(height)
		s.cursor = s.rewindCursor(height)
		return s.setState(AtTip), s.params.TipPause
	}

	next, err := res.Next()
	if err != nil {
		return s.backoff(fmt.Errorf("nextblockhash of %s: %w", res.Hash, err))
	}
	s.cursor = next
	if height%s.params.CheckpointInterval == 0 {
		s.flush(height)
	}
	return s.setState(Advanced), 0
}

// accept places h at height in the working chain.
func (s *Syncer) accept(height uint64, h *types.BlockHeader) error {
	stored := s.chain.Len()
	if height > stored {
		return fmt.Errorf("%w: got %d, have %d", errGap, height, stored)
	}

	if height < stored {
		existing, err := s.chain.GetHeader(height)
		if err != nil {
			return err
		}
		if existing == *h {
			return nil
		}
		if height < s.encoder.Next() {
			log.Errorw("node replaced a confirmed header", "height", height,
				"stored", crypto.DisplayHex(crypto.HashBlockHeader(&existing)),
				"node", crypto.DisplayHex(crypto.HashBlockHeader(h)))
			return fmt.Errorf("%w: height %d", ErrDeepReorg, height)
		}
		log.Warnw("reorg, replacing headers", "from", height, "dropped", stored-height)
		s.params.metrics.Reorg()
		if err := s.chain.Truncate(height); err != nil {
			return err
		}
	}

	if height == 0 {
		if !h.IsGenesis() {
			return fmt.Errorf("%w: height 0 has a parent", ErrHashMismatch)
		}
	} else {
		parent, err := s.chain.GetHeader(height - 1)
		if err != nil {
			return err
		}
		if crypto.HashBlockHeader(&parent) != h.PrevBlock {
			if height-1 < s.encoder.Next() {
				log.Errorw("node branch forks below confirmed height", "height", height-1)
				return fmt.Errorf("%w: height %d", ErrDeepReorg, height-1)
			}
			log.Warnw("parent mismatch, walking back", "height", height,
				"parent", crypto.DisplayHex(h.PrevBlock))
			s.params.metrics.Reorg()
			if err := s.chain.Truncate(height - 1); err != nil {
				return err
			}
			return errDiverged
		}
	}

	return s.chain.SaveHeader(height, h)
}

// flush encodes every stored header that is ConfirmDepth below height and not
// yet in the store, then appends them with a single write.
func (s *Syncer) flush(height uint64) {
	if height < s.params.ConfirmDepth {
		return
	}
	limit := height - s.params.ConfirmDepth

	var records []byte
	for next := s.encoder.Next(); next <= limit && next < s.chain.Len(); next = s.encoder.Next() {
		h, err := s.chain.GetHeader(next)
		if err != nil {
			log.Errorw("loading header for flush", "height", next, "err", err)
			break
		}
		rec, err := s.encoder.Encode(&h)
		if err != nil {
			log.Errorw("cannot encode header", "height", next, "err", err)
			break
		}
		records = append(records, rec...)
	}
	if len(records) == 0 {
		return
	}

	s.store.Append(records)
	s.flushed.Store(s.encoder.Next())
	s.params.metrics.ObserveStore(s.encoder.Next(), s.store.Len())
	log.Debugw("flushed headers", "synced", s.encoder.Next(), "bytes", s.store.Len())
}

func (s *Syncer) observe(height uint64, id chainhash.Hash) {
	s.tip.Store(height)
	s.params.metrics.ObserveTip(height)

	if !s.haveMin || crypto.DisplayLess(id, s.minHash) {
		s.minHash, s.haveMin = id, true
		s.params.metrics.ObserveMinHash(id)
		if height > 0 {
			log.Infow("new minimum hash", "height", height, "hash", crypto.DisplayHex(id))
		}
	}

	if height%s.params.CheckpointInterval == 0 {
		log.Infow("sync progress", "height", height, "hash", crypto.DisplayHex(id),
			"elapsed", s.params.clock.Since(s.started).Round(time.Second))
	}
}

// rewindCursor picks the header RewindDepth below height, or genesis.
func (s *Syncer) rewindCursor(height uint64) chainhash.Hash {
	target := uint64(0)
	if height > s.params.RewindDepth {
		target = height - s.params.RewindDepth
	}
	h, err := s.chain.GetHeader(target)
	if err != nil {
		return s.genesis
	}
	return crypto.HashBlockHeader(&h)
}

func (s *Syncer) resumeCursor() chainhash.Hash {
	n := s.chain.Len()
	if n == 0 {
		return s.genesis
	}
	h, err := s.chain.GetHeader(n - 1)
	if err != nil {
		return s.genesis
	}
	return crypto.HashBlockHeader(&h)
}

func (s *Syncer) backoff(err error) (State, time.Duration) {
	log.Warnw("header lookup failed, retrying", "hash", crypto.DisplayHex(s.cursor),
		"in", s.params.ErrorPause, "err", err)
	return s.setState(ErrorBackoff), s.params.ErrorPause
}

func (s *Syncer) setState(st State) State {
	s.state = st
	return st
}

// State returns the state reached by the last Step. Not safe for concurrent use
// with Step.
func (s *Syncer) State() State {
	return s.state
}

// Cursor returns the hash the next Step will look up.
func (s *Syncer) Cursor() chainhash.Hash {
	return s.cursor
}

// MinHash returns the lowest header hash seen so far in display order.
func (s *Syncer) MinHash() (chainhash.Hash, bool) {
	return s.minHash, s.haveMin
}

// TipHeight returns the height of the last accepted header. Safe for
// concurrent use.
func (s *Syncer) TipHeight() uint64 {
	return s.tip.Load()
}

// Synced returns how many headers were committed to the store. Safe for
// concurrent use.
func (s *Syncer) Synced() uint64 {
	return s.flushed.Load()
}
