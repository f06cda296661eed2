package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/yourusername/compressedheaders/pkg/types"
)

const (
	// Database prefixes
	headerPrefix = "header_"
)

var (
	// ErrNotFound is returned for heights that were never stored or were
	// truncated away
	ErrNotFound = errors.New("storage: header not found")

	// ErrNotContiguous is returned when a header would leave a gap
	ErrNotContiguous = errors.New("storage: header is not contiguous")
)

// ChainStorage is the sync engine's working array of decoded headers,
// indexed by height. It lives in memory only and is rebuilt on restart.
type ChainStorage struct {
	db     *leveldb.DB
	height uint64
}

// NewChainStorage creates an empty in-memory chain
func NewChainStorage() (*ChainStorage, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), &opt.Options{
		NoSync: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open chain storage: %w", err)
	}

	return &ChainStorage{db: db}, nil
}

// Close releases the database
func (s *ChainStorage) Close() error {
	return s.db.Close()
}

// Len returns the number of stored headers, heights [0, Len()).
func (s *ChainStorage) Len() uint64 {
	return s.height
}

// SaveHeader stores h at height, which must be exactly Len().
func (s *ChainStorage) SaveHeader(height uint64, h *types.BlockHeader) error {
	if height != s.height {
		return fmt.Errorf("%w: height %d, have %d headers", ErrNotContiguous, height, s.height)
	}

	raw := h.Serialize()
	if err := s.db.Put(heightKey(height), raw[:], nil); err != nil {
		return fmt.Errorf("failed to save header %d: %w", height, err)
	}
	s.height++
	return nil
}

// GetHeader retrieves the header at height
func (s *ChainStorage) GetHeader(height uint64) (types.BlockHeader, error) {
	if height >= s.height {
		return types.BlockHeader{}, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}

	data, err := s.db.Get(heightKey(height), nil)
	if err != nil {
		return types.BlockHeader{}, fmt.Errorf("failed to load header %d: %w", height, err)
	}
	return types.DeserializeHeader(data)
}

// Truncate forgets every header at or above height.
func (s *ChainStorage) Truncate(height uint64) error {
	if height >= s.height {
		return nil
	}

	iter := s.db.NewIterator(&util.Range{
		Start: heightKey(height),
		Limit: util.BytesPrefix([]byte(headerPrefix)).Limit,
	}, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to truncate at %d: %w", height, err)
	}

	s.height = height
	return nil
}

// heightKey sorts lexicographically in height order
func heightKey(height uint64) []byte {
	key := make([]byte, len(headerPrefix)+8)
	copy(key, headerPrefix)
	binary.BigEndian.PutUint64(key[len(headerPrefix):], height)
	return key
}
