package storage

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfRange is returned for reads past the end of the store
var ErrOutOfRange = errors.New("storage: range out of bounds")

// CompactStore is the append-only buffer of encoded headers. It is shared
// between one writer and any number of readers; both sides hold the lock only
// for the duration of a copy.
type CompactStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewCompactStore creates an empty store
func NewCompactStore() *CompactStore {
	return &CompactStore{}
}

// Append adds records to the end of the store.
func (s *CompactStore) Append(records []byte) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	s.data = append(s.data, records...)
	s.mu.Unlock()
}

// Len returns the number of bytes stored. It never decreases.
func (s *CompactStore) Len() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.data))
}

// ReadRange copies bytes [start, end).
func (s *CompactStore) ReadRange(start, end uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start > end || end > uint64(len(s.data)) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, start, end, len(s.data))
	}
	out := make([]byte, end-start)
	copy(out, s.data[start:end])
	return out, nil
}

// Snapshot copies the whole store.
func (s *CompactStore) Snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.data...)
}
