package storage

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactStoreAppendAndRead(t *testing.T) {
	s := NewCompactStore()
	assert.Equal(t, uint64(0), s.Len())

	s.Append([]byte{1, 2, 3})
	s.Append(nil)
	s.Append([]byte{4, 5})
	require.Equal(t, uint64(5), s.Len())

	got, err := s.ReadRange(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, got)

	got, err = s.ReadRange(5, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Equal(t, []byte{1, 2, 3, 4, 5}, s.Snapshot())
}

func TestCompactStoreReadRangeBounds(t *testing.T) {
	s := NewCompactStore()
	s.Append([]byte{1, 2, 3})

	_, err := s.ReadRange(0, 4)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.ReadRange(3, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCompactStoreReadIsCopy(t *testing.T) {
	s := NewCompactStore()
	s.Append([]byte{1, 2, 3})

	got, err := s.ReadRange(0, 3)
	require.NoError(t, err)
	got[0] = 9

	again, err := s.ReadRange(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, again)
}

// Readers must only ever see whole appends, and the length must never shrink.
func TestCompactStoreNoTornReads(t *testing.T) {
	const (
		recordSize = 44
		records    = 2000
		readers    = 8
	)

	s := NewCompactStore()
	var wg sync.WaitGroup
	done := make(chan struct{})

	errs := make(chan string, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				n := s.Len()
				if n < last {
					errs <- "length decreased"
					return
				}
				last = n
				data, err := s.ReadRange(0, n)
				if err != nil {
					errs <- err.Error()
					return
				}
				if len(data)%recordSize != 0 {
					errs <- "partial record observed"
					return
				}
				for i := 0; i < len(data); i += recordSize {
					want := bytes.Repeat([]byte{byte(i / recordSize)}, recordSize)
					if !bytes.Equal(data[i:i+recordSize], want) {
						errs <- "record content mismatch"
						return
					}
				}
			}
		}()
	}

	for i := 0; i < records; i++ {
		s.Append(bytes.Repeat([]byte{byte(i)}, recordSize))
	}
	close(done)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	assert.Equal(t, uint64(records*recordSize), s.Len())
}
