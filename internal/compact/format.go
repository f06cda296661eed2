// Package compact implements the alternating full/compact header encoding.
//
// The first header of every difficulty epoch is stored as a full 80 byte
// record. The remaining 2015 headers of the epoch drop their previous hash,
// which is the identifier of the header before them, and their bits, which
// equal the bits of the epoch's full record. Since record sizes depend only on
// the height, the byte offset of any header is pure arithmetic.
package compact

import (
	"errors"

	"github.com/yourusername/compressedheaders/pkg/types"
)

const (
	// EpochLength is the bitcoin difficulty retarget interval. It must track
	// the source chain's interval, as compact records inherit the epoch bits.
	EpochLength = 2016

	// FullRecordSize is the size of the record opening every epoch
	FullRecordSize = types.HeaderSize

	// CompactRecordSize is the size of every other record
	CompactRecordSize = types.CompactSize

	// EpochSize is the encoded size of one complete epoch
	EpochSize = FullRecordSize + (EpochLength-1)*CompactRecordSize
)

var (
	// ErrBrokenChain is returned when a header does not reference the
	// previously encoded header.
	ErrBrokenChain = errors.New("compact: header does not extend the encoded chain")

	// ErrBitsChanged is returned when a header inside an epoch carries bits
	// different from the epoch's first header. Such headers cannot be
	// reconstructed from a compact record.
	ErrBitsChanged = errors.New("compact: bits differ from epoch bits")

	// ErrTruncated is returned when a buffer ends inside a record
	ErrTruncated = errors.New("compact: truncated record")

	// ErrNotEpochStart is returned when decoding is started mid-epoch
	ErrNotEpochStart = errors.New("compact: decoding must start at an epoch boundary")

	// ErrOutOfRange is returned for heights that are not encoded yet
	ErrOutOfRange = errors.New("compact: height out of range")
)

// IsFull reports whether the header at height is stored as a full record.
func IsFull(height uint64) bool {
	return height%EpochLength == 0
}

// RecordSize returns the encoded size of the header at height.
func RecordSize(height uint64) uint64 {
	if IsFull(height) {
		return FullRecordSize
	}
	return CompactRecordSize
}

// Offset returns the byte offset of the header at height, which is also the
// encoded length of headers [0, height).
func Offset(height uint64) uint64 {
	epochs, pos := height/EpochLength, height%EpochLength
	off := epochs * EpochSize
	if pos > 0 {
		off += FullRecordSize + (pos-1)*CompactRecordSize
	}
	return off
}

// Headers returns how many complete records fit in the first length bytes.
func Headers(length uint64) uint64 {
	epochs, rem := length/EpochSize, length%EpochSize
	n := epochs * EpochLength
	if rem >= FullRecordSize {
		n += 1 + (rem-FullRecordSize)/CompactRecordSize
	}
	return n
}

// EpochStart returns the first height of the epoch containing height.
func EpochStart(height uint64) uint64 {
	return height - height%EpochLength
}
