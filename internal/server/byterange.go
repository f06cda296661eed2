package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const bytesUnit = "bytes"

var (
	// ErrInvalidRange is returned for malformed range specs.
	ErrInvalidRange = errors.New("server: invalid range")

	// ErrNotSatisfiable is returned for ranges outside the resource.
	ErrNotSatisfiable = errors.New("server: range not satisfiable")

	// ErrUnsupportedRange is returned for well formed specs this server does
	// not negotiate: other units and multiple ranges.
	ErrUnsupportedRange = errors.New("server: unsupported range")
)

// ByteRange is the half open interval [Start, End) of the store.
type ByteRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of bytes in the range.
func (r ByteRange) Len() uint64 {
	return r.End - r.Start
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// ParseRange resolves a Range header value against a resource of length
// bytes. Three forms are accepted:
//
//	bytes=N-   [N, length)
//	bytes=N-M  [N, M)
//	bytes=-S   [length-S, length)
//
// The end of an explicit range is exclusive.
func ParseRange(header string, length uint64) (ByteRange, error) {
	unit, set, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}
	if strings.TrimSpace(unit) != bytesUnit {
		return ByteRange{}, fmt.Errorf("%w: unit %q", ErrUnsupportedRange, unit)
	}
	if strings.Contains(set, ",") {
		return ByteRange{}, fmt.Errorf("%w: multiple ranges", ErrUnsupportedRange)
	}

	first, last, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, set)
	}

	if first == "" {
		suffix, err := parseOffset(last)
		if err != nil {
			return ByteRange{}, err
		}
		if suffix > length {
			return ByteRange{}, fmt.Errorf("%w: suffix %d exceeds length %d", ErrNotSatisfiable, suffix, length)
		}
		return ByteRange{Start: length - suffix, End: length}, nil
	}

	start, err := parseOffset(first)
	if err != nil {
		return ByteRange{}, err
	}
	if start >= length {
		return ByteRange{}, fmt.Errorf("%w: start %d not below length %d", ErrNotSatisfiable, start, length)
	}
	if last == "" {
		return ByteRange{Start: start, End: length}, nil
	}

	end, err := parseOffset(last)
	if err != nil {
		return ByteRange{}, err
	}
	switch {
	case end > length:
		return ByteRange{}, fmt.Errorf("%w: end %d exceeds length %d", ErrNotSatisfiable, end, length)
	case start > end:
		return ByteRange{}, fmt.Errorf("%w: start %d after end %d", ErrNotSatisfiable, start, end)
	}
	return ByteRange{Start: start, End: end}, nil
}

func parseOffset(s string) (uint64, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("%w: offset %q", ErrInvalidRange, s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: offset %q: %v", ErrInvalidRange, s, err)
	}
	return v, nil
}
