package blockchain

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yourusername/compressedheaders/internal/metrics"
)

const (
	// RewindDepth is how far below the tip the cursor restarts after idling.
	// Re-walking this window picks up reorgs that happened while idle.
	RewindDepth = 144

	// ConfirmDepth is how many headers must sit on top of a header before it
	// is committed to the compact store.
	ConfirmDepth = 6

	// CheckpointInterval is the height cadence of flushes and progress logs
	CheckpointInterval = 1000
)

type Option func(*Parameters)

// Parameters configure the Syncer.
type Parameters struct {
	// TipPause is the idle time after reaching the tip
	TipPause time.Duration
	// ErrorPause is the backoff after a failed lookup
	ErrorPause time.Duration

	RewindDepth        uint64
	ConfirmDepth       uint64
	CheckpointInterval uint64

	clock   clock.Clock
	metrics *metrics.Metrics
}

// DefaultParameters returns the default params to configure the syncer.
func DefaultParameters() Parameters {
	return Parameters{
		TipPause:           time.Minute,
		ErrorPause:         30 * time.Second,
		RewindDepth:        RewindDepth,
		ConfirmDepth:       ConfirmDepth,
		CheckpointInterval: CheckpointInterval,
		clock:              clock.New(),
	}
}

func (p *Parameters) Validate() error {
	if p.TipPause <= 0 {
		return fmt.Errorf("invalid tip pause: %v", p.TipPause)
	}
	if p.ErrorPause <= 0 {
		return fmt.Errorf("invalid error pause: %v", p.ErrorPause)
	}
	if p.CheckpointInterval == 0 {
		return fmt.Errorf("invalid checkpoint interval: %d", p.CheckpointInterval)
	}
	return nil
}

// WithTipPause is a functional option that configures the
// `TipPause` parameter.
func WithTipPause(d time.Duration) Option {
	return func(p *Parameters) {
		p.TipPause = d
	}
}

// WithErrorPause is a functional option that configures the
// `ErrorPause` parameter.
func WithErrorPause(d time.Duration) Option {
	return func(p *Parameters) {
		p.ErrorPause = d
	}
}

// WithConfirmDepth overrides ConfirmDepth.
func WithConfirmDepth(depth uint64) Option {
	return func(p *Parameters) {
		p.ConfirmDepth = depth
	}
}

// WithRewindDepth overrides RewindDepth.
func WithRewindDepth(depth uint64) Option {
	return func(p *Parameters) {
		p.RewindDepth = depth
	}
}

// WithCheckpointInterval overrides CheckpointInterval.
func WithCheckpointInterval(interval uint64) Option {
	return func(p *Parameters) {
		p.CheckpointInterval = interval
	}
}

// WithClock replaces the wall clock used for pauses.
func WithClock(c clock.Clock) Option {
	return func(p *Parameters) {
		p.clock = c
	}
}

// WithMetrics makes the syncer report to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Parameters) {
		p.metrics = m
	}
}
