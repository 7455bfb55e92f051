// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"
	"runtime"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
	"code.hybscloud.com/lookback/internal/simt"
)

// TileStatus is the publication state of one tile.
type TileStatus uint32

const (
	// StatusOutOfBounds marks the padding slots before tile 0. A look-back
	// that reaches one stops there; it contributes nothing.
	StatusOutOfBounds TileStatus = iota

	// StatusInvalid marks a tile that has published nothing yet.
	StatusInvalid

	// StatusPartial marks a tile that has published its own aggregate.
	StatusPartial

	// StatusInclusive marks a tile that has published the aggregate of
	// itself and every tile before it.
	StatusInclusive
)

func (s TileStatus) String() string {
	switch s {
	case StatusOutOfBounds:
		return "OUT_OF_BOUNDS"
	case StatusInvalid:
		return "INVALID"
	case StatusPartial:
		return "PARTIAL"
	case StatusInclusive:
		return "INCLUSIVE"
	}
	return "UNKNOWN"
}

// TilePadding is the number of out-of-bounds slots before tile 0, one per
// lane of a look-back window.
const TilePadding = simt.WarpThreads

// pollCheckInterval is the number of polls between context checks.
const pollCheckInterval = 1024

type tileSlot[T any] struct {
	status    atomix.Uint32
	partial   T
	inclusive T
	_         pad
}

// TileState holds the published status of every tile of one dispatch.
//
// Each tile is written by its owner only: the aggregate then
// StatusPartial, later the inclusive prefix then StatusInclusive. The
// partial and inclusive values occupy separate slots and are written once
// each before the release store of the status, so an acquire load of the
// status always observes the matching value.
//
// A TileState lives for one dispatch and must be re-initialized with
// [TileState.Init] before reuse.
type TileState[T any] struct {
	slots []tileSlot[T]
}

// NewTileState creates the state for numTiles tiles, initialized.
func NewTileState[T any](numTiles int) *TileState[T] {
	if numTiles < 0 {
		panic("lookback: tile count must be >= 0")
	}
	s := &TileState[T]{slots: make([]tileSlot[T], numTiles+TilePadding)}
	s.Init()
	return s
}

// Tiles returns the number of tiles s tracks.
func (s *TileState[T]) Tiles() int {
	return len(s.slots) - TilePadding
}

// Init marks the padding slots out of bounds and every tile invalid.
// Must not run concurrently with a dispatch using s.
func (s *TileState[T]) Init() {
	var zero T
	for i := range s.slots {
		sl := &s.slots[i]
		sl.partial, sl.inclusive = zero, zero
		if i < TilePadding {
			sl.status.StoreRelaxed(uint32(StatusOutOfBounds))
		} else {
			sl.status.StoreRelaxed(uint32(StatusInvalid))
		}
	}
}

// SetPartial publishes the aggregate of tile alone.
func (s *TileState[T]) SetPartial(tile int, v T) {
	sl := &s.slots[tile+TilePadding]
	sl.partial = v
	sl.status.StoreRelease(uint32(StatusPartial))
}

// SetInclusive publishes the aggregate of tiles [0, tile].
func (s *TileState[T]) SetInclusive(tile int, v T) {
	sl := &s.slots[tile+TilePadding]
	sl.inclusive = v
	sl.status.StoreRelease(uint32(StatusInclusive))
}

// TryLoad returns the status of tile and the value published with it.
// tile may be as low as -TilePadding.
// Returns ErrWouldBlock while the tile is still invalid.
func (s *TileState[T]) TryLoad(tile int) (TileStatus, T, error) {
	var zero T
	sl := &s.slots[tile+TilePadding]
	st := TileStatus(sl.status.LoadAcquire())
	switch st {
	case StatusInvalid:
		return st, zero, ErrWouldBlock
	case StatusPartial:
		return st, sl.partial, nil
	case StatusInclusive:
		return st, sl.inclusive, nil
	}
	return st, zero, nil
}

// WaitForValid polls tile until it is no longer invalid.
// Returns ctx.Err() if ctx is done first.
func (s *TileState[T]) WaitForValid(ctx context.Context, tile int, delay Delay) (TileStatus, T, error) {
	p := newPoller(ctx, delay)
	for {
		st, v, err := s.TryLoad(tile)
		if err == nil {
			return st, v, nil
		}
		if err = p.wait(); err != nil {
			return st, v, err
		}
	}
}

// poller paces a busy poll on an unpublished word.
type poller struct {
	ctx     context.Context
	delay   Delay
	polls   int
	sw      spin.Wait
	backoff iox.Backoff
}

func newPoller(ctx context.Context, delay Delay) poller {
	return poller{ctx: ctx, delay: delay}
}

// wait pauses once. The context is checked every pollCheckInterval polls,
// or on every poll when backing off.
func (p *poller) wait() error {
	p.polls++
	check := p.polls%pollCheckInterval == 0
	if check || p.delay == DelayBackoff {
		if err := p.ctx.Err(); err != nil {
			return err
		}
	}
	switch p.delay {
	case DelayNone:
		if check {
			runtime.Gosched()
		}
	case DelaySpin:
		p.sw.Once()
	case DelayBackoff:
		p.backoff.Wait()
	}
	return nil
}

func (p *poller) reset() {
	p.polls = 0
	p.sw.Reset()
	p.backoff.Reset()
}
