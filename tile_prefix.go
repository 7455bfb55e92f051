// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"

	"code.hybscloud.com/lookback/internal/simt"
)

// TilePrefixOp resolves the exclusive prefix of one tile by decoupled
// look-back over the tiles before it.
//
// A warp examines a window of 32 predecessors at once, lane l watching
// tile-1-l. The window is complete once no lane sees an invalid slot. The
// nearest lane holding an inclusive (or out-of-bounds) slot ends the
// look-back; the window is reduced from there up to tile-1 in array order.
// If no lane ended it, the window slides 32 tiles to the left and its
// aggregate is prepended to the prefix gathered so far.
//
// The operator must be associative. It need not be commutative or have an
// identity: out-of-bounds slots contribute nothing.
//
// Tile 0 has no predecessors and must publish its inclusive value with
// [TileState.SetInclusive] directly.
type TilePrefixOp[T any] struct {
	state *TileState[T]
	op    func(a, b T) T
	tile  int
	delay Delay

	aggregate T
	exclusive T
	inclusive T

	statuses [simt.WarpThreads]TileStatus
	values   [simt.WarpThreads]T
}

// NewTilePrefixOp creates the look-back for tile.
func NewTilePrefixOp[T any](state *TileState[T], op Operator[T], tile int, delay Delay) *TilePrefixOp[T] {
	p := &TilePrefixOp[T]{}
	p.reset(state, op.Combine, tile, delay)
	return p
}

func (p *TilePrefixOp[T]) reset(state *TileState[T], op func(a, b T) T, tile int, delay Delay) {
	if tile < 1 {
		panic("lookback: tile 0 has no look-back")
	}
	p.state, p.op, p.tile, p.delay = state, op, tile, delay
}

// Prefix publishes aggregate as the tile's partial value, resolves the
// exclusive prefix from the predecessors, publishes the inclusive value
// and returns the exclusive prefix.
// Returns ctx.Err() if ctx is done while a predecessor is unpublished.
func (p *TilePrefixOp[T]) Prefix(ctx context.Context, aggregate T) (T, error) {
	p.aggregate = aggregate
	p.state.SetPartial(p.tile, aggregate)

	var exclusive opt[T]
	poll := newPoller(ctx, p.delay)
	for base := p.tile - 1; ; base -= simt.WarpThreads {
		if err := p.window(base, &poll); err != nil {
			var zero T
			return zero, err
		}
		stop := simt.Ballot(simt.WarpThreads, func(lane int) bool {
			return p.statuses[lane] != StatusPartial
		})
		first := simt.WarpThreads
		if stop != 0 {
			first = stop.First()
		}
		var agg opt[T]
		for lane := min(first, simt.WarpThreads-1); lane >= 0; lane-- {
			if p.statuses[lane] != StatusOutOfBounds {
				agg = join(p.op, agg, some(p.values[lane]))
			}
		}
		exclusive = join(p.op, agg, exclusive)
		if stop != 0 {
			break
		}
	}

	p.exclusive = exclusive.v
	p.inclusive = p.op(p.exclusive, aggregate)
	p.state.SetInclusive(p.tile, p.inclusive)
	return p.exclusive, nil
}

// window loads tiles [base-31, base] into the lanes, waiting until none is
// invalid.
func (p *TilePrefixOp[T]) window(base int, poll *poller) error {
	poll.reset()
	pending := simt.FullMask
	for {
		for lane := range simt.WarpThreads {
			if !pending.Has(lane) {
				continue
			}
			st, v, err := p.state.TryLoad(base - lane)
			if err != nil {
				continue
			}
			p.statuses[lane], p.values[lane] = st, v
			pending &^= 1 << uint(lane)
		}
		if pending == 0 {
			return nil
		}
		if err := poll.wait(); err != nil {
			return err
		}
	}
}

// ExclusivePrefix returns the prefix resolved by the last Prefix call.
func (p *TilePrefixOp[T]) ExclusivePrefix() T {
	return p.exclusive
}

// InclusivePrefix returns the value the last Prefix call published.
func (p *TilePrefixOp[T]) InclusivePrefix() T {
	return p.inclusive
}

// BlockAggregate returns the aggregate passed to the last Prefix call.
func (p *TilePrefixOp[T]) BlockAggregate() T {
	return p.aggregate
}
