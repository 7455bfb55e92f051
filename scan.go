// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"
	"log/slog"
	"unsafe"
)

// Scanner computes single-pass prefix scans under one operator.
//
// Each block loads a tile, reduces it, obtains the tile's exclusive prefix
// by decoupled look-back and rescans the tile seeded with that prefix.
// Input is read once and output written once.
//
// A Scanner is safe for concurrent use. Output may alias input exactly.
type Scanner[T any] struct {
	kernel *scanKernel[T]
	op     Operator[T]
	logger *slog.Logger
}

// scanKernel is shared by every Scanner of one policy and element type.
// It holds no operator: each dispatch binds its own to the blocks it uses.
type scanKernel[T any] struct {
	policy Policy
	blocks *scratchPool[scanBlock[T]]
}

type scanBlock[T any] struct {
	items  []T
	scan   *blockScan[T]
	prefix TilePrefixOp[T]
}

// BuildScan specializes a scan kernel for op under the builder's policy.
// Panics if the policy is invalid or op has no Combine function.
func BuildScan[T any](b *Builder, op Operator[T]) *Scanner[T] {
	if op.Combine == nil {
		panic("lookback: operator has no Combine function")
	}
	p, l := b.resolve()
	var zero T
	p.validate(int(unsafe.Sizeof(zero)))
	k := lookup(kernels, signature("scan", p, typeName[T]()), func() *scanKernel[T] {
		k := &scanKernel[T]{policy: p}
		k.blocks = newScratchPool(p.Occupancy, func() *scanBlock[T] {
			return &scanBlock[T]{
				items: make([]T, p.TileItems()),
				scan:  newBlockScan[T](p.BlockThreads, p.ItemsPerThread, nil),
			}
		})
		return k
	})
	return &Scanner[T]{kernel: k, op: op, logger: l}
}

// Policy returns the policy the scanner was specialized with.
func (s *Scanner[T]) Policy() Policy {
	return s.kernel.policy
}

// ExclusiveScan writes out[i] = init ⊕ in[0] ⊕ … ⊕ in[i-1].
func (s *Scanner[T]) ExclusiveScan(ctx context.Context, in, out []T, init T) error {
	return s.run(ctx, in, out, some(init), true)
}

// InclusiveScan writes out[i] = in[0] ⊕ … ⊕ in[i].
func (s *Scanner[T]) InclusiveScan(ctx context.Context, in, out []T) error {
	return s.run(ctx, in, out, opt[T]{}, false)
}

// InclusiveScanInit writes out[i] = init ⊕ in[0] ⊕ … ⊕ in[i].
func (s *Scanner[T]) InclusiveScanInit(ctx context.Context, in, out []T, init T) error {
	return s.run(ctx, in, out, some(init), false)
}

func (s *Scanner[T]) run(ctx context.Context, in, out []T, init opt[T], exclusive bool) error {
	if len(in) != len(out) {
		return ErrLengthMismatch
	}
	n := len(in)
	if n == 0 {
		return nil
	}
	k := s.kernel
	p := k.policy
	combine := s.op.Combine
	tileItems := p.TileItems()
	numTiles := (n + tileItems - 1) / tileItems
	state := NewTileState[T](numTiles)
	var counter tileCounter

	s.logger.Debug("scan dispatch", "op", s.op.Name, "items", n, "tiles", numTiles, "exclusive", exclusive)
	return launch(ctx, p.Occupancy, numTiles, func(ctx context.Context) error {
		tile := counter.claim()
		b := k.blocks.get()
		defer k.blocks.put(b)
		b.scan.op = combine

		base := tile * tileItems
		items := b.items[:min(tileItems, n-base)]
		copy(items, in[base:])

		agg := b.scan.upsweep(items)
		prefix := init
		if tile == 0 {
			state.SetInclusive(0, join(combine, init, some(agg)).v)
		} else {
			b.prefix.reset(state, combine, tile, p.Delay)
			excl, err := b.prefix.Prefix(ctx, agg)
			if err != nil {
				return err
			}
			prefix = some(excl)
		}
		b.scan.downsweep(items, prefix, exclusive)
		copy(out[base:], items)
		return nil
	})
}

// ExclusiveSum writes the exclusive prefix sums of in to out with the
// default policy.
func ExclusiveSum[T Number](ctx context.Context, in, out []T) error {
	return BuildScan(New(), Sum[T]()).ExclusiveScan(ctx, in, out, 0)
}

// InclusiveSum writes the inclusive prefix sums of in to out with the
// default policy.
func InclusiveSum[T Number](ctx context.Context, in, out []T) error {
	return BuildScan(New(), Sum[T]()).InclusiveScan(ctx, in, out)
}
