// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"
	"log/slog"
	"unsafe"
)

// runPair is a value tagged with whether a run of equal keys starts at or
// after it.
type runPair[V any] struct {
	head bool
	v    V
}

// segmented lifts op to run pairs: a right operand that starts a run
// discards everything to its left.
func segmented[V any](op func(a, b V) V) func(a, b runPair[V]) runPair[V] {
	return func(a, b runPair[V]) runPair[V] {
		if b.head {
			return b
		}
		return runPair[V]{head: a.head, v: op(a.v, b.v)}
	}
}

// ScanByKey computes segmented scans in which every run of consecutive
// equal keys is scanned independently.
//
// All runs of a dispatch share one look-back: the tiles scan run pairs
// under the segmented operator, so a run crossing tile boundaries picks up
// exactly its own earlier values.
//
// A ScanByKey is safe for concurrent use.
type ScanByKey[K comparable, V any] struct {
	kernel *scanByKeyKernel[K, V]
	op     Operator[V]
	pairOp func(a, b runPair[V]) runPair[V]
	logger *slog.Logger
}

// scanByKeyKernel is shared by every ScanByKey of one policy and pair of
// types. Each dispatch binds its own operator to the blocks it uses.
type scanByKeyKernel[K comparable, V any] struct {
	policy Policy
	blocks *scratchPool[scanByKeyBlock[V]]
}

type scanByKeyBlock[V any] struct {
	pairs  []runPair[V]
	heads  []bool
	scan   *blockScan[runPair[V]]
	prefix TilePrefixOp[runPair[V]]
}

// BuildScanByKey specializes a scan-by-key kernel for op under the
// builder's policy.
// Panics if the policy is invalid or op has no Combine function.
func BuildScanByKey[K comparable, V any](b *Builder, op Operator[V]) *ScanByKey[K, V] {
	if op.Combine == nil {
		panic("lookback: operator has no Combine function")
	}
	p, l := b.resolve()
	var key K
	var pair runPair[V]
	p.validate(int(unsafe.Sizeof(key) + unsafe.Sizeof(pair)))
	sig := signature("scan-by-key", p, typeName[K](), typeName[V]())
	k := lookup(kernels, sig, func() *scanByKeyKernel[K, V] {
		k := &scanByKeyKernel[K, V]{policy: p}
		k.blocks = newScratchPool(p.Occupancy, func() *scanByKeyBlock[V] {
			return &scanByKeyBlock[V]{
				pairs: make([]runPair[V], p.TileItems()),
				heads: make([]bool, p.TileItems()),
				scan:  newBlockScan[runPair[V]](p.BlockThreads, p.ItemsPerThread, nil),
			}
		})
		return k
	})
	return &ScanByKey[K, V]{kernel: k, op: op, pairOp: segmented(op.Combine), logger: l}
}

// ExclusiveScanByKey writes, for each i, init combined with the values of
// the run holding i that come before i. Run heads get init.
func (s *ScanByKey[K, V]) ExclusiveScanByKey(ctx context.Context, keys []K, in, out []V, init V) error {
	return s.run(ctx, keys, in, out, init, true)
}

// InclusiveScanByKey writes, for each i, the combined values of the run
// holding i up to and including i.
func (s *ScanByKey[K, V]) InclusiveScanByKey(ctx context.Context, keys []K, in, out []V) error {
	var zero V
	return s.run(ctx, keys, in, out, zero, false)
}

func (s *ScanByKey[K, V]) run(ctx context.Context, keys []K, in, out []V, init V, exclusive bool) error {
	if len(keys) != len(in) || len(in) != len(out) {
		return ErrLengthMismatch
	}
	n := len(in)
	if n == 0 {
		return nil
	}
	k := s.kernel
	p := k.policy
	combine, pairOp := s.op.Combine, s.pairOp
	tileItems := p.TileItems()
	numTiles := (n + tileItems - 1) / tileItems
	state := NewTileState[runPair[V]](numTiles)
	var counter tileCounter

	s.logger.Debug("scan-by-key dispatch", "op", s.op.Name, "items", n, "tiles", numTiles, "exclusive", exclusive)
	return launch(ctx, p.Occupancy, numTiles, func(ctx context.Context) error {
		tile := counter.claim()
		b := k.blocks.get()
		defer k.blocks.put(b)
		b.scan.op = pairOp

		base := tile * tileItems
		valid := min(tileItems, n-base)
		pairs, heads := b.pairs[:valid], b.heads[:valid]
		for i := range pairs {
			g := base + i
			// The first item of a tile compares with the last key of the
			// previous tile.
			heads[i] = g == 0 || keys[g] != keys[g-1]
			pairs[i] = runPair[V]{head: heads[i], v: in[g]}
		}

		agg := b.scan.upsweep(pairs)
		var prefix opt[runPair[V]]
		if tile == 0 {
			state.SetInclusive(0, agg)
		} else {
			b.prefix.reset(state, pairOp, tile, p.Delay)
			excl, err := b.prefix.Prefix(ctx, agg)
			if err != nil {
				return err
			}
			prefix = some(excl)
		}
		b.scan.downsweep(pairs, prefix, false)

		dst := out[base : base+valid]
		if !exclusive {
			for i := range dst {
				dst[i] = pairs[i].v
			}
			return nil
		}
		for i := range dst {
			switch {
			case heads[i]:
				dst[i] = init
			case i == 0:
				dst[i] = combine(init, prefix.v.v)
			default:
				dst[i] = combine(init, pairs[i-1].v)
			}
		}
		return nil
	})
}
