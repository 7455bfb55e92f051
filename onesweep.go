// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import "context"

// sweepPass is one radix pass over one portion of the input.
type sweepPass[K Key, V any] struct {
	keysIn    []K // the portion
	keysOut   []K // the whole destination
	valuesIn  []V // nil when sorting keys only
	valuesOut []V

	binsIn  []uint32 // global start of each digit for this portion
	binsOut []uint32 // start of each digit for the next portion, or nil

	extract  DigitExtractor
	lookback *lookbackBuffer
	counter  *tileCounter
	numTiles int
}

// oneSweepBlock is the scratch of one block running a pass: the tile's
// ordered keys, their ranks and the shared-memory staging areas.
type oneSweepBlock[K Key, V any] struct {
	keys         []uint64
	ranks        []uint32
	shared       []uint64
	sharedValues []V
	offsets      []int
	rank         *BlockRadixRank
	counts       countsPublisher
}

// countsPublisher publishes a tile's digit counts for the global
// look-back as soon as ranking has them, and detects digit-homogeneous
// tiles.
type countsPublisher struct {
	lookback     *lookbackBuffer
	tile         int
	tileItems    int
	shortCircuit bool

	homogeneous bool
	digit       int
}

// OnCounts implements CountsCallback.
func (c *countsPublisher) OnCounts(bins []uint32) {
	c.homogeneous = false
	digits := len(bins)
	for d, n := range bins {
		if c.tile == 0 {
			c.lookback.publish(d, PackGlobal(n))
		} else {
			c.lookback.publish(c.tile*digits+d, PackPartial(n))
		}
		if c.shortCircuit && int(n) == c.tileItems {
			c.homogeneous, c.digit = true, d
		}
	}
}

func newOneSweepBlock[K Key, V any](p Policy) *oneSweepBlock[K, V] {
	tileItems := p.TileItems()
	return &oneSweepBlock[K, V]{
		keys:         make([]uint64, tileItems),
		ranks:        make([]uint32, tileItems),
		shared:       make([]uint64, tileItems),
		sharedValues: make([]V, tileItems),
		offsets:      make([]int, p.RadixDigits()),
		rank:         NewBlockRadixRank(p),
	}
}

// sweep runs the pass for the tile the block claims.
func (k *sortKernel[K, V]) sweep(ctx context.Context, b *oneSweepBlock[K, V], sp *sweepPass[K, V]) error {
	p, tw := k.policy, k.twiddle
	tileItems := p.TileItems()
	digits := p.RadixDigits()

	tile := sp.counter.claim()
	base := tile * tileItems
	valid := min(tileItems, len(sp.keysIn)-base)

	for i, key := range sp.keysIn[base : base+valid] {
		b.keys[i] = tw.In(key)
	}
	for i := valid; i < tileItems; i++ {
		b.keys[i] = tw.DefaultKey()
	}

	b.counts = countsPublisher{
		lookback:     sp.lookback,
		tile:         tile,
		tileItems:    tileItems,
		shortCircuit: p.ShortCircuit,
	}
	res := b.rank.RankKeys(b.keys, b.ranks, sp.extract, &b.counts)

	for d := range digits {
		inclusive := res.Bins[d]
		if tile > 0 {
			var err error
			inclusive, err = sp.lookback.inclusive(ctx, tile, digits, d, res.Bins[d], p.Delay)
			if err != nil {
				return err
			}
		}
		// Keys with digit d in earlier tiles, shifted so that adding the
		// key's position in the ranked tile gives its global position.
		b.offsets[d] = int(sp.binsIn[d]) + int(inclusive-res.Bins[d]) - int(res.ExclusiveDigitPrefix[d])
	}

	if b.counts.homogeneous {
		k.shortCircuits.Add(1)
		off := b.offsets[b.counts.digit]
		copy(sp.keysOut[off:off+valid], sp.keysIn[base:base+valid])
		if sp.valuesIn != nil {
			copy(sp.valuesOut[off:off+valid], sp.valuesIn[base:base+valid])
		}
	} else {
		k.scatter(b, sp, base, valid)
	}

	if tile == sp.numTiles-1 && sp.binsOut != nil {
		for d := range digits {
			sp.binsOut[d] = uint32(b.offsets[d] + int(res.ExclusiveDigitPrefix[d]) + int(res.Bins[d]))
		}
		// Pads are counted under the largest digit but never stored.
		sp.binsOut[sp.extract.Digit(tw.DefaultKey())] -= uint32(tileItems - valid)
	}
	return nil
}

// scatter stages the tile in shared memory in rank order, then stores
// each valid key at its digit's offset plus its staged position. Pads
// rank after every valid key and are dropped.
func (k *sortKernel[K, V]) scatter(b *oneSweepBlock[K, V], sp *sweepPass[K, V], base, valid int) {
	tw := k.twiddle
	for i, r := range b.ranks {
		b.shared[r] = b.keys[i]
	}
	if sp.valuesIn != nil {
		for i, v := range sp.valuesIn[base : base+valid] {
			b.sharedValues[b.ranks[i]] = v
		}
	}
	for i, key := range b.shared[:valid] {
		pos := b.offsets[sp.extract.Digit(key)] + i
		sp.keysOut[pos] = tw.Out(key)
		if sp.valuesIn != nil {
			sp.valuesOut[pos] = b.sharedValues[i]
		}
	}
}
