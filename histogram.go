// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"

	"code.hybscloud.com/atomix"
)

// DigitHistogram counts how many keys fall in each digit, for every pass
// of a sort at once.
type DigitHistogram[K Key] interface {
	// Histogram adds to counts[pass*digits+d] the number of keys whose
	// ordered bits have digit d under passes[pass].
	Histogram(ctx context.Context, keys []K, tw Twiddle[K], passes []DigitExtractor, digits int, counts []uint32) error
}

// BinScan turns one pass's digit counts into digit start offsets.
type BinScan interface {
	// ExclusiveSum replaces bins with its exclusive prefix sums.
	ExclusiveSum(ctx context.Context, bins []uint32) error
}

// histogramPass is the default DigitHistogram. Each block counts its tile
// privately, then adds its non-zero counts to the shared totals.
type histogramPass[K Key] struct {
	policy Policy
	local  *scratchPool[[]uint32]
}

func newHistogramPass[K Key](p Policy) *histogramPass[K] {
	return &histogramPass[K]{
		policy: p,
		local:  newScratchPool(p.Occupancy, func() *[]uint32 { return new([]uint32) }),
	}
}

// Histogram implements DigitHistogram.
func (h *histogramPass[K]) Histogram(ctx context.Context, keys []K, tw Twiddle[K], passes []DigitExtractor, digits int, counts []uint32) error {
	n := len(keys)
	if n == 0 {
		return nil
	}
	tileItems := h.policy.TileItems()
	numTiles := (n + tileItems - 1) / tileItems
	size := len(passes) * digits
	totals := make([]atomix.Uint32, size)
	var counter tileCounter

	err := launch(ctx, h.policy.Occupancy, numTiles, func(ctx context.Context) error {
		tile := counter.claim()
		buf := h.local.get()
		defer h.local.put(buf)
		if len(*buf) != size {
			*buf = make([]uint32, size)
		}
		local := *buf
		clear(local)

		base := tile * tileItems
		for _, key := range keys[base:min(base+tileItems, n)] {
			b := tw.In(key)
			for pass, e := range passes {
				local[pass*digits+int(e.Digit(b))]++
			}
		}
		for i, c := range local {
			if c != 0 {
				totals[i].Add(c)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := range totals {
		counts[i] += totals[i].Load()
	}
	return nil
}

// binExclusiveSum is the default BinScan, a single-pass scan.
type binExclusiveSum struct {
	scan *Scanner[uint32]
}

func newBinExclusiveSum(b *Builder) *binExclusiveSum {
	return &binExclusiveSum{scan: BuildScan(b, Sum[uint32]())}
}

// ExclusiveSum implements BinScan.
func (s *binExclusiveSum) ExclusiveSum(ctx context.Context, bins []uint32) error {
	return s.scan.ExclusiveScan(ctx, bins, bins, 0)
}
