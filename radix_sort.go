// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// portionLimit bounds the items of one portion so that every digit count
// and offset within it fits a look-back word.
var portionLimit = 1<<28 - 1

// Sorter is a one-sweep LSD radix sort of K keys, optionally carrying V
// values.
//
// Each pass ranks every tile locally, resolves the global offset of each
// digit by look-back over the tiles before it and scatters the tile to
// its final place for that pass. Sorting is stable. Inputs larger than a
// portion are sorted portion by portion, each portion continuing the digit
// offsets where the previous one ended.
//
// A Sorter is safe for concurrent use.
type Sorter[K Key, V any] struct {
	ascending  *sortKernel[K, V]
	descending *sortKernel[K, V]
	histogram  DigitHistogram[K]
	binScan    BinScan
	logger     *slog.Logger
}

type sortKernel[K Key, V any] struct {
	policy        Policy
	twiddle       Twiddle[K]
	blocks        *scratchPool[oneSweepBlock[K, V]]
	histogram     *histogramPass[K]
	_             pad
	shortCircuits atomix.Uint64
}

// BuildSorter specializes ascending and descending sort kernels for K keys
// and V values under the builder's policy. ItemsPerThread is scaled down
// for keys wider than 4 bytes.
// Panics if the policy is invalid.
func BuildSorter[K Key, V any](b *Builder) *Sorter[K, V] {
	p, l := b.resolve()
	var key K
	var value V
	p = p.scaled(int(unsafe.Sizeof(key)))
	// Staged ordered keys and values.
	p.validate(8 + int(unsafe.Sizeof(value)))

	build := func(descending bool) *sortKernel[K, V] {
		dir := "asc"
		if descending {
			dir = "desc"
		}
		sig := signature("onesweep", p, typeName[K](), typeName[V](), dir)
		return lookup(kernels, sig, func() *sortKernel[K, V] {
			k := &sortKernel[K, V]{
				policy:    p,
				twiddle:   NewTwiddle[K](descending),
				histogram: newHistogramPass[K](p),
			}
			k.blocks = newScratchPool(p.Occupancy, func() *oneSweepBlock[K, V] { return newOneSweepBlock[K, V](p) })
			return k
		})
	}
	s := &Sorter[K, V]{
		ascending:  build(false),
		descending: build(true),
		binScan:    newBinExclusiveSum(New().Occupancy(p.Occupancy).Delay(p.Delay).Logger(l)),
		logger:     l,
	}
	s.histogram = s.ascending.histogram
	return s
}

// BuildKeySorter specializes a keys-only Sorter.
func BuildKeySorter[K Key](b *Builder) *Sorter[K, struct{}] {
	return BuildSorter[K, struct{}](b)
}

// WithPrepasses returns a copy of s using h and bs for the digit
// histogram and digit offset pre-passes. Nil arguments keep the defaults.
func (s *Sorter[K, V]) WithPrepasses(h DigitHistogram[K], bs BinScan) *Sorter[K, V] {
	c := *s
	if h != nil {
		c.histogram = h
	}
	if bs != nil {
		c.binScan = bs
	}
	return &c
}

// Policy returns the policy the sorter was specialized with, after
// scaling for the key width.
func (s *Sorter[K, V]) Policy() Policy {
	return s.ascending.policy
}

// ShortCircuits returns the number of tiles that were bulk copied because
// all their keys shared one digit, across every sorter sharing this
// specialization.
func (s *Sorter[K, V]) ShortCircuits() uint64 {
	return s.ascending.shortCircuits.Load() + s.descending.shortCircuits.Load()
}

// SortKeys writes keysIn sorted ascending to keysOut.
// keysOut may alias keysIn exactly.
func (s *Sorter[K, V]) SortKeys(ctx context.Context, keysIn, keysOut []K) error {
	return s.sort(ctx, s.ascending, keysIn, keysOut, nil, nil)
}

// SortKeysDescending writes keysIn sorted descending to keysOut.
func (s *Sorter[K, V]) SortKeysDescending(ctx context.Context, keysIn, keysOut []K) error {
	return s.sort(ctx, s.descending, keysIn, keysOut, nil, nil)
}

// SortPairs sorts keysIn ascending into keysOut and moves valuesIn along
// with their keys into valuesOut.
func (s *Sorter[K, V]) SortPairs(ctx context.Context, keysIn, keysOut []K, valuesIn, valuesOut []V) error {
	if valuesIn == nil || valuesOut == nil {
		return ErrLengthMismatch
	}
	return s.sort(ctx, s.ascending, keysIn, keysOut, valuesIn, valuesOut)
}

// SortPairsDescending is SortPairs in descending key order.
func (s *Sorter[K, V]) SortPairsDescending(ctx context.Context, keysIn, keysOut []K, valuesIn, valuesOut []V) error {
	if valuesIn == nil || valuesOut == nil {
		return ErrLengthMismatch
	}
	return s.sort(ctx, s.descending, keysIn, keysOut, valuesIn, valuesOut)
}

func (s *Sorter[K, V]) sort(ctx context.Context, k *sortKernel[K, V], keysIn, keysOut []K, valuesIn, valuesOut []V) error {
	n := len(keysIn)
	pairs := valuesIn != nil
	if len(keysOut) != n || pairs && (len(valuesIn) != n || len(valuesOut) != n) {
		return ErrLengthMismatch
	}
	if uint64(n) > math.MaxUint32 {
		return ErrTooManyItems
	}
	p := k.policy
	passes, err := k.passes()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	digits := p.RadixDigits()
	tileItems := p.TileItems()
	portionItems := portionLimit / tileItems * tileItems
	numPortions := (n + portionItems - 1) / portionItems
	numPasses := len(passes)

	// bins[(portion*numPasses+pass)*digits+d]; the portion 0 rows come
	// from the pre-passes, later rows from the last tile of the portion
	// before.
	bins := make([]uint32, numPortions*numPasses*digits)
	first := bins[:numPasses*digits]
	if err := s.histogram.Histogram(ctx, keysIn, k.twiddle, passes, digits, first); err != nil {
		return fmt.Errorf("lookback: digit histogram: %w", err)
	}
	for pass := range numPasses {
		if err := s.binScan.ExclusiveSum(ctx, first[pass*digits:(pass+1)*digits]); err != nil {
			return fmt.Errorf("lookback: digit offsets: %w", err)
		}
	}

	// The last pass must write keysOut, so the first pass writes keysOut
	// when the pass count is odd.
	keyBufs := NewDoubleBuffer(keysOut, make([]K, n))
	var valueBufs DoubleBuffer[V]
	if pairs {
		valueBufs = NewDoubleBuffer(valuesOut, make([]V, n))
	}
	if (numPasses-1)%2 == 1 {
		keyBufs.Flip()
		valueBufs.Flip()
	}
	srcKeys, srcValues := keysIn, valuesIn
	if keyBufs.Selector == 0 && aliased(keysIn, keysOut) {
		srcKeys = keyBufs.Alternate()
		copy(srcKeys, keysIn)
	}
	if pairs && valueBufs.Selector == 0 && aliased(valuesIn, valuesOut) {
		srcValues = valueBufs.Alternate()
		copy(srcValues, valuesIn)
	}

	maxTiles := (min(n, portionItems) + tileItems - 1) / tileItems
	lb := newLookbackBuffer(maxTiles * digits)
	var counter tileCounter
	shortCircuits := k.shortCircuits.Load()

	for pass, extract := range passes {
		dstKeys, dstValues := keyBufs.Current(), valueBufs.Current()
		for portion := range numPortions {
			lo := portion * portionItems
			hi := min(n, lo+portionItems)
			tiles := (hi - lo + tileItems - 1) / tileItems
			row := (portion*numPasses + pass) * digits
			sp := &sweepPass[K, V]{
				keysIn:   srcKeys[lo:hi],
				keysOut:  dstKeys,
				binsIn:   bins[row : row+digits],
				extract:  extract,
				lookback: lb,
				counter:  &counter,
				numTiles: tiles,
			}
			if pairs {
				sp.valuesIn, sp.valuesOut = srcValues[lo:hi], dstValues
			}
			if portion+1 < numPortions {
				next := ((portion+1)*numPasses + pass) * digits
				sp.binsOut = bins[next : next+digits]
			}

			lb.clear(tiles * digits)
			counter.reset()
			s.logger.Debug("onesweep dispatch",
				"pass", pass, "portion", portion, "tiles", tiles,
				"shift", extract.Shift, "bits", extract.NumBits)
			err := launch(ctx, p.Occupancy, tiles, func(ctx context.Context) error {
				b := k.blocks.get()
				defer k.blocks.put(b)
				return k.sweep(ctx, b, sp)
			})
			if err != nil {
				return err
			}
		}
		srcKeys, srcValues = dstKeys, dstValues
		keyBufs.Flip()
		valueBufs.Flip()
	}

	s.logger.Debug("sort done",
		"items", n, "passes", numPasses, "portions", numPortions,
		"short_circuits", k.shortCircuits.Load()-shortCircuits)
	return nil
}

// passes returns one digit extractor per pass over the policy's bit
// range, the last one clamped to the remaining bits.
func (k *sortKernel[K, V]) passes() ([]DigitExtractor, error) {
	p := k.policy
	bits := k.twiddle.Bits()
	begin, end := p.BeginBit, p.EndBit
	if end == 0 {
		end = bits
	}
	if begin >= bits || end > bits {
		return nil, ErrBitRange
	}
	var passes []DigitExtractor
	for bit := begin; bit < end; bit += p.RadixBits {
		passes = append(passes, k.twiddle.Extractor(bit, min(p.RadixBits, end-bit)))
	}
	return passes, nil
}

func aliased[T any](a, b []T) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
