// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"testing"

	"code.hybscloud.com/lookback"
)

func sameBits32(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func randomFloats(n int, seed uint64) []float32 {
	r := newRand(seed)
	keys := make([]float32, n)
	for i := range keys {
		switch r.IntN(50) {
		case 0:
			keys[i] = 0
		case 1:
			keys[i] = float32(math.Copysign(0, -1))
		default:
			keys[i] = float32(r.NormFloat64() * 1e4)
		}
	}
	return keys
}

// =============================================================================
// Full Sorts
// =============================================================================

func TestSortFloatsAscendingDescending(t *testing.T) {
	ctx := context.Background()
	n := scaled(1<<20, 1<<15, testing.Short())
	keys := randomFloats(n, 21)
	sorter := lookback.BuildKeySorter[float32](newBuilder())

	want := slices.Clone(keys)
	sort.SliceStable(want, func(i, j int) bool { return want[i] < want[j] })
	got := make([]float32, n)
	if err := sorter.SortKeys(ctx, keys, got); err != nil {
		t.Fatalf("SortKeys: %v", err)
	}
	if !sameBits32(got, want) {
		t.Fatal("ascending: differs from stable reference")
	}

	want = slices.Clone(keys)
	sort.SliceStable(want, func(i, j int) bool { return want[i] > want[j] })
	if err := sorter.SortKeysDescending(ctx, keys, got); err != nil {
		t.Fatalf("SortKeysDescending: %v", err)
	}
	if !sameBits32(got, want) {
		t.Fatal("descending: differs from stable reference")
	}
}

// TestSortPairsAssociation sorts (uint32, float32) pairs and checks that
// every value still sits next to its key.
func TestSortPairsAssociation(t *testing.T) {
	ctx := context.Background()
	r := newRand(22)
	n := scaled(100000, 10000, testing.Short())
	keys := make([]uint32, n)
	values := make([]float32, n)
	for i := range keys {
		keys[i] = r.Uint32() >> uint(r.IntN(32))
		values[i] = float32(keys[i]) * 0.5
	}
	sorter := lookback.BuildSorter[uint32, float32](newBuilder())
	sortedKeys := make([]uint32, n)
	sortedValues := make([]float32, n)
	for _, desc := range []bool{false, true} {
		var err error
		if desc {
			err = sorter.SortPairsDescending(ctx, keys, sortedKeys, values, sortedValues)
		} else {
			err = sorter.SortPairs(ctx, keys, sortedKeys, values, sortedValues)
		}
		if err != nil {
			t.Fatalf("desc=%v: %v", desc, err)
		}
		for i := range sortedKeys {
			if sortedValues[i] != float32(sortedKeys[i])*0.5 {
				t.Fatalf("desc=%v: pair %d: key %d, value %v", desc, i, sortedKeys[i], sortedValues[i])
			}
			if i > 0 && (!desc && sortedKeys[i-1] > sortedKeys[i] || desc && sortedKeys[i-1] < sortedKeys[i]) {
				t.Fatalf("desc=%v: keys out of order at %d", desc, i)
			}
		}
	}
}

// TestSortStability sorts (key, original index) pairs with many equal keys
// and compares the tie order with a stable reference, for every digit
// width that makes a different number of passes.
func TestSortStability(t *testing.T) {
	ctx := context.Background()
	r := newRand(23)
	n := scaled(60000, 6000, testing.Short())
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32(r.IntN(512)) - 256
	}
	index := make([]int, n)
	for i := range index {
		index[i] = i
	}

	for _, bits := range []int{8, 7, 5, 3} {
		for _, desc := range []bool{false, true} {
			want := slices.Clone(index)
			sort.SliceStable(want, func(i, j int) bool {
				if desc {
					return keys[want[i]] > keys[want[j]]
				}
				return keys[want[i]] < keys[want[j]]
			})

			sorter := lookback.BuildSorter[int32, int](newBuilder().RadixBits(bits).BlockThreads(128))
			gotKeys := make([]int32, n)
			gotIndex := make([]int, n)
			var err error
			if desc {
				err = sorter.SortPairsDescending(ctx, keys, gotKeys, index, gotIndex)
			} else {
				err = sorter.SortPairs(ctx, keys, gotKeys, index, gotIndex)
			}
			if err != nil {
				t.Fatalf("bits %d desc=%v: %v", bits, desc, err)
			}
			if !slices.Equal(gotIndex, want) {
				t.Fatalf("bits %d desc=%v: tie order differs from stable reference", bits, desc)
			}
			for i, idx := range gotIndex {
				if gotKeys[i] != keys[idx] {
					t.Fatalf("bits %d desc=%v: key %d detached from index %d", bits, desc, i, idx)
				}
			}
		}
	}
}

// TestSortNegativeZeroStable checks that -0 and +0 compare equal and keep
// their input order in both directions.
func TestSortNegativeZeroStable(t *testing.T) {
	ctx := context.Background()
	negZero := float32(math.Copysign(0, -1))
	keys := make([]float32, 3000)
	index := make([]uint16, len(keys))
	for i := range keys {
		switch i % 3 {
		case 0:
			keys[i] = negZero
		case 1:
			keys[i] = 0
		default:
			keys[i] = float32(i%7) - 3
		}
		index[i] = uint16(i)
	}
	sorter := lookback.BuildSorter[float32, uint16](newBuilder().BlockThreads(64))
	for _, desc := range []bool{false, true} {
		want := slices.Clone(index)
		sort.SliceStable(want, func(i, j int) bool {
			if desc {
				return keys[want[i]] > keys[want[j]]
			}
			return keys[want[i]] < keys[want[j]]
		})
		gotKeys := make([]float32, len(keys))
		got := make([]uint16, len(keys))
		var err error
		if desc {
			err = sorter.SortPairsDescending(ctx, keys, gotKeys, index, got)
		} else {
			err = sorter.SortPairs(ctx, keys, gotKeys, index, got)
		}
		if err != nil {
			t.Fatalf("desc=%v: %v", desc, err)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("desc=%v: zero order differs from stable reference", desc)
		}
		for i, idx := range got {
			if math.Float32bits(gotKeys[i]) != math.Float32bits(keys[idx]) {
				t.Fatalf("desc=%v: key %d lost its sign", desc, i)
			}
		}
	}
}

func testSortKeys[K lookback.Key](t *testing.T, name string, keys []K) {
	t.Helper()
	ctx := context.Background()
	sorter := lookback.BuildKeySorter[K](newBuilder())
	for _, desc := range []bool{false, true} {
		want := slices.Clone(keys)
		sort.SliceStable(want, func(i, j int) bool {
			if desc {
				return want[i] > want[j]
			}
			return want[i] < want[j]
		})
		got := make([]K, len(keys))
		var err error
		if desc {
			err = sorter.SortKeysDescending(ctx, keys, got)
		} else {
			err = sorter.SortKeys(ctx, keys, got)
		}
		if err != nil {
			t.Fatalf("%s desc=%v: %v", name, desc, err)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("%s desc=%v: differs from stable reference", name, desc)
		}
	}
}

func TestSortKeyTypes(t *testing.T) {
	r := newRand(24)
	n := scaled(20000, 3000, testing.Short())
	i8 := make([]int8, n)
	u16 := make([]uint16, n)
	i64 := make([]int64, n)
	u64 := make([]uint64, n)
	f64 := make([]float64, n)
	ints := make([]int, n)
	for i := range n {
		i8[i] = int8(r.Uint32())
		u16[i] = uint16(r.Uint32())
		i64[i] = int64(r.Uint64())
		u64[i] = r.Uint64() >> uint(r.IntN(64))
		f64[i] = r.NormFloat64() * math.Pow(10, float64(r.IntN(40)-20))
		ints[i] = r.IntN(1000) - 500
	}
	testSortKeys(t, "int8", i8)
	testSortKeys(t, "uint16", u16)
	testSortKeys(t, "int64", i64)
	testSortKeys(t, "uint64", u64)
	testSortKeys(t, "float64", f64)
	testSortKeys(t, "int", ints)
}

// =============================================================================
// Bit Ranges and Buffers
// =============================================================================

func TestSortBitRange(t *testing.T) {
	ctx := context.Background()
	r := newRand(25)
	keys := make([]uint32, 20000)
	for i := range keys {
		keys[i] = r.Uint32()
	}
	sorter := lookback.BuildKeySorter[uint32](newBuilder().BitRange(8, 20))
	got := make([]uint32, len(keys))
	if err := sorter.SortKeys(context.Background(), keys, got); err != nil {
		t.Fatalf("SortKeys: %v", err)
	}
	want := slices.Clone(keys)
	sort.SliceStable(want, func(i, j int) bool {
		return want[i]>>8&0xfff < want[j]>>8&0xfff
	})
	if !slices.Equal(got, want) {
		t.Fatal("bit range [8,20): differs from stable reference")
	}

	bad := lookback.BuildKeySorter[uint16](newBuilder().BitRange(8, 24))
	if err := bad.SortKeys(ctx, []uint16{1}, []uint16{0}); !errors.Is(err, lookback.ErrBitRange) {
		t.Fatalf("BitRange(8, 24) on uint16: got %v, want ErrBitRange", err)
	}
}

func TestSortInPlace(t *testing.T) {
	ctx := context.Background()
	for _, bits := range []int{8, 5} { // even and odd pass counts
		keys := randomFloats(5000, 26)
		want := slices.Clone(keys)
		sort.SliceStable(want, func(i, j int) bool { return want[i] < want[j] })
		values := make([]float32, len(keys))
		copy(values, keys)

		sorter := lookback.BuildSorter[float32, float32](newBuilder().RadixBits(bits))
		if err := sorter.SortPairs(ctx, keys, keys, values, values); err != nil {
			t.Fatalf("bits %d: SortPairs: %v", bits, err)
		}
		if !sameBits32(keys, want) || !sameBits32(values, want) {
			t.Fatalf("bits %d: in-place sort mismatch", bits)
		}
	}
}

func TestSortInputUntouched(t *testing.T) {
	keys := []uint8{5, 3, 9, 1, 3}
	orig := slices.Clone(keys)
	got := make([]uint8, len(keys))
	if err := lookback.BuildKeySorter[uint8](newBuilder()).SortKeys(context.Background(), keys, got); err != nil {
		t.Fatalf("SortKeys: %v", err)
	}
	if !slices.Equal(keys, orig) {
		t.Fatalf("input modified: %v", keys)
	}
	if !slices.Equal(got, []uint8{1, 3, 3, 5, 9}) {
		t.Fatalf("SortKeys: got %v", got)
	}
}

// =============================================================================
// Short-circuit
// =============================================================================

// TestShortCircuitIdempotent sorts input whose tiles are digit-homogeneous
// in every pass, with and without the bulk copy path.
func TestShortCircuitIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newBuilder().BlockThreads(64).ItemsPerThread(4)
	tile := 256
	n := 40*tile + 100
	keys := make([]uint32, n)
	values := make([]int32, n)
	r := newRand(27)
	for i := range keys {
		// Every tile holds one key value; the tiles arrive shuffled.
		keys[i] = uint32((i/tile*7919)%97) * 0x01010101
		values[i] = int32(r.Uint32())
	}
	// Mix in tiles that are homogeneous in some passes only.
	for i := 10 * tile; i < 12*tile; i++ {
		keys[i] = 0x00aa0000 | uint32(i%3)
	}

	fast := lookback.BuildSorter[uint32, int32](b)
	slow := lookback.BuildSorter[uint32, int32](newBuilder().BlockThreads(64).ItemsPerThread(4).NoShortCircuit())

	for _, desc := range []bool{false, true} {
		fk, fv := make([]uint32, n), make([]int32, n)
		sk, sv := make([]uint32, n), make([]int32, n)
		before := fast.ShortCircuits()
		slowBefore := slow.ShortCircuits()
		sortPairs := func(s *lookback.Sorter[uint32, int32], k []uint32, v []int32) error {
			if desc {
				return s.SortPairsDescending(ctx, keys, k, values, v)
			}
			return s.SortPairs(ctx, keys, k, values, v)
		}
		if err := sortPairs(fast, fk, fv); err != nil {
			t.Fatalf("desc=%v: short-circuit sort: %v", desc, err)
		}
		if err := sortPairs(slow, sk, sv); err != nil {
			t.Fatalf("desc=%v: plain sort: %v", desc, err)
		}
		if !slices.Equal(fk, sk) || !slices.Equal(fv, sv) {
			t.Fatalf("desc=%v: short-circuit changed the result", desc)
		}
		if fast.ShortCircuits() == before {
			t.Fatalf("desc=%v: no tile took the short-circuit", desc)
		}
		if slow.ShortCircuits() != slowBefore {
			t.Fatalf("desc=%v: short-circuit taken while disabled", desc)
		}
	}
}

// =============================================================================
// Errors
// =============================================================================

func TestSortErrors(t *testing.T) {
	ctx := context.Background()
	s := lookback.BuildSorter[uint32, uint32](newBuilder())

	if err := s.SortKeys(ctx, []uint32{1, 2}, []uint32{0}); !errors.Is(err, lookback.ErrLengthMismatch) {
		t.Fatalf("keys mismatch: got %v", err)
	}
	if err := s.SortPairs(ctx, []uint32{1}, []uint32{0}, []uint32{1, 2}, []uint32{0, 0}); !errors.Is(err, lookback.ErrLengthMismatch) {
		t.Fatalf("values mismatch: got %v", err)
	}
	if err := s.SortPairs(ctx, []uint32{1}, []uint32{0}, nil, nil); !errors.Is(err, lookback.ErrLengthMismatch) {
		t.Fatalf("nil values: got %v", err)
	}
	if err := s.SortKeys(ctx, nil, nil); err != nil {
		t.Fatalf("empty: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	keys := make([]uint32, 10000)
	if err := s.SortKeys(canceled, keys, make([]uint32, len(keys))); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled: got %v, want Canceled", err)
	}
}

// serialHistogram is a single-goroutine digit histogram.
type serialHistogram[K lookback.Key] struct{ calls int }

func (h *serialHistogram[K]) Histogram(_ context.Context, keys []K, tw lookback.Twiddle[K], passes []lookback.DigitExtractor, digits int, counts []uint32) error {
	h.calls++
	for _, k := range keys {
		b := tw.In(k)
		for pass, e := range passes {
			counts[pass*digits+int(e.Digit(b))]++
		}
	}
	return nil
}

type serialBinScan struct{ calls int }

func (s *serialBinScan) ExclusiveSum(_ context.Context, bins []uint32) error {
	s.calls++
	var sum uint32
	for i, n := range bins {
		bins[i], sum = sum, sum+n
	}
	return nil
}

func TestSortWithPrepasses(t *testing.T) {
	keys := randomFloats(7000, 28)
	want := slices.Clone(keys)
	sort.SliceStable(want, func(i, j int) bool { return want[i] > want[j] })

	h := &serialHistogram[float32]{}
	bs := &serialBinScan{}
	sorter := lookback.BuildKeySorter[float32](newBuilder()).WithPrepasses(h, bs)
	got := make([]float32, len(keys))
	if err := sorter.SortKeysDescending(context.Background(), keys, got); err != nil {
		t.Fatalf("SortKeysDescending: %v", err)
	}
	if !sameBits32(got, want) {
		t.Fatal("custom pre-passes: differs from stable reference")
	}
	if h.calls != 1 || bs.calls != 4 {
		t.Fatalf("pre-pass calls: histogram %d, bin scan %d, want 1 and 4", h.calls, bs.calls)
	}
}

func TestSorterScalesItemsPerThread(t *testing.T) {
	b := lookback.New().ItemsPerThread(8)
	if got := lookback.BuildKeySorter[uint32](b).Policy().ItemsPerThread; got != 8 {
		t.Fatalf("uint32: got %d items per thread, want 8", got)
	}
	if got := lookback.BuildKeySorter[uint64](b).Policy().ItemsPerThread; got != 4 {
		t.Fatalf("uint64: got %d items per thread, want 4", got)
	}
	if got := lookback.BuildKeySorter[uint8](b).Policy().ItemsPerThread; got != 8 {
		t.Fatalf("uint8: got %d items per thread, want 8", got)
	}
}
