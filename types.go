// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import "golang.org/x/sys/cpu"

// Key is the set of fixed-width numeric key types the radix sort accepts.
type Key interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// Number is the set of types the Sum, Max and Min operators accept.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// Operator is an associative binary operator with a stable identity.
//
// Combine must be associative. It need not be commutative: every scan in
// this package combines operands in array order, left operand first.
//
// Name labels the operator in dispatch logs. It may be empty.
//
// Example:
//
//	concat := lookback.Operator[string]{
//	    Name:    "concat",
//	    Combine: func(a, b string) string { return a + b },
//	}
type Operator[T any] struct {
	Name    string
	Combine func(a, b T) T
}

// Sum returns the addition operator.
func Sum[T Number]() Operator[T] {
	return Operator[T]{Name: "sum", Combine: func(a, b T) T { return a + b }}
}

// Max returns the maximum operator.
func Max[T Number]() Operator[T] {
	return Operator[T]{Name: "max", Combine: func(a, b T) T { return max(a, b) }}
}

// Min returns the minimum operator.
func Min[T Number]() Operator[T] {
	return Operator[T]{Name: "min", Combine: func(a, b T) T { return min(a, b) }}
}

// CountsCallback receives a block's per-digit counts from
// [BlockRadixRank.RankKeys].
//
// OnCounts is invoked exactly once per ranking, after the warp histograms
// have been summed into bins and before the block-wide exclusive scan of
// those bins. bins[d] is the number of keys in the tile whose digit is d.
// The slice is only valid for the duration of the call.
//
// The one-sweep agent uses this hook to publish its partial counts for the
// global look-back while the rest of the ranking is still ahead.
type CountsCallback interface {
	OnCounts(bins []uint32)
}

// NoCounts is a CountsCallback that ignores the counts.
type NoCounts struct{}

// OnCounts implements CountsCallback.
func (NoCounts) OnCounts([]uint32) {}

// DoubleBuffer is a ping-pong pair of buffers.
//
// Selector chooses the current buffer; the other one is the alternate.
// Each radix pass reads Current and writes Alternate, then flips.
type DoubleBuffer[T any] struct {
	Buffers  [2][]T
	Selector int
}

// NewDoubleBuffer creates a DoubleBuffer with current as the selected buffer.
func NewDoubleBuffer[T any](current, alternate []T) DoubleBuffer[T] {
	return DoubleBuffer[T]{Buffers: [2][]T{current, alternate}}
}

// Current returns the selected buffer.
func (d *DoubleBuffer[T]) Current() []T {
	return d.Buffers[d.Selector]
}

// Alternate returns the buffer that is not selected.
func (d *DoubleBuffer[T]) Alternate() []T {
	return d.Buffers[d.Selector^1]
}

// Flip swaps the roles of the two buffers.
func (d *DoubleBuffer[T]) Flip() {
	d.Selector ^= 1
}

// pad is cache line padding to prevent false sharing between words that
// different blocks write.
type pad = cpu.CacheLinePad
