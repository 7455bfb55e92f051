// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"fmt"
	"log/slog"
	"runtime"

	"code.hybscloud.com/lookback/internal/simt"
)

// MatchAlgorithm selects how [BlockRadixRank] finds same-digit lanes.
type MatchAlgorithm uint8

const (
	// MatchAny computes same-digit lane masks with a warp match, no
	// shared-memory atomics. Preferred for throughput.
	MatchAny MatchAlgorithm = iota

	// MatchAtomicOr builds same-digit lane masks by OR-ing each lane's
	// bit into a per-warp, per-digit mask word.
	MatchAtomicOr
)

// Delay selects how a block waits between polls of an unpublished word.
type Delay uint8

const (
	// DelaySpin issues a CPU pause between polls.
	DelaySpin Delay = iota

	// DelayNone polls back to back.
	DelayNone

	// DelayBackoff uses adaptive backoff, suited to occupancies well above
	// the number of cores.
	DelayBackoff
)

const (
	// WarpThreads is the number of lanes in a warp.
	WarpThreads = simt.WarpThreads

	// maxBlockThreads bounds the threads of one block.
	maxBlockThreads = 1024

	// maxSharedMemory is the shared memory budget of one block in bytes.
	maxSharedMemory = 48 * 1024

	// maxRadixBits bounds the digit width; ranks use one bin per digit.
	maxRadixBits = 8
)

// Policy is a resolved kernel configuration.
//
// A Policy is fixed when a kernel is specialized by one of the Build
// functions; tile and shared memory sizing never change afterwards.
type Policy struct {
	BlockThreads   int            // threads per block
	ItemsPerThread int            // items per thread, nominal for 4-byte elements
	RadixBits      int            // digit width of one sort pass
	NumParts       int            // sub-counters per digit in warp histograms
	Match          MatchAlgorithm // same-digit lane matching
	Occupancy      int            // block goroutines running at once
	Delay          Delay          // look-back poll delay
	ShortCircuit   bool           // bulk copy digit-homogeneous tiles
	BeginBit       int            // first key bit to sort on
	EndBit         int            // one past the last key bit; 0 means key width
}

// TileItems returns the number of items one block processes.
func (p Policy) TileItems() int {
	return p.BlockThreads * p.ItemsPerThread
}

// RadixDigits returns the number of digit bins of one pass.
func (p Policy) RadixDigits() int {
	return 1 << p.RadixBits
}

// BinsPerThread returns how many digit bins each thread owns.
func (p Policy) BinsPerThread() int {
	return (p.RadixDigits() + p.BlockThreads - 1) / p.BlockThreads
}

// FullBins reports whether the owned bins tile the digits exactly.
func (p Policy) FullBins() bool {
	return p.BinsPerThread()*p.BlockThreads == p.RadixDigits()
}

// Warps returns the number of warps in a block.
func (p Policy) Warps() int {
	return simt.Warps(p.BlockThreads)
}

// scaled returns p with ItemsPerThread scaled for elements of elemSize
// bytes, keeping the register footprint of a 4-byte configuration.
func (p Policy) scaled(elemSize int) Policy {
	p.ItemsPerThread = max(1, p.ItemsPerThread*4/max(4, elemSize))
	return p
}

// validate panics if p cannot be specialized for tiles whose items take
// itemBytes bytes of shared memory each.
func (p Policy) validate(itemBytes int) {
	switch {
	case p.BlockThreads < 1 || p.BlockThreads > maxBlockThreads:
		panic(fmt.Sprintf("lookback: block threads must be in [1, %d], got %d", maxBlockThreads, p.BlockThreads))
	case p.ItemsPerThread < 1:
		panic(fmt.Sprintf("lookback: items per thread must be >= 1, got %d", p.ItemsPerThread))
	case p.RadixBits < 1 || p.RadixBits > maxRadixBits:
		panic(fmt.Sprintf("lookback: radix bits must be in [1, %d], got %d", maxRadixBits, p.RadixBits))
	case p.NumParts < 1 || p.NumParts > WarpThreads:
		panic(fmt.Sprintf("lookback: parts must be in [1, %d], got %d", WarpThreads, p.NumParts))
	case p.Occupancy < 0:
		panic("lookback: occupancy must be >= 0")
	case p.BeginBit < 0 || p.EndBit < 0 || (p.EndBit != 0 && p.EndBit <= p.BeginBit):
		panic(fmt.Sprintf("lookback: invalid bit range [%d, %d)", p.BeginBit, p.EndBit))
	case p.TileItems()*itemBytes > maxSharedMemory:
		panic(fmt.Sprintf("lookback: tile of %d items exceeds %d bytes of shared memory", p.TileItems(), maxSharedMemory))
	}
}

// Builder creates kernels with fluent configuration.
//
// Example:
//
//	// Single-pass prefix sum
//	s := lookback.BuildScan(lookback.New(), lookback.Sum[int]())
//
//	// Radix sort with a smaller tile and 6-bit digits
//	b := lookback.New().BlockThreads(128).ItemsPerThread(8).RadixBits(6)
//	sorter := lookback.BuildSorter[float32, uint32](b)
type Builder struct {
	policy Policy
	logger *slog.Logger
}

// New creates a builder with the default policy: 256 threads per block,
// 4 items per thread, 8-bit digits, warp-match ranking, spin delay,
// short-circuit enabled and one block per available CPU.
func New() *Builder {
	return &Builder{policy: Policy{
		BlockThreads:   256,
		ItemsPerThread: 4,
		RadixBits:      8,
		NumParts:       1,
		Match:          MatchAny,
		Delay:          DelaySpin,
		ShortCircuit:   true,
	}}
}

// BlockThreads sets the number of threads per block.
func (b *Builder) BlockThreads(n int) *Builder {
	b.policy.BlockThreads = n
	return b
}

// ItemsPerThread sets the nominal items per thread for 4-byte elements.
// Sorters scale it down for wider keys.
func (b *Builder) ItemsPerThread(n int) *Builder {
	b.policy.ItemsPerThread = n
	return b
}

// RadixBits sets the digit width of each sort pass.
func (b *Builder) RadixBits(n int) *Builder {
	b.policy.RadixBits = n
	return b
}

// NumParts splits every warp histogram counter into n sub-counters.
func (b *Builder) NumParts(n int) *Builder {
	b.policy.NumParts = n
	return b
}

// Match selects the same-digit lane matching algorithm.
func (b *Builder) Match(m MatchAlgorithm) *Builder {
	b.policy.Match = m
	return b
}

// Occupancy bounds the number of block goroutines running at once.
// Zero selects runtime.GOMAXPROCS(0).
func (b *Builder) Occupancy(n int) *Builder {
	b.policy.Occupancy = n
	return b
}

// Delay selects the look-back poll delay.
func (b *Builder) Delay(d Delay) *Builder {
	b.policy.Delay = d
	return b
}

// NoShortCircuit disables the bulk copy of digit-homogeneous tiles.
func (b *Builder) NoShortCircuit() *Builder {
	b.policy.ShortCircuit = false
	return b
}

// BitRange restricts sorting to key bits [begin, end).
func (b *Builder) BitRange(begin, end int) *Builder {
	b.policy.BeginBit = begin
	b.policy.EndBit = end
	return b
}

// Logger sets the logger for dispatch diagnostics. Nil discards.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Policy returns the policy the builder currently holds.
func (b *Builder) Policy() Policy {
	return b.policy
}

// resolve returns the policy with defaults filled in, and the logger.
func (b *Builder) resolve() (Policy, *slog.Logger) {
	p := b.policy
	if p.Occupancy == 0 {
		p.Occupancy = runtime.GOMAXPROCS(0)
	}
	l := b.logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return p, l
}
