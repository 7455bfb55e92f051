// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lookback provides single-pass parallel primitives built on
// decoupled look-back.
//
// A large array is cut into tiles. Each tile is processed by one block,
// a goroutine that emulates a GPU thread block: its threads are grouped
// into 32-lane warps advanced in lockstep, and its barriers are phase
// boundaries of the goroutine. Blocks cooperate through tile status words
// published with release stores and polled with acquire loads, so one
// dispatch computes a global prefix without a separate reduction pass and
// without assuming blocks run in index order.
//
// The package offers:
//
//   - Scanner: exclusive and inclusive scans under any associative operator
//   - ScanByKey: segmented scans over runs of equal keys
//   - Sorter: one-sweep LSD radix sort of numeric keys, with values
//   - BlockRadixRank: stable per-tile ranking of keys by digit
//   - TileState and TilePrefixOp: the look-back protocol itself
//
// # Quick Start
//
//	ctx := context.Background()
//
//	// Prefix sum
//	out := make([]int, len(in))
//	err := lookback.ExclusiveSum(ctx, in, out)
//
//	// Any associative operator, commutative or not
//	s := lookback.BuildScan(lookback.New(), lookback.Max[float64]())
//	err = s.InclusiveScan(ctx, samples, runningMax)
//
//	// Radix sort
//	sorter := lookback.BuildSorter[float32, uint32](lookback.New())
//	err = sorter.SortPairs(ctx, keys, sortedKeys, ids, sortedIDs)
//
// # Configuration
//
// A [Builder] collects a [Policy] that is fixed when a kernel is built:
//
//	b := lookback.New().
//	    BlockThreads(128).   // threads per block
//	    ItemsPerThread(8).   // tile of 1024 items
//	    RadixBits(6).        // 6-bit digits, 64 bins
//	    Occupancy(16).       // at most 16 blocks at once
//	    Delay(lookback.DelayBackoff)
//
// Invalid policies panic at build time. Identical specializations share
// one kernel and its scratch through a package-level cache.
//
// # Decoupled Look-back
//
// Every block claims its logical tile index from an atomic counter when it
// starts. A tile publishes its own aggregate (PARTIAL), looks back over a
// window of 32 predecessors until it meets one that has published the
// aggregate of everything before it (INCLUSIVE), and publishes its own
// inclusive value. Tile 0 publishes INCLUSIVE at once. Slots before tile 0
// are out of bounds and stop any look-back.
//
// A block only ever waits for tiles claimed before its own, and those
// belong to blocks already running, so every dispatch makes progress for
// any occupancy.
//
// The radix sort uses the same protocol per digit bin with packed
// [LookbackWord] values, publishing its counts from the middle of local
// ranking through a [CountsCallback].
//
// # Key Ordering
//
// Keys are sorted by their ordered bits ([Twiddle]): signed integers have
// the sign bit flipped, floats are mapped so that unsigned comparison of
// the bits matches numeric order, and descending sorts complement the
// result. -0 and +0 share every digit, so they keep their input order.
// NaNs sort by their bit patterns.
//
// # Error Handling
//
// Call-time argument errors are returned as [ErrLengthMismatch],
// [ErrBitRange] and [ErrTooManyItems]. A dispatch whose context ends
// returns ctx.Err(). [TileState.TryLoad] returns [ErrWouldBlock], sourced
// from [code.hybscloud.com/iox], while a tile has not published:
//
//	for {
//	    st, v, err := state.TryLoad(tile)
//	    if err == nil {
//	        use(st, v)
//	        break
//	    }
//	    if !lookback.IsWouldBlock(err) {
//	        return err
//	    }
//	    backoff.Wait()
//	}
//
// # Race Detection
//
// Tile values are plain memory ordered by acquire-release status words.
// The race detector cannot observe that ordering when blocks run
// concurrently, so tests run dispatches with Occupancy(1) under -race,
// and concurrent stress tests are excluded via //go:build !race.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering, [code.hybscloud.com/spin] and
// [code.hybscloud.com/iox] for polling delays and semantic errors,
// [golang.org/x/sync/errgroup] to launch blocks, and
// [github.com/cespare/xxhash/v2] to key the kernel cache.
package lookback
