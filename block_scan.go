// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import "code.hybscloud.com/lookback/internal/simt"

// opt is a value that may be absent. Operators have no identity, so an
// empty prefix is represented explicitly.
type opt[T any] struct {
	v  T
	ok bool
}

func some[T any](v T) opt[T] {
	return opt[T]{v: v, ok: true}
}

// join combines a then b, skipping absent operands.
func join[T any](op func(a, b T) T, a, b opt[T]) opt[T] {
	if !a.ok {
		return b
	}
	if !b.ok {
		return a
	}
	return some(op(a.v, b.v))
}

// blockScan scans up to threads*ipt items held in blocked arrangement:
// thread t owns items [t*ipt, (t+1)*ipt).
//
// upsweep reduces each thread's items, scans the thread partials inside
// each warp and then the warp totals. downsweep seeds each thread with
// the tile prefix, the totals of earlier warps and the partials of earlier
// lanes, then scans its items.
type blockScan[T any] struct {
	threads  int
	ipt      int
	op       func(a, b T) T // rebound by the owning block before each dispatch
	active   int
	partials []T
	totals   []T
}

func newBlockScan[T any](threads, ipt int, op func(a, b T) T) *blockScan[T] {
	return &blockScan[T]{
		threads:  threads,
		ipt:      ipt,
		op:       op,
		partials: make([]T, threads),
		totals:   make([]T, simt.Warps(threads)),
	}
}

// upsweep returns the aggregate of items, which must not be empty.
func (s *blockScan[T]) upsweep(items []T) T {
	s.active = (len(items) + s.ipt - 1) / s.ipt
	for t := range s.active {
		lo, hi := t*s.ipt, min((t+1)*s.ipt, len(items))
		acc := items[lo]
		for _, x := range items[lo+1 : hi] {
			acc = s.op(acc, x)
		}
		s.partials[t] = acc
	}

	warps := simt.Warps(s.active)
	for w := range warps {
		lanes := s.partials[w*simt.WarpThreads:]
		width := simt.Width(w, s.active)
		simt.InclusiveScan(lanes, width, s.op)
		s.totals[w] = lanes[width-1]
	}
	simt.InclusiveScan(s.totals, warps, s.op)
	return s.totals[warps-1]
}

// downsweep replaces items with their scan seeded by prefix. An exclusive
// scan needs prefix for its first item.
func (s *blockScan[T]) downsweep(items []T, prefix opt[T], exclusive bool) {
	for t := range s.active {
		running := prefix
		if w := t / simt.WarpThreads; w > 0 {
			running = join(s.op, running, some(s.totals[w-1]))
		}
		if t%simt.WarpThreads > 0 {
			running = join(s.op, running, some(s.partials[t-1]))
		}
		lo, hi := t*s.ipt, min((t+1)*s.ipt, len(items))
		for i := lo; i < hi; i++ {
			next := join(s.op, running, some(items[i]))
			if exclusive {
				items[i] = running.v
			} else {
				items[i] = next.v
			}
			running = next
		}
	}
}

// exclusiveSum replaces items with their exclusive scan seeded by init
// and returns the aggregate.
func (s *blockScan[T]) exclusiveSum(items []T, init T) T {
	agg := s.upsweep(items)
	s.downsweep(items, some(init), true)
	return agg
}
