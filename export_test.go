// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

// SetPortionLimit shrinks the portion size and returns a restore func.
func SetPortionLimit(n int) (restore func()) {
	old := portionLimit
	portionLimit = n
	return func() { portionLimit = old }
}

// CachedKernels returns the number of kernels in the kernel cache.
func CachedKernels() int {
	return kernels.len()
}

// SameKernels reports whether two sorters share their kernels.
func SameKernels[K Key, V any](a, b *Sorter[K, V]) bool {
	return a.ascending == b.ascending && a.descending == b.descending
}

// ScratchPool exposes the block scratch free list.
type ScratchPool[S any] struct{ p *scratchPool[S] }

func NewScratchPool[S any](capacity int, alloc func() *S) ScratchPool[S] {
	return ScratchPool[S]{p: newScratchPool(capacity, alloc)}
}

func (s ScratchPool[S]) Get() *S { return s.p.get() }
func (s ScratchPool[S]) Put(v *S) { s.p.put(v) }
func (s ScratchPool[S]) TryGet() (*S, error) { return s.p.tryGet() }
func (s ScratchPool[S]) TryPut(v *S) error { return s.p.tryPut(v) }
