// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"math/bits"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// scratchPool is a bounded lock-free free list of block scratch, so that
// at most one scratch per running block is ever allocated.
//
// It is a ring of sequence-numbered slots. A slot at position i accepts a
// put when its sequence equals i and yields a get when it equals i+1;
// head and tail are claimed by CAS.
type scratchPool[S any] struct {
	_     pad
	tail  atomix.Uint64 // put index
	_     pad
	head  atomix.Uint64 // get index
	_     pad
	slots []scratchSlot[S]
	mask  uint64
	alloc func() *S
}

type scratchSlot[S any] struct {
	seq     atomix.Uint64
	scratch *S
}

// newScratchPool creates a pool holding up to capacity scratches, rounded
// up to a power of 2. alloc creates a scratch when the pool is empty.
func newScratchPool[S any](capacity int, alloc func() *S) *scratchPool[S] {
	n := uint64(1) << bits.Len(uint(max(capacity, 2)-1))
	p := &scratchPool[S]{
		slots: make([]scratchSlot[S], n),
		mask:  n - 1,
		alloc: alloc,
	}
	for i := range n {
		p.slots[i].seq.StoreRelaxed(i)
	}
	return p
}

// get returns a pooled scratch, or a new one if the pool is empty.
func (p *scratchPool[S]) get() *S {
	if s, err := p.tryGet(); err == nil {
		return s
	}
	return p.alloc()
}

// put returns s to the pool. s is dropped if the pool is full.
func (p *scratchPool[S]) put(s *S) {
	_ = p.tryPut(s)
}

func (p *scratchPool[S]) tryPut(s *S) error {
	sw := spin.Wait{}
	for {
		tail := p.tail.LoadAcquire()
		slot := &p.slots[tail&p.mask]
		diff := int64(slot.seq.LoadAcquire()) - int64(tail)
		if diff == 0 {
			if p.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.scratch = s
				slot.seq.StoreRelease(tail + 1)
				return nil
			}
		} else if diff < 0 {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

func (p *scratchPool[S]) tryGet() (*S, error) {
	sw := spin.Wait{}
	for {
		head := p.head.LoadAcquire()
		slot := &p.slots[head&p.mask]
		diff := int64(slot.seq.LoadAcquire()) - int64(head+1)
		if diff == 0 {
			if p.head.CompareAndSwapAcqRel(head, head+1) {
				s := slot.scratch
				slot.scratch = nil
				slot.seq.StoreRelease(head + p.mask + 1)
				return s, nil
			}
		} else if diff < 0 {
			return nil, ErrWouldBlock
		}
		sw.Once()
	}
}
