// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"
	"fmt"

	"code.hybscloud.com/atomix"
)

// LookbackWord is a published digit bin count of one tile.
//
// Layout:
//
//	bits 31..30  kind: 01 partial, 10 global
//	bits 29..0   count, always < 2^30
//
// The zero word means unpublished. Every published word carries a kind,
// so a published zero count is still a non-zero word.
type LookbackWord uint32

const (
	// KindPartial tags the count of the publishing tile alone.
	KindPartial LookbackWord = 1 << 30

	// KindGlobal tags the count of the publishing tile and all tiles
	// before it in the same portion.
	KindGlobal LookbackWord = 1 << 31

	kindMask LookbackWord = 3 << 30

	// MaxLookbackCount is the largest count a LookbackWord holds.
	MaxLookbackCount = 1<<30 - 1
)

// PackPartial returns the partial word for count.
func PackPartial(count uint32) LookbackWord {
	return pack(KindPartial, count)
}

// PackGlobal returns the global word for count.
func PackGlobal(count uint32) LookbackWord {
	return pack(KindGlobal, count)
}

func pack(kind LookbackWord, count uint32) LookbackWord {
	if count > MaxLookbackCount {
		panic(fmt.Sprintf("lookback: bin count %d overflows the look-back word", count))
	}
	return kind | LookbackWord(count)
}

// Kind returns KindPartial, KindGlobal, or zero if unpublished.
func (w LookbackWord) Kind() LookbackWord {
	return w & kindMask
}

// Count returns the count bits.
func (w LookbackWord) Count() uint32 {
	return uint32(w &^ kindMask)
}

// Published reports whether w has been written.
func (w LookbackWord) Published() bool {
	return w != 0
}

// IsGlobal reports whether w carries an inclusive count.
func (w LookbackWord) IsGlobal() bool {
	return w.Kind() == KindGlobal
}

// lookbackBuffer holds one word per (tile, digit) of a pass portion.
type lookbackBuffer struct {
	words []atomix.Uint32
}

func newLookbackBuffer(n int) *lookbackBuffer {
	return &lookbackBuffer{words: make([]atomix.Uint32, n)}
}

// clear zeroes the first n words. Must run before the blocks that use
// them are launched.
func (b *lookbackBuffer) clear(n int) {
	for i := range b.words[:n] {
		b.words[i].StoreRelaxed(0)
	}
}

func (b *lookbackBuffer) publish(i int, w LookbackWord) {
	b.words[i].StoreRelease(uint32(w))
}

func (b *lookbackBuffer) load(i int) LookbackWord {
	return LookbackWord(b.words[i].LoadAcquire())
}

// wait polls word i until it is published.
func (b *lookbackBuffer) wait(ctx context.Context, i int, delay Delay) (LookbackWord, error) {
	if w := b.load(i); w.Published() {
		return w, nil
	}
	p := newPoller(ctx, delay)
	for {
		if err := p.wait(); err != nil {
			return 0, err
		}
		if w := b.load(i); w.Published() {
			return w, nil
		}
	}
}

// inclusive resolves the count of digit among tiles [0, tile] of a buffer
// with the given digits per tile and publishes it as a global word.
// count is the tile's own count.
func (b *lookbackBuffer) inclusive(ctx context.Context, tile, digits, digit int, count uint32, delay Delay) (uint32, error) {
	sum := count
	for pred := tile - 1; pred >= 0; pred-- {
		w, err := b.wait(ctx, pred*digits+digit, delay)
		if err != nil {
			return 0, err
		}
		sum += w.Count()
		if w.IsGlobal() {
			break
		}
	}
	b.publish(tile*digits+digit, PackGlobal(sum))
	return sum, nil
}
