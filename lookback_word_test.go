// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback_test

import (
	"testing"

	"code.hybscloud.com/lookback"
)

func TestLookbackWordPacking(t *testing.T) {
	var zero lookback.LookbackWord
	if zero.Published() {
		t.Fatal("zero word: published")
	}

	for _, n := range []uint32{0, 1, 255, 1 << 20, lookback.MaxLookbackCount} {
		p := lookback.PackPartial(n)
		if !p.Published() || p.IsGlobal() || p.Kind() != lookback.KindPartial {
			t.Fatalf("PackPartial(%d): kind %#x", n, uint32(p.Kind()))
		}
		if p.Count() != n {
			t.Fatalf("PackPartial(%d).Count: got %d", n, p.Count())
		}

		g := lookback.PackGlobal(n)
		if !g.Published() || !g.IsGlobal() || g.Kind() != lookback.KindGlobal {
			t.Fatalf("PackGlobal(%d): kind %#x", n, uint32(g.Kind()))
		}
		if g.Count() != n {
			t.Fatalf("PackGlobal(%d).Count: got %d", n, g.Count())
		}
	}

	if got := uint32(lookback.PackPartial(5)); got != 1<<30|5 {
		t.Fatalf("PackPartial(5): got %#x, want %#x", got, uint32(1<<30|5))
	}
	if got := uint32(lookback.PackGlobal(5)); got != 1<<31|5 {
		t.Fatalf("PackGlobal(5): got %#x, want %#x", got, uint32(1<<31|5))
	}
}

func TestLookbackWordOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("PackGlobal(2^30): expected panic")
		}
	}()
	lookback.PackGlobal(lookback.MaxLookbackCount + 1)
}
