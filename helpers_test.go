// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback_test

import (
	"math/rand/v2"

	"code.hybscloud.com/lookback"
)

// newBuilder returns a default builder that runs one block at a time
// under the race detector.
func newBuilder() *lookback.Builder {
	b := lookback.New()
	if lookback.RaceEnabled {
		b.Occupancy(1)
	}
	return b
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// scaled returns n, or small when the run is short or race-instrumented.
func scaled(n, small int, short bool) int {
	if short || lookback.RaceEnabled {
		return small
	}
	return n
}
