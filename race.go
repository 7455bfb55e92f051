// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package lookback

// RaceEnabled is true when the race detector is active.
// Tests then run dispatches with one block at a time: tile payloads are
// ordered by atomix status words the detector cannot observe.
const RaceEnabled = true
