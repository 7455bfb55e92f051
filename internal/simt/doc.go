// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package simt provides warp-level collectives for blocks emulated on a
// single goroutine.
//
// Execution contract:
// A warp is WarpThreads lanes advanced in lockstep. Per-lane state is a
// slice indexed by lane; a collective reads every active lane's value at
// the same program point, which is exactly what a lockstep warp observes.
// Lanes at or above the warp width (partial last warp) are inactive and
// never appear in a returned mask.
package simt
