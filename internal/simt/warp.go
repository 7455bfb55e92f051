// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package simt

import "math/bits"

const (
	// WarpThreads is the number of lanes in a warp.
	WarpThreads = 32
)

// LaneMask is a set of lanes, bit i standing for lane i.
type LaneMask uint32

// FullMask has every lane of a full warp set.
const FullMask LaneMask = ^LaneMask(0)

// ActiveMask returns the mask of the first width lanes.
func ActiveMask(width int) LaneMask {
	if width >= WarpThreads {
		return FullMask
	}
	return LaneMask(1)<<uint(width) - 1
}

// LaneMaskLT returns the lanes strictly below lane.
func LaneMaskLT(lane int) LaneMask {
	return LaneMask(1)<<uint(lane) - 1
}

// Has reports whether lane is in m.
func (m LaneMask) Has(lane int) bool {
	return m&(1<<uint(lane)) != 0
}

// Popc returns the number of lanes in m.
func (m LaneMask) Popc() int {
	return bits.OnesCount32(uint32(m))
}

// Leader returns the highest lane in m, or -1 if m is empty.
func (m LaneMask) Leader() int {
	return bits.Len32(uint32(m)) - 1
}

// First returns the lowest lane in m, or WarpThreads if m is empty.
func (m LaneMask) First() int {
	return bits.TrailingZeros32(uint32(m))
}

// Warps returns the number of warps needed for threads lanes.
func Warps(threads int) int {
	return (threads + WarpThreads - 1) / WarpThreads
}

// Width returns the number of live lanes of warp in a block of threads.
func Width(warp, threads int) int {
	w := threads - warp*WarpThreads
	if w > WarpThreads {
		return WarpThreads
	}
	if w < 0 {
		return 0
	}
	return w
}

// Ballot evaluates pred on the first width lanes and returns the lanes
// where it holds.
func Ballot(width int, pred func(lane int) bool) LaneMask {
	var m LaneMask
	for lane := range width {
		if pred(lane) {
			m |= 1 << uint(lane)
		}
	}
	return m
}

// MatchAny computes, for each of the first width lanes, the mask of active
// lanes holding the same label. Only the low labelBits bits of a label are
// compared.
//
// A full warp uses the shuffle path: every lane reads every other lane's
// label. A partial warp uses one ballot per label bit, narrowing each
// lane's candidate mask to the lanes that agree with it on that bit.
func MatchAny(labels []uint32, labelBits, width int, out []LaneMask) {
	if width == WarpThreads {
		matchAnyShuffle(labels, labelBits, out[:WarpThreads])
		return
	}
	matchAnyBallot(labels, labelBits, width, out)
}

func matchAnyShuffle(labels []uint32, labelBits int, out []LaneMask) {
	keep := uint32(1)<<uint(labelBits) - 1
	for lane := range WarpThreads {
		mine := labels[lane] & keep
		var m LaneMask
		for src := range WarpThreads {
			if labels[src]&keep == mine {
				m |= 1 << uint(src)
			}
		}
		out[lane] = m
	}
}

func matchAnyBallot(labels []uint32, labelBits, width int, out []LaneMask) {
	active := ActiveMask(width)
	for lane := range width {
		out[lane] = active
	}
	for bit := range labelBits {
		set := Ballot(width, func(lane int) bool { return labels[lane]>>uint(bit)&1 != 0 })
		for lane := range width {
			if labels[lane]>>uint(bit)&1 != 0 {
				out[lane] &= set
			} else {
				out[lane] &= ^set
			}
		}
	}
}

// InclusiveScan performs a Kogge-Stone inclusive scan over the first width
// lanes of vals in place. op must be associative; it need not be
// commutative, the left operand always comes from the lower lane.
func InclusiveScan[T any](vals []T, width int, op func(a, b T) T) {
	for offset := 1; offset < width; offset <<= 1 {
		// Descending lane order reads the values of the previous step.
		for lane := width - 1; lane >= offset; lane-- {
			vals[lane] = op(vals[lane-offset], vals[lane])
		}
	}
}
