// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import "code.hybscloud.com/lookback/internal/simt"

// RankResult holds the per-digit totals of one ranking. The slices belong
// to the [BlockRadixRank] and stay valid until its next RankKeys call.
type RankResult struct {
	// Bins[d] is the number of keys in the tile with digit d.
	Bins []uint32

	// ExclusiveDigitPrefix[d] is the number of keys with a digit below d.
	ExclusiveDigitPrefix []uint32
}

// BlockRadixRank ranks the keys of one tile by digit.
//
// Keys are warp-striped: warp w, item u, lane l holds tile element
// w·32·ItemsPerThread + u·width + l, width being the lanes of warp w.
// The rank of a key is its position once the tile is stably grouped by
// digit.
//
// A BlockRadixRank is block scratch and must not be shared between
// goroutines.
type BlockRadixRank struct {
	policy Policy
	digits int
	warps  int

	hist     []uint32 // [warp][digit][part]
	warpBase []uint32 // [warp][digit]
	bins     []uint32
	prefix   []uint32
	scan     *blockScan[uint32]

	labels [simt.WarpThreads]uint32
	masks  [simt.WarpThreads]simt.LaneMask
	orMask []simt.LaneMask // [digit], MatchAtomicOr only
}

// NewBlockRadixRank creates a ranker for tiles of policy's shape.
// Panics if the policy is invalid.
func NewBlockRadixRank(p Policy) *BlockRadixRank {
	p.validate(8)
	digits, warps := p.RadixDigits(), p.Warps()
	r := &BlockRadixRank{
		policy:   p,
		digits:   digits,
		warps:    warps,
		hist:     make([]uint32, warps*digits*p.NumParts),
		warpBase: make([]uint32, warps*digits),
		bins:     make([]uint32, digits),
		prefix:   make([]uint32, digits),
		scan:     newBlockScan(p.BlockThreads, p.BinsPerThread(), func(a, b uint32) uint32 { return a + b }),
	}
	if p.Match == MatchAtomicOr {
		r.orMask = make([]simt.LaneMask, digits)
	}
	return r
}

// warpSpan returns the first tile element of warp w and its width.
func (r *BlockRadixRank) warpSpan(w int) (base, width int) {
	return w * simt.WarpThreads * r.policy.ItemsPerThread, simt.Width(w, r.policy.BlockThreads)
}

// RankKeys writes into ranks the rank of each of the tile's keys and
// returns the per-digit totals. keys holds the ordered bits of a full
// tile; pads must carry the largest digit. cb, if not nil, sees the
// per-digit counts once they are known and before they are scanned.
func (r *BlockRadixRank) RankKeys(keys []uint64, ranks []uint32, extract DigitExtractor, cb CountsCallback) RankResult {
	tileItems := r.policy.TileItems()
	keys, ranks = keys[:tileItems], ranks[:tileItems]

	r.histogram(keys, extract)
	r.upsweep()
	if cb != nil {
		cb.OnCounts(r.bins)
	}
	copy(r.prefix, r.bins)
	r.scan.exclusiveSum(r.prefix, 0)
	r.downsweep()
	r.rank(keys, ranks, extract)

	return RankResult{Bins: r.bins, ExclusiveDigitPrefix: r.prefix}
}

// histogram counts each warp's digits into its private table. Lane l
// increments sub-counter l mod NumParts.
func (r *BlockRadixRank) histogram(keys []uint64, extract DigitExtractor) {
	clear(r.hist)
	parts := r.policy.NumParts
	for w := range r.warps {
		base, width := r.warpSpan(w)
		table := r.hist[w*r.digits*parts : (w+1)*r.digits*parts]
		for u := range r.policy.ItemsPerThread {
			row := keys[base+u*width : base+(u+1)*width]
			for lane, k := range row {
				d := int(extract.Digit(k))
				table[d*parts+lane%parts]++
			}
		}
	}
}

// upsweep sums each digit across warps and parts into bins, leaving in
// warpBase the count of the digit in earlier warps.
func (r *BlockRadixRank) upsweep() {
	parts := r.policy.NumParts
	bpt := r.policy.BinsPerThread()
	full := r.policy.FullBins()
	for t := range r.policy.BlockThreads {
		for j := range bpt {
			d := t*bpt + j
			if !full && d >= r.digits {
				break
			}
			var sum uint32
			for w := range r.warps {
				r.warpBase[w*r.digits+d] = sum
				for _, c := range r.hist[(w*r.digits+d)*parts : (w*r.digits+d+1)*parts] {
					sum += c
				}
			}
			r.bins[d] = sum
		}
	}
}

// downsweep adds the block-wide digit prefix to every warp base.
func (r *BlockRadixRank) downsweep() {
	for w := range r.warps {
		base := r.warpBase[w*r.digits : (w+1)*r.digits]
		for d, p := range r.prefix {
			base[d] += p
		}
	}
}

// rank assigns ranks warp by warp, item by item. The lanes sharing a digit
// take consecutive ranks in lane order, each ranked after its lower peers;
// the highest of them then advances the warp base of that digit for all
// of them.
func (r *BlockRadixRank) rank(keys []uint64, ranks []uint32, extract DigitExtractor) {
	for w := range r.warps {
		base, width := r.warpSpan(w)
		warpBase := r.warpBase[w*r.digits : (w+1)*r.digits]
		for u := range r.policy.ItemsPerThread {
			off := base + u*width
			for lane := range width {
				r.labels[lane] = extract.Digit(keys[off+lane])
			}
			r.match(width, extract.NumBits)
			for lane := range width {
				d := r.labels[lane]
				peers := r.masks[lane]
				ranks[off+lane] = warpBase[d] + uint32((peers&simt.LaneMaskLT(lane)).Popc())
			}
			for lane := range width {
				if peers := r.masks[lane]; peers.Leader() == lane {
					warpBase[r.labels[lane]] += uint32(peers.Popc())
				}
			}
		}
	}
}

// match fills masks with the same-digit peers of each lane.
func (r *BlockRadixRank) match(width, numBits int) {
	if r.policy.Match == MatchAny {
		simt.MatchAny(r.labels[:], numBits, width, r.masks[:])
		return
	}
	for lane := range width {
		r.orMask[r.labels[lane]] |= 1 << uint(lane)
	}
	for lane := range width {
		r.masks[lane] = r.orMask[r.labels[lane]]
	}
	for lane := range width {
		r.orMask[r.labels[lane]] = 0
	}
}
