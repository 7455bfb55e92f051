// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"context"

	"code.hybscloud.com/atomix"
	"golang.org/x/sync/errgroup"
)

// tileCounter hands out logical tile indices in claim order.
type tileCounter struct {
	_    pad
	next atomix.Uint64
	_    pad
}

// reset must happen before the blocks claiming from c are launched.
func (c *tileCounter) reset() {
	c.next.StoreRelaxed(0)
}

// claim returns the next unclaimed tile index.
func (c *tileCounter) claim() int {
	return int(c.next.AddAcqRel(1) - 1)
}

// launch runs blocks invocations of block, at most occupancy at a time.
//
// Every block claims its tile when it starts, so any tile a block waits
// for belongs to a block that is already running. The first error cancels
// the context handed to the remaining blocks and is returned. If ctx ends
// before all blocks ran, ctx.Err() is returned.
func launch(ctx context.Context, occupancy, blocks int, block func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(occupancy)
	for range blocks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return block(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
