// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates a tile status slot has not been published yet.
//
// [TileState.TryLoad] returns it while the slot is still INVALID. It is a
// control flow signal, not a failure: the caller polls again (with a
// [Delay]) rather than propagating it.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

var (
	// ErrLengthMismatch is returned when input and output slices differ
	// in length.
	ErrLengthMismatch = errors.New("lookback: input and output lengths differ")

	// ErrBitRange is returned when a sort bit range does not fit the key
	// width.
	ErrBitRange = errors.New("lookback: bit range outside key width")

	// ErrTooManyItems is returned when an input exceeds the 32-bit offset
	// space of the sort bins.
	ErrTooManyItems = errors.New("lookback: item count exceeds 2^32-1")
)

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Returns true for nil, ErrWouldBlock, or ErrMore.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
