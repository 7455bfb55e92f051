// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"reflect"
	"unsafe"
)

type keyKind uint8

const (
	kindUnsigned keyKind = iota
	kindSigned
	kindFloat
)

// keyTraits describes how the bits of a key type order.
type keyTraits struct {
	kind keyKind
	bits int
}

func traitsOf[K Key]() keyTraits {
	t := reflect.TypeFor[K]()
	tr := keyTraits{bits: int(t.Size()) * 8}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		tr.kind = kindSigned
	case reflect.Float32, reflect.Float64:
		tr.kind = kindFloat
	default:
		tr.kind = kindUnsigned
	}
	return tr
}

// rawBits returns the bit pattern of k zero-extended to 64 bits.
func rawBits[K Key](k K) uint64 {
	switch unsafe.Sizeof(k) {
	case 1:
		return uint64(*(*uint8)(unsafe.Pointer(&k)))
	case 2:
		return uint64(*(*uint16)(unsafe.Pointer(&k)))
	case 4:
		return uint64(*(*uint32)(unsafe.Pointer(&k)))
	default:
		return *(*uint64)(unsafe.Pointer(&k))
	}
}

// fromBits is the inverse of rawBits.
func fromBits[K Key](b uint64) K {
	var k K
	switch unsafe.Sizeof(k) {
	case 1:
		*(*uint8)(unsafe.Pointer(&k)) = uint8(b)
	case 2:
		*(*uint16)(unsafe.Pointer(&k)) = uint16(b)
	case 4:
		*(*uint32)(unsafe.Pointer(&k)) = uint32(b)
	default:
		*(*uint64)(unsafe.Pointer(&k)) = b
	}
	return k
}

// Twiddle maps keys to ordered bits: unsigned integers whose natural order
// is the key order, ascending or descending.
//
// Unsigned keys are kept as is. Signed keys have the sign bit flipped.
// Floats with the sign bit set are inverted, others get the sign bit set,
// so negative magnitudes order before positive ones. A descending Twiddle
// complements the result within the key width.
type Twiddle[K Key] struct {
	traits     keyTraits
	descending bool
	mask       uint64
	sign       uint64
}

// NewTwiddle returns the ordering transform for K.
func NewTwiddle[K Key](descending bool) Twiddle[K] {
	tr := traitsOf[K]()
	mask := ^uint64(0)
	if tr.bits < 64 {
		mask = 1<<uint(tr.bits) - 1
	}
	return Twiddle[K]{
		traits:     tr,
		descending: descending,
		mask:       mask,
		sign:       1 << uint(tr.bits-1),
	}
}

// Bits returns the key width in bits.
func (t Twiddle[K]) Bits() int {
	return t.traits.bits
}

// Descending reports whether t orders keys from largest to smallest.
func (t Twiddle[K]) Descending() bool {
	return t.descending
}

// In returns the ordered bits of k.
func (t Twiddle[K]) In(k K) uint64 {
	return t.in(rawBits(k))
}

// Out returns the key whose ordered bits are b.
func (t Twiddle[K]) Out(b uint64) K {
	if t.descending {
		b = ^b & t.mask
	}
	switch t.traits.kind {
	case kindSigned:
		b ^= t.sign
	case kindFloat:
		if b&t.sign != 0 {
			b &^= t.sign
		} else {
			b = ^b & t.mask
		}
	}
	return fromBits[K](b)
}

func (t Twiddle[K]) in(b uint64) uint64 {
	switch t.traits.kind {
	case kindSigned:
		b ^= t.sign
	case kindFloat:
		if b&t.sign != 0 {
			b = ^b & t.mask
		} else {
			b |= t.sign
		}
	}
	if t.descending {
		b = ^b & t.mask
	}
	return b
}

// DefaultKey returns the ordered bits that pad a partial tile: the
// largest ordered value, which is the twiddled maximum raw key when
// ascending and the twiddled minimum raw key when descending. Pads sort
// after every real key and are never written out.
func (t Twiddle[K]) DefaultKey() uint64 {
	return t.mask
}

// Extractor returns the digit extractor for ordered bits [shift,
// shift+numBits). Float extractors give -0 the digit of +0.
func (t Twiddle[K]) Extractor(shift, numBits int) DigitExtractor {
	e := NewDigitExtractor(shift, numBits)
	if t.traits.kind == kindFloat {
		e.normalize = true
		e.negZero = t.in(t.sign)
		e.posZero = t.in(0)
	}
	return e
}

// DigitExtractor selects a window of ordered key bits.
type DigitExtractor struct {
	Shift   int // lowest bit of the window
	NumBits int // window width, at most 8

	normalize bool
	negZero   uint64
	posZero   uint64
}

// NewDigitExtractor returns the extractor for bits [shift, shift+numBits).
func NewDigitExtractor(shift, numBits int) DigitExtractor {
	return DigitExtractor{Shift: shift, NumBits: numBits}
}

// Digit returns the digit of the ordered bits b.
func (e DigitExtractor) Digit(b uint64) uint32 {
	if e.normalize && b == e.negZero {
		b = e.posZero
	}
	return uint32(b>>uint(e.Shift)) & (1<<uint(e.NumBits) - 1)
}
