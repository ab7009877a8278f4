// Package bitset implements the fixed-width bit-vector utilities the rest
// of the module is built on: converting bit-position sets to masks,
// counting submasks, and accumulating the union of submask closures.
package bitset

import (
	"fmt"
	"math/bits"
)

// MaxBound is the widest universe a mask can address. Bit 63 is kept
// clear so that every submask count, up to 2^63, fits in a uint64.
const MaxBound = 63

// RangeError reports a bit position or universe bound outside the
// configured limits.
type RangeError struct {
	Position int
	Bound    int
}

func (e *RangeError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("bit position %d is negative", e.Position)
	}
	return fmt.Sprintf("bit position %d is outside the universe [0, %d)", e.Position, e.Bound)
}

// Universe is the set of bit positions {0, ..., Bound-1} that masks may
// draw from.
type Universe struct {
	Bound int
}

// Max is the widest universe supported.
var Max = Universe{Bound: MaxBound}

// NewUniverse returns a Universe of the given width. The bound must be
// between 1 and MaxBound.
func NewUniverse(bound int) (Universe, error) {
	if bound < 1 || bound > MaxBound {
		return Universe{}, &RangeError{Position: bound, Bound: MaxBound + 1}
	}
	return Universe{Bound: bound}, nil
}

// Contains returns true if the bit position lies inside the universe.
func (u Universe) Contains(position int) bool {
	return position >= 0 && position < u.Bound
}

// MaskOf returns the bitwise OR of 2^b for every b in positions.
// Duplicate positions are harmless here; set validation happens in the
// decomposition model.
func (u Universe) MaskOf(positions []int) (uint64, error) {
	var mask uint64
	for _, b := range positions {
		if !u.Contains(b) {
			return 0, &RangeError{Position: b, Bound: u.Bound}
		}
		mask |= 1 << uint(b)
	}
	return mask, nil
}

// Positions expands a mask back into ascending bit positions.
func Positions(mask uint64) []int {
	out := make([]int, 0, bits.OnesCount64(mask))
	for mask != 0 {
		b := bits.TrailingZeros64(mask)
		out = append(out, b)
		mask &= mask - 1
	}
	return out
}

// SubmaskCardinality returns 2^popcount(mask), the size of the submask
// closure of mask.
func SubmaskCardinality(mask uint64) uint64 {
	return 1 << uint(bits.OnesCount64(mask))
}

// IsSubmask returns true if every bit of v is also set in mask.
func IsSubmask(v, mask uint64) bool {
	return v&^mask == 0
}

// compact packs the bits of mask that are selected by support into the
// low bits of the result, preserving their order.
func compact(mask, support uint64) uint64 {
	var out uint64
	var i uint
	for support != 0 {
		low := support & -support
		if mask&low != 0 {
			out |= 1 << i
		}
		i++
		support &^= low
	}
	return out
}
