// Package decomposition models an ordered list of bit-position sets whose
// submask closures are united to represent an integer.
package decomposition

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/operator-framework/alpha-decomposition/pkg/bitset"
)

// Set is a finite set of bit positions.
type Set []int

// InvalidSetError is returned when a set holds a negative or repeated
// position.
type InvalidSetError struct {
	Index    int
	Position int
	Reason   string
}

func (e *InvalidSetError) Error() string {
	return fmt.Sprintf("set %d: position %d %s", e.Index+1, e.Position, e.Reason)
}

// Normalize returns a sorted copy of the set.
func (s Set) Normalize() Set {
	out := make(Set, len(s))
	copy(out, s)
	sort.Ints(out)
	return out
}

// Mask returns the set as a bit mask over u.
func (s Set) Mask(u bitset.Universe) (uint64, error) {
	return u.MaskOf(s)
}

func (s Set) String() string {
	parts := make([]string, len(s))
	for i, b := range s.Normalize() {
		parts[i] = strconv.Itoa(b)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Decomposition is an ordered list of sets.
type Decomposition []Set

// K returns the number of sets.
func (d Decomposition) K() int {
	return len(d)
}

// Validate checks that no set holds a negative or duplicate position.
func (d Decomposition) Validate() error {
	for i, s := range d {
		seen := make(map[int]struct{}, len(s))
		for _, b := range s {
			if b < 0 {
				return &InvalidSetError{Index: i, Position: b, Reason: "is negative"}
			}
			if _, ok := seen[b]; ok {
				return &InvalidSetError{Index: i, Position: b, Reason: "is repeated"}
			}
			seen[b] = struct{}{}
		}
	}
	return nil
}

// Normalize returns a copy with every set sorted.
func (d Decomposition) Normalize() Decomposition {
	out := make(Decomposition, len(d))
	for i, s := range d {
		out[i] = s.Normalize()
	}
	return out
}

// Masks converts every set to a mask over the widest supported universe.
func (d Decomposition) Masks() ([]uint64, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	masks := make([]uint64, len(d))
	for i, s := range d {
		m, err := s.Mask(bitset.Max)
		if err != nil {
			return nil, err
		}
		masks[i] = m
	}
	return masks, nil
}

// UnionCardinality returns the number of distinct integers that are a
// submask of at least one set in the decomposition.
func (d Decomposition) UnionCardinality() (uint64, error) {
	masks, err := d.Masks()
	if err != nil {
		return 0, err
	}
	return bitset.UnionCardinality(masks)
}

// IsWitnessFor returns true if the union cardinality equals n.
func (d Decomposition) IsWitnessFor(n int) (bool, error) {
	if n < 1 {
		return false, nil
	}
	masks, err := d.Masks()
	if err != nil {
		return false, err
	}
	count, exceeded, err := bitset.UnionCardinalityLimit(masks, uint64(n))
	if err != nil {
		return false, err
	}
	return !exceeded && count == uint64(n), nil
}

// Profile returns the intersection profile d_J for every non-empty index
// set J of the decomposition, indexed by pattern.
func (d Decomposition) Profile() ([]int, error) {
	masks, err := d.Masks()
	if err != nil {
		return nil, err
	}
	return bitset.IntersectionProfile(masks), nil
}

func (d Decomposition) String() string {
	parts := make([]string, len(d))
	for i, s := range d {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
