package decomposition

import (
	"fmt"
	"math/bits"
)

// Regions holds, for every non-empty membership pattern P over k sets,
// the number of bit positions that belong to exactly the sets named by P
// (bit i of P stands for set i+1). Entry 0 is unused.
//
// Every union cardinality depends only on the region sizes, so any two
// decompositions with equal Regions are interchangeable.
type Regions []int

// NegativeRegionError is returned when an intersection profile has no
// realization because a region size would be negative.
type NegativeRegionError struct {
	Pattern int
	Size    int
}

func (e *NegativeRegionError) Error() string {
	return fmt.Sprintf("region %b would hold %d positions", e.Pattern, e.Size)
}

// K returns the number of sets the regions describe.
func (r Regions) K() int {
	return bits.Len(uint(len(r))) - 1
}

// Size returns the total number of positions across every region.
func (r Regions) Size() int {
	total := 0
	for _, v := range r[1:] {
		total += v
	}
	return total
}

// RegionsFromProfile inverts an intersection profile d_J into region
// sizes via r_K = Σ_{J ⊇ K} (-1)^(|J|-|K|) d_J.
func RegionsFromProfile(k int, profile []int) (Regions, error) {
	if len(profile) != 1<<uint(k) {
		return nil, fmt.Errorf("profile has %d entries, want %d for %d sets", len(profile), 1<<uint(k), k)
	}
	full := 1<<uint(k) - 1
	regions := make(Regions, len(profile))
	for p := 1; p <= full; p++ {
		size := 0
		// Walk the supersets of p by enumerating submasks of its complement.
		rest := full &^ p
		for extra := rest; ; extra = (extra - 1) & rest {
			if bits.OnesCount(uint(extra))%2 == 0 {
				size += profile[p|extra]
			} else {
				size -= profile[p|extra]
			}
			if extra == 0 {
				break
			}
		}
		if size < 0 {
			return nil, &NegativeRegionError{Pattern: p, Size: size}
		}
		regions[p] = size
	}
	return regions, nil
}

// Materialize builds a concrete decomposition from region sizes by
// assigning consecutive bit positions to the regions in increasing
// pattern order.
func Materialize(regions Regions) Decomposition {
	k := regions.K()
	d := make(Decomposition, k)
	for i := range d {
		d[i] = Set{}
	}
	next := 0
	for p := 1; p < len(regions); p++ {
		for n := 0; n < regions[p]; n++ {
			for i := 0; i < k; i++ {
				if p&(1<<uint(i)) != 0 {
					d[i] = append(d[i], next)
				}
			}
			next++
		}
	}
	return d
}

// Regions returns the region sizes of the decomposition.
func (d Decomposition) Regions() (Regions, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	membership := map[int]int{}
	for i, s := range d {
		for _, b := range s {
			membership[b] |= 1 << uint(i)
		}
	}
	regions := make(Regions, 1<<uint(len(d)))
	for _, p := range membership {
		regions[p]++
	}
	return regions, nil
}
