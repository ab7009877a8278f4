package bitset

import (
	"fmt"
	"math/bits"
)

const (
	// AccumulateBudget caps the closure sizes, summed over the masks of one
	// component, that are counted by marking every submask.
	AccumulateBudget = 1 << 24
	// MaxIntersectionTerms caps the distinct intersections inclusion–exclusion
	// tracks.
	MaxIntersectionTerms = 1 << 20
)

// BudgetError reports a union too large to count by either method.
type BudgetError struct {
	Masks int
	Terms int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("union of %d masks needs more than %d inclusion-exclusion terms", e.Masks, e.Terms)
}

// UnionCardinality returns |D(m_1) ∪ ... ∪ D(m_k)|, where D(m) is the set
// of submasks of m. The empty list yields 0.
func UnionCardinality(masks []uint64) (uint64, error) {
	count, _, err := UnionCardinalityLimit(masks, 0)
	return count, err
}

// UnionCardinalityLimit is UnionCardinality with early termination: when
// limit is non-zero and the union is found to exceed it, counting stops
// and exceeded is true. The returned count is then only a lower bound.
//
// Masks that are submasks of others contribute nothing and are dropped.
// The rest are split into components sharing no positions, whose unions
// only meet at 0. Each component is counted by marking submasks when its
// closures are small and by inclusion–exclusion otherwise.
func UnionCardinalityLimit(masks []uint64, limit uint64) (count uint64, exceeded bool, err error) {
	if len(masks) == 0 {
		return 0, false, nil
	}
	if err := checkRange(masks); err != nil {
		return 0, false, err
	}
	maximal := Maximal(masks)
	for _, m := range maximal {
		if limit > 0 && SubmaskCardinality(m) > limit {
			return SubmaskCardinality(m), true, nil
		}
	}

	// Every component covers 0, so count it once.
	count = 1
	for _, component := range components(maximal) {
		var c uint64
		if ClosureSize(component) <= AccumulateBudget {
			c, err = accumulate(component)
		} else {
			c, err = intersections(component)
		}
		if err != nil {
			return 0, false, err
		}
		count += c - 1
		if limit > 0 && count > limit {
			return count, true, nil
		}
	}
	return count, false, nil
}

// InclusionExclusion computes the same value as UnionCardinality in closed
// form: the sum over non-empty index sets J of (-1)^(|J|+1) 2^|∩_{i∈J} m_i|.
// Index sets with equal intersections are merged, so its cost follows the
// number of distinct intersections rather than 2^k.
func InclusionExclusion(masks []uint64) (uint64, error) {
	if len(masks) == 0 {
		return 0, nil
	}
	if err := checkRange(masks); err != nil {
		return 0, err
	}
	return intersections(Maximal(masks))
}

// Maximal returns the masks that are not submasks of another, each once,
// in order of first appearance. Their closures have the same union as the
// closures of masks.
func Maximal(masks []uint64) []uint64 {
	var out []uint64
	for i, m := range masks {
		dominated := false
		for j, other := range masks {
			if i == j || !IsSubmask(m, other) {
				continue
			}
			// Equal masks keep their first copy.
			if m != other || j < i {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, m)
		}
	}
	return out
}

// ClosureSize returns Σ 2^|m| over masks, saturating just above
// AccumulateBudget.
func ClosureSize(masks []uint64) uint64 {
	var total uint64
	for _, m := range masks {
		total += SubmaskCardinality(m)
		if total > AccumulateBudget {
			return AccumulateBudget + 1
		}
	}
	return total
}

func checkRange(masks []uint64) error {
	for _, m := range masks {
		if m>>MaxBound != 0 {
			return &RangeError{Position: MaxBound, Bound: MaxBound}
		}
	}
	return nil
}

// components groups masks that are connected by shared positions.
func components(masks []uint64) [][]uint64 {
	var supports []uint64
	var groups [][]uint64
	for _, m := range masks {
		merged := []uint64{m}
		support := m
		for i := 0; i < len(groups); {
			if supports[i]&support == 0 {
				i++
				continue
			}
			merged = append(merged, groups[i]...)
			support |= supports[i]
			groups = append(groups[:i], groups[i+1:]...)
			supports = append(supports[:i], supports[i+1:]...)
		}
		groups = append(groups, merged)
		supports = append(supports, support)
	}
	return groups
}

// accumulate marks every submask of the masks once, after compacting them
// onto the positions they use.
func accumulate(masks []uint64) (uint64, error) {
	var support uint64
	for _, m := range masks {
		support |= m
	}
	cov, err := NewCoverage(bits.OnesCount64(support))
	if err != nil {
		return 0, err
	}
	for _, m := range masks {
		cov.Add(compact(m, support), 0)
	}
	return cov.Count(), nil
}

// intersections sums 2^|x| weighted by the signed number of index sets
// whose intersection is x. Adding mask m turns every term (x, c) into an
// extra term (x&m, -c) and adds (m, 1).
func intersections(masks []uint64) (uint64, error) {
	coefficients := map[uint64]int64{}
	for _, m := range masks {
		next := make(map[uint64]int64, 2*len(coefficients)+1)
		for x, c := range coefficients {
			next[x] += c
		}
		for x, c := range coefficients {
			next[x&m] -= c
		}
		next[m]++
		for x, c := range next {
			if c == 0 {
				delete(next, x)
			}
		}
		if len(next) > MaxIntersectionTerms {
			return 0, &BudgetError{Masks: len(masks), Terms: MaxIntersectionTerms}
		}
		coefficients = next
	}
	// Partial sums may leave [0, 2^64) but the final value is at most
	// 2^63, so wrapping arithmetic yields the exact result.
	var total uint64
	for x, c := range coefficients {
		total += uint64(c) * SubmaskCardinality(x)
	}
	return total, nil
}

// IntersectionProfile returns d_J = |∩_{i∈J} m_i| for every non-empty index
// set J, indexed by J's bit pattern (bit i-1 set when set i belongs to J).
// Entry 0 is unused.
func IntersectionProfile(masks []uint64) []int {
	k := len(masks)
	profile := make([]int, 1<<uint(k))
	for j := 1; j < len(profile); j++ {
		inter := ^uint64(0)
		for rest := uint(j); rest != 0; rest &= rest - 1 {
			inter &= masks[bits.TrailingZeros(rest)]
		}
		profile[j] = bits.OnesCount64(inter)
	}
	return profile
}
