package bitset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskOf(t *testing.T) {
	type tc struct {
		Name      string
		Bound     int
		Positions []int
		Mask      uint64
		Error     error
	}

	for _, tt := range []tc{
		{
			Name:  "empty set",
			Bound: 8,
			Mask:  0,
		},
		{
			Name:      "low positions",
			Bound:     8,
			Positions: []int{0, 2, 3},
			Mask:      0b1101,
		},
		{
			Name:      "duplicates fold",
			Bound:     8,
			Positions: []int{1, 1},
			Mask:      0b10,
		},
		{
			Name:      "last position of the universe",
			Bound:     MaxBound,
			Positions: []int{62},
			Mask:      1 << 62,
		},
		{
			Name:      "position at the bound",
			Bound:     8,
			Positions: []int{8},
			Error:     &RangeError{Position: 8, Bound: 8},
		},
		{
			Name:      "negative position",
			Bound:     8,
			Positions: []int{-1},
			Error:     &RangeError{Position: -1, Bound: 8},
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			u, err := NewUniverse(tt.Bound)
			require.NoError(t, err)
			mask, err := u.MaskOf(tt.Positions)
			assert.Equal(t, tt.Error, err)
			assert.Equal(t, tt.Mask, mask)
		})
	}
}

func TestNewUniverseRejectsBounds(t *testing.T) {
	for _, bound := range []int{0, -3, MaxBound + 1} {
		_, err := NewUniverse(bound)
		assert.Error(t, err, "bound %d", bound)
	}
}

func TestPositionsRoundTrip(t *testing.T) {
	positions := []int{0, 5, 17, 62}
	mask, err := Max.MaskOf(positions)
	require.NoError(t, err)
	assert.Equal(t, positions, Positions(mask))
	assert.Empty(t, Positions(0))
}

func TestSubmaskCardinality(t *testing.T) {
	assert.Equal(t, uint64(1), SubmaskCardinality(0))
	assert.Equal(t, uint64(8), SubmaskCardinality(0b1101))
	assert.Equal(t, uint64(1)<<63, SubmaskCardinality(1<<63-1))
}

func TestUnionCardinality(t *testing.T) {
	type tc struct {
		Name  string
		Masks []uint64
		Count uint64
	}

	for _, tt := range []tc{
		{
			Name:  "no masks",
			Count: 0,
		},
		{
			Name:  "empty mask covers zero",
			Masks: []uint64{0},
			Count: 1,
		},
		{
			Name:  "single mask",
			Masks: []uint64{0b111},
			Count: 8,
		},
		{
			Name:  "twelve from two sets",
			Masks: []uint64{0b1101, 0b1110},
			Count: 12,
		},
		{
			Name:  "thirteen from three sets",
			Masks: []uint64{0b100011, 0b1100, 0b110000},
			Count: 13,
		},
		{
			Name: "four hundred nineteen from four sets",
			Masks: []uint64{
				mustMask(t, 0, 1, 2, 4, 5, 12, 13, 14),
				mustMask(t, 3, 6, 7, 8, 9, 15),
				mustMask(t, 4, 5, 6, 7, 8, 9),
				mustMask(t, 10, 11, 12, 13, 14, 15),
			},
			Count: 419,
		},
		{
			Name:  "nested masks",
			Masks: []uint64{0b1, 0b11, 0b111},
			Count: 8,
		},
		{
			Name:  "sparse high positions",
			Masks: []uint64{1<<40 | 1<<50, 1 << 60},
			Count: 5,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			count, err := UnionCardinality(tt.Masks)
			require.NoError(t, err)
			assert.Equal(t, tt.Count, count)

			closed, err := InclusionExclusion(tt.Masks)
			require.NoError(t, err)
			assert.Equal(t, tt.Count, closed)
		})
	}
}

func TestUnionCardinalityLimit(t *testing.T) {
	masks := []uint64{0b1101, 0b1110}

	count, exceeded, err := UnionCardinalityLimit(masks, 12)
	require.NoError(t, err)
	assert.False(t, exceeded)
	assert.Equal(t, uint64(12), count)

	count, exceeded, err = UnionCardinalityLimit(masks, 11)
	require.NoError(t, err)
	assert.True(t, exceeded)
	assert.Greater(t, count, uint64(11))

	// A single closure wider than the limit is rejected without a walk.
	_, exceeded, err = UnionCardinalityLimit([]uint64{1<<40 - 1}, 1000)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestMaximal(t *testing.T) {
	assert.Equal(t, []uint64{0b111, 0b1000}, Maximal([]uint64{0b1, 0b111, 0b111, 0b1000, 0b11, 0}))
	assert.Equal(t, []uint64{0}, Maximal([]uint64{0, 0}))
	assert.Empty(t, Maximal(nil))
}

func TestUnionCardinalityOfWideSets(t *testing.T) {
	const wide = 1<<40 - 1

	type tc struct {
		Name  string
		Masks []uint64
		Count uint64
	}

	var identical []uint64
	for i := 0; i < 25; i++ {
		identical = append(identical, wide)
	}
	for _, tt := range []tc{
		{
			Name:  "identical sets",
			Masks: identical,
			Count: 1 << 40,
		},
		{
			Name:  "separate components",
			Masks: []uint64{wide, (1<<20 - 1) << 40},
			Count: 1<<40 + 1<<20 - 1,
		},
		{
			// Every value with at least one of bits 0..2 clear.
			Name:  "overlapping sets",
			Masks: []uint64{wide &^ 1, wide &^ 2, wide &^ 4},
			Count: 1<<40 - 1<<37,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			count, err := UnionCardinality(tt.Masks)
			require.NoError(t, err)
			assert.Equal(t, tt.Count, count)

			closed, err := InclusionExclusion(tt.Masks)
			require.NoError(t, err)
			assert.Equal(t, tt.Count, closed)
		})
	}
}

func TestUnionCardinalityBudget(t *testing.T) {
	// Every index set has its own intersection.
	var masks []uint64
	for i := 0; i < 25; i++ {
		masks = append(masks, (1<<40-1)&^(1<<uint(i)))
	}
	_, err := UnionCardinality(masks)
	var budget *BudgetError
	require.ErrorAs(t, err, &budget)
	assert.Equal(t, &BudgetError{Masks: 25, Terms: MaxIntersectionTerms}, budget)
}

func TestUnionCardinalityRejectsBit63(t *testing.T) {
	_, err := UnionCardinality([]uint64{1 << 63})
	assert.Error(t, err)
	_, err = InclusionExclusion([]uint64{1 << 63})
	assert.Error(t, err)
}

func TestUnionAgreesWithInclusionExclusion(t *testing.T) {
	// Every pair and triple of masks over five bits.
	for a := uint64(0); a < 32; a++ {
		for b := a; b < 32; b += 3 {
			for c := b; c < 32; c += 7 {
				masks := []uint64{a, b, c}
				got, err := UnionCardinality(masks)
				require.NoError(t, err)
				want, err := InclusionExclusion(masks)
				require.NoError(t, err)
				require.Equal(t, want, got, fmt.Sprintf("masks %b", masks))
			}
		}
	}
}

func TestCoverageRollback(t *testing.T) {
	cov, err := NewJournaledCoverage(4)
	require.NoError(t, err)

	added, exceeded := cov.Add(0b1101, 0)
	assert.False(t, exceeded)
	assert.Equal(t, uint64(8), added)

	cov.Mark()
	added, _ = cov.Add(0b1110, 0)
	assert.Equal(t, uint64(4), added)
	assert.Equal(t, uint64(12), cov.Count())
	assert.True(t, cov.Contains(0b0110))

	cov.Rollback()
	assert.Equal(t, uint64(8), cov.Count())
	assert.False(t, cov.Contains(0b0110))
	assert.True(t, cov.Contains(0b0101))

	// Submasks of an added mask contribute nothing.
	added, _ = cov.Add(0b0100, 0)
	assert.Equal(t, uint64(0), added)
}

func TestCoverageSparseBackend(t *testing.T) {
	cov, err := NewCoverage(DenseWidth + 4)
	require.NoError(t, err)
	_, ok := cov.members.(sparseMembership)
	require.True(t, ok)

	added, exceeded := cov.Add(1<<(DenseWidth+3)|0b11, 0)
	assert.False(t, exceeded)
	assert.Equal(t, uint64(8), added)
	assert.True(t, cov.Contains(1<<(DenseWidth+3)|1))
}

func TestIntersectionProfile(t *testing.T) {
	profile := IntersectionProfile([]uint64{0b1101, 0b1110})
	assert.Equal(t, []int{0, 3, 3, 2}, profile)
}

func mustMask(t *testing.T, positions ...int) uint64 {
	t.Helper()
	m, err := Max.MaskOf(positions)
	require.NoError(t, err)
	return m
}
