package search

import (
	"context"
	"sort"

	"github.com/operator-framework/alpha-decomposition/pkg/bitset"
	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
)

// maskSearch chooses concrete sets one at a time in non-increasing size
// order. Positions sharing the same membership among the sets chosen so
// far are interchangeable, so each new set only decides how many
// positions to take from every such group plus how many fresh positions
// to open.
type maskSearch struct {
	ctx    context.Context
	n      int
	k      int
	maxExp int
	width  int

	cov *bitset.Coverage
	// pattern[p] has bit i set when position p belongs to set i.
	pattern []uint64
	masks   []uint64
	found   int

	nodes     uint64
	err       error
	truncated bool
}

func (s *maskSearch) halted() bool {
	s.nodes++
	if s.err == nil && s.nodes&0x3ff == 1 {
		s.err = s.ctx.Err()
	}
	return s.err != nil
}

// groups returns the used positions bucketed by membership pattern, in
// increasing pattern order.
func (s *maskSearch) groups() [][]int {
	byPattern := map[uint64][]int{}
	var keys []uint64
	for p, pat := range s.pattern {
		if _, ok := byPattern[pat]; !ok {
			keys = append(keys, pat)
		}
		byPattern[pat] = append(byPattern[pat], p)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	out := make([][]int, len(keys))
	for i, key := range keys {
		out[i] = byPattern[key]
	}
	return out
}

// place chooses set i, no larger than maxSize.
func (s *maskSearch) place(i, maxSize int) bool {
	if s.halted() {
		return false
	}
	groups := s.groups()
	used := len(s.pattern)

	var choose func(g int, mask uint64, size int) bool
	choose = func(g int, mask uint64, size int) bool {
		if g == len(groups) {
			for fresh := 0; size+fresh <= maxSize; fresh++ {
				if size+fresh == 0 {
					continue
				}
				if used+fresh > s.width {
					s.truncated = true
					break
				}
				block := (uint64(1)<<uint(fresh) - 1) << uint(used)
				if s.try(i, mask|block, size+fresh, fresh) {
					return true
				}
				if s.err != nil {
					return false
				}
			}
			return false
		}
		var taken uint64
		for t := 0; t <= len(groups[g]) && size+t <= maxSize; t++ {
			if t > 0 {
				taken |= 1 << uint(groups[g][t-1])
			}
			if choose(g+1, mask|taken, size+t) {
				return true
			}
		}
		return false
	}
	return choose(0, 0, 0)
}

func (s *maskSearch) try(i int, mask uint64, size, fresh int) bool {
	for _, prev := range s.masks[:i] {
		if bitset.IsSubmask(mask, prev) {
			return false
		}
	}
	s.cov.Mark()
	if _, exceeded := s.cov.Add(mask, uint64(s.n)); exceeded {
		s.cov.Rollback()
		return false
	}
	s.masks[i] = mask
	count := s.cov.Count()
	if count == uint64(s.n) {
		s.found = i + 1
		return true
	}

	remaining := uint64(s.k-i-1) * (uint64(1)<<uint(size) - 1)
	if i+1 < s.k && count+remaining >= uint64(s.n) {
		used := len(s.pattern)
		for f := 0; f < fresh; f++ {
			s.pattern = append(s.pattern, 0)
		}
		for _, p := range bitset.Positions(mask) {
			s.pattern[p] |= 1 << uint(i)
		}
		if s.place(i+1, size) {
			return true
		}
		s.pattern = s.pattern[:used]
		for _, p := range bitset.Positions(mask) {
			if p < used {
				s.pattern[p] &^= 1 << uint(i)
			}
		}
	}
	s.cov.Rollback()
	return false
}

func (s *maskSearch) witness() decomposition.Decomposition {
	witness := make(decomposition.Decomposition, s.k)
	for i := range witness {
		// Surplus slots repeat the first set; a duplicate adds nothing.
		m := s.masks[0]
		if i < s.found {
			m = s.masks[i]
		}
		witness[i] = decomposition.Set(bitset.Positions(m))
	}
	return witness
}

func (e *Engine) decideMask(ctx context.Context, n, k int) (*Result, error) {
	maxExp := maxExponent(n)
	width := k * maxExp
	if width > e.universe {
		width = e.universe
	}
	if width > MaxMaskWidth {
		width = MaxMaskWidth
	}
	cov, err := bitset.NewJournaledCoverage(width)
	if err != nil {
		return nil, err
	}
	s := &maskSearch{
		ctx:    ctx,
		n:      n,
		k:      k,
		maxExp: maxExp,
		width:  width,
		cov:    cov,
		masks:  make([]uint64, k),
	}

	if !s.place(0, maxExp) {
		if s.err != nil {
			return nil, s.err
		}
		if s.truncated {
			if width < e.universe {
				return nil, &UnsupportedError{Strategy: StrategyMask, K: k, Width: k * maxExp, MaxWidth: MaxMaskWidth}
			}
			return nil, &UniverseTooSmallError{N: n, K: k, Universe: e.universe, Required: k * maxExp}
		}
		return nil, &ExhaustedError{N: n, K: k}
	}
	return &Result{N: n, K: k, Witness: s.witness(), Strategy: StrategyMask, Nodes: s.nodes}, nil
}
