package search

import (
	"context"
	"math/bits"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
)

// The level strategy works on the intersection profile d_J = |∩_{i∈J} S_i|
// rather than on concrete sets. By inclusion-exclusion the union
// cardinality is Σ_J (-1)^(|J|+1) 2^(d_J), so the search assigns the d_J
// in increasing order of value and matches n one binary digit at a time,
// carrying the excess upward. A profile is realizable exactly when every
// Venn region computed from it is non-negative.
//
// Index set J is stored at index J-1 of every table below; a "members"
// word has bit J-1 set for each J it holds.

// lattice holds the per-k tables shared by every search at that k.
type lattice struct {
	k    int
	size int
	all  uint64
	// sign is +1 for odd |J| and -1 for even.
	sign []int64
	// strictSup[j] holds every proper superset of j.
	strictSup []uint64
	// mobius[j] lists the signed terms of the region of pattern j.
	mobius [][]term
	// order lists indexes by decreasing |J| so supersets come first.
	order     []int
	singleton []int
	isSingle  []bool
}

type term struct {
	index int
	coef  int
}

func newLattice(k int) *lattice {
	size := 1<<uint(k) - 1
	l := &lattice{
		k:         k,
		size:      size,
		all:       uint64(1)<<uint(size) - 1,
		sign:      make([]int64, size),
		strictSup: make([]uint64, size),
		mobius:    make([][]term, size),
		isSingle:  make([]bool, size),
	}
	for j := 1; j <= size; j++ {
		if bits.OnesCount(uint(j))%2 == 1 {
			l.sign[j-1] = 1
		} else {
			l.sign[j-1] = -1
		}
		for sup := 1; sup <= size; sup++ {
			if sup&j != j {
				continue
			}
			coef := 1
			if (bits.OnesCount(uint(sup))-bits.OnesCount(uint(j)))%2 == 1 {
				coef = -1
			}
			l.mobius[j-1] = append(l.mobius[j-1], term{index: sup - 1, coef: coef})
			if sup != j {
				l.strictSup[j-1] |= 1 << uint(sup-1)
			}
		}
		l.order = append(l.order, j-1)
	}
	sort.SliceStable(l.order, func(a, b int) bool {
		return bits.OnesCount(uint(l.order[a]+1)) > bits.OnesCount(uint(l.order[b]+1))
	})
	for i := 0; i < k; i++ {
		l.singleton = append(l.singleton, 1<<uint(i)-1)
		l.isSingle[1<<uint(i)-1] = true
	}
	return l
}

type levelSearch struct {
	*lattice
	ctx      context.Context
	stop     *atomic.Bool
	n        int
	maxExp   int
	universe int

	d     [64]int
	nodes uint64
	err   error

	truncated bool
	required  int
}

func newLevelSearch(ctx context.Context, l *lattice, n, universe int) *levelSearch {
	return &levelSearch{
		lattice:  l,
		ctx:      ctx,
		n:        n,
		maxExp:   maxExponent(n),
		universe: universe,
	}
}

// fork returns a copy sharing the tables but with its own counters.
func (s *levelSearch) fork(ctx context.Context, stop *atomic.Bool) *levelSearch {
	return &levelSearch{
		lattice:  s.lattice,
		ctx:      ctx,
		stop:     stop,
		n:        s.n,
		maxExp:   s.maxExp,
		universe: s.universe,
		d:        s.d,
	}
}

func (s *levelSearch) halted() bool {
	s.nodes++
	if s.err == nil && s.nodes&0x3ff == 1 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
		} else if s.stop != nil && s.stop.Load() {
			s.err = errStopped
		}
	}
	return s.err != nil
}

// rec extends the up-set assigned of index sets whose d_J is below e.
// carry is the part of the running sum above bit e-1 that has not yet
// been matched against n.
func (s *levelSearch) rec(e int, assigned uint64, carry int64) bool {
	if s.halted() {
		return false
	}
	if assigned == s.all {
		return carry == int64(s.n>>uint(e)) && s.fits()
	}
	if e > s.maxExp || !s.reachable(e, assigned, carry) {
		return false
	}
	return s.expand(e, assigned, carry, func(next uint64, nextCarry int64) bool {
		return s.rec(e+1, next, nextCarry)
	})
}

// reachable bounds what the unassigned terms can still add, each being
// ±2^(d-e) with e <= d <= maxExp.
func (s *levelSearch) reachable(e int, assigned uint64, carry int64) bool {
	span := s.maxExp - e
	if span >= 56 {
		return true
	}
	var pos, neg int64
	for rest := s.all &^ assigned; rest != 0; rest &= rest - 1 {
		if s.sign[bits.TrailingZeros64(rest)] > 0 {
			pos++
		} else {
			neg++
		}
	}
	top := int64(1) << uint(span)
	target := int64(s.n >> uint(e))
	return carry+pos-neg*top <= target && target <= carry+pos*top-neg
}

// fits checks the finished profile against the universe.
func (s *levelSearch) fits() bool {
	var need int64
	for j := 0; j < s.size; j++ {
		need += s.sign[j] * int64(s.d[j])
	}
	if int(need) <= s.universe {
		return true
	}
	if !s.truncated || int(need) < s.required {
		s.required = int(need)
	}
	s.truncated = true
	return false
}

// expand enumerates every set T of unassigned index sets that can take
// d_J = e, keeping assigned ∪ T closed under supersets, and calls visit
// with the new up-set and carry for each T that matches bit e of n.
func (s *levelSearch) expand(e int, assigned uint64, carry int64, visit func(uint64, int64) bool) bool {
	bit := int64(s.n>>uint(e)) & 1
	last := e == s.maxExp
	forbidSingles := e == 0

	var gen func(i int, t uint64, sum int64) bool
	gen = func(i int, t uint64, sum int64) bool {
		if i == len(s.order) {
			return s.accept(e, assigned, t, carry+sum-bit, visit)
		}
		j := s.order[i]
		member := uint64(1) << uint(j)
		if assigned&member != 0 {
			return gen(i+1, t, sum)
		}
		if !last && gen(i+1, t, sum) {
			return true
		}
		if s.strictSup[j]&^(assigned|t) != 0 || forbidSingles && s.isSingle[j] {
			return false
		}
		return gen(i+1, t|member, sum+s.sign[j])
	}
	return gen(0, 0, 0)
}

func (s *levelSearch) accept(e int, assigned, t uint64, excess int64, visit func(uint64, int64) bool) bool {
	if excess&1 != 0 {
		return false
	}
	next := assigned | t
	// Sets are kept in non-increasing size order.
	for i := 0; i+1 < s.k; i++ {
		if next&(1<<uint(s.singleton[i])) != 0 && next&(1<<uint(s.singleton[i+1])) == 0 {
			return false
		}
	}
	for rest := t; rest != 0; rest &= rest - 1 {
		s.d[bits.TrailingZeros64(rest)] = e
	}
	for rest := t; rest != 0; rest &= rest - 1 {
		region := 0
		for _, tm := range s.mobius[bits.TrailingZeros64(rest)] {
			region += tm.coef * s.d[tm.index]
		}
		if region < 0 {
			return false
		}
	}
	return visit(next, excess>>1)
}

func (s *levelSearch) witness() (decomposition.Decomposition, error) {
	profile := make([]int, s.size+1)
	for j := 0; j < s.size; j++ {
		profile[j+1] = s.d[j]
	}
	regions, err := decomposition.RegionsFromProfile(s.k, profile)
	if err != nil {
		return nil, err
	}
	return decomposition.Materialize(regions), nil
}

func (e *Engine) decideLevel(ctx context.Context, n, k int) (*Result, error) {
	root := newLevelSearch(ctx, newLattice(k), n, e.universe)

	var (
		winner    *levelSearch
		nodes     uint64
		truncated bool
		required  int
	)
	if e.workers <= 1 {
		if root.rec(0, 0, 0) {
			winner = root
		}
		if root.err != nil {
			return nil, root.err
		}
		nodes, truncated, required = root.nodes, root.truncated, root.required
	} else {
		type branch struct {
			members uint64
			carry   int64
			d       [64]int
		}
		var branches []branch
		root.expand(0, 0, 0, func(members uint64, carry int64) bool {
			branches = append(branches, branch{members: members, carry: carry, d: root.d})
			return false
		})

		var (
			mu   sync.Mutex
			stop atomic.Bool
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for _, br := range branches {
			br := br
			g.Go(func() error {
				w := root.fork(gctx, &stop)
				w.d = br.d
				found := w.rec(1, br.members, br.carry)

				mu.Lock()
				defer mu.Unlock()
				nodes += w.nodes
				if w.truncated && (!truncated || w.required < required) {
					truncated, required = true, w.required
				}
				if found {
					if winner == nil {
						winner = w
					}
					stop.Store(true)
				}
				if w.err != nil && w.err != errStopped {
					return w.err
				}
				return nil
			})
		}
		err := g.Wait()
		if winner == nil && err != nil {
			return nil, err
		}
		if winner == nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		nodes += root.nodes
	}

	if winner == nil {
		if truncated {
			return nil, &UniverseTooSmallError{N: n, K: k, Universe: e.universe, Required: required}
		}
		return nil, &ExhaustedError{N: n, K: k}
	}
	witness, err := winner.witness()
	if err != nil {
		return nil, err
	}
	return &Result{N: n, K: k, Witness: witness, Strategy: StrategyLevel, Nodes: nodes}, nil
}
