package oracle

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
)

// profileModel describes k sets by their intersection profile: atLeast[J][t-1]
// holds when the sets named by pattern J share at least t positions. Union
// cardinalities depend only on the profile, so the model size grows with
// log2 n rather than n.
type profileModel struct {
	k       int
	depth   int
	atLeast [][]Lit
}

// encodeProfile builds the model of a profile whose union cardinality is n.
// depth is the largest possible set size, ⌊log2 n⌋, since a set of size s
// alone covers 2^s values. When u is below the k·depth positions a witness
// may need, the number of distinct positions is capped at u.
func encodeProfile(b ModelBuilder, n, k, u int) *profileModel {
	depth := bits.Len64(uint64(n)) - 1
	full := 1<<uint(k) - 1
	m := &profileModel{k: k, depth: depth, atLeast: make([][]Lit, full+1)}
	for j := 1; j <= full; j++ {
		m.atLeast[j] = make([]Lit, depth)
		for t := range m.atLeast[j] {
			m.atLeast[j][t] = b.NewVar()
		}
	}
	c := &circuit{b: b, t: b.True()}

	for j := 1; j <= full; j++ {
		row := m.atLeast[j]
		for t := 1; t < depth; t++ {
			b.AddClause(row[t].Not(), row[t-1])
		}
		// Adding a set to J can only shrink the intersection.
		for i := 0; i < k; i++ {
			super := j | 1<<uint(i)
			if super == j {
				continue
			}
			for t := range row {
				b.AddClause(m.atLeast[super][t].Not(), row[t])
			}
		}
	}

	// Sets are interchangeable: order them by size, largest first. A set
	// can always be duplicated, so for n > 1 none needs to be empty.
	for i := 0; i+1 < k; i++ {
		for t := 0; t < depth; t++ {
			b.AddClause(m.atLeast[2<<uint(i)][t].Not(), m.atLeast[1<<uint(i)][t])
		}
	}
	if n > 1 {
		for i := 0; i < k; i++ {
			b.AddClause(m.atLeast[1<<uint(i)][0])
		}
	}

	// r_P = Σ_{J ⊇ P} (-1)^(|J|-|P|) d_J counts the positions in exactly the
	// sets of P and must not be negative.
	for p := 1; p <= full; p++ {
		var plus, minus []Lit
		rest := full &^ p
		for extra := rest; ; extra = (extra - 1) & rest {
			if bits.OnesCount(uint(extra))%2 == 0 {
				plus = append(plus, m.atLeast[p|extra]...)
			} else {
				minus = append(minus, m.atLeast[p|extra]...)
			}
			if extra == 0 {
				break
			}
		}
		if len(minus) > 0 {
			b.AddAtLeast(append(plus, negate(minus)...), len(minus))
		}
	}

	if u < k*depth {
		// Σ_P r_P = Σ_J (-1)^(|J|+1) d_J is the number of positions used.
		var odd, even []Lit
		for j := 1; j <= full; j++ {
			if bits.OnesCount(uint(j))%2 == 1 {
				odd = append(odd, m.atLeast[j]...)
			} else {
				even = append(even, m.atLeast[j]...)
			}
		}
		b.AddAtMost(append(odd, negate(even)...), u+len(even))
	}

	// Inclusion–exclusion with the negative terms moved across:
	// Σ_{|J| odd} 2^d_J = n + Σ_{|J| even} 2^d_J. Neither side exceeds
	// 2^(depth+k), so width bits never overflow.
	width := depth + k + 1
	lhs, rhs := c.constant(0, width), c.constant(n, width)
	for j := 1; j <= full; j++ {
		if bits.OnesCount(uint(j))%2 == 1 {
			lhs = c.add(lhs, m.power(c, j, width))
		} else {
			rhs = c.add(rhs, m.power(c, j, width))
		}
	}
	c.equal(lhs, rhs)
	return m
}

// atLeastLit returns the literal for d_J >= t.
func (m *profileModel) atLeastLit(c *circuit, j, t int) Lit {
	switch {
	case t <= 0:
		return c.t
	case t > m.depth:
		return c.f()
	}
	return m.atLeast[j][t-1]
}

// power returns 2^d_J in binary: bit t holds exactly when d_J == t.
func (m *profileModel) power(c *circuit, j, width int) []Lit {
	out := make([]Lit, width)
	for t := range out {
		out[t] = c.and(m.atLeastLit(c, j, t), m.atLeastLit(c, j, t+1).Not())
	}
	return out
}

func (m *profileModel) witness(b ModelBuilder) (decomposition.Decomposition, error) {
	profile := make([]int, len(m.atLeast))
	for j := 1; j < len(profile); j++ {
		for _, l := range m.atLeast[j] {
			if b.Value(l) {
				profile[j]++
			}
		}
	}
	regions, err := decomposition.RegionsFromProfile(m.k, profile)
	if err != nil {
		return nil, errors.Wrap(err, "decoding solver profile")
	}
	return decomposition.Materialize(regions), nil
}

func negate(ms []Lit) []Lit {
	out := make([]Lit, len(ms))
	for i, m := range ms {
		out[i] = m.Not()
	}
	return out
}

// circuit builds fixed-width binary arithmetic, folding constants so that
// the model only holds gates whose inputs can vary.
type circuit struct {
	b ModelBuilder
	t Lit
}

func (c *circuit) f() Lit {
	return c.t.Not()
}

func (c *circuit) and(x, y Lit) Lit {
	switch {
	case x == c.f() || y == c.f() || x == y.Not():
		return c.f()
	case x == c.t || x == y:
		return y
	case y == c.t:
		return x
	}
	return c.b.And(x, y)
}

func (c *circuit) or(x, y Lit) Lit {
	return c.and(x.Not(), y.Not()).Not()
}

func (c *circuit) xor(x, y Lit) Lit {
	switch {
	case x == c.f():
		return y
	case y == c.f():
		return x
	case x == c.t:
		return y.Not()
	case y == c.t:
		return x.Not()
	case x == y:
		return c.f()
	case x == y.Not():
		return c.t
	}
	return c.b.Xor(x, y)
}

func (c *circuit) constant(n, width int) []Lit {
	out := make([]Lit, width)
	for i := range out {
		out[i] = c.f()
		if n>>uint(i)&1 == 1 {
			out[i] = c.t
		}
	}
	return out
}

// add returns x + y modulo 2^len(x) as a ripple-carry adder.
func (c *circuit) add(x, y []Lit) []Lit {
	sum := make([]Lit, len(x))
	carry := c.f()
	for i := range x {
		half := c.xor(x[i], y[i])
		sum[i] = c.xor(half, carry)
		carry = c.or(c.and(x[i], y[i]), c.and(half, carry))
	}
	return sum
}

func (c *circuit) equal(x, y []Lit) {
	for i := range x {
		if x[i] == y[i] {
			continue
		}
		c.b.AddClause(x[i].Not(), y[i])
		c.b.AddClause(x[i], y[i].Not())
	}
}
