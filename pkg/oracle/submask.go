package oracle

import (
	"math/bits"

	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
)

// SubmaskUniverse bounds the universe of the submask encoding, which holds
// one coverage literal per integer below 2^U.
const SubmaskUniverse = 16

// submaskModel places k sets directly in a u-position universe:
// x[i][p] says position p belongs to set i.
type submaskModel [][]Lit

// encodeSubmasks builds the model in which one coverage literal per
// integer v < 2^u says v is a submask of some set. Exactly n coverage
// literals must hold.
func encodeSubmasks(b ModelBuilder, n, k, u int) submaskModel {
	x := make(submaskModel, k)
	for i := range x {
		x[i] = make([]Lit, u)
		for p := range x[i] {
			x[i][p] = b.NewVar()
		}
		if n > 1 && u > 0 {
			b.AddClause(x[i]...)
		}
	}

	// within[i][v] holds when v is a submask of set i. Each entry extends
	// the entry for v without its highest bit by one conjunction.
	within := make([][]Lit, k)
	for i := range within {
		within[i] = make([]Lit, 1<<uint(u))
		within[i][0] = b.True()
		for v := 1; v < len(within[i]); v++ {
			high := bits.Len(uint(v)) - 1
			within[i][v] = b.And(within[i][v&^(1<<uint(high))], x[i][high])
		}
	}

	covered := make([]Lit, 1<<uint(u))
	column := make([]Lit, k)
	for v := range covered {
		for i := range column {
			column[i] = within[i][v]
		}
		covered[v] = b.Or(column...)
	}
	b.AddExactly(covered, n)
	return x
}

func (x submaskModel) witness(b ModelBuilder) (decomposition.Decomposition, error) {
	d := make(decomposition.Decomposition, len(x))
	for i, row := range x {
		d[i] = decomposition.Set{}
		for p, m := range row {
			if b.Value(m) {
				d[i] = append(d[i], p)
			}
		}
	}
	return d, nil
}
