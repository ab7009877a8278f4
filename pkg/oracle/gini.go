package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

type inconsistentModel []error

func (e inconsistentModel) Error() string {
	s := make([]string, len(e))
	for i, err := range e {
		s[i] = err.Error()
	}
	return fmt.Sprintf("%d errors encountered building model: %s", len(s), strings.Join(s, ", "))
}

// GiniBuilder is a ModelBuilder backed by a gini circuit. Gates are built
// in a logic.C and translated to CNF when Solve is called; every
// constraint is a circuit literal assumed true.
type GiniBuilder struct {
	c           *logic.C
	g           *gini.Gini
	constraints []z.Lit
	errs        inconsistentModel
}

var _ ModelBuilder = &GiniBuilder{}

// NewGiniBuilder returns an empty model.
func NewGiniBuilder() *GiniBuilder {
	return &GiniBuilder{c: logic.NewC()}
}

func (b *GiniBuilder) toLit(m z.Lit) Lit {
	v := Lit(m.Var())
	if m.IsPos() {
		return v
	}
	return -v
}

func (b *GiniBuilder) litOf(m Lit) z.Lit {
	switch {
	case m > 0:
		return z.Var(m).Pos()
	case m < 0:
		return z.Var(-m).Neg()
	}
	b.errs = append(b.errs, fmt.Errorf("null literal referenced"))
	return b.c.F
}

func (b *GiniBuilder) litsOf(ms []Lit) []z.Lit {
	out := make([]z.Lit, len(ms))
	for i, m := range ms {
		out[i] = b.litOf(m)
	}
	return out
}

func (b *GiniBuilder) NewVar() Lit {
	return b.toLit(b.c.Lit())
}

func (b *GiniBuilder) True() Lit {
	return b.toLit(b.c.T)
}

func (b *GiniBuilder) And(ms ...Lit) Lit {
	return b.toLit(b.c.Ands(b.litsOf(ms)...))
}

func (b *GiniBuilder) Or(ms ...Lit) Lit {
	return b.toLit(b.c.Ors(b.litsOf(ms)...))
}

func (b *GiniBuilder) Xor(m, n Lit) Lit {
	return b.toLit(b.c.Xor(b.litOf(m), b.litOf(n)))
}

func (b *GiniBuilder) AddClause(ms ...Lit) {
	b.constraints = append(b.constraints, b.c.Ors(b.litsOf(ms)...))
}

func (b *GiniBuilder) AddExactly(ms []Lit, n int) {
	cs := b.c.CardSort(b.litsOf(ms))
	b.constraints = append(b.constraints, cs.Leq(n), cs.Geq(n))
}

func (b *GiniBuilder) AddAtLeast(ms []Lit, n int) {
	b.constraints = append(b.constraints, b.c.CardSort(b.litsOf(ms)).Geq(n))
}

func (b *GiniBuilder) AddAtMost(ms []Lit, n int) {
	b.constraints = append(b.constraints, b.c.CardSort(b.litsOf(ms)).Leq(n))
}

func (b *GiniBuilder) Vars() int {
	return b.c.Len()
}

// Solve translates the circuit and runs gini in the background until it
// answers, the timeout passes, or ctx is done.
func (b *GiniBuilder) Solve(ctx context.Context, timeout time.Duration) (Status, error) {
	if len(b.errs) > 0 {
		return Unknown, b.errs
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	b.g = gini.New()
	b.c.ToCnf(b.g)
	b.g.Assume(b.constraints...)

	switch waitForSolution(ctx, b.g.GoSolve()) {
	case satisfiable:
		return Feasible, nil
	case unsatisfiable:
		return Infeasible, nil
	}
	return Unknown, nil
}

func (b *GiniBuilder) Value(m Lit) bool {
	if b.g == nil {
		return false
	}
	zm := b.litOf(m)
	if zm.Var() > b.g.MaxVar() {
		// Never reached the solver, so unconstrained.
		return false
	}
	return b.g.Value(zm)
}

func waitForSolution(ctx context.Context, gs inter.Solve) int {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return gs.Stop()
		case <-t.C:
			if result, ok := gs.Test(); ok {
				return result
			}
		}
	}
}
