package oracle

import (
	"context"
	"time"
)

// Lit is a possibly negated model variable. Negative values are
// negations; the zero Lit is invalid.
type Lit int32

// Not returns the negation of m.
func (m Lit) Not() Lit {
	return -m
}

// Status is the outcome of solving a model.
type Status int

const (
	Infeasible Status = -1
	Unknown    Status = 0
	Feasible   Status = 1
)

func (s Status) String() string {
	switch s {
	case Feasible:
		return "feasible"
	case Infeasible:
		return "infeasible"
	}
	return "unknown"
}

// ModelBuilder accumulates a boolean model and solves it. Implementations
// wrap a concrete constraint solver.
type ModelBuilder interface {
	// NewVar returns a fresh unconstrained variable.
	NewVar() Lit
	// True returns a literal that always holds.
	True() Lit
	// And returns a literal equivalent to the conjunction of ms; the
	// empty conjunction is True.
	And(ms ...Lit) Lit
	// Or returns a literal equivalent to the disjunction of ms; the empty
	// disjunction is false.
	Or(ms ...Lit) Lit
	// Xor returns a literal that holds when exactly one of m and n does.
	Xor(m, n Lit) Lit
	// AddClause requires at least one of ms to hold.
	AddClause(ms ...Lit)
	// AddExactly requires exactly n of ms to hold.
	AddExactly(ms []Lit, n int)
	// AddAtLeast requires n or more of ms to hold.
	AddAtLeast(ms []Lit, n int)
	// AddAtMost requires n or fewer of ms to hold.
	AddAtMost(ms []Lit, n int)
	// Vars reports the size of the model built so far.
	Vars() int
	// Solve searches for an assignment, giving up after timeout when it
	// is positive or when ctx is done.
	Solve(ctx context.Context, timeout time.Duration) (Status, error)
	// Value reports m under the assignment found by the last feasible
	// Solve.
	Value(m Lit) bool
}
