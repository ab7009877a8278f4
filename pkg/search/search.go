// Package search decides exactly whether an integer n is the union
// cardinality of the submask closures of k bit-position sets, and finds
// α(n), the least such k.
package search

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/operator-framework/alpha-decomposition/pkg/bitset"
	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
	"github.com/operator-framework/alpha-decomposition/pkg/metrics"
)

// Strategy names a search algorithm.
type Strategy string

const (
	// StrategyLevel assigns intersection sizes one binary digit of n at a
	// time. It is the default.
	StrategyLevel Strategy = "level"
	// StrategyMask picks concrete masks set by set and counts their union
	// incrementally. It is slower and serves as a cross-check.
	StrategyMask Strategy = "mask"
)

// Validate returns an error unless s names a known strategy.
func (s Strategy) Validate() error {
	switch s {
	case StrategyLevel, StrategyMask:
		return nil
	}
	return fmt.Errorf("unknown search strategy %q", s)
}

// MaxLevelK is the largest k the level strategy handles; the 2^k - 1
// index sets must fit in one word.
const MaxLevelK = 6

// MaxMaskWidth is the widest universe the mask strategy walks.
const MaxMaskWidth = bitset.DenseWidth

// Result is a successful decision: Witness holds exactly K sets whose
// union cardinality is N.
type Result struct {
	N        int
	K        int
	Witness  decomposition.Decomposition
	Strategy Strategy
	Nodes    uint64
	Elapsed  time.Duration
}

// Engine runs exhaustive searches.
type Engine struct {
	universe int
	maxK     int
	strategy Strategy
	workers  int
	logger   logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithUniverse bounds the bit positions witnesses may use.
func WithUniverse(u int) Option {
	return func(e *Engine) error {
		if u < 1 || u > bitset.MaxBound {
			return fmt.Errorf("universe must be between 1 and %d, got %d", bitset.MaxBound, u)
		}
		e.universe = u
		return nil
	}
}

// WithMaxK bounds the number of sets Alpha tries.
func WithMaxK(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			return fmt.Errorf("max k must be positive, got %d", k)
		}
		e.maxK = k
		return nil
	}
}

// WithStrategy selects the search algorithm.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) error {
		if err := s.Validate(); err != nil {
			return err
		}
		e.strategy = s
		return nil
	}
}

// WithWorkers sets how many goroutines share one decision. Values below
// two search sequentially.
func WithWorkers(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		e.workers = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

var defaults = []Option{
	WithUniverse(bitset.MaxBound),
	WithMaxK(MaxLevelK),
	WithStrategy(StrategyLevel),
	WithWorkers(1),
	WithLogger(logrus.StandardLogger()),
}

// NewEngine returns an Engine configured by options.
func NewEngine(options ...Option) (*Engine, error) {
	var e Engine
	for _, option := range append(defaults, options...) {
		if err := option(&e); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// Decide looks for k sets whose union cardinality is n. It returns a
// Result when one exists, an *ExhaustedError when none does, and an
// *UniverseTooSmallError when the configured universe cannot settle the
// question. Since α is monotone in k, a nil error means α(n) <= k.
func (e *Engine) Decide(ctx context.Context, n, k int) (*Result, error) {
	if n < 1 {
		return nil, fmt.Errorf("n must be positive, got %d", n)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	logger := e.logger.WithFields(logrus.Fields{"n": n, "k": k, "strategy": e.strategy})
	start := time.Now()

	res, err := e.decide(ctx, n, k)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeFeasible
	switch {
	case err == nil:
		res.Elapsed = elapsed
		metrics.AddSearchNodes(string(e.strategy), res.Nodes)
		logger.WithFields(logrus.Fields{"nodes": res.Nodes, "elapsed": elapsed}).Debug("found decomposition")
	case IsExhausted(err):
		outcome = metrics.OutcomeInfeasible
		logger.WithField("elapsed", elapsed).Debug("search exhausted")
	default:
		outcome = metrics.OutcomeError
		logger.WithError(err).Debug("search failed")
	}
	metrics.ObserveDecision(metrics.SourceSearch, outcome, elapsed)
	return res, err
}

func (e *Engine) decide(ctx context.Context, n, k int) (*Result, error) {
	if n == 1 {
		// Only the empty set has a closure of size one.
		witness := make(decomposition.Decomposition, k)
		for i := range witness {
			witness[i] = decomposition.Set{}
		}
		return &Result{N: n, K: k, Witness: witness, Strategy: e.strategy}, nil
	}
	if e.universe < bitset.MaxBound && uint64(n) > uint64(1)<<uint(e.universe) {
		return nil, &UniverseTooSmallError{N: n, K: k, Universe: e.universe, Required: bits.Len64(uint64(n - 1))}
	}

	var (
		res *Result
		err error
	)
	switch e.strategy {
	case StrategyMask:
		res, err = e.decideMask(ctx, n, k)
	default:
		if k > MaxLevelK {
			return nil, &UnsupportedError{Strategy: StrategyLevel, K: k, MaxK: MaxLevelK}
		}
		res, err = e.decideLevel(ctx, n, k)
	}
	if err != nil {
		return nil, err
	}

	ok, err := res.Witness.IsWitnessFor(n)
	if err != nil {
		return nil, errors.Wrap(err, "checking witness")
	}
	if !ok {
		return nil, fmt.Errorf("search produced a witness that does not represent %d: %s", n, res.Witness)
	}
	return res, nil
}

// Alpha returns the smallest k whose Decide succeeds, trying k = 1, 2,
// ... up to the configured maximum.
func (e *Engine) Alpha(ctx context.Context, n int) (*Result, error) {
	start := time.Now()
	for k := 1; k <= e.maxK; k++ {
		res, err := e.Decide(ctx, n, k)
		if err == nil {
			res.Elapsed = time.Since(start)
			return res, nil
		}
		if !IsExhausted(err) {
			return nil, err
		}
	}
	return nil, &ExhaustedError{N: n, K: e.maxK}
}

// maxExponent is ⌊log2 n⌋, the largest size any set of a witness for n
// can have.
func maxExponent(n int) int {
	return bits.Len64(uint64(n)) - 1
}
