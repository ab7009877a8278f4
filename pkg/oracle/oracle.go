// Package oracle decides α(n) <= k by handing a boolean model of the
// problem to a general constraint solver. It complements the exhaustive
// search for values of n beyond what enumeration reaches.
package oracle

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
	"github.com/operator-framework/alpha-decomposition/pkg/search"
)

// MaxUniverse bounds the positions a witness may span.
const MaxUniverse = bitset.MaxBound

// Encoding selects how a decision is modelled.
type Encoding string

const (
	// EncodingProfile models the intersection sizes of the sets and
	// matches n by inclusion–exclusion in binary arithmetic.
	EncodingProfile Encoding = "profile"
	// EncodingSubmask models positions and one coverage literal per value
	// below 2^U. It is only practical for small n.
	EncodingSubmask Encoding = "submask"
)

type witnessModel interface {
	witness(b ModelBuilder) (decomposition.Decomposition, error)
}

// ErrUnknown is returned by callers that need an error for a decision
// the solver left open.
var ErrUnknown = errors.New("solver could not decide")

// DecodeError reports a feasible model whose decoded sets do not
// represent the requested cardinality.
type DecodeError struct {
	N       int
	K       int
	Witness decomposition.Decomposition
	Actual  uint64
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoded decomposition %s has union cardinality %d, not %d", e.Witness, e.Actual, e.N)
}

// Decision is the outcome of one oracle call. Witness is set only when
// Status is Feasible.
type Decision struct {
	N        int
	K        int
	Status   Status
	Witness  decomposition.Decomposition
	Universe int
	Vars     int
	Elapsed  time.Duration
}

// Adapter encodes decisions as models and interprets the solver's
// answer.
type Adapter struct {
	newBuilder func() ModelBuilder
	encoding   Encoding
	universe   int
	timeout    time.Duration
	logger     logrus.FieldLogger
}

// Option configures an Adapter.
type Option func(*Adapter) error

// WithBuilder sets the constructor for the per-decision model.
func WithBuilder(newBuilder func() ModelBuilder) Option {
	return func(a *Adapter) error {
		a.newBuilder = newBuilder
		return nil
	}
}

// WithEncoding selects the model.
func WithEncoding(e Encoding) Option {
	return func(a *Adapter) error {
		switch e {
		case EncodingProfile, EncodingSubmask:
			a.encoding = e
			return nil
		}
		return fmt.Errorf("unknown oracle encoding %q", e)
	}
}

// WithUniverse caps the number of bit positions a model spans.
func WithUniverse(u int) Option {
	return func(a *Adapter) error {
		if u < 1 || u > MaxUniverse {
			return fmt.Errorf("oracle universe must be between 1 and %d, got %d", MaxUniverse, u)
		}
		a.universe = u
		return nil
	}
}

// WithTimeout bounds each solve. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) error {
		a.timeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Adapter) error {
		a.logger = logger
		return nil
	}
}

var defaults = []Option{
	WithBuilder(func() ModelBuilder { return NewGiniBuilder() }),
	WithEncoding(EncodingProfile),
	WithUniverse(MaxUniverse),
	WithLogger(logrus.StandardLogger()),
}

// New returns an Adapter configured by options.
func New(options ...Option) (*Adapter, error) {
	var a Adapter
	for _, option := range append(defaults, options...) {
		if err := option(&a); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// Decide asks the solver whether n is the union cardinality of k sets.
//
// Every set of a witness has at most ⌊log2 n⌋ positions, so k·⌊log2 n⌋
// positions always suffice. The profile encoding decides without placing
// positions and only re-solves inside the configured universe when its
// witness is wider; if no witness fits, a *search.UniverseTooSmallError
// is returned. The submask encoding places positions directly, so there
// an infeasible answer inside a narrower universe yields the same error.
// Solver timeouts yield Status Unknown.
func (a *Adapter) Decide(ctx context.Context, n, k int) (*Decision, error) {
	if n < 1 {
		return nil, fmt.Errorf("n must be positive, got %d", n)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	start := time.Now()

	sufficient := k * (bits.Len64(uint64(n)) - 1)
	u := sufficient
	if u > a.universe {
		u = a.universe
	}
	if a.encoding == EncodingSubmask && u > SubmaskUniverse {
		u = SubmaskUniverse
	}
	if u < sufficient && uint64(n) > uint64(1)<<uint(u) {
		return nil, &search.UniverseTooSmallError{N: n, K: k, Universe: u, Required: bits.Len64(uint64(n - 1))}
	}

	d := &Decision{N: n, K: k, Universe: u}
	logger := a.logger.WithFields(logrus.Fields{"n": n, "k": k, "encoding": a.encoding, "universe": u})
	var err error
	if a.encoding == EncodingSubmask {
		d.Status, d.Witness, err = a.solve(ctx, logger, d, func(b ModelBuilder) witnessModel {
			return encodeSubmasks(b, n, k, u)
		})
		if err == nil && d.Status == Infeasible && u < sufficient {
			err = &search.UniverseTooSmallError{N: n, K: k, Universe: u, Required: sufficient}
		}
	} else {
		d.Status, d.Witness, err = a.solve(ctx, logger, d, func(b ModelBuilder) witnessModel {
			return encodeProfile(b, n, k, sufficient)
		})
		if required := positions(d.Witness); err == nil && required > u {
			logger.WithField("required", required).Debug("witness exceeds universe, solving again inside it")
			d.Status, d.Witness, err = a.solve(ctx, logger, d, func(b ModelBuilder) witnessModel {
				return encodeProfile(b, n, k, u)
			})
			if err == nil && d.Status == Infeasible {
				err = &search.UniverseTooSmallError{N: n, K: k, Universe: u, Required: required}
			}
		}
	}
	if err == nil && d.Status == Feasible {
		err = verifyWitness(d)
	}
	d.Elapsed = time.Since(start)

	if err != nil {
		outcome := metrics.OutcomeError
		var small *search.UniverseTooSmallError
		if errors.As(err, &small) {
			outcome = metrics.OutcomeUnknown
		}
		metrics.ObserveDecision(metrics.SourceOracle, outcome, d.Elapsed)
		return nil, err
	}
	switch d.Status {
	case Feasible:
		metrics.ObserveDecision(metrics.SourceOracle, metrics.OutcomeFeasible, d.Elapsed)
	case Infeasible:
		metrics.ObserveDecision(metrics.SourceOracle, metrics.OutcomeInfeasible, d.Elapsed)
	default:
		metrics.ObserveDecision(metrics.SourceOracle, metrics.OutcomeUnknown, d.Elapsed)
	}
	logger.WithFields(logrus.Fields{"status": d.Status, "vars": d.Vars, "elapsed": d.Elapsed}).Debug("model solved")
	return d, nil
}

// solve builds one fresh model and returns the solver's answer, plus the
// decoded witness when it is feasible.
func (a *Adapter) solve(ctx context.Context, logger logrus.FieldLogger, d *Decision, encode func(ModelBuilder) witnessModel) (Status, decomposition.Decomposition, error) {
	b := a.newBuilder()
	model := encode(b)
	d.Vars += b.Vars()
	logger.WithField("vars", b.Vars()).Debug("solving model")

	status, err := b.Solve(ctx, a.timeout)
	if err != nil {
		return Unknown, nil, err
	}
	if status == Unknown && ctx.Err() != nil {
		return Unknown, nil, ctx.Err()
	}
	if status != Feasible {
		return status, nil, nil
	}
	w, err := model.witness(b)
	if err != nil {
		return Unknown, nil, err
	}
	return Feasible, w, nil
}

func verifyWitness(d *Decision) error {
	ok, err := d.Witness.IsWitnessFor(d.N)
	if err != nil {
		return err
	}
	if !ok {
		actual, _ := d.Witness.UnionCardinality()
		return &DecodeError{N: d.N, K: d.K, Witness: d.Witness, Actual: actual}
	}
	return nil
}

// positions counts the distinct positions a decomposition uses.
func positions(d decomposition.Decomposition) int {
	seen := map[int]struct{}{}
	for _, s := range d {
		for _, p := range s {
			seen[p] = struct{}{}
		}
	}
	return len(seen)
}
