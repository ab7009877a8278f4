// Package verifier checks decomposition documents against the
// cardinality they claim.
package verifier

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/operator-framework/alpha-decomposition/pkg/adf"
	"github.com/operator-framework/alpha-decomposition/pkg/bitset"
	"github.com/operator-framework/alpha-decomposition/pkg/metrics"
)

// Method selects how the union cardinality is computed.
type Method string

const (
	// MethodAuto accumulates submasks when the closures are small and
	// falls back to inclusion-exclusion otherwise.
	MethodAuto Method = "auto"
	// MethodAccumulate marks every submask once, component by component.
	// Components whose closures are too large to walk are summed by
	// inclusion-exclusion instead.
	MethodAccumulate Method = "accumulate"
	// MethodInclusionExclusion sums signed terms over the distinct
	// intersections of the sets.
	MethodInclusionExclusion Method = "inclusion-exclusion"
)

// CardinalityMismatchError reports a well-formed document whose sets do
// not represent the claimed cardinality.
type CardinalityMismatchError struct {
	Expected uint64
	Actual   uint64
}

func (e *CardinalityMismatchError) Error() string {
	return fmt.Sprintf("cardinality mismatch: document claims %d, union has %d", e.Expected, e.Actual)
}

// MalformedDocumentError wraps any failure to read or interpret a
// document.
type MalformedDocumentError struct {
	Err error
}

func (e *MalformedDocumentError) Error() string {
	return e.Err.Error()
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// IsMalformed returns true if err reports an unreadable document.
func IsMalformed(err error) bool {
	var malformed *MalformedDocumentError
	return errors.As(err, &malformed)
}

// IsMismatch returns true if err reports a cardinality mismatch.
func IsMismatch(err error) bool {
	var mismatch *CardinalityMismatchError
	return errors.As(err, &mismatch)
}

// Verifier checks documents.
type Verifier struct {
	method Method
	logger logrus.FieldLogger
}

// Option configures a Verifier.
type Option func(*Verifier) error

// WithMethod selects the counting method.
func WithMethod(m Method) Option {
	return func(v *Verifier) error {
		switch m {
		case MethodAuto, MethodAccumulate, MethodInclusionExclusion:
			v.method = m
			return nil
		}
		return fmt.Errorf("unknown verification method %q", m)
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(v *Verifier) error {
		v.logger = logger
		return nil
	}
}

var defaults = []Option{
	WithMethod(MethodAuto),
	WithLogger(logrus.StandardLogger()),
}

// New returns a Verifier configured by options.
func New(options ...Option) (*Verifier, error) {
	var v Verifier
	for _, option := range append(defaults, options...) {
		if err := option(&v); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

// Verify returns nil if the document's sets represent its claimed
// cardinality, a *CardinalityMismatchError if they represent another, or
// a *MalformedDocumentError if they cannot be interpreted. Unions too
// large to count yield a *bitset.BudgetError.
func (v *Verifier) Verify(doc *adf.Document) error {
	actual, err := v.Cardinality(doc)
	if err != nil {
		outcome := metrics.OutcomeError
		if IsMalformed(err) {
			outcome = metrics.OutcomeMalformed
		}
		metrics.ObserveVerification(outcome)
		return err
	}
	logger := v.logger.WithFields(logrus.Fields{"claimed": doc.N, "actual": actual, "k": doc.K})
	if actual != uint64(doc.N) {
		metrics.ObserveVerification(metrics.OutcomeMismatch)
		logger.Debug("verification failed")
		return &CardinalityMismatchError{Expected: uint64(doc.N), Actual: actual}
	}
	metrics.ObserveVerification(metrics.OutcomeValid)
	logger.Debug("verification passed")
	return nil
}

// VerifyReader parses a document from r and verifies it.
func (v *Verifier) VerifyReader(r io.Reader) error {
	doc, err := adf.Parse(r)
	if err != nil {
		metrics.ObserveVerification(metrics.OutcomeMalformed)
		return &MalformedDocumentError{Err: err}
	}
	return v.Verify(doc)
}

// Cardinality computes the union cardinality of the document's sets.
func (v *Verifier) Cardinality(doc *adf.Document) (uint64, error) {
	if err := doc.Validate(); err != nil {
		return 0, &MalformedDocumentError{Err: err}
	}
	masks := make([]uint64, len(doc.Sets))
	for i, s := range doc.Sets {
		m, err := s.Mask(bitset.Max)
		if err != nil {
			return 0, &MalformedDocumentError{Err: errors.Wrapf(err, "set %d", i+1)}
		}
		masks[i] = m
	}

	method := v.method
	if method == MethodAuto {
		method = chooseMethod(masks)
	}
	v.logger.WithField("method", method).Debug("counting union")

	var (
		count uint64
		err   error
	)
	switch method {
	case MethodInclusionExclusion:
		count, err = bitset.InclusionExclusion(masks)
	default:
		count, err = bitset.UnionCardinality(masks)
	}
	var budget *bitset.BudgetError
	if errors.As(err, &budget) {
		return 0, errors.Wrap(err, "counting union")
	}
	if err != nil {
		return 0, &MalformedDocumentError{Err: err}
	}
	return count, nil
}

func chooseMethod(masks []uint64) Method {
	if bitset.ClosureSize(bitset.Maximal(masks)) > bitset.AccumulateBudget {
		return MethodInclusionExclusion
	}
	return MethodAccumulate
}

// Verify checks a document with the default Verifier.
func Verify(doc *adf.Document) error {
	v, err := New()
	if err != nil {
		return err
	}
	return v.Verify(doc)
}

// VerifyReader checks a serialized document with the default Verifier.
func VerifyReader(r io.Reader) error {
	v, err := New()
	if err != nil {
		return err
	}
	return v.VerifyReader(r)
}
