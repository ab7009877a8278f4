// Package scanner searches integer ranges for the first n whose α(n)
// exceeds a given k, routing each decision to the exhaustive search or
// the solver-backed oracle by size.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/operator-framework/alpha-decomposition/pkg/metrics"
	"github.com/operator-framework/alpha-decomposition/pkg/oracle"
	"github.com/operator-framework/alpha-decomposition/pkg/search"
)

// DefaultExhaustiveBound is the largest n sent to the exhaustive search
// by default.
const DefaultExhaustiveBound = 1 << 20

// Exhaustive decides with the search engine.
type Exhaustive interface {
	Decide(ctx context.Context, n, k int) (*search.Result, error)
}

// Oracle decides with a constraint solver.
type Oracle interface {
	Decide(ctx context.Context, n, k int) (*oracle.Decision, error)
}

// Task is a closed interval of n to scan against k.
type Task struct {
	K     int `yaml:"k"`
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// UnknownError reports an n the oracle could not classify.
type UnknownError struct {
	N int
	K int
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("could not decide whether %d needs more than %d sets", e.N, e.K)
}

func (e *UnknownError) Unwrap() error {
	return oracle.ErrUnknown
}

// Scanner walks ranges in ascending order.
type Scanner struct {
	engine             Exhaustive
	oracle             Oracle
	bound              int
	workers            int
	checkpointPath     string
	checkpointInterval time.Duration
	progressInterval   time.Duration
	logger             logrus.FieldLogger
}

// Option configures a Scanner.
type Option func(*Scanner) error

// WithEngine sets the exhaustive decider.
func WithEngine(e Exhaustive) Option {
	return func(s *Scanner) error {
		s.engine = e
		return nil
	}
}

// WithOracle sets the solver-backed decider.
func WithOracle(o Oracle) Option {
	return func(s *Scanner) error {
		s.oracle = o
		return nil
	}
}

// WithExhaustiveBound routes every n up to bound to the exhaustive
// search and larger n to the oracle.
func WithExhaustiveBound(bound int) Option {
	return func(s *Scanner) error {
		if bound < 0 {
			return fmt.Errorf("exhaustive bound must not be negative, got %d", bound)
		}
		s.bound = bound
		return nil
	}
}

// WithWorkers sets how many values are classified concurrently.
func WithWorkers(n int) Option {
	return func(s *Scanner) error {
		if n < 1 {
			n = 1
		}
		s.workers = n
		return nil
	}
}

// WithCheckpoint persists progress to path at most once per interval and
// whenever the scan stops.
func WithCheckpoint(path string, interval time.Duration) Option {
	return func(s *Scanner) error {
		s.checkpointPath = path
		s.checkpointInterval = interval
		return nil
	}
}

// WithProgressInterval sets how often progress is logged.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Scanner) error {
		s.progressInterval = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Scanner) error {
		s.logger = logger
		return nil
	}
}

var defaults = []Option{
	WithExhaustiveBound(DefaultExhaustiveBound),
	WithWorkers(1),
	WithProgressInterval(30 * time.Second),
	WithLogger(logrus.StandardLogger()),
}

// New returns a Scanner configured by options. Deciders that are not
// supplied are built with their package defaults.
func New(options ...Option) (*Scanner, error) {
	var s Scanner
	for _, option := range append(defaults, options...) {
		if err := option(&s); err != nil {
			return nil, err
		}
	}
	if s.engine == nil {
		e, err := search.NewEngine(search.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.engine = e
	}
	if s.oracle == nil {
		o, err := oracle.New(oracle.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.oracle = o
	}
	return &s, nil
}

// Classify returns true if n is the union cardinality of k sets.
func (s *Scanner) Classify(ctx context.Context, n, k int) (bool, error) {
	if n <= s.bound {
		_, err := s.engine.Decide(ctx, n, k)
		if err == nil {
			return true, nil
		}
		if search.IsExhausted(err) {
			return false, nil
		}
		return false, err
	}

	d, err := s.oracle.Decide(ctx, n, k)
	if err != nil {
		return false, err
	}
	switch d.Status {
	case oracle.Feasible:
		return true, nil
	case oracle.Infeasible:
		return false, nil
	}
	return false, &UnknownError{N: n, K: k}
}

// Run scans the task's interval.
func (s *Scanner) Run(ctx context.Context, t Task) (n int, found bool, err error) {
	return s.FindFirstExceeding(ctx, t.K, t.Start, t.End)
}

// FindFirstExceeding returns the smallest n in [start, end] that is not
// the union cardinality of k sets. found is false when every n in the
// range is.
func (s *Scanner) FindFirstExceeding(ctx context.Context, k, start, end int) (n int, found bool, err error) {
	if k < 1 {
		return 0, false, fmt.Errorf("k must be positive, got %d", k)
	}
	if start < 1 || end < start {
		return 0, false, fmt.Errorf("invalid range [%d, %d]", start, end)
	}
	logger := s.logger.WithFields(logrus.Fields{"k": k, "start": start, "end": end})
	task := Task{K: k, Start: start, End: end}

	cp, err := NewCheckpoint(task)
	if err != nil {
		return 0, false, err
	}
	if s.checkpointPath != "" {
		loaded, err := LoadCheckpoint(s.checkpointPath)
		if err != nil {
			return 0, false, err
		}
		if loaded != nil && loaded.Matches(task) {
			if len(loaded.Found) > 0 {
				logger.WithField("n", loaded.Found[0]).Info("counterexample already recorded")
				return loaded.Found[0], true, nil
			}
			cp = loaded
			logger.WithField("lastChecked", cp.LastChecked).Info("resuming scan")
		}
	}

	progress := rate.Sometimes{Interval: s.progressInterval}
	began, resumedAt := time.Now(), cp.LastChecked
	lastSave := time.Now()
	save := func() error {
		if s.checkpointPath == "" {
			return nil
		}
		lastSave = time.Now()
		return cp.Save(s.checkpointPath)
	}

	for lo := cp.LastChecked + 1; lo <= end; lo += s.workers {
		hi := lo + s.workers - 1
		if hi > end {
			hi = end
		}
		checked, exceeding, err := s.scanWindow(ctx, k, lo, hi)
		cp.Checks += checked - cp.LastChecked
		cp.LastChecked = checked
		metrics.SetScanLastChecked(k, checked)
		if err != nil {
			if serr := save(); serr != nil {
				logger.WithError(serr).Warn("failed to save checkpoint")
			}
			return 0, false, errors.Wrapf(err, "classifying %d", checked+1)
		}
		if exceeding > 0 {
			cp.Found = append(cp.Found, exceeding)
			metrics.EmitScanCounterexample(k)
			logger.WithField("n", exceeding).Info("found counterexample")
			return exceeding, true, save()
		}

		progress.Do(func() {
			elapsed := time.Since(began)
			logger.WithFields(logrus.Fields{
				"lastChecked": checked,
				"elapsed":     elapsed.Round(time.Second),
				"perSecond":   float64(checked-resumedAt) / elapsed.Seconds(),
			}).Info("scan progress")
		})
		if s.checkpointPath != "" && time.Since(lastSave) >= s.checkpointInterval {
			if err := save(); err != nil {
				return 0, false, err
			}
		}
	}
	logger.Info("no counterexample in range")
	return 0, false, save()
}

// scanWindow classifies [lo, hi] and returns the last n known feasible
// in an unbroken run from lo-1, plus the first infeasible n if any.
func (s *Scanner) scanWindow(ctx context.Context, k, lo, hi int) (checked, exceeding int, err error) {
	type outcome struct {
		feasible bool
		err      error
	}
	results := make([]outcome, hi-lo+1)

	if len(results) == 1 {
		results[0].feasible, results[0].err = s.Classify(ctx, lo, k)
	} else {
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i := range results {
			i := i
			g.Go(func() error {
				results[i].feasible, results[i].err = s.Classify(ctx, lo+i, k)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, r := range results {
		if r.err != nil {
			return lo + i - 1, 0, r.err
		}
		if !r.feasible {
			return lo + i, lo + i, nil
		}
	}
	return hi, 0, nil
}
