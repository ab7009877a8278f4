package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/operator-framework/alpha-decomposition/pkg/adf"
	"github.com/operator-framework/alpha-decomposition/pkg/decomposition"
	"github.com/operator-framework/alpha-decomposition/pkg/metrics"
	"github.com/operator-framework/alpha-decomposition/pkg/oracle"
	"github.com/operator-framework/alpha-decomposition/pkg/search"
)

// report is the printable outcome of one decision.
type report struct {
	N       int     `json:"n"`
	K       int     `json:"k"`
	Status  string  `json:"status"`
	Source  string  `json:"source"`
	Witness [][]int `json:"witness,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Elapsed string  `json:"elapsed"`

	witness decomposition.Decomposition
	code    int
}

func (r *report) setWitness(d decomposition.Decomposition) {
	r.witness = d
	r.Witness = make([][]int, len(d))
	for i, s := range d {
		r.Witness[i] = append([]int{}, s...)
	}
}

func (r *report) write(w io.Writer, output string) error {
	switch output {
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "text", "":
		fmt.Fprintf(w, "n=%d k=%d %s (%s, %s)\n", r.N, r.K, r.Status, r.Source, r.Elapsed)
		if r.witness != nil {
			fmt.Fprintln(w, r.witness)
		}
		if r.Reason != "" {
			fmt.Fprintln(w, r.Reason)
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", output)
}

// decide settles α(n) <= k, exhaustively up to the exhaustive bound and
// with the solver above it. Only errors that are not an answer are
// returned.
func (o *options) decide(ctx context.Context, n, k int) (*report, error) {
	r := &report{N: n, K: k}
	start := time.Now()
	defer func() { r.Elapsed = time.Since(start).Round(time.Microsecond).String() }()

	if n <= o.config.ExhaustiveBound {
		r.Source = metrics.SourceSearch
		engine, err := search.NewEngine(append(o.config.EngineOptions(), search.WithLogger(o.logger))...)
		if err != nil {
			return nil, err
		}
		res, err := engine.Decide(ctx, n, k)
		var tooSmall *search.UniverseTooSmallError
		var unsupported *search.UnsupportedError
		switch {
		case err == nil:
			r.Status, r.code = metrics.OutcomeFeasible, exitOK
			r.setWitness(res.Witness)
		case search.IsExhausted(err):
			r.Status, r.code = metrics.OutcomeInfeasible, exitNegative
		case errors.As(err, &tooSmall), errors.As(err, &unsupported):
			r.Status, r.code, r.Reason = metrics.OutcomeUnknown, exitIndecisive, err.Error()
		default:
			return nil, err
		}
		return r, nil
	}

	r.Source = metrics.SourceOracle
	a, err := oracle.New(append(o.config.OracleOptions(), oracle.WithLogger(o.logger))...)
	if err != nil {
		return nil, err
	}
	d, err := a.Decide(ctx, n, k)
	var tooSmall *search.UniverseTooSmallError
	switch {
	case errors.As(err, &tooSmall):
		r.Status, r.code, r.Reason = metrics.OutcomeUnknown, exitIndecisive, err.Error()
		return r, nil
	case err != nil:
		return nil, err
	}
	r.Status = d.Status.String()
	switch d.Status {
	case oracle.Feasible:
		r.code = exitOK
		r.setWitness(d.Witness)
	case oracle.Infeasible:
		r.code = exitNegative
	default:
		r.code, r.Reason = exitIndecisive, oracle.ErrUnknown.Error()
	}
	return r, nil
}

func parseNK(args []string) (int, int, error) {
	n, err := parsePositive("n", args[0])
	if err != nil {
		return 0, 0, err
	}
	k, err := parsePositive("k", args[1])
	if err != nil {
		return 0, 0, err
	}
	return n, k, nil
}

func newDecideCmd(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "decide <n> <k>",
		Short: "Decides whether n is the union cardinality of the submask closures of k sets",
		Long: `Decides whether alpha(n) <= k.

Exit status is 0 when it is, 1 when it is not, 3 when the configured
universe or solver could not settle the question, and 2 on error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, k, err := parseNK(args)
			if err != nil {
				return err
			}
			return o.run(cmd, func(ctx context.Context) error {
				r, err := o.decide(ctx, n, k)
				if err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				if err := r.write(cmd.OutOrStdout(), output); err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				if r.code != exitOK {
					return &exitError{code: r.code}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newWitnessCmd(o *options) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "witness <n> <k>",
		Short: "Writes k sets whose union cardinality is n as a document",
		Long: `Finds k sets whose submask closures have exactly n elements in their union
and writes them in the alpha decomposition format.

Exit status matches decide.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, k, err := parseNK(args)
			if err != nil {
				return err
			}
			return o.run(cmd, func(ctx context.Context) error {
				r, err := o.decide(ctx, n, k)
				if err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				if r.code != exitOK {
					_ = r.write(cmd.ErrOrStderr(), "text")
					return &exitError{code: r.code}
				}

				doc, err := adf.NewDocument(n, r.witness, fmt.Sprintf("found by %s in %s", r.Source, r.Elapsed))
				if err != nil {
					return &exitError{code: exitFailure, err: errors.Wrap(err, "witness cannot be written")}
				}
				if path == "" {
					_, err = doc.WriteTo(cmd.OutOrStdout())
					return wrapFailure(err)
				}
				data, err := adf.Marshal(doc)
				if err != nil {
					return wrapFailure(err)
				}
				return wrapFailure(errors.Wrapf(os.WriteFile(path, data, 0o644), "writing %s", path))
			})
		},
	}
	cmd.Flags().StringVarP(&path, "out", "f", "", "write the document to this file instead of stdout")
	return cmd
}

func newComputeCmd(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compute <n>",
		Short: "Computes alpha(n), the least number of sets representing n",
		Long: `Computes alpha(n) by deciding k = 1, 2, ... up to --max-k with the
exhaustive search.

Exit status is 0 when alpha(n) was found, 1 when it exceeds --max-k, 3 when
the configured universe could not settle it, and 2 on error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parsePositive("n", args[0])
			if err != nil {
				return err
			}
			return o.run(cmd, func(ctx context.Context) error {
				engine, err := search.NewEngine(append(o.config.EngineOptions(), search.WithLogger(o.logger))...)
				if err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				start := time.Now()
				res, err := engine.Alpha(ctx, n)
				r := &report{N: n, K: o.config.MaxK, Source: metrics.SourceSearch, Elapsed: time.Since(start).Round(time.Microsecond).String()}
				var tooSmall *search.UniverseTooSmallError
				var unsupported *search.UnsupportedError
				switch {
				case err == nil:
					r.K, r.Status, r.code = res.K, metrics.OutcomeFeasible, exitOK
					r.setWitness(res.Witness)
				case search.IsExhausted(err):
					r.Status, r.code = metrics.OutcomeInfeasible, exitNegative
				case errors.As(err, &tooSmall), errors.As(err, &unsupported):
					r.Status, r.code, r.Reason = metrics.OutcomeUnknown, exitIndecisive, err.Error()
				default:
					return &exitError{code: exitFailure, err: err}
				}
				if err := r.write(cmd.OutOrStdout(), output); err != nil {
					return &exitError{code: exitFailure, err: err}
				}
				if r.code != exitOK {
					return &exitError{code: r.code}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func wrapFailure(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitFailure, err: err}
}
