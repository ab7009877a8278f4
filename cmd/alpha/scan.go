package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/operator-framework/alpha-decomposition/pkg/oracle"
	"github.com/operator-framework/alpha-decomposition/pkg/scanner"
	"github.com/operator-framework/alpha-decomposition/pkg/search"
)

func newScanCmd(o *options) *cobra.Command {
	var (
		task           scanner.Task
		checkpointPath string
	)
	cmd := &cobra.Command{
		Use:   "scan --k K --start S --end E",
		Short: "Finds the first n in a range that needs more than k sets",
		Long: `Scans [start, end] in ascending order for the first n with alpha(n) > k.
Values up to --exhaustive-bound are decided by exhaustive search, larger ones
by the solver. With --checkpoint an interrupted scan resumes where it stopped.

Exit status is 0 when a counterexample is found, 1 when the whole range is
representable, and 2 on error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context) error {
				// The scanner fans out across n, so each decision runs on one goroutine.
				engine, err := search.NewEngine(append(o.config.EngineOptions(), search.WithWorkers(1), search.WithLogger(o.logger))...)
				if err != nil {
					return wrapFailure(err)
				}
				a, err := oracle.New(append(o.config.OracleOptions(), oracle.WithLogger(o.logger))...)
				if err != nil {
					return wrapFailure(err)
				}
				options := append(o.config.ScannerOptions(),
					scanner.WithEngine(engine),
					scanner.WithOracle(a),
					scanner.WithLogger(o.logger),
				)
				if checkpointPath != "" {
					options = append(options, scanner.WithCheckpoint(checkpointPath, o.config.CheckpointInterval))
				}
				s, err := scanner.New(options...)
				if err != nil {
					return wrapFailure(err)
				}

				n, found, err := s.Run(ctx, task)
				if err != nil {
					return wrapFailure(err)
				}
				if !found {
					fmt.Fprintf(cmd.OutOrStdout(), "every n in [%d, %d] has alpha(n) <= %d\n", task.Start, task.End, task.K)
					return &exitError{code: exitNegative}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&task.K, "k", 0, "number of sets")
	cmd.Flags().IntVar(&task.Start, "start", 1, "first n to check")
	cmd.Flags().IntVar(&task.End, "end", 0, "last n to check")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "YAML file recording scan progress")
	_ = cmd.MarkFlagRequired("k")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
