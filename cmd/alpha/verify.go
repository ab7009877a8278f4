package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/operator-framework/alpha-decomposition/pkg/verifier"
)

func newVerifyCmd(o *options) *cobra.Command {
	var (
		method   string
		watchDir string
	)
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Checks that a document's sets represent its declared n",
		Long: `Recomputes the union cardinality of the document's sets independently of
how they were found.

Exit status is 0 when the document is valid, 1 when the cardinality differs,
and 2 when the document is malformed or unreadable. With --watch every .adf
file created or written in the directory is verified until interrupted.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if watchDir != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := verifier.New(verifier.WithMethod(verifier.Method(method)), verifier.WithLogger(o.logger))
			if err != nil {
				return wrapFailure(err)
			}
			out := cmd.OutOrStdout()

			return o.run(cmd, func(ctx context.Context) error {
				if watchDir != "" {
					return wrapFailure(v.Watch(ctx, watchDir, func(path string, err error) {
						fmt.Fprintf(out, "%s: %s\n", path, describe(err))
					}))
				}

				err := v.VerifyFile(args[0])
				fmt.Fprintf(out, "%s: %s\n", args[0], describe(err))
				switch {
				case err == nil:
					return nil
				case verifier.IsMismatch(err):
					return &exitError{code: exitNegative}
				}
				return &exitError{code: exitFailure}
			})
		},
	}
	cmd.Flags().StringVar(&method, "method", string(verifier.MethodAuto), "cardinality method: auto, accumulate or inclusion-exclusion")
	cmd.Flags().StringVar(&watchDir, "watch", "", "verify documents written to this directory until interrupted")
	return cmd
}

func describe(err error) string {
	if err == nil {
		return "valid"
	}
	return err.Error()
}
