package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/operator-framework/alpha-decomposition/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the alpha version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}
