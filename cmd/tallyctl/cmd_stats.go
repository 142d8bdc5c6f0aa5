package main

import (
	"github.com/spf13/cobra"
)

func newAggregateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Run one aggregation pass and print its result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := commandContext(cmd, opts)
			defer cancel()

			result, err := s.domain.Stats.Aggregate(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
