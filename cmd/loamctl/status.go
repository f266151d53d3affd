package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/loam/pkg/backend"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the prediction service health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			if err := opts.client().Health(ctx); err != nil {
				opts.logger.Debug("health check failed", "error", err)
				fmt.Fprintln(cmd.OutOrStdout(), backend.Message(err))
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backend reachable at %s\n", opts.backend)
			return nil
		},
	}
}
