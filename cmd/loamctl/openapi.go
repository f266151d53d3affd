package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/loam/internal/api"
	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/pkg/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Write the API's OpenAPI document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}

			if out == "-" {
				return openapi.WriteJSON(api.Spec(cfg), cmd.OutOrStdout())
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := writeSpec(f, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "openapi.json", "output file, or - for stdout")
	return cmd
}

func writeSpec(w io.WriteCloser, cfg *config.Config) error {
	if err := openapi.WriteJSON(api.Spec(cfg), w); err != nil {
		w.Close()
		return fmt.Errorf("write spec: %w", err)
	}
	return w.Close()
}
