package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/loam/pkg/validation"
)

func newValidateCmd(opts *options) *cobra.Command {
	var (
		file    string
		sets    []string
		ruleset string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a soil record and print the verdict",
		Example: `  loamctl validate --file sample.json
  loamctl validate --set ph=6.5 --set nitrogen=300 --ruleset manual`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, ok := validation.Lookup(ruleset)
			if !ok {
				return fmt.Errorf("unknown ruleset: %s", ruleset)
			}

			record, err := readRecord(file)
			if err != nil {
				return err
			}
			if err := applySets(record, sets); err != nil {
				return err
			}

			v := validation.Validate(record, rs)
			opts.logger.Debug("record validated", "ruleset", rs.Name, "status", v.Status, "errors", len(v.Errors))

			if err := printJSON(cmd, v); err != nil {
				return err
			}
			return v.Err()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value override (repeatable)")
	cmd.Flags().StringVar(&ruleset, "ruleset", "manual", "ruleset: manual or csv")
	return cmd
}
