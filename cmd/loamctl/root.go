package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/validation"
)

type options struct {
	verbose bool
	backend string
	timeout time.Duration
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "loamctl",
		Short:         "Validate and submit soil samples to the prediction service",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}

	baseURL := "http://localhost:5000"
	if v := os.Getenv(config.EnvBackendBaseURL); v != "" {
		baseURL = v
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.backend, "backend", baseURL, "prediction service base URL")
	flags.DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(
		newValidateCmd(opts),
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newOpenAPICmd(),
	)
	return root
}

func (o *options) client() *backend.HTTPClient {
	return backend.NewHTTPClient(backend.Options{
		BaseURL: o.backend,
		Timeout: o.timeout,
		Logger:  o.logger,
	})
}

// readRecord loads a JSON object of field values. Numbers and booleans are
// kept in their literal form.
func readRecord(path string) (validation.Record, error) {
	record := validation.Record{}
	if path == "" {
		return record, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}

	for field, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			record[field] = s
			continue
		}
		record[field] = string(v)
	}
	return record, nil
}

// applySets merges field=value pairs into record.
func applySets(record validation.Record, sets []string) error {
	for _, kv := range sets {
		field, value, ok := strings.Cut(kv, "=")
		if !ok || field == "" {
			return fmt.Errorf("invalid --set %q: want field=value", kv)
		}
		record[field] = value
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
