package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/capture"
	"github.com/JaimeStill/loam/pkg/submission"
	"github.com/JaimeStill/loam/pkg/validation"
)

func newSubmitCmd(opts *options) *cobra.Command {
	var (
		mode string
		file string
		sets []string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Validate and submit a capture to the prediction service",
		Long: `Runs one capture through validation and submission. In manual mode
--file is a JSON record; in image and csv modes it is the payload file and
--set supplies the CSV companion columns.`,
		Example: `  loamctl submit --mode manual --file sample.json
  loamctl submit --mode image --file soil.jpg
  loamctl submit --mode csv --file readings.csv --set N=90 --set P=42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := capture.ParseMode(mode)
			if err != nil {
				return err
			}
			if m == capture.ModeCamera {
				return errors.New("camera mode requires the server")
			}

			ctrl := capture.New(capture.Options{Logger: opts.logger})
			defer ctrl.Close()

			if err := ctrl.SelectMode(m); err != nil {
				return err
			}
			if err := load(ctrl, m, file, sets); err != nil {
				return err
			}

			return submit(cmd, opts, ctrl)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(capture.ModeManual), "capture mode: manual, image or csv")
	cmd.Flags().StringVarP(&file, "file", "f", "", "record or payload file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	return cmd
}

func load(ctrl *capture.Controller, mode capture.Mode, file string, sets []string) error {
	fields := validation.Record{}

	if mode == capture.ModeManual {
		record, err := readRecord(file)
		if err != nil {
			return err
		}
		fields = record
	} else if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		if err := ctrl.SetFile(backend.File{
			Name:        filepath.Base(file),
			ContentType: contentType(file, data),
			Data:        data,
		}); err != nil {
			return err
		}
	}

	if err := applySets(fields, sets); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return ctrl.SetFields(fields)
}

func submit(cmd *cobra.Command, opts *options, ctrl *capture.Controller) error {
	req, verdict, err := ctrl.BeginSubmit()
	if err != nil {
		return err
	}
	if !verdict.Valid() {
		printJSON(cmd, verdict)
		return verdict.Err()
	}

	p := submission.New(opts.client(), submission.Options{
		Logger: opts.logger,
		OnComplete: func(_ submission.Request, o submission.Outcome) {
			ctrl.FinishSubmit(o.Status == submission.Success)
		},
	})
	defer p.Close()

	if err := p.Submit(req, verdict); err != nil {
		ctrl.FinishSubmit(false)
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	o, err := p.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for submission: %w", err)
	}
	if err := printJSON(cmd, o); err != nil {
		return err
	}

	if o.Status != submission.Success {
		return errors.New(o.Message)
	}
	return nil
}

func contentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
