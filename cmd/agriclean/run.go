package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/agri-data-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/agri-data-etl/internal/observability"
	"github.com/couchcryptid/agri-data-etl/internal/pipeline"
)

func newRunCmd(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and write merged records as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rules, err := opts.loadRules(ctx)
			if err != nil {
				return err
			}
			transformer, err := pipeline.NewTransformer(rules, opts.logger)
			if err != nil {
				return err
			}
			fields, err := opts.fieldSource()
			if err != nil {
				return err
			}
			defer fields.Close()

			writer, err := jsonl.Create(out)
			if err != nil {
				return err
			}
			defer writer.Close()

			p := pipeline.New(fields, opts.weatherSource(), transformer, writer, opts.logger, observability.NewMetrics(), 0)
			summary, err := p.RunOnce(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.ErrOrStderr())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}
