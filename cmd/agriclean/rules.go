package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/agri-data-etl/internal/domain"
)

func newRulesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Validate the rules file and print what it configures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := opts.loadRules(cmd.Context())
			if err != nil {
				return err
			}
			weather, err := domain.NewWeatherCleaner(rules.Weather, opts.logger)
			if err != nil {
				return err
			}
			reconciler, err := domain.NewReconciler(rules.Stations, weather.Readings(), opts.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rules file:      %s\n", opts.rulesFile)
			fmt.Fprintf(out, "measurements:    %s\n", strings.Join(measurementList(rules.Field), ", "))
			fmt.Fprintf(out, "crop vocabulary: %d terms, %d aliases\n", len(rules.Field.CropVocabulary), len(rules.Field.CropAliases))
			fmt.Fprintf(out, "readings:        %s\n", strings.Join(weather.Readings(), ", "))
			fmt.Fprintf(out, "station map:     %d fields\n", len(rules.Stations))

			shared := reconciler.SharedStations()
			stations := make([]string, 0, len(shared))
			for s := range shared {
				stations = append(stations, s)
			}
			sort.Strings(stations)
			for _, s := range stations {
				fmt.Fprintf(out, "shared station:  %s <- %s\n", s, strings.Join(shared[s], ", "))
			}
			return nil
		},
	}
}

func measurementList(r domain.FieldRules) []string {
	out := make([]string, 0, len(r.Measurements))
	for _, m := range r.Measurements {
		if u := r.Units[m].CanonicalUnit; u != "" {
			m += " (" + u + ")"
		}
		out = append(out, m)
	}
	return out
}
